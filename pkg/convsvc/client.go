// Package convsvc provides a client for the hosted conversation service.
// The chat lock uses it for exactly two things: listing recent one-to-one
// partners so the user can choose which conversations to lock, and bulk
// deleting a conversation's messages when enforcement fires.
package convsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// DefaultTimeout bounds every remote call. A hung delete would otherwise
// leave the enforcement flow pending indefinitely.
const DefaultTimeout = 30 * time.Second

// ErrRemote wraps any failure reported by the conversation service. Callers
// treat it as "the deletion did not happen" and may retry.
var ErrRemote = errors.New("convsvc: conversation service error")

// Client is a client for the conversation service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new conversation service client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Partner identifies the other participant of a one-to-one conversation.
type Partner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

// deleteResponse is the payload returned by the bulk delete endpoint.
type deleteResponse struct {
	DeletedCount int `json:"deleted_count"`
}

// ListRecentPartners returns the user's recent one-to-one conversation
// partners, most recent first. Display names are NFC-normalized so visually
// identical names compare equal regardless of how the client composed them.
func (c *Client) ListRecentPartners(ctx context.Context, userID string) ([]Partner, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("convsvc: base url is empty")
	}

	endpoint := fmt.Sprintf("%s/v1/users/%s/partners", c.baseURL, url.PathEscape(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("convsvc: failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemote, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: list partners returned status %d", ErrRemote, resp.StatusCode)
	}

	var partners []Partner
	if err := json.NewDecoder(resp.Body).Decode(&partners); err != nil {
		return nil, fmt.Errorf("convsvc: failed to decode response: %w", err)
	}

	for i := range partners {
		partners[i].DisplayName = norm.NFC.String(partners[i].DisplayName)
	}
	return partners, nil
}

// DeleteConversation removes all messages between the user and the partner,
// in both directions, and returns the number of deleted messages. Deleting a
// conversation with no remaining messages succeeds with a count of zero, so
// the call is safe to retry.
func (c *Client) DeleteConversation(ctx context.Context, userID, partnerID string) (int, error) {
	if c.baseURL == "" {
		return 0, fmt.Errorf("convsvc: base url is empty")
	}

	endpoint := fmt.Sprintf("%s/v1/users/%s/conversations/%s",
		c.baseURL, url.PathEscape(userID), url.PathEscape(partnerID))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("convsvc: failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRemote, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("%w: delete returned status %d", ErrRemote, resp.StatusCode)
	}

	var response deleteResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return 0, fmt.Errorf("convsvc: failed to decode response: %w", err)
	}

	return response.DeletedCount, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
