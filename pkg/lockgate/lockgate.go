// Package lockgate implements the access decision for locked conversations:
// whether opening one requires a passcode challenge, the challenge itself with
// its bounded retries, and the destructive enforcement that erases a
// conversation's remote history once the attempts are exhausted.
package lockgate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nexgram/chatlock/pkg/audit"
	"github.com/nexgram/chatlock/pkg/lockstore"
)

// State is the position of a challenge in its lifecycle.
type State int

const (
	// StateUnlocked means no challenge is required for the conversation.
	StateUnlocked State = iota
	// StateChallenging means the passcode prompt is live and awaiting input.
	StateChallenging
	// StateGranted means the passcode matched; the conversation may open.
	StateGranted
	// StateDenied means a wrong guess was recorded but attempts remain.
	StateDenied
	// StateExhausted means the attempt limit was reached and enforcement ran.
	StateExhausted
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUnlocked:
		return "unlocked"
	case StateChallenging:
		return "challenging"
	case StateGranted:
		return "granted"
	case StateDenied:
		return "denied"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Errors
var (
	ErrChallengeClosed = errors.New("lockgate: challenge already resolved")
	ErrNotLocked       = errors.New("lockgate: conversation is not locked")
)

// Store is the device-local lock state consumed by the gate.
// *lockstore.Store satisfies it.
type Store interface {
	IsLocked(conversationID string) (bool, error)
	Verify(passcode string) (bool, error)
	FailureCount(conversationID string) (int, error)
	RecordFailure(conversationID string) (int, error)
	ResetFailures(conversationID string) error
	Unlock(conversationID string) error
}

// Conversations is the remote message store. The gate only ever deletes
// through it. *convsvc.Client satisfies it.
type Conversations interface {
	DeleteConversation(ctx context.Context, userID, partnerID string) (int, error)
}

// Result describes the outcome of a challenge step.
type Result struct {
	State             State
	RemainingAttempts int // Meaningful for StateChallenging and StateDenied
	DeletedCount      int // Meaningful for StateExhausted after enforcement
}

// Gate decides whether conversations open freely or behind a challenge.
type Gate struct {
	store         Store
	conversations Conversations
	audit         *audit.Logger
	userID        string
}

// New creates a Gate. The audit logger may be nil, in which case no events
// are recorded.
func New(store Store, conversations Conversations, logger *audit.Logger, userID string) *Gate {
	return &Gate{
		store:         store,
		conversations: conversations,
		audit:         logger,
		userID:        userID,
	}
}

// Challenge is a live passcode prompt for one conversation. It is resolved by
// Submit reaching a terminal state; dismissing it before then has no side
// effects.
type Challenge struct {
	gate           *Gate
	conversationID string
	state          State
	done           bool
}

// ConversationID returns the conversation the challenge guards.
func (c *Challenge) ConversationID() string {
	return c.conversationID
}

// State returns the challenge's current state.
func (c *Challenge) State() State {
	return c.state
}

// Open checks whether the conversation requires a challenge. It returns
// (nil, nil) when the conversation is not locked and the caller may open it
// directly. When today's recorded failures already meet the limit, from a
// prior exhaustion that never completed, the gate does not offer another
// prompt: enforcement runs immediately and the returned challenge is already
// in StateExhausted. A remote failure during that enforcement is returned
// alongside the challenge; local state is untouched so re-opening retries it.
func (g *Gate) Open(ctx context.Context, conversationID string) (*Challenge, error) {
	locked, err := g.store.IsLocked(conversationID)
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, nil
	}

	count, err := g.store.FailureCount(conversationID)
	if err != nil {
		return nil, err
	}
	if count >= lockstore.MaxFailures {
		ch := &Challenge{gate: g, conversationID: conversationID, state: StateExhausted, done: true}
		g.logEvent(audit.OpChallengeExhausted, conversationID, map[string]interface{}{"short_circuit": true})
		if _, err := g.Enforce(ctx, conversationID); err != nil {
			return ch, err
		}
		return ch, nil
	}

	return &Challenge{gate: g, conversationID: conversationID, state: StateChallenging}, nil
}

// Submit evaluates one passcode guess.
//
// An empty or whitespace-only guess is a cancel-equivalent: nothing is
// recorded and the challenge stays live. A correct guess resets today's
// failures and resolves the challenge. A wrong guess increments today's
// count; when the count reaches the limit the conversation's remote history
// is erased and the challenge closes, otherwise it stays live with the
// remaining attempts reported.
func (c *Challenge) Submit(ctx context.Context, guess string) (Result, error) {
	if c.done {
		return Result{State: c.state}, ErrChallengeClosed
	}
	g := c.gate

	if strings.TrimSpace(guess) == "" {
		count, err := g.store.FailureCount(c.conversationID)
		if err != nil {
			return Result{State: StateChallenging}, err
		}
		return Result{State: StateChallenging, RemainingAttempts: lockstore.MaxFailures - count}, nil
	}

	ok, err := g.store.Verify(guess)
	if err != nil {
		return Result{State: StateChallenging}, err
	}

	if ok {
		if err := g.store.ResetFailures(c.conversationID); err != nil {
			return Result{State: StateChallenging}, err
		}
		c.state = StateGranted
		c.done = true
		g.logEvent(audit.OpChallengeGranted, c.conversationID, nil)
		return Result{State: StateGranted}, nil
	}

	count, err := g.store.RecordFailure(c.conversationID)
	if err != nil {
		return Result{State: StateChallenging}, err
	}

	if count < lockstore.MaxFailures {
		c.state = StateDenied
		remaining := lockstore.MaxFailures - count
		if g.audit != nil {
			_ = g.audit.LogError(audit.OpChallengeDenied, audit.SourceUI, c.conversationID,
				"WRONG_PASSCODE", fmt.Sprintf("%d attempts remaining", remaining))
		}
		return Result{State: StateDenied, RemainingAttempts: remaining}, nil
	}

	c.state = StateExhausted
	c.done = true
	g.logEvent(audit.OpChallengeExhausted, c.conversationID, nil)

	deleted, err := g.Enforce(ctx, c.conversationID)
	if err != nil {
		return Result{State: StateExhausted}, err
	}
	return Result{State: StateExhausted, DeletedCount: deleted}, nil
}

// Enforce irrevocably erases the conversation's remote message history, then
// removes it from the locked set and clears its attempt record. If the remote
// delete fails, local state is left exactly as it was: the conversation stays
// locked and over the limit, so the next open retries enforcement rather than
// silently keeping a ghost lock on data that was never erased. The delete is
// idempotent remotely; erasing zero remaining messages is a safe no-op.
func (g *Gate) Enforce(ctx context.Context, conversationID string) (int, error) {
	deleted, err := g.conversations.DeleteConversation(ctx, g.userID, conversationID)
	if err != nil {
		if g.audit != nil {
			_ = g.audit.LogError(audit.OpEnforceFailed, audit.SourceUI, conversationID,
				"REMOTE_ERROR", err.Error())
		}
		return 0, fmt.Errorf("lockgate: enforcement failed, conversation remains locked: %w", err)
	}

	if err := g.store.Unlock(conversationID); err != nil {
		return deleted, err
	}
	if err := g.store.ResetFailures(conversationID); err != nil {
		return deleted, err
	}

	g.logEvent(audit.OpEnforceDone, conversationID, map[string]interface{}{"deleted": deleted})
	return deleted, nil
}

func (g *Gate) logEvent(op, conversationID string, ctx map[string]interface{}) {
	if g.audit == nil {
		return
	}
	_ = g.audit.Log(op, audit.SourceUI, audit.ResultSuccess, conversationID, nil, ctx)
}
