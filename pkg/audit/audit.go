// Package audit provides append-only audit logging for chat-lock events with
// an HMAC chain for tamper detection. Challenge outcomes and enforcement are
// security-relevant on a shared device, so the log records them in a form
// that makes silent edits detectable.
package audit

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"
)

// Operation types for audit logging
const (
	// Lock configuration operations
	OpLockEnable  = "lock.enable"
	OpLockChange  = "lock.change"
	OpLockDisable = "lock.disable"
	OpLockSet     = "lock.set"

	// Challenge operations
	OpChallengeGranted   = "challenge.granted"
	OpChallengeDenied    = "challenge.denied"
	OpChallengeExhausted = "challenge.exhausted"

	// Enforcement operations
	OpEnforceDone   = "enforce.done"
	OpEnforceFailed = "enforce.failed"
)

// Source identifies where the operation originated
const (
	SourceCLI = "cli"
	SourceUI  = "ui"
)

// Result indicates the outcome of an operation
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Event represents a single audit log record.
type Event struct {
	Version   int    `json:"v"`  // Schema version (1)
	ID        string `json:"id"` // Event ID (time-sortable)
	Timestamp string `json:"ts"` // RFC 3339 nanosecond precision

	Operation    string `json:"op"`
	Conversation string `json:"conv,omitempty"` // HMAC of conversation id
	Source       string `json:"source"`
	SessionID    string `json:"session_id"`

	Result string     `json:"result"`
	Error  *ErrorInfo `json:"error,omitempty"`

	Context map[string]interface{} `json:"ctx,omitempty"`

	Chain Chain `json:"chain"`
}

// ErrorInfo contains error details
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Chain provides HMAC chain for tamper detection
type Chain struct {
	Sequence int64  `json:"seq"`  // Sequence number
	PrevHash string `json:"prev"` // Previous record hash
	HMAC     string `json:"hmac"` // This record's HMAC
}

// Logger handles audit log writing with HMAC chain
type Logger struct {
	path       string     // Audit log directory path
	hmacKey    []byte     // HMAC key derived from the store salt
	mu         sync.Mutex // Protects concurrent writes
	sequence   int64      // Current sequence number
	prevHash   string     // Previous record hash
	sessionID  string     // Current session ID
	hmacKeySet bool       // Whether HMAC key has been set
}

// NewLogger creates a new audit logger
func NewLogger(path string) *Logger {
	return &Logger{
		path:      path,
		prevHash:  "genesis", // Initial chain value
		sessionID: generateSessionID(),
	}
}

// SetHMACKey derives and sets the HMAC key from the store salt using HKDF
func (l *Logger) SetHMACKey(salt []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	hkdfReader := hkdf.New(sha256.New, salt, nil, []byte("chatlock-audit-v1"))
	l.hmacKey = make([]byte, 32)
	if _, err := hkdfReader.Read(l.hmacKey); err != nil {
		return fmt.Errorf("audit: failed to derive HMAC key: %w", err)
	}
	l.hmacKeySet = true

	// Load existing chain state; absence just means first run
	if err := l.loadChainState(); err != nil {
		l.sequence = 0
		l.prevHash = "genesis"
	}

	return nil
}

// Log records an audit event. The conversation id, if provided, is stored as
// an HMAC so the log does not leak which conversations are locked.
func (l *Logger) Log(op, source, result, conversationID string, errInfo *ErrorInfo, ctx map[string]interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.hmacKeySet {
		return fmt.Errorf("audit: HMAC key not set")
	}

	if err := os.MkdirAll(l.path, 0700); err != nil {
		return fmt.Errorf("audit: failed to create directory: %w", err)
	}

	event := Event{
		Version:   1,
		ID:        generateEventID(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Operation: op,
		Source:    source,
		SessionID: l.sessionID,
		Result:    result,
		Error:     errInfo,
		Context:   ctx,
	}

	if conversationID != "" {
		mac := hmac.New(sha256.New, l.hmacKey)
		mac.Write([]byte(conversationID))
		event.Conversation = hex.EncodeToString(mac.Sum(nil))
	}

	l.sequence++
	event.Chain.Sequence = l.sequence
	event.Chain.PrevHash = l.prevHash

	recordData := l.buildRecordData(&event)
	mac := hmac.New(sha256.New, l.hmacKey)
	mac.Write(recordData)
	event.Chain.HMAC = hex.EncodeToString(mac.Sum(nil))

	l.prevHash = event.Chain.HMAC

	if err := l.writeEvent(&event); err != nil {
		return err
	}

	return l.saveChainState()
}

// LogSuccess is a convenience method for successful operations
func (l *Logger) LogSuccess(op, source, conversationID string) error {
	return l.Log(op, source, ResultSuccess, conversationID, nil, nil)
}

// LogError is a convenience method for failed operations
func (l *Logger) LogError(op, source, conversationID, errCode, errMsg string) error {
	return l.Log(op, source, ResultError, conversationID, &ErrorInfo{Code: errCode, Message: errMsg}, nil)
}

// buildRecordData creates the canonical byte form of an event for HMACing.
// Context keys are sorted so the HMAC is deterministic.
func (l *Logger) buildRecordData(event *Event) []byte {
	contextData := ""
	if event.Context != nil {
		keys := make([]string, 0, len(event.Context))
		for k := range event.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			contextData += fmt.Sprintf("%s=%v|", k, event.Context[k])
		}
	}

	errorData := ""
	if event.Error != nil {
		errorData = fmt.Sprintf("%s|%s", event.Error.Code, event.Error.Message)
	}

	data := fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s|%s|%s|%s|%d|%s",
		event.Version,
		event.ID,
		event.Timestamp,
		event.Operation,
		event.Conversation,
		event.Source,
		event.SessionID,
		event.Result,
		errorData,
		contextData,
		event.Chain.Sequence,
		event.Chain.PrevHash,
	)
	return []byte(data)
}

// writeEvent appends an event to the current month's log file
func (l *Logger) writeEvent(event *Event) error {
	filename := time.Now().UTC().Format("2006-01") + ".jsonl"
	logPath := filepath.Join(l.path, filename)

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("audit: failed to open log file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event: %w", err)
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}

	return nil
}

// ChainState holds the persistent chain state
type ChainState struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
}

func (l *Logger) loadChainState() error {
	metaPath := filepath.Join(l.path, "audit.meta")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return err
	}

	var state ChainState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}

	l.sequence = state.Sequence
	l.prevHash = state.PrevHash
	return nil
}

func (l *Logger) saveChainState() error {
	state := ChainState{
		Sequence: l.sequence,
		PrevHash: l.prevHash,
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal chain state: %w", err)
	}

	metaPath := filepath.Join(l.path, "audit.meta")
	if err := os.WriteFile(metaPath, data, 0600); err != nil {
		return fmt.Errorf("audit: failed to save chain state: %w", err)
	}

	return nil
}

// Verify checks the integrity of the audit log chain
func (l *Logger) Verify() (*VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.hmacKeySet {
		return nil, fmt.Errorf("audit: HMAC key not set")
	}

	result := &VerifyResult{Valid: true}

	files, err := filepath.Glob(filepath.Join(l.path, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list log files: %w", err)
	}
	// YYYY-MM.jsonl names sort chronologically
	sort.Strings(files)

	expectedPrevHash := "genesis"
	var expectedSeq int64 = 1

	for _, file := range files {
		events, err := readLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", file, err)
		}

		for i := range events {
			event := &events[i]
			result.RecordsTotal++

			if event.Chain.Sequence != expectedSeq {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf(
					"sequence gap at record %s: expected %d, got %d",
					event.ID, expectedSeq, event.Chain.Sequence))
			}

			if event.Chain.PrevHash != expectedPrevHash {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf(
					"chain broken at record %s: expected prev %s, got %s",
					event.ID, expectedPrevHash, event.Chain.PrevHash))
			}

			recordData := l.buildRecordData(event)
			mac := hmac.New(sha256.New, l.hmacKey)
			mac.Write(recordData)
			expectedHMAC := hex.EncodeToString(mac.Sum(nil))

			if event.Chain.HMAC != expectedHMAC {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf(
					"HMAC mismatch at record %s: possible tampering", event.ID))
			}

			expectedPrevHash = event.Chain.HMAC
			expectedSeq++
		}
	}

	result.RecordsVerified = result.RecordsTotal
	return result, nil
}

// VerifyResult contains the results of chain verification
type VerifyResult struct {
	Valid           bool     `json:"valid"`
	RecordsTotal    int      `json:"records_total"`
	RecordsVerified int      `json:"records_verified"`
	Errors          []string `json:"errors,omitempty"`
}

// ListEvents returns audit events in chronological order.
// limit: maximum number of most recent events to return (0 = all).
func (l *Logger) ListEvents(limit int) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(l.path, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list log files: %w", err)
	}
	sort.Strings(files)

	var events []Event
	for _, file := range files {
		fileEvents, err := readLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", file, err)
		}
		events = append(events, fileEvents...)
	}

	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

func readLogFile(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var events []Event
	start := 0
	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			if i > start {
				var event Event
				if err := json.Unmarshal(data[start:i], &event); err != nil {
					return nil, fmt.Errorf("failed to parse line: %w", err)
				}
				events = append(events, event)
			}
			start = i + 1
		}
	}
	return events, nil
}

// generateSessionID creates a unique session identifier
func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("session-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// generateEventID creates a time-sortable unique identifier
// (48-bit millisecond timestamp + 80 bits of randomness, hex encoded).
func generateEventID() string {
	ts := time.Now().UnixMilli()
	tsBytes := make([]byte, 6)
	for i := 5; i >= 0; i-- {
		tsBytes[i] = byte(ts & 0xFF)
		ts >>= 8
	}

	randBytes := make([]byte, 10)
	if _, err := rand.Read(randBytes); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}

	combined := append(tsBytes, randBytes...)
	return hex.EncodeToString(combined)
}
