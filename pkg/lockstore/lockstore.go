// Package lockstore persists the chat-lock state on the local device: the
// shared passcode, the set of locked conversations, and per-day failed-attempt
// counts. State lives in a SQLite database under the data directory and is
// never synced to the remote service, so the lock is per-device rather than
// per-account.
package lockstore

import (
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/nexgram/chatlock/pkg/audit"
	"github.com/nexgram/chatlock/pkg/passhash"

	_ "github.com/mattn/go-sqlite3"
)

// Constants
const (
	DBFileName = "chatlock.db"
	FileMode   = 0600 // Owner read/write only
	DirMode    = 0700 // Owner read/write/execute only

	// MaxFailures is the number of failed unlock attempts per conversation
	// per calendar day before enforcement fires.
	MaxFailures = 3

	// DayBucketLayout is the device-local calendar-date key that scopes
	// attempt counting. Counts recorded under one date are invisible the
	// next day.
	DayBucketLayout = "2006-01-02"
)

// Errors
var (
	ErrNotConfigured     = errors.New("lockstore: no passcode configured")
	ErrAlreadyConfigured = errors.New("lockstore: passcode already configured")
	ErrInvalidPasscode   = errors.New("lockstore: passcode must be exactly 4 digits")
	ErrConfirmMismatch   = errors.New("lockstore: passcode confirmation does not match")
	ErrWrongPasscode     = errors.New("lockstore: current passcode is incorrect")
	ErrStoreClosed       = errors.New("lockstore: store is not open")
)

var passcodePattern = regexp.MustCompile(`^\d{4}$`)

// ValidatePasscode checks the 4-digit format rule shared by Enable and Change.
func ValidatePasscode(passcode string) error {
	if !passcodePattern.MatchString(passcode) {
		return ErrInvalidPasscode
	}
	return nil
}

// Store manages the device-local lock state.
type Store struct {
	path  string           // Path to data directory (e.g., ~/.chatlock)
	db    *sql.DB          // SQLite database connection
	mu    sync.RWMutex     // Concurrency control
	now   func() time.Time // Clock, injectable for tests
	audit *audit.Logger    // Audit logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for day bucketing.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store for the given data directory. Open must be called
// before any other operation.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:  path,
		now:   time.Now,
		audit: audit.NewLogger(filepath.Join(path, "audit")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates the data directory if needed, opens the database and creates
// the schema. If a passcode is already configured the audit logger is keyed
// from its salt so events can be recorded immediately.
func (s *Store) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.path, DirMode); err != nil {
		return fmt.Errorf("lockstore: failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(s.path, DBFileName)
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("lockstore: failed to open database: %w", err)
	}

	// Single-connection mode avoids "database is locked" errors; appropriate
	// for a device-local store driven by one UI thread.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return fmt.Errorf("lockstore: failed to create tables: %w", err)
	}
	s.db = db

	if err := os.Chmod(dbPath, FileMode); err != nil {
		return fmt.Errorf("lockstore: failed to set database permissions: %w", err)
	}

	var auditSalt []byte
	err = db.QueryRow("SELECT audit_salt FROM lock_config WHERE id = 1").Scan(&auditSalt)
	switch {
	case err == nil:
		if keyErr := s.audit.SetHMACKey(auditSalt); keyErr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize audit logger: %v\n", keyErr)
		}
	case errors.Is(err, sql.ErrNoRows):
		// Lock feature not configured yet
	default:
		return fmt.Errorf("lockstore: failed to read lock config: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Audit exposes the store's audit logger so the challenge flow can record
// events on the same chain.
func (s *Store) Audit() *audit.Logger {
	return s.audit
}

// Path returns the data directory path.
func (s *Store) Path() string {
	return s.path
}

func createTables(db *sql.DB) error {
	// audit_salt keys the audit HMAC chain. It is created once at Enable and
	// survives passcode changes, so older audit records stay verifiable.
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS lock_config (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			passcode_hash BLOB NOT NULL,
			salt BLOB NOT NULL,
			audit_salt BLOB NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS locked_conversations (
			conversation_id TEXT PRIMARY KEY
		)
	`)
	if err != nil {
		return err
	}

	// Attempt counts are keyed by (conversation, calendar day) so they expire
	// naturally at midnight instead of accumulating forever.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS attempt_records (
			conversation_id TEXT NOT NULL,
			day TEXT NOT NULL,
			failure_count INTEGER NOT NULL DEFAULT 0,
			last_attempt TIMESTAMP,
			PRIMARY KEY (conversation_id, day)
		)
	`)
	return err
}

// Enable sets up the lock feature with a new passcode. The candidate must be
// exactly four decimal digits and must match its confirmation. The locked set
// starts empty until explicitly populated.
func (s *Store) Enable(passcode, confirm string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrStoreClosed
	}
	if err := ValidatePasscode(passcode); err != nil {
		return err
	}
	if passcode != confirm {
		return ErrConfirmMismatch
	}

	var exists int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM lock_config").Scan(&exists); err != nil {
		return fmt.Errorf("lockstore: failed to read lock config: %w", err)
	}
	if exists > 0 {
		return ErrAlreadyConfigured
	}

	hash, salt, err := passhash.Hash(passcode)
	if err != nil {
		return err
	}

	auditSalt := make([]byte, passhash.SaltLength)
	if _, err := rand.Read(auditSalt); err != nil {
		return fmt.Errorf("lockstore: failed to generate audit salt: %w", err)
	}

	_, err = s.db.Exec(
		"INSERT INTO lock_config(id, passcode_hash, salt, audit_salt) VALUES(1, ?, ?, ?)",
		hash, salt, auditSalt)
	if err != nil {
		return fmt.Errorf("lockstore: failed to save passcode: %w", err)
	}

	if keyErr := s.audit.SetHMACKey(auditSalt); keyErr != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to initialize audit logger: %v\n", keyErr)
	} else {
		_ = s.audit.LogSuccess(audit.OpLockEnable, audit.SourceCLI, "")
	}

	return nil
}

// Change replaces the passcode after verifying the current one. Locked
// conversations and attempt records are unaffected.
func (s *Store) Change(current, newPasscode, confirm string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrStoreClosed
	}

	ok, err := s.verify(current)
	if err != nil {
		return err
	}
	if !ok {
		_ = s.audit.LogError(audit.OpLockChange, audit.SourceCLI, "", "AUTH_FAILED", "current passcode incorrect")
		return ErrWrongPasscode
	}

	if err := ValidatePasscode(newPasscode); err != nil {
		return err
	}
	if newPasscode != confirm {
		return ErrConfirmMismatch
	}

	hash, salt, err := passhash.Hash(newPasscode)
	if err != nil {
		return err
	}

	// audit_salt is left alone so the existing audit chain stays verifiable
	_, err = s.db.Exec(
		"UPDATE lock_config SET passcode_hash = ?, salt = ?, updated_at = CURRENT_TIMESTAMP WHERE id = 1",
		hash, salt)
	if err != nil {
		return fmt.Errorf("lockstore: failed to update passcode: %w", err)
	}

	_ = s.audit.LogSuccess(audit.OpLockChange, audit.SourceCLI, "")
	return nil
}

// Verify reports whether the passcode matches the configured one.
func (s *Store) Verify(passcode string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return false, ErrStoreClosed
	}
	return s.verify(passcode)
}

// verify requires the caller to hold at least the read lock.
func (s *Store) verify(passcode string) (bool, error) {
	var hash, salt []byte
	err := s.db.QueryRow("SELECT passcode_hash, salt FROM lock_config WHERE id = 1").Scan(&hash, &salt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotConfigured
		}
		return false, fmt.Errorf("lockstore: failed to read lock config: %w", err)
	}
	return passhash.Verify(passcode, salt, hash)
}

// Enabled reports whether a passcode is configured.
func (s *Store) Enabled() (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return false, ErrStoreClosed
	}
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM lock_config").Scan(&count); err != nil {
		return false, fmt.Errorf("lockstore: failed to read lock config: %w", err)
	}
	return count > 0, nil
}

// SetLockedConversations replaces the locked set wholesale. A passcode must be
// configured first: a non-empty locked set without a passcode is unreachable.
func (s *Store) SetLockedConversations(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrStoreClosed
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM lock_config").Scan(&count); err != nil {
		return fmt.Errorf("lockstore: failed to read lock config: %w", err)
	}
	if count == 0 && len(ids) > 0 {
		return ErrNotConfigured
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("lockstore: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM locked_conversations"); err != nil {
		return fmt.Errorf("lockstore: failed to clear locked set: %w", err)
	}
	for _, id := range ids {
		if _, err := tx.Exec("INSERT OR IGNORE INTO locked_conversations(conversation_id) VALUES(?)", id); err != nil {
			return fmt.Errorf("lockstore: failed to save locked conversation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("lockstore: failed to commit locked set: %w", err)
	}

	_ = s.audit.LogSuccess(audit.OpLockSet, audit.SourceCLI, "")
	return nil
}

// LockedConversations returns the locked set, sorted for stable output.
func (s *Store) LockedConversations() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query("SELECT conversation_id FROM locked_conversations")
	if err != nil {
		return nil, fmt.Errorf("lockstore: failed to list locked conversations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("lockstore: failed to scan locked conversation: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lockstore: failed to read locked conversations: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// IsLocked reports whether opening the conversation requires a passcode
// challenge: true iff a passcode is configured and the id is in the locked set.
func (s *Store) IsLocked(conversationID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return false, ErrStoreClosed
	}

	var configured int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM lock_config").Scan(&configured); err != nil {
		return false, fmt.Errorf("lockstore: failed to read lock config: %w", err)
	}
	if configured == 0 {
		return false, nil
	}

	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM locked_conversations WHERE conversation_id = ?",
		conversationID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("lockstore: failed to check locked set: %w", err)
	}
	return count > 0, nil
}

// Unlock removes a single conversation from the locked set. Called by
// enforcement after a successful remote delete.
func (s *Store) Unlock(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrStoreClosed
	}
	if _, err := s.db.Exec("DELETE FROM locked_conversations WHERE conversation_id = ?", conversationID); err != nil {
		return fmt.Errorf("lockstore: failed to remove locked conversation: %w", err)
	}
	return nil
}

// Disable tears the lock feature down: passcode, locked set and all attempt
// records are cleared in a single transaction. A new passcode must be set up
// from scratch afterwards.
func (s *Store) Disable() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrStoreClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("lockstore: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DELETE FROM lock_config",
		"DELETE FROM locked_conversations",
		"DELETE FROM attempt_records",
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("lockstore: failed to clear lock state: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("lockstore: failed to commit disable: %w", err)
	}

	_ = s.audit.LogSuccess(audit.OpLockDisable, audit.SourceCLI, "")
	return nil
}

// dayBucket returns today's attempt-record key.
func (s *Store) dayBucket() string {
	return s.now().Format(DayBucketLayout)
}

// FailureCount returns today's failed-attempt count for the conversation,
// zero if none recorded.
func (s *Store) FailureCount(conversationID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return 0, ErrStoreClosed
	}

	var count int
	err := s.db.QueryRow(
		"SELECT failure_count FROM attempt_records WHERE conversation_id = ? AND day = ?",
		conversationID, s.dayBucket()).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("lockstore: failed to read attempt record: %w", err)
	}
	return count, nil
}

// RecordFailure increments today's failed-attempt count for the conversation
// and returns the new count. Callers must only invoke this for an actual
// non-empty wrong guess; a cancelled or empty submission is not an attempt.
func (s *Store) RecordFailure(conversationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return 0, ErrStoreClosed
	}

	day := s.dayBucket()
	_, err := s.db.Exec(`
		INSERT INTO attempt_records(conversation_id, day, failure_count, last_attempt)
		VALUES(?, ?, 1, ?)
		ON CONFLICT(conversation_id, day)
		DO UPDATE SET failure_count = failure_count + 1, last_attempt = excluded.last_attempt`,
		conversationID, day, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("lockstore: failed to record attempt: %w", err)
	}

	var count int
	err = s.db.QueryRow(
		"SELECT failure_count FROM attempt_records WHERE conversation_id = ? AND day = ?",
		conversationID, day).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("lockstore: failed to read attempt record: %w", err)
	}
	return count, nil
}

// ResetFailures clears today's attempt record for the conversation. Called on
// a successful unlock and after enforcement.
func (s *Store) ResetFailures(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrStoreClosed
	}
	if _, err := s.db.Exec("DELETE FROM attempt_records WHERE conversation_id = ?", conversationID); err != nil {
		return fmt.Errorf("lockstore: failed to reset attempt record: %w", err)
	}
	return nil
}

// PruneStaleAttempts drops attempt records from previous days. Day bucketing
// already makes them invisible; this just keeps the table from growing.
func (s *Store) PruneStaleAttempts() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return 0, ErrStoreClosed
	}
	res, err := s.db.Exec("DELETE FROM attempt_records WHERE day != ?", s.dayBucket())
	if err != nil {
		return 0, fmt.Errorf("lockstore: failed to prune attempt records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("lockstore: failed to count pruned records: %w", err)
	}
	return n, nil
}
