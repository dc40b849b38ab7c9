package lockgate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nexgram/chatlock/pkg/lockstore"
)

// fakeConversations is an in-memory stand-in for the remote service.
type fakeConversations struct {
	messageCount map[string]int // remaining messages per partner
	failWith     error          // next DeleteConversation error, if set
	deleteCalls  int
	deleted      []string
}

func (f *fakeConversations) DeleteConversation(ctx context.Context, userID, partnerID string) (int, error) {
	f.deleteCalls++
	if f.failWith != nil {
		return 0, f.failWith
	}
	n := f.messageCount[partnerID]
	delete(f.messageCount, partnerID)
	f.deleted = append(f.deleted, partnerID)
	return n, nil
}

type fixture struct {
	store  *lockstore.Store
	remote *fakeConversations
	gate   *Gate
	now    time.Time
}

// newFixture sets up a store with passcode "4242" and conversation "userB"
// locked, matching the scenario the whole feature is built around.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{now: time.Date(2026, 8, 29, 12, 0, 0, 0, time.Local)}

	f.store = lockstore.New(t.TempDir(), lockstore.WithClock(func() time.Time { return f.now }))
	if err := f.store.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { f.store.Close() })

	if err := f.store.Enable("4242", "4242"); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	if err := f.store.SetLockedConversations([]string{"userB"}); err != nil {
		t.Fatalf("SetLockedConversations failed: %v", err)
	}

	f.remote = &fakeConversations{messageCount: map[string]int{"userB": 17}}
	f.gate = New(f.store, f.remote, nil, "userA")
	return f
}

func TestOpenUnlockedConversation(t *testing.T) {
	f := newFixture(t)

	ch, err := f.gate.Open(context.Background(), "userZ")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if ch != nil {
		t.Error("expected no challenge for an unlocked conversation")
	}
}

func TestOpenLockedConversation(t *testing.T) {
	f := newFixture(t)

	ch, err := f.gate.Open(context.Background(), "userB")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if ch == nil {
		t.Fatal("expected a challenge for a locked conversation")
	}
	if ch.State() != StateChallenging {
		t.Errorf("expected StateChallenging, got %v", ch.State())
	}
}

func TestEmptySubmissionRecordsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for prior := 0; prior < lockstore.MaxFailures; prior++ {
		ch, err := f.gate.Open(ctx, "userB")
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}

		for _, guess := range []string{"", "   ", "\t"} {
			result, err := ch.Submit(ctx, guess)
			if err != nil {
				t.Fatalf("Submit failed: %v", err)
			}
			if result.State != StateChallenging {
				t.Errorf("prior=%d: expected StateChallenging, got %v", prior, result.State)
			}
		}

		count, err := f.store.FailureCount("userB")
		if err != nil {
			t.Fatalf("FailureCount failed: %v", err)
		}
		if count != prior {
			t.Errorf("empty submission changed failure count: expected %d, got %d", prior, count)
		}

		// Set up the next prior count with a real wrong guess
		if prior < lockstore.MaxFailures-1 {
			if _, err := ch.Submit(ctx, "0000"); err != nil {
				t.Fatalf("Submit failed: %v", err)
			}
		}
	}
}

// Scenario: two wrong guesses, then the correct passcode.
func TestChallengeGrantedAfterDenials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ch, err := f.gate.Open(ctx, "userB")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	result, err := ch.Submit(ctx, "0000")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.State != StateDenied || result.RemainingAttempts != 2 {
		t.Errorf("expected Denied with 2 remaining, got %v with %d", result.State, result.RemainingAttempts)
	}

	result, err = ch.Submit(ctx, "0000")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.State != StateDenied || result.RemainingAttempts != 1 {
		t.Errorf("expected Denied with 1 remaining, got %v with %d", result.State, result.RemainingAttempts)
	}

	result, err = ch.Submit(ctx, "4242")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.State != StateGranted {
		t.Errorf("expected Granted, got %v", result.State)
	}

	count, err := f.store.FailureCount("userB")
	if err != nil {
		t.Fatalf("FailureCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected failure count reset to 0, got %d", count)
	}
	if f.remote.deleteCalls != 0 {
		t.Errorf("no enforcement expected, got %d delete calls", f.remote.deleteCalls)
	}

	// The challenge is resolved; further submissions are rejected
	if _, err := ch.Submit(ctx, "4242"); !errors.Is(err, ErrChallengeClosed) {
		t.Errorf("expected ErrChallengeClosed, got %v", err)
	}
}

// Scenario: three wrong guesses exhaust the challenge and erase the
// conversation.
func TestChallengeExhaustedTriggersEnforcement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ch, err := f.gate.Open(ctx, "userB")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := ch.Submit(ctx, "0000"); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	result, err := ch.Submit(ctx, "0000")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.State != StateExhausted {
		t.Errorf("expected Exhausted, got %v", result.State)
	}
	if result.DeletedCount != 17 {
		t.Errorf("expected 17 deleted messages, got %d", result.DeletedCount)
	}
	if f.remote.deleteCalls != 1 {
		t.Errorf("expected exactly one enforcement, got %d", f.remote.deleteCalls)
	}

	// The conversation left the locked set: no further challenge, no 4th guess
	locked, err := f.store.IsLocked("userB")
	if err != nil {
		t.Fatalf("IsLocked failed: %v", err)
	}
	if locked {
		t.Error("expected userB to be removed from the locked set")
	}
	next, err := f.gate.Open(ctx, "userB")
	if err != nil {
		t.Fatalf("Open after enforcement failed: %v", err)
	}
	if next != nil {
		t.Error("expected no challenge after enforcement")
	}

	count, err := f.store.FailureCount("userB")
	if err != nil {
		t.Fatalf("FailureCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected attempt record cleared, got %d", count)
	}
}

func TestEnforcementFailureLeavesStateRetryable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	remoteErr := errors.New("service unavailable")

	ch, err := f.gate.Open(ctx, "userB")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	f.remote.failWith = remoteErr
	for i := 0; i < 2; i++ {
		if _, err := ch.Submit(ctx, "0000"); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}
	result, err := ch.Submit(ctx, "0000")
	if !errors.Is(err, remoteErr) {
		t.Fatalf("expected the remote error surfaced, got %v", err)
	}
	if result.State != StateExhausted {
		t.Errorf("expected Exhausted, got %v", result.State)
	}

	// Deletion did not happen, so the lock and the count must survive
	locked, err := f.store.IsLocked("userB")
	if err != nil {
		t.Fatalf("IsLocked failed: %v", err)
	}
	if !locked {
		t.Error("conversation must stay locked when enforcement fails")
	}
	count, err := f.store.FailureCount("userB")
	if err != nil {
		t.Fatalf("FailureCount failed: %v", err)
	}
	if count != lockstore.MaxFailures {
		t.Errorf("expected count %d preserved, got %d", lockstore.MaxFailures, count)
	}

	// Re-opening short-circuits into an enforcement retry, no new prompt
	f.remote.failWith = nil
	retry, err := f.gate.Open(ctx, "userB")
	if err != nil {
		t.Fatalf("Open retry failed: %v", err)
	}
	if retry == nil || retry.State() != StateExhausted {
		t.Fatalf("expected an already-exhausted challenge, got %+v", retry)
	}
	if locked, _ := f.store.IsLocked("userB"); locked {
		t.Error("expected retry to complete enforcement")
	}
	if f.remote.deleteCalls != 2 {
		t.Errorf("expected 2 delete calls (failed + retry), got %d", f.remote.deleteCalls)
	}
}

func TestEnforceIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Nothing left remotely
	delete(f.remote.messageCount, "userB")

	deleted, err := f.gate.Enforce(ctx, "userB")
	if err != nil {
		t.Fatalf("Enforce failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("expected 0 deleted messages, got %d", deleted)
	}
}

func TestFailuresExpireAcrossDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ch, err := f.gate.Open(ctx, "userB")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := ch.Submit(ctx, "0000"); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	// Next day the slate is clean: a full set of attempts again
	f.now = f.now.AddDate(0, 0, 1)

	ch, err = f.gate.Open(ctx, "userB")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	result, err := ch.Submit(ctx, "0000")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.State != StateDenied || result.RemainingAttempts != 2 {
		t.Errorf("expected Denied with 2 remaining on the new day, got %v with %d",
			result.State, result.RemainingAttempts)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateUnlocked, "unlocked"},
		{StateChallenging, "challenging"},
		{StateGranted, "granted"},
		{StateDenied, "denied"},
		{StateExhausted, "exhausted"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
