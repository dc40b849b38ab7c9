package cli

import (
	"reflect"
	"testing"
)

var partnerIDs = []string{"alice", "bob", "team-dev", "team-ops", "charlie"}

func TestExpandPatternExact(t *testing.T) {
	got, err := ExpandPattern("alice", partnerIDs)
	if err != nil {
		t.Fatalf("ExpandPattern failed: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"alice"}) {
		t.Errorf("expected [alice], got %v", got)
	}
}

func TestExpandPatternExactNotFound(t *testing.T) {
	if _, err := ExpandPattern("mallory", partnerIDs); err == nil {
		t.Error("expected error for unknown partner")
	}
}

func TestExpandPatternGlob(t *testing.T) {
	got, err := ExpandPattern("team-*", partnerIDs)
	if err != nil {
		t.Fatalf("ExpandPattern failed: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"team-dev", "team-ops"}) {
		t.Errorf("expected team matches, got %v", got)
	}
}

func TestExpandPatternGlobNoMatch(t *testing.T) {
	if _, err := ExpandPattern("x-*", partnerIDs); err == nil {
		t.Error("expected error when nothing matches")
	}
}

func TestExpandPatternInvalid(t *testing.T) {
	if _, err := ExpandPattern("[", partnerIDs); err == nil {
		t.Error("expected error for malformed pattern")
	}
}

func TestExpandPatterns(t *testing.T) {
	got, err := ExpandPatterns([]string{"team-*", "alice", "team-dev"}, partnerIDs)
	if err != nil {
		t.Fatalf("ExpandPatterns failed: %v", err)
	}
	want := []string{"alice", "team-dev", "team-ops"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}
