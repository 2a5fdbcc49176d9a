package localstore

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestGetMissingKey verifies that reading a key that was never written is not
// an error and leaves the destination untouched.
func TestGetMissingKey(t *testing.T) {
	s := openTemp(t)

	dst := []string{"keep"}
	found, err := s.Get("nope", &dst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("found = true for a missing key")
	}
	if len(dst) != 1 || dst[0] != "keep" {
		t.Errorf("dst was modified: %v", dst)
	}
}

// TestGetOrDefault verifies that collections default to an empty value.
func TestGetOrDefault(t *testing.T) {
	s := openTemp(t)

	got, err := GetOrDefault(s, KeySyncQueue, []int{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("GetOrDefault = %v, want empty non-nil slice", got)
	}

	if err := s.Set(KeySyncQueue, []int{1, 2, 3}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err = GetOrDefault(s, KeySyncQueue, []int{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, got); diff != "" {
		t.Errorf("GetOrDefault mismatch (-want +got):\n%s", diff)
	}
}

// TestSetOverwrites verifies Set replaces rather than appends.
func TestSetOverwrites(t *testing.T) {
	s := openTemp(t)

	if err := s.Set("k", map[string]int{"a": 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("k", map[string]int{"b": 2}); err != nil {
		t.Fatal(err)
	}
	var got map[string]int
	if _, err := s.Get("k", &got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]int{"b": 2}, got); diff != "" {
		t.Errorf("value mismatch (-want +got):\n%s", diff)
	}
}

// TestSetMany verifies every value of a batch is written and Has sees them.
func TestSetMany(t *testing.T) {
	s := openTemp(t)

	err := s.SetMany(map[string]any{
		KeySyncQueue:   []string{},
		KeySyncApplied: map[string]bool{},
	})
	if err != nil {
		t.Fatalf("SetMany: %v", err)
	}
	for _, k := range []string{KeySyncQueue, KeySyncApplied} {
		ok, err := s.Has(k)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Errorf("Has(%s) = false after SetMany", k)
		}
	}
}

// TestPersistsAcrossReopen verifies values survive closing and reopening the
// database, which is the whole point of the store.
func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set(KeyCompletedWorkouts, []string{"c1"}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	got, err := GetOrDefault(s2, KeyCompletedWorkouts, []string{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "c1" {
		t.Errorf("after reopen got %v, want [c1]", got)
	}
}
