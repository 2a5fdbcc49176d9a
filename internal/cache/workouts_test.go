package cache

import (
	"errors"
	"testing"

	"github.com/claude/fittrack/internal/localstore"
	"github.com/claude/fittrack/internal/models"
	"github.com/google/go-cmp/cmp"
)

func newCache(t *testing.T, dir string) (*Workouts, *localstore.Store) {
	t.Helper()
	s, err := localstore.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s), s
}

var seed = []models.Workout{
	{ID: "1", Name: "Upper Body Blast", Exercises: []models.Exercise{{ID: "a", Name: "Bench", Sets: 4}}},
	{ID: "2", Name: "HIIT Cardio"},
}

// TestInitializeSeedsEmptyStore verifies the seed becomes the first snapshot.
func TestInitializeSeedsEmptyStore(t *testing.T) {
	c, s := newCache(t, t.TempDir())
	if err := c.Initialize(seed); err != nil {
		t.Fatal(err)
	}

	var snap []models.Workout
	if _, err := s.Get(localstore.KeyWorkoutsSnapshot, &snap); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(seed, snap); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	if !c.HasSnapshot() {
		t.Error("HasSnapshot = false after Initialize")
	}
}

// TestInitializeKeepsPriorSnapshot verifies an existing snapshot wins over the
// seed, so offline-created workouts survive a restart.
func TestInitializeKeepsPriorSnapshot(t *testing.T) {
	dir := t.TempDir()
	c, _ := newCache(t, dir)
	if err := c.Initialize(seed); err != nil {
		t.Fatal(err)
	}
	offline := append(append([]models.Workout(nil), seed...), models.Workout{ID: "3", Name: "Leg Day"})
	if err := c.Write(offline); err != nil {
		t.Fatal(err)
	}

	c2, _ := newCache(t, dir)
	if err := c2.Initialize(seed); err != nil {
		t.Fatal(err)
	}
	got, err := c2.ReadAll(true)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[2].Name != "Leg Day" {
		t.Errorf("ReadAll after restart = %+v, want the 3-workout snapshot", got)
	}
}

// TestReadOneNotFound verifies a missing id maps to ErrNotFound both online
// and offline.
func TestReadOneNotFound(t *testing.T) {
	c, _ := newCache(t, t.TempDir())
	if err := c.Initialize(nil); err != nil {
		t.Fatal(err)
	}
	for _, online := range []bool{true, false} {
		_, err := c.ReadOne(online, "missing")
		if !errors.Is(err, models.ErrNotFound) {
			t.Errorf("online=%v: err = %v, want ErrNotFound", online, err)
		}
	}
}

// TestReadAllReturnsCopies verifies callers can't mutate cached state.
func TestReadAllReturnsCopies(t *testing.T) {
	c, _ := newCache(t, t.TempDir())
	if err := c.Initialize(seed); err != nil {
		t.Fatal(err)
	}
	got, _ := c.ReadAll(true)
	got[0].Name = "Mutated"
	got[0].Exercises[0].Sets = 99

	again, _ := c.ReadOne(true, "1")
	if again.Name != "Upper Body Blast" || again.Exercises[0].Sets != 4 {
		t.Errorf("cache was mutated through a read: %+v", again)
	}
}

// TestExerciseOrderStable verifies exercise order survives a snapshot round trip.
func TestExerciseOrderStable(t *testing.T) {
	c, _ := newCache(t, t.TempDir())
	w := models.Workout{ID: "x", Name: "Order", Exercises: []models.Exercise{
		{ID: "e3", Name: "Third", Sets: 1},
		{ID: "e1", Name: "First", Sets: 1},
		{ID: "e2", Name: "Second", Sets: 1},
	}}
	if err := c.Initialize([]models.Workout{w}); err != nil {
		t.Fatal(err)
	}
	got, err := c.ReadOne(false, "x")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(w.Exercises, got.Exercises); diff != "" {
		t.Errorf("exercise order changed (-want +got):\n%s", diff)
	}
}

// TestHasSnapshotEmpty verifies an empty snapshot does not count as offline
// data, and that a committed snapshot does.
func TestHasSnapshotEmpty(t *testing.T) {
	c, s := newCache(t, t.TempDir())
	if err := c.Initialize(nil); err != nil {
		t.Fatal(err)
	}
	if c.HasSnapshot() {
		t.Error("HasSnapshot = true for an empty seed")
	}

	next := Snapshot(seed[:1])
	if err := s.Set(localstore.KeyWorkoutsSnapshot, next); err != nil {
		t.Fatal(err)
	}
	c.Commit(next)
	if !c.HasSnapshot() {
		t.Error("HasSnapshot = false after Commit")
	}
	got, err := c.ReadAll(false)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(seed[:1], got); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}
