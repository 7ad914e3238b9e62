package lifecycle

import (
	"testing"
	"time"

	"github.com/marketgrid/adengine/internal/models"
)

var (
	flightStart = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	flightEnd   = time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
)

func TestEffectiveState_WindowDerivation(t *testing.T) {
	cases := []struct {
		name   string
		status models.LifecycleState
		now    time.Time
		want   models.LifecycleState
	}{
		{"before window", models.StateActive, flightStart.Add(-time.Hour), models.StateScheduled},
		{"inside window", models.StateActive, flightStart.Add(time.Hour), models.StateActive},
		{"at end boundary", models.StateActive, flightEnd, models.StateExpired},
		{"after window", models.StateActive, flightEnd.Add(time.Hour), models.StateExpired},
		{"paused inside window", models.StatePaused, flightStart.Add(time.Hour), models.StatePaused},
		{"paused past end still expires", models.StatePaused, flightEnd.Add(time.Hour), models.StateExpired},
		{"archived wins over window", models.StateArchived, flightStart.Add(time.Hour), models.StateArchived},
		{"archived wins past end", models.StateArchived, flightEnd.Add(time.Hour), models.StateArchived},
		{"draft inside window", models.StateDraft, flightStart.Add(time.Hour), models.StateDraft},
		{"unknown status defaults to draft", models.LifecycleState("bogus"), flightStart.Add(time.Hour), models.StateDraft},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := EffectiveState(tc.status, flightStart, flightEnd, tc.now)
			if got != tc.want {
				t.Errorf("EffectiveState(%s, now=%s) = %s, want %s", tc.status, tc.now, got, tc.want)
			}
		})
	}
}

func TestEffectiveState_OpenEndedWindow(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	got := EffectiveState(models.StateActive, flightStart, time.Time{}, now)
	if got != models.StateActive {
		t.Errorf("open-ended flight should stay active far in the future, got %s", got)
	}
}

// Derivation must be pure: the same inputs always yield the same state, no
// matter how often or in which order it is evaluated.
func TestEffectiveState_Pure(t *testing.T) {
	now := flightStart.Add(48 * time.Hour)
	first := EffectiveState(models.StateActive, flightStart, flightEnd, now)
	for i := 0; i < 100; i++ {
		if got := EffectiveState(models.StateActive, flightStart, flightEnd, now); got != first {
			t.Fatalf("derivation not stable: got %s then %s", first, got)
		}
	}
}

func TestPlacementState_ExpiredBeatsPaused(t *testing.T) {
	p := &models.Placement{
		ID:      "pl-1",
		Status:  models.StatePaused,
		StartAt: flightStart,
		EndAt:   flightEnd,
	}
	if got := PlacementState(p, flightEnd.Add(time.Minute)); got != models.StateExpired {
		t.Errorf("paused placement past end = %s, want expired", got)
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to models.LifecycleState
		want     bool
	}{
		{models.StateDraft, models.StateScheduled, true},
		{models.StateDraft, models.StateActive, true},
		{models.StateScheduled, models.StateActive, true},
		{models.StateActive, models.StatePaused, true},
		{models.StatePaused, models.StateActive, true},
		{models.StateActive, models.StateExpired, true},
		{models.StateExpired, models.StateArchived, true},
		{models.StatePaused, models.StateArchived, true},

		{models.StateActive, models.StateDraft, false},
		{models.StateExpired, models.StateActive, false},
		{models.StateArchived, models.StateActive, false},
		{models.StateArchived, models.StateArchived, false},
		{models.StateScheduled, models.StateDraft, false},
		{models.StateActive, models.StateActive, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTransition_InvalidIsRejected(t *testing.T) {
	got, err := Transition(models.StateExpired, models.StateActive)
	if err != ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if got != models.StateExpired {
		t.Errorf("rejected transition must return the current state, got %s", got)
	}
}

func TestMaterializeStates(t *testing.T) {
	store := models.NewTestDataStore()
	now := flightStart.Add(time.Hour)
	_ = store.SetPlacements([]models.Placement{
		{ID: "pl-active", Status: models.StateActive, StartAt: flightStart, EndAt: flightEnd, Surface: "s", Weight: 1},
		{ID: "pl-future", Status: models.StateActive, StartAt: flightEnd, Surface: "s", Weight: 1},
		{ID: "pl-done", Status: models.StateActive, StartAt: flightStart.AddDate(0, -2, 0), EndAt: flightStart, Surface: "s", Weight: 1},
	})

	states := MaterializeStates(store, now)
	want := map[string]models.LifecycleState{
		"pl-active": models.StateActive,
		"pl-future": models.StateScheduled,
		"pl-done":   models.StateExpired,
	}
	for id, st := range want {
		if states[id] != st {
			t.Errorf("placement %s state = %s, want %s", id, states[id], st)
		}
	}
}
