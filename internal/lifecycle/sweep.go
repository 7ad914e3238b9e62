package lifecycle

import (
	"time"

	"go.uber.org/zap"

	"github.com/marketgrid/adengine/internal/models"
)

// MaterializeStates computes the effective state of every placement in the
// store at the given instant. The result feeds reporting views; delivery
// decisions always re-derive state and never read this map, so the sweep is
// advisory only.
func MaterializeStates(store models.DataStore, now time.Time) map[string]models.LifecycleState {
	placements := store.GetAllPlacements()
	states := make(map[string]models.LifecycleState, len(placements))
	for i := range placements {
		p := &placements[i]
		states[p.ID] = PlacementState(p, now)
	}
	return states
}

// RunSweep periodically materializes placement states until the stop channel
// closes. Each pass is logged at debug level with a state histogram.
func RunSweep(store models.DataStore, logger *zap.Logger, interval time.Duration, now func() time.Time, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			states := MaterializeStates(store, now())
			counts := make(map[models.LifecycleState]int)
			for _, st := range states {
				counts[st]++
			}
			logger.Debug("lifecycle sweep",
				zap.Int("placements", len(states)),
				zap.Int("active", counts[models.StateActive]),
				zap.Int("scheduled", counts[models.StateScheduled]),
				zap.Int("expired", counts[models.StateExpired]),
			)
		}
	}
}
