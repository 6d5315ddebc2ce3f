package metrics

import (
	"github.com/elys-network/autocompound/internal/store"
)

// SyncFromState sets the state gauges from a full engine state, as after a restore. Sink keeps
// them current from there.
func SyncFromState(st store.Snapshot) {
	active := 0
	for _, e := range st.Strategies {
		if e.Strategy.IsActive {
			active++
		}
	}
	ActiveStrategies.Set(float64(active))

	ActiveParticipants.Reset()
	for _, m := range st.Members {
		ActiveParticipants.WithLabelValues(string(m.Pool)).Set(float64(len(m.Participants)))
	}
}
