package metrics

import (
	"context"
	"strconv"

	"cosmossdk.io/math"
	"github.com/elys-network/autocompound/internal/events"
	"github.com/elys-network/autocompound/internal/utils"
	"github.com/prometheus/client_golang/prometheus"
)

// Sink feeds the engine's event stream into the Prometheus collectors.
type Sink struct {
	// Precision is the number of decimals of the pool's base unit, used to report amounts in
	// display units.
	Precision int
}

func (s Sink) Publish(_ context.Context, evts []events.Event) error {
	for _, e := range evts {
		EventsTotal.WithLabelValues(string(e.Kind)).Inc()
		pool := string(e.Pool)

		switch d := e.Data.(type) {
		case events.FeesCollected:
			addAmount(FeesCollected.WithLabelValues(pool), d.Amount, s.Precision)
		case events.FeesCompounded:
			addAmount(FeesCompounded.WithLabelValues(pool, string(d.Path)), d.Amount, s.Precision)
		case events.BatchExecuted:
			BatchesExecuted.WithLabelValues(pool, strconv.FormatBool(d.Forced)).Inc()
			BatchSize.Observe(float64(d.ParticipantCount))
			GasSaved.WithLabelValues(pool).Add(float64(d.GasSaved))
		case events.ParticipantAdded:
			ActiveParticipants.WithLabelValues(pool).Set(float64(d.ActiveParticipantCount))
		case events.ParticipantRemoved:
			ActiveParticipants.WithLabelValues(pool).Set(float64(d.ActiveParticipantCount))
		case events.StrategyActivated:
			ActiveStrategies.Inc()
		case events.StrategyDeactivated:
			ActiveStrategies.Dec()
		}
	}
	return nil
}

func addAmount(c prometheus.Counter, amount math.Int, precision int) {
	f, err := utils.SDKIntToFloat64(amount, precision)
	if err != nil {
		return
	}
	c.Add(f)
}
