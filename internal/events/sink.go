package events

import (
	"context"
	"errors"
	"sync"

	"github.com/elys-network/autocompound/internal/types"
	"github.com/rs/zerolog"
)

// Sink receives committed events in emission order.
type Sink interface {
	Publish(ctx context.Context, evts []Event) error
}

// MultiSink fans events out to every sink. All sinks are attempted; errors are joined.
type MultiSink []Sink

func (m MultiSink) Publish(ctx context.Context, evts []Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, evts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes every event as a structured log line.
type LogSink struct {
	Logger zerolog.Logger
}

func (l LogSink) Publish(_ context.Context, evts []Event) error {
	for _, e := range evts {
		l.Logger.Info().
			Uint64("sequence", e.Sequence).
			Str("kind", string(e.Kind)).
			Str("pool", string(e.Pool)).
			Str("participant", string(e.Participant)).
			Interface("data", e.Data).
			Msg("Engine event")
	}
	return nil
}

// Recorder keeps published events in memory. Used by tests and the HTTP API's recent feed
// when no database is configured.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	limit  int
}

// NewRecorder keeps at most limit events (0 = unbounded).
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

func (r *Recorder) Publish(_ context.Context, evts []Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evts...)
	if r.limit > 0 && len(r.events) > r.limit {
		r.events = append([]Event(nil), r.events[len(r.events)-r.limit:]...)
	}
	return nil
}

// Events returns a copy of the recorded events, oldest first.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the kinds of the recorded events, oldest first.
func (r *Recorder) Kinds() []Kind {
	evts := r.Events()
	out := make([]Kind, len(evts))
	for i, e := range evts {
		out[i] = e.Kind
	}
	return out
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Emitter collects events raised inside a unit of work.
type Emitter interface {
	Emit(kind Kind, pool types.PoolID, participant types.Address, data any)
}

// Buffer is an Emitter that holds events until the surrounding unit of work commits.
// Identity, sequence and timestamp are stamped by whoever drains it.
type Buffer struct {
	pending []Event
}

func (b *Buffer) Emit(kind Kind, pool types.PoolID, participant types.Address, data any) {
	b.pending = append(b.pending, Event{Kind: kind, Pool: pool, Participant: participant, Data: data})
}

// Drain returns the buffered events and empties the buffer.
func (b *Buffer) Drain() []Event {
	out := b.pending
	b.pending = nil
	return out
}
