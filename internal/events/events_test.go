package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestEvent_JSONLayout(t *testing.T) {
	t.Parallel()

	e := Event{
		ID:          uuid.MustParse("2f1b6c1e-8a7d-4c55-9d8b-0c6a1f2b3c4d"),
		Sequence:    7,
		Kind:        KindFeesCollected,
		Pool:        "pool-1",
		Participant: "alice",
		EmittedAt:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Data: FeesCollected{
			Amount:  math.NewInt(3),
			Volume:  math.NewInt(1000),
			FeeTier: 3000,
			Pending: math.NewInt(3),
		},
	}
	raw, err := json.Marshal(e)
	require.NoError(t, err)
	require.Equal(t,
		`{"id":"2f1b6c1e-8a7d-4c55-9d8b-0c6a1f2b3c4d","sequence":7,"kind":"fees_collected","pool":"pool-1","participant":"alice","emitted_at":"2025-01-01T00:00:00Z","data":{"amount":"3","volume":"1000","fee_tier":3000,"pending":"3"}}`,
		string(raw))

	var rec Record
	require.NoError(t, json.Unmarshal(raw, &rec))
	require.Equal(t, KindFeesCollected, rec.Kind)
	require.JSONEq(t, `{"amount":"3","volume":"1000","fee_tier":3000,"pending":"3"}`, string(rec.Data))
}

type failingSink struct{ err error }

func (f failingSink) Publish(context.Context, []Event) error { return f.err }

func TestMultiSink_PublishesToAllAndJoinsErrors(t *testing.T) {
	t.Parallel()

	rec := NewRecorder(0)
	boom := errors.New("boom")
	sink := MultiSink{failingSink{err: boom}, nil, rec}

	err := sink.Publish(context.Background(), []Event{{Kind: KindBatchScheduled}, {Kind: KindBatchExecuted}})
	require.ErrorIs(t, err, boom)
	require.Equal(t, []Kind{KindBatchScheduled, KindBatchExecuted}, rec.Kinds())
}

func TestRecorder_Limit(t *testing.T) {
	t.Parallel()

	rec := NewRecorder(2)
	for i := 0; i < 5; i++ {
		require.NoError(t, rec.Publish(context.Background(), []Event{{Sequence: uint64(i)}}))
	}
	evts := rec.Events()
	require.Len(t, evts, 2)
	require.Equal(t, uint64(3), evts[0].Sequence)
	require.Equal(t, uint64(4), evts[1].Sequence)

	rec.Reset()
	require.Empty(t, rec.Events())
}
