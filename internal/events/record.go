package events

import (
	"encoding/json"
	"fmt"
)

// ToRecord encodes the payload of an in-memory event.
func ToRecord(e Event) (Record, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return Record{}, fmt.Errorf("failed to marshal %s payload: %w", e.Kind, err)
	}
	return Record{
		ID:          e.ID,
		Sequence:    e.Sequence,
		Kind:        e.Kind,
		Pool:        e.Pool,
		Participant: e.Participant,
		EmittedAt:   e.EmittedAt,
		Data:        data,
	}, nil
}
