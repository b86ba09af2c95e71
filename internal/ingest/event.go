// v0
// internal/ingest/event.go
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cyclesense/analysis/internal/journal"
)

// Event kinds carried on the journal topic.
const (
	KindSymptom = "symptom"
	KindFood    = "food"
)

// ErrUnknownKind is returned for envelopes whose kind is not recognized.
var ErrUnknownKind = errors.New("unknown journal event kind")

// Event is one decoded journal message. Exactly one of Symptom or Food is set.
type Event struct {
	Kind    string
	Symptom *journal.SymptomEntry
	Food    *journal.FoodEntry
}

type envelope struct {
	Kind  string          `json:"kind"`
	Entry json.RawMessage `json:"entry"`
}

// decodeJournalMessage reads {"kind": ..., "entry": {...}} envelopes. Entry
// fields follow the journal JSON shape; unknown fields are ignored.
func decodeJournalMessage(raw []byte) (Event, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var env envelope
	if err := dec.Decode(&env); err != nil {
		return Event{}, fmt.Errorf("decode journal payload: %w", err)
	}
	kind := strings.ToLower(strings.TrimSpace(env.Kind))
	if len(env.Entry) == 0 || string(env.Entry) == "null" {
		return Event{}, errors.New("entry missing")
	}
	switch kind {
	case KindSymptom:
		var e journal.SymptomEntry
		if err := json.Unmarshal(env.Entry, &e); err != nil {
			return Event{}, fmt.Errorf("decode symptom entry: %w", err)
		}
		return Event{Kind: kind, Symptom: &e}, nil
	case KindFood:
		var e journal.FoodEntry
		if err := json.Unmarshal(env.Entry, &e); err != nil {
			return Event{}, fmt.Errorf("decode food entry: %w", err)
		}
		return Event{Kind: kind, Food: &e}, nil
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
}
