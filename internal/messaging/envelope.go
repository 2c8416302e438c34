// Package messaging relays domain events from the in-process bus to an
// external broker and consumes them again for customer notifications.
package messaging

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/frahmantamala/table-reservation/internal/core/events"
)

// Envelope is the wire form of a domain event.
type Envelope struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data"`
}

func NewEnvelope(e events.Event) Envelope {
	data, _ := e.Payload().(map[string]interface{})
	return Envelope{
		ID:         e.EventID(),
		Type:       e.EventType(),
		OccurredAt: e.OccurredAt().UTC(),
		Data:       data,
	}
}

// Key partitions messages so the events of one table stay in order. Payment
// events carry no table and fall back to their reservation.
func (e Envelope) Key() string {
	if id, ok := e.number("table_id"); ok {
		return "table-" + strconv.FormatInt(id, 10)
	}
	if id, ok := e.number("reservation_id"); ok {
		return "reservation-" + strconv.FormatInt(id, 10)
	}
	return e.Type
}

// number reads a numeric field both before and after a JSON round trip.
func (e Envelope) number(field string) (int64, bool) {
	switch v := e.Data[field].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

func (e Envelope) Field(field string) string {
	s, _ := e.Data[field].(string)
	return s
}

func (e Envelope) Marshal() ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", e.Type, err)
	}
	return body, nil
}

func Unmarshal(body []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(body, &e); err != nil {
		return e, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if e.Type == "" {
		return e, fmt.Errorf("envelope without type")
	}
	return e, nil
}
