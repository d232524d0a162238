/*
events.go - Domain events published after state changes

PURPOSE:
  Lets other systems (dashboards, messaging bots) react to confirmed
  distributions, closed cycles and new leads without polling the API.

EVENTS:
  distribution.confirmed  A run was persisted and balances rewritten
  cycle.closed            Production was archived and reset
  lead.created            A lead was registered (and delivered, if it has a broker)

DELIVERY:
  Best effort. Publishing happens after the store commit; a failed publish is
  logged by the caller and never rolls back the change.

SEE ALSO:
  - kafka.go: Kafka implementation
*/
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type names an event.
type Type string

const (
	DistributionConfirmed Type = "distribution.confirmed"
	CycleClosed           Type = "cycle.closed"
	LeadCreated           Type = "lead.created"
)

// Event is the envelope written to the bus.
type Event struct {
	ID         string          `json:"id"`
	Type       Type            `json:"type"`
	Key        string          `json:"key"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// New builds an event with a fresh ID. Key groups related events (run ID,
// lead ID) so they land on the same partition.
func New(t Type, key string, at time.Time, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		Key:        key,
		OccurredAt: at.UTC(),
		Payload:    data,
	}, nil
}

// Publisher sends events somewhere.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of what was published.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the published events of one type.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
