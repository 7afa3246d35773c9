// Package events publishes run lifecycle events to observers such as a
// socket.io dashboard.
package events

import (
	"context"
	"sync"
	"time"
)

// Type names a lifecycle event.
type Type string

const (
	RunStart  Type = "run_start"
	BlockDone Type = "block_done"
	RunEnd    Type = "run_end"
)

// Event is one lifecycle notification.
type Event struct {
	Type    Type
	RunID   string
	AppHash string
	// Block fields are set for BlockDone.
	Block   string
	Address string
	Cache   string
	Latency time.Duration
	// Status is "success", "failed" or "skipped" for BlockDone and RunEnd.
	Status string
	Error  string
	Time   time.Time
}

// Payload returns the event as a JSON-ready map.
func (e Event) Payload() map[string]any {
	p := map[string]any{
		"type":   string(e.Type),
		"run_id": e.RunID,
		"time":   e.Time.UTC().Format(time.RFC3339Nano),
	}
	set := func(k, v string) {
		if v != "" {
			p[k] = v
		}
	}
	set("app_hash", e.AppHash)
	set("block", e.Block)
	set("address", e.Address)
	set("cache", e.Cache)
	set("status", e.Status)
	set("error", e.Error)
	if e.Type == BlockDone {
		p["latency_ms"] = e.Latency.Milliseconds()
	}
	return p
}

// Publisher receives events. Publish must not block the run for long and
// never fails it; delivery problems are the publisher's to log.
type Publisher interface {
	Publish(ctx context.Context, e Event)
	Close() error
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(context.Context, Event) {}
func (Noop) Close() error                   { return nil }

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of what was published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
