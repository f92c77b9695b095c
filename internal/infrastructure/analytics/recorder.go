// Package analytics collects usage events and session summaries. Recording
// is best effort: it never blocks or fails a payment path, and past data is
// capped by in-memory ring buffers.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inferpay/inferpay/internal/infrastructure/kvstore"
	"github.com/inferpay/inferpay/internal/shared/biztime"
	"github.com/inferpay/inferpay/internal/shared/logger"
)

// Event is one recorded usage occurrence.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	SessionID  uint      `json:"session_id"`
	ClientID   string    `json:"client_id"`
	Model      string    `json:"model"`
	Tokens     int64     `json:"tokens"`
	Cost       int64     `json:"cost"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Summary aggregates one finished session.
type Summary struct {
	SessionID   uint      `json:"session_id"`
	ClientID    string    `json:"client_id"`
	Model       string    `json:"model"`
	Messages    int       `json:"messages"`
	TotalTokens int64     `json:"total_tokens"`
	TotalCost   int64     `json:"total_cost"`
	HostAmount  int64     `json:"host_amount"`
	EndReason   string    `json:"end_reason"`
	OpenedAt    time.Time `json:"opened_at"`
	FinalizedAt time.Time `json:"finalized_at"`
}

type ring[T any] struct {
	items []T
	cap   int
}

func (r *ring[T]) push(item T) {
	r.items = append(r.items, item)
	if len(r.items) > r.cap {
		r.items = r.items[len(r.items)-r.cap:]
	}
}

func (r *ring[T]) snapshot() []T {
	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

// Recorder keeps the most recent events and summaries. An optional KV store
// receives a flush of each summary for later inspection; flush failures are
// logged at debug and otherwise ignored.
type Recorder struct {
	mu        sync.Mutex
	events    ring[Event]
	summaries ring[Summary]
	kv        kvstore.Store
	logger    logger.Interface
}

// NewRecorder creates a recorder with the given buffer capacities. kv may be
// nil to keep data in memory only.
func NewRecorder(maxEvents, maxSummaries int, kv kvstore.Store, log logger.Interface) *Recorder {
	if maxEvents <= 0 {
		maxEvents = 200
	}
	if maxSummaries <= 0 {
		maxSummaries = 50
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Recorder{
		events:    ring[Event]{cap: maxEvents},
		summaries: ring[Summary]{cap: maxSummaries},
		kv:        kv,
		logger:    log,
	}
}

// RecordEvent appends an event, evicting the oldest past capacity.
// Events without an ID are assigned one.
func (r *Recorder) RecordEvent(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = biztime.NowUTC()
	}

	r.mu.Lock()
	r.events.push(event)
	r.mu.Unlock()
}

// RecordSummary appends a session summary and flushes it to the KV store.
func (r *Recorder) RecordSummary(ctx context.Context, summary Summary) {
	if summary.FinalizedAt.IsZero() {
		summary.FinalizedAt = biztime.NowUTC()
	}

	r.mu.Lock()
	r.summaries.push(summary)
	r.mu.Unlock()

	if r.kv == nil {
		return
	}
	data, err := json.Marshal(summary)
	if err != nil {
		r.logger.Debugw("failed to marshal session summary", "session_id", summary.SessionID, "error", err)
		return
	}
	if err := r.kv.Set(ctx, fmt.Sprintf("analytics:summary:%d", summary.SessionID), data); err != nil {
		r.logger.Debugw("failed to flush session summary", "session_id", summary.SessionID, "error", err)
	}
}

// Events returns the buffered events, oldest first.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events.snapshot()
}

// Summaries returns the buffered summaries, oldest first.
func (r *Recorder) Summaries() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summaries.snapshot()
}
