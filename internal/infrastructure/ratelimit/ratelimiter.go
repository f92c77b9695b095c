package ratelimit

import (
	"context"
	"time"
)

// Kind selects which per-client limit applies to a request.
type Kind string

const (
	KindMessage       Kind = "message"
	KindSessionStart  Kind = "session_start"
	KindHostDiscovery Kind = "host_discovery"
)

// Rule is a fixed-window limit: at most Capacity requests per Window.
type Rule struct {
	Capacity int
	Window   time.Duration
}

// Rules maps each kind to its rule. Kinds without a rule are unlimited.
type Rules map[Kind]Rule

// Result reports the outcome of a limit check. ResetAt is when the current
// window expires; on denial the caller should retry no earlier than that.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per identifier and kind against fixed windows.
// A denied request is not counted, so denials never extend the window.
type Limiter interface {
	Check(ctx context.Context, identifier string, kind Kind) (Result, error)
}
