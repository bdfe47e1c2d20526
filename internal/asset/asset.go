// Package asset defines the common representation that every source worker
// normalizes its upstream data into, and the staleness judgment applied at
// query time.
package asset

import (
	"time"

	"bothan/internal/decimal"
)

// Info is the triple (id, price, timestamp) a worker writes to the store.
type Info struct {
	ID        string
	Price     decimal.Decimal
	Timestamp int64 // unix seconds
}

// StateKind tags the sum type returned by a store lookup.
type StateKind int

const (
	// Unsupported means the worker/id pair has never been written.
	Unsupported StateKind = iota
	// Available means info exists and is within the staleness threshold.
	Available
	// Stale means info exists but is older than the staleness threshold.
	Stale
)

// State is the sum type `Available(Info) | Stale(Info) | Unsupported`.
type State struct {
	Kind StateKind
	Info Info
}

// NewAvailable wraps info as an Available state.
func NewAvailable(info Info) State { return State{Kind: Available, Info: info} }

// NewStale wraps info as a Stale state.
func NewStale(info Info) State { return State{Kind: Stale, Info: info} }

// NewUnsupported is the zero-info Unsupported state.
func NewUnsupported() State { return State{Kind: Unsupported} }

// EvaluateStaleness classifies a freshly-read Info against now and a
// threshold: Available iff now - info.Timestamp <= threshold, Stale
// otherwise. The spec resolves the source's "<=  vs >" ambiguity as
// "now - ts > threshold means stale".
func EvaluateStaleness(info Info, now time.Time, threshold time.Duration) State {
	age := now.Unix() - info.Timestamp
	if age > int64(threshold/time.Second) {
		return NewStale(info)
	}
	return NewAvailable(info)
}
