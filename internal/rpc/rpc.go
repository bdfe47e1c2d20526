// Package rpc exposes the manager over gRPC and REST: GetInfo,
// UpdateRegistry, GetPrices, and PushMonitoringRecords (§6).
package rpc

import (
	"context"
	"time"

	"bothan/internal/priceengine"
	"bothan/internal/registry"
)

// Status mirrors §6's wire-level price status enum.
type Status string

const (
	StatusUnspecified Status = "UNSPECIFIED"
	StatusUnsupported Status = "UNSUPPORTED"
	StatusUnavailable Status = "UNAVAILABLE"
	StatusAvailable   Status = "AVAILABLE"
)

func statusFor(state priceengine.PriceState) Status {
	switch state.Kind {
	case priceengine.Available:
		return StatusAvailable
	case priceengine.Unavailable:
		return StatusUnavailable
	case priceengine.Unsupported:
		return StatusUnsupported
	default:
		return StatusUnspecified
	}
}

// PriceResult is one signal's price in the RPC-facing wire format.
type PriceResult struct {
	SignalID string `json:"signal_id"`
	Status   Status `json:"status"`
	Price    *int64 `json:"price,omitempty"`
}

func toPriceResults(ids []string, states []priceengine.PriceState) []PriceResult {
	out := make([]PriceResult, len(ids))
	for i, id := range ids {
		out[i] = PriceResult{SignalID: id, Status: statusFor(states[i])}
		if states[i].Kind == priceengine.Available {
			price := states[i].Price
			out[i].Price = &price
		}
	}
	return out
}

// Manager is the subset of *manager.Manager the RPC layer depends on.
type Manager interface {
	Registry() (registry.Valid, bool)
	SetRegistry(data []byte, versionRequirement string) error
	SetRegistryFromIPFS(ctx context.Context, hash string, versionRequirement string) error
	GetPrices(ctx context.Context, ids []string, staleness time.Duration, now time.Time) ([]priceengine.PriceState, error)
}
