// Package monitoring builds the proof-of-computation records an
// operator's monitoring backend ingests (§4.J / §12's supplemented
// heartbeat topic) and publishes them over an Uplink.
package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bothan/internal/priceengine"
)

// SourceContribution records one source query's raw and routed values as
// they fed into a signal's aggregation, for after-the-fact auditing.
type SourceContribution struct {
	SourceID string `json:"source_id"`
	QueryID  string `json:"query_id"`
	Raw      string `json:"raw"`
	Routed   string `json:"routed"`
}

// SignalComputationRecord is the proof-of-computation payload for one
// signal's result in a single getPrices call.
type SignalComputationRecord struct {
	SignalID      string               `json:"signal_id"`
	Contributions []SourceContribution `json:"contributions"`
	Result        priceengine.PriceState `json:"-"`
	ResultKind    string               `json:"result_kind"`
	Price         *int64               `json:"price,omitempty"`
	ComputedAt    time.Time            `json:"computed_at"`
}

// NewSignalComputationRecord builds a record from a computed result,
// normalizing the PriceState tag into its wire string.
func NewSignalComputationRecord(signalID string, contributions []SourceContribution, result priceengine.PriceState, at time.Time) SignalComputationRecord {
	rec := SignalComputationRecord{
		SignalID:      signalID,
		Contributions: contributions,
		Result:        result,
		ComputedAt:    at,
	}
	switch result.Kind {
	case priceengine.Available:
		rec.ResultKind = "available"
		price := result.Price
		rec.Price = &price
	case priceengine.Unavailable:
		rec.ResultKind = "unavailable"
	default:
		rec.ResultKind = "unsupported"
	}
	return rec
}

// Topic names the monitoring channel a publish targets.
type Topic string

const (
	TopicSignalComputation Topic = "signal_computation"
	// TopicHeartbeat is a supplemented feature (original_source's
	// monitoring module publishes a periodic liveness beacon distinct
	// from computation records; the distilled spec drops it).
	TopicHeartbeat Topic = "heartbeat"
)

// Uplink is the external monitoring collaborator bothand publishes to.
// It is intentionally narrow: one method, topic-tagged, idempotent per
// message id.
type Uplink interface {
	Publish(ctx context.Context, id uuid.UUID, topic Topic, body []byte) error
}

// PublishRecords marshals and publishes a batch of computation records
// under a single freshly-generated message id.
func PublishRecords(ctx context.Context, uplink Uplink, records []SignalComputationRecord) error {
	if len(records) == 0 {
		return nil
	}
	body, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("monitoring: encode records: %w", err)
	}
	if err := uplink.Publish(ctx, uuid.New(), TopicSignalComputation, body); err != nil {
		return fmt.Errorf("monitoring: publish records: %w", err)
	}
	return nil
}

// heartbeatPayload is the liveness beacon body.
type heartbeatPayload struct {
	Worker string    `json:"worker"`
	At     time.Time `json:"at"`
}

// Heartbeat publishes a liveness beacon for workerName.
func Heartbeat(ctx context.Context, uplink Uplink, workerName string, at time.Time) error {
	body, err := json.Marshal(heartbeatPayload{Worker: workerName, At: at})
	if err != nil {
		return fmt.Errorf("monitoring: encode heartbeat: %w", err)
	}
	if err := uplink.Publish(ctx, uuid.New(), TopicHeartbeat, body); err != nil {
		return fmt.Errorf("monitoring: publish heartbeat: %w", err)
	}
	return nil
}
