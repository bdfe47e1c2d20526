// Package registry models the declarative signal DAG: how each output
// signal is assembled from upstream source queries, route arithmetic,
// an aggregation processor, and post-processors. It also owns validation
// (cycle detection, dependency resolution, weighted-median weight checks)
// so that only a Valid registry can reach the planner or price engine.
package registry

import (
	"encoding/json"
	"fmt"
)

// Operation is an arithmetic route transform.
type Operation string

const (
	OpAdd Operation = "+"
	OpSub Operation = "-"
	OpMul Operation = "*"
	OpDiv Operation = "/"
)

// Route is one step of a left-fold arithmetic adjustment applied to a raw
// source value, referencing another signal's already-computed value.
type Route struct {
	SignalID  string    `json:"signal_id"`
	Operation Operation `json:"operation"`
}

// SourceQuery names one upstream (source, query id) pair and the routes
// applied to its raw value before aggregation.
type SourceQuery struct {
	SourceID string  `json:"source_id"`
	QueryID  string  `json:"id"`
	Routes   []Route `json:"routes,omitempty"`
}

// ProcessorFunction tags which aggregation function a Processor performs.
type ProcessorFunction string

const (
	ProcessorMedian         ProcessorFunction = "median"
	ProcessorWeightedMedian ProcessorFunction = "weighted_median"
	// ProcessorIdentity is a supplemental processor not in the distilled
	// spec's Processor union but present in the original source
	// (processor/identity.rs): a pass-through for single-source signals.
	ProcessorIdentity ProcessorFunction = "identity"
)

// Processor is the tagged union `Median | WeightedMedian | Identity`.
type Processor struct {
	Function       ProcessorFunction `json:"function"`
	MinSourceCount uint              `json:"-"`
	SourceWeights  map[string]uint64 `json:"-"`
}

type processorWireFormat struct {
	Function ProcessorFunction `json:"function"`
	Params   json.RawMessage   `json:"params"`
}

type medianParams struct {
	MinSourceCount uint `json:"min_source_count"`
}

type weightedMedianParams struct {
	SourceWeights map[string]uint64 `json:"source_weights"`
}

// UnmarshalJSON decodes the tagged {"function","params"} wire format.
func (p *Processor) UnmarshalJSON(data []byte) error {
	var wire processorWireFormat
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("registry: parse processor: %w", err)
	}
	p.Function = wire.Function
	switch wire.Function {
	case ProcessorMedian:
		var params medianParams
		if len(wire.Params) > 0 {
			if err := json.Unmarshal(wire.Params, &params); err != nil {
				return fmt.Errorf("registry: parse median params: %w", err)
			}
		}
		p.MinSourceCount = params.MinSourceCount
	case ProcessorWeightedMedian:
		var params weightedMedianParams
		if len(wire.Params) > 0 {
			if err := json.Unmarshal(wire.Params, &params); err != nil {
				return fmt.Errorf("registry: parse weighted_median params: %w", err)
			}
		}
		p.SourceWeights = params.SourceWeights
	case ProcessorIdentity:
		// no params
	default:
		return fmt.Errorf("registry: unknown processor function %q", wire.Function)
	}
	return nil
}

// MarshalJSON encodes the tagged {"function","params"} wire format.
func (p Processor) MarshalJSON() ([]byte, error) {
	var params any
	switch p.Function {
	case ProcessorMedian:
		params = medianParams{MinSourceCount: p.MinSourceCount}
	case ProcessorWeightedMedian:
		params = weightedMedianParams{SourceWeights: p.SourceWeights}
	default:
		params = struct{}{}
	}
	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(processorWireFormat{Function: p.Function, Params: rawParams})
}

// PostProcessorFunction tags which post-processor transform to apply.
type PostProcessorFunction string

// PostProcessorTickConvertor is currently the only post-processor.
const PostProcessorTickConvertor PostProcessorFunction = "tick_convertor"

// PostProcessor is the tagged union `{ TickConvertor }`.
type PostProcessor struct {
	Function PostProcessorFunction `json:"function"`
}

type postProcessorWireFormat struct {
	Function PostProcessorFunction `json:"function"`
	Params   json.RawMessage       `json:"params"`
}

// UnmarshalJSON decodes the tagged {"function","params"} wire format.
func (p *PostProcessor) UnmarshalJSON(data []byte) error {
	var wire postProcessorWireFormat
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("registry: parse post_processor: %w", err)
	}
	switch wire.Function {
	case PostProcessorTickConvertor:
		p.Function = wire.Function
	default:
		return fmt.Errorf("registry: unknown post_processor function %q", wire.Function)
	}
	return nil
}

// MarshalJSON encodes the tagged {"function","params"} wire format.
func (p PostProcessor) MarshalJSON() ([]byte, error) {
	return json.Marshal(postProcessorWireFormat{Function: p.Function, Params: json.RawMessage("{}")})
}

// Signal describes one output signal's computation.
type Signal struct {
	SourceQueries  []SourceQuery   `json:"sources"`
	Processor      Processor       `json:"processor"`
	PostProcessors []PostProcessor `json:"post_processors,omitempty"`
}

// Registry is the parsed, unvalidated mapping signal_id -> Signal. It
// corresponds to the spec's "Invalid" phantom state: parsed but unchecked.
type Registry map[string]Signal

// Valid is the type-level witness that a Registry has passed Validate.
// The zero value is not usable; the only constructor is Validate.
type Valid struct {
	registry Registry
}

// Signals returns the underlying registry map. Callers must not mutate it.
func (v Valid) Signals() Registry { return v.registry }

// Lookup returns the Signal for id and whether it exists.
func (v Valid) Lookup(id string) (Signal, bool) {
	s, ok := v.registry[id]
	return s, ok
}

// Keys returns the set of defined signal ids.
func (v Valid) Keys() []string {
	keys := make([]string, 0, len(v.registry))
	for k := range v.registry {
		keys = append(keys, k)
	}
	return keys
}

// Parse decodes the registry JSON wire format into an unvalidated Registry.
func Parse(data []byte) (Registry, error) {
	var r Registry
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("registry: %w: %v", ErrParse, err)
	}
	return r, nil
}

// Serialize encodes a Registry (validated or not) back to the canonical
// JSON wire format.
func Serialize(r Registry) ([]byte, error) {
	return json.Marshal(r)
}
