// Package processor implements the pure aggregation functions (median,
// weighted median, identity) and post-processing transforms (tick
// conversion) that the price engine applies over Decimal values. None of
// these functions suspend or touch the store; they are total functions
// dispatched on the registry's tagged processor/post-processor unions.
package processor

import (
	"fmt"
	"sort"

	"bothan/internal/decimal"
	"bothan/internal/registry"
)

// SourceValue is one surviving (source_id, adjusted value) contribution fed
// into a Processor.
type SourceValue struct {
	SourceID string
	Value    decimal.Decimal
}

// ErrNotEnoughSources is returned when fewer contributions survive than a
// processor's minimum requirement.
type ErrNotEnoughSources struct {
	Have, Want int
}

func (e *ErrNotEnoughSources) Error() string {
	return fmt.Sprintf("processor: not enough sources: have %d, want >= %d", e.Have, e.Want)
}

// ErrInvalidParameter marks a structurally invalid processor configuration,
// e.g. min_source_count == 0.
type ErrInvalidParameter struct {
	Message string
}

func (e *ErrInvalidParameter) Error() string { return "processor: invalid parameter: " + e.Message }

// Run dispatches on p.Function and computes the aggregate value. This is
// the tagged-union match the spec's design notes call for instead of
// inheritance-based polymorphism.
func Run(p registry.Processor, values []SourceValue) (decimal.Decimal, error) {
	switch p.Function {
	case registry.ProcessorMedian:
		return Median(values, p.MinSourceCount)
	case registry.ProcessorWeightedMedian:
		return WeightedMedian(values, p.SourceWeights)
	case registry.ProcessorIdentity:
		return Identity(values)
	default:
		return decimal.Decimal{}, fmt.Errorf("processor: unknown function %q", p.Function)
	}
}

// Median sorts values and returns the middle element (or the average of the
// two middle elements for an even count). min_source_count == 0 is always
// an InvalidParameter error; len < min_source_count is NotEnoughSources.
func Median(values []SourceValue, minSourceCount uint) (decimal.Decimal, error) {
	if minSourceCount == 0 {
		return decimal.Decimal{}, &ErrInvalidParameter{Message: "min_source_count must be >= 1"}
	}
	if uint(len(values)) < minSourceCount {
		return decimal.Decimal{}, &ErrNotEnoughSources{Have: len(values), Want: int(minSourceCount)}
	}

	sorted := make([]decimal.Decimal, len(values))
	for i, v := range values {
		sorted[i] = v.Value
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2], nil
	}
	a, b := sorted[n/2-1], sorted[n/2]
	sum := a.Add(b)
	two := decimal.NewFromInt(2)
	return sum.Div(two, decimal.ToNearest)
}

// WeightedMedian looks up each contribution's weight, sorts ascending by
// value, and returns the first value whose cumulative weight reaches half
// the total weight. Entries with no weight are dropped (a Valid registry's
// validator already guarantees this cannot happen for a weighted_median
// signal, so this is defense in depth, not a reachable path).
func WeightedMedian(values []SourceValue, weights map[string]uint64) (decimal.Decimal, error) {
	type weighted struct {
		value  decimal.Decimal
		weight uint64
	}
	var weightedValues []weighted
	for _, v := range values {
		w, ok := weights[v.SourceID]
		if !ok {
			continue
		}
		weightedValues = append(weightedValues, weighted{value: v.Value, weight: w})
	}
	if len(weightedValues) == 0 {
		return decimal.Decimal{}, &ErrNotEnoughSources{Have: 0, Want: 1}
	}

	sort.Slice(weightedValues, func(i, j int) bool { return weightedValues[i].value.Cmp(weightedValues[j].value) < 0 })

	var total uint64
	for _, wv := range weightedValues {
		total += wv.weight
	}

	var acc uint64
	for _, wv := range weightedValues {
		acc += wv.weight
		// first cumulative weight >= total/2, compared without fractional
		// division: 2*acc >= total avoids rounding total/2 down.
		if 2*acc >= total {
			return wv.value, nil
		}
	}
	return weightedValues[len(weightedValues)-1].value, nil
}

// Identity is a supplemental processor (present in the original Bothan
// source but dropped from the distilled spec's Processor union): it
// requires exactly one surviving contribution and passes it through
// unchanged.
func Identity(values []SourceValue) (decimal.Decimal, error) {
	if len(values) != 1 {
		return decimal.Decimal{}, &ErrInvalidParameter{Message: fmt.Sprintf("identity processor requires exactly 1 source, got %d", len(values))}
	}
	return values[0].Value, nil
}
