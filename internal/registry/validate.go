package registry

import (
	"errors"
	"fmt"
	"sort"
)

// ErrParse marks a malformed registry JSON document.
var ErrParse = errors.New("malformed registry")

// ErrCycleDetected marks a signal that is its own transitive route
// dependency. Use errors.As to recover the offending SignalID.
type ErrCycleDetected struct {
	SignalID string
}

func (e *ErrCycleDetected) Error() string {
	return fmt.Sprintf("registry: cycle detected at signal %q", e.SignalID)
}

// ErrInvalidDependency marks a route that targets an undefined signal id.
type ErrInvalidDependency struct {
	SignalID string
	Missing  string
}

func (e *ErrInvalidDependency) Error() string {
	return fmt.Sprintf("registry: signal %q routes to undefined signal %q", e.SignalID, e.Missing)
}

// ErrInvalidWeightedMedianProcessor marks a weighted-median signal whose
// source_queries include a source id absent from source_weights.
type ErrInvalidWeightedMedianProcessor struct {
	SignalID string
	SourceID string
}

func (e *ErrInvalidWeightedMedianProcessor) Error() string {
	return fmt.Sprintf("registry: signal %q weighted_median processor has no weight for source %q", e.SignalID, e.SourceID)
}

type nodeMark int

const (
	unseen nodeMark = iota
	inProgress
	complete
)

// Validate checks the three invariants the spec requires:
//
//  1. every route target signal_id exists in the registry;
//  2. the induced dependency graph is acyclic;
//  3. every weighted_median signal's source ids are all present in
//     source_weights.
//
// It returns a type-level Valid witness on success.
func Validate(r Registry) (Valid, error) {
	for id, signal := range r {
		if signal.Processor.Function == ProcessorWeightedMedian {
			for _, sq := range signal.SourceQueries {
				if _, ok := signal.Processor.SourceWeights[sq.SourceID]; !ok {
					return Valid{}, &ErrInvalidWeightedMedianProcessor{SignalID: id, SourceID: sq.SourceID}
				}
			}
		}
	}

	marks := make(map[string]nodeMark, len(r))
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Strings(ids) // deterministic traversal order, matters for error reproducibility

	var visit func(id string) error
	visit = func(id string) error {
		switch marks[id] {
		case complete:
			return nil
		case inProgress:
			return &ErrCycleDetected{SignalID: id}
		}
		marks[id] = inProgress

		signal, ok := r[id]
		if !ok {
			return nil // unreachable: caller only visits ids present in r
		}
		for _, sq := range signal.SourceQueries {
			for _, route := range sq.Routes {
				if _, ok := r[route.SignalID]; !ok {
					return &ErrInvalidDependency{SignalID: id, Missing: route.SignalID}
				}
				if err := visit(route.SignalID); err != nil {
					return err
				}
			}
		}

		marks[id] = complete
		return nil
	}

	for _, id := range ids {
		if err := visit(id); err != nil {
			return Valid{}, err
		}
	}

	return Valid{registry: r}, nil
}

// ParseAndValidate parses registry JSON and validates it in one step.
func ParseAndValidate(data []byte) (Valid, error) {
	r, err := Parse(data)
	if err != nil {
		return Valid{}, err
	}
	return Validate(r)
}
