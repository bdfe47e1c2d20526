// Package planner compiles a validated registry, restricted to a set of
// requested signal ids, into an execution plan: the union of upstream
// source queries to fetch, and a topological layering of signals so each
// layer's route dependencies are guaranteed resolved by an earlier layer.
package planner

import (
	"fmt"
	"sort"

	"bothan/internal/registry"
)

// Plan is the compiled output of §4.D: the per-source upstream queries to
// fetch, and the signal evaluation order.
type Plan struct {
	// SourceTasks maps source_id -> the set of query_ids needed from it.
	SourceTasks map[string]map[string]struct{}
	// SignalLayers is a topological layering: every route dependency of a
	// signal in layer k resolves in some layer j < k. Each layer's ids are
	// sorted lexicographically for determinism.
	SignalLayers [][]string
}

// ErrTaskCreation signals that a registry reduced to the requested closure
// failed validation — a programmer error, since a Valid registry's
// reachable closure must itself be valid.
type ErrTaskCreation struct {
	Inner error
}

func (e *ErrTaskCreation) Error() string {
	return fmt.Sprintf("planner: reduced registry failed validation (programmer error): %v", e.Inner)
}

func (e *ErrTaskCreation) Unwrap() error { return e.Inner }

// Closure returns ids plus every signal transitively reachable through
// route dependencies, restricted to signals actually defined in r.
func Closure(r registry.Registry, ids []string) map[string]struct{} {
	closure := make(map[string]struct{})
	var visit func(id string)
	visit = func(id string) {
		if _, seen := closure[id]; seen {
			return
		}
		signal, ok := r[id]
		if !ok {
			return
		}
		closure[id] = struct{}{}
		for _, sq := range signal.SourceQueries {
			for _, route := range sq.Routes {
				visit(route.SignalID)
			}
		}
	}
	for _, id := range ids {
		visit(id)
	}
	return closure
}

// Compile compiles a plan for the given Valid registry restricted to the
// transitive closure of requestedIDs. Ids not present in the registry are
// silently excluded from the closure (the price engine handles Unsupported
// separately and passes only ids known to exist).
func Compile(valid registry.Valid, requestedIDs []string) (Plan, error) {
	full := valid.Signals()
	closure := Closure(full, requestedIDs)

	reduced := make(registry.Registry, len(closure))
	for id := range closure {
		reduced[id] = full[id]
	}

	// A correctly-computed closure over an already-Valid registry can never
	// fail re-validation; this guards against planner bugs rather than bad
	// input.
	if _, err := registry.Validate(reduced); err != nil {
		return Plan{}, &ErrTaskCreation{Inner: err}
	}

	layerIndex := make(map[string]int, len(reduced))
	var computeLayer func(id string) int
	computeLayer = func(id string) int {
		if layer, ok := layerIndex[id]; ok {
			return layer
		}
		signal := reduced[id]
		maxDepLayer := -1
		for _, sq := range signal.SourceQueries {
			for _, route := range sq.Routes {
				if l := computeLayer(route.SignalID); l > maxDepLayer {
					maxDepLayer = l
				}
			}
		}
		layer := maxDepLayer + 1
		layerIndex[id] = layer
		return layer
	}

	maxLayer := -1
	for id := range reduced {
		if l := computeLayer(id); l > maxLayer {
			maxLayer = l
		}
	}

	layers := make([][]string, maxLayer+1)
	for id, l := range layerIndex {
		layers[l] = append(layers[l], id)
	}
	for _, layer := range layers {
		sort.Strings(layer)
	}

	sourceTasks := make(map[string]map[string]struct{})
	for _, signal := range reduced {
		for _, sq := range signal.SourceQueries {
			if sourceTasks[sq.SourceID] == nil {
				sourceTasks[sq.SourceID] = make(map[string]struct{})
			}
			sourceTasks[sq.SourceID][sq.QueryID] = struct{}{}
		}
	}

	return Plan{SourceTasks: sourceTasks, SignalLayers: layers}, nil
}
