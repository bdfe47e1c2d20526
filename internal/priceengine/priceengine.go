// Package priceengine implements getPrices (§4.H): given a set of
// requested signal ids, it fetches the raw values the plan's source tasks
// need, folds route arithmetic and aggregation layer by layer, and
// projects the result back to the caller's requested order.
package priceengine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"bothan/internal/asset"
	"bothan/internal/decimal"
	"bothan/internal/planner"
	"bothan/internal/processor"
	"bothan/internal/registry"
	"bothan/internal/store"
)

// PriceStateKind tags the result sum type `Available(int64) | Unavailable |
// Unsupported` returned per requested id.
type PriceStateKind int

const (
	// Unsupported means the id is not defined in the active registry, or
	// its computed value overflowed the scaled int64 wire format.
	Unsupported PriceStateKind = iota
	// Unavailable means the id is defined but could not be computed this
	// round (a source was stale/missing, or a processor's requirements
	// were not met).
	Unavailable
	// Available carries a price scaled by 10^9 (§6's wire format).
	Available
)

// PriceState is one requested id's outcome.
type PriceState struct {
	Kind  PriceStateKind
	Price int64
}

// priceScale is the fixed-point scale the wire format uses for Available
// prices (§6): value * 10^9, truncated toward zero.
const priceScale = 9

// Store is the subset of *store.Store the price engine reads from.
type Store interface {
	GetAsset(worker, id string) (asset.Info, bool, error)
}

var _ Store = (*store.Store)(nil)

// resultKind tags an internal per-signal computation outcome while layers
// are still being folded; it is distinct from PriceState because
// dependent signals need the full-precision Decimal, not the scaled
// int64, to feed downstream route arithmetic.
type resultKind int

const (
	resultUnavailable resultKind = iota
	resultAvailable
)

type signalResult struct {
	kind          resultKind
	value         decimal.Decimal
	contributions []Contribution
}

// Contribution records one source query's raw asset value and its
// post-route value as they fed into a signal's aggregation (§4.J's
// "raw per-source snapshots, per-source route operations with
// intermediate values"). Source queries that didn't survive staleness or
// route evaluation are simply absent, not zeroed.
type Contribution struct {
	SourceID string
	QueryID  string
	Raw      decimal.Decimal
	Routed   decimal.Decimal
}

// GetPrices computes the current price for each requested id against the
// active registry and store, as of now, treating any asset older than
// staleness as unusable. The returned contributions slice is parallel to
// ids: contributions[i] is the set of per-source values that fed id's
// computation, or nil if id isn't defined in the registry.
func GetPrices(ctx context.Context, s Store, valid registry.Valid, ids []string, now time.Time, staleness time.Duration) ([]PriceState, [][]Contribution, error) {
	supported := make([]string, 0, len(ids))
	supportedSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := valid.Lookup(id); ok {
			if _, dup := supportedSet[id]; !dup {
				supported = append(supported, id)
				supportedSet[id] = struct{}{}
			}
		}
	}

	plan, err := planner.Compile(valid, supported)
	if err != nil {
		return nil, nil, fmt.Errorf("priceengine: compile plan: %w", err)
	}

	rawAssets, err := fetchRawAssets(ctx, s, plan, now, staleness)
	if err != nil {
		return nil, nil, fmt.Errorf("priceengine: fetch raw assets: %w", err)
	}

	cache := make(map[string]signalResult, len(plan.SignalLayers))
	for _, layer := range plan.SignalLayers {
		for _, signalID := range layer {
			cache[signalID] = evaluateSignal(valid, signalID, rawAssets, cache)
		}
	}

	out := make([]PriceState, len(ids))
	contributions := make([][]Contribution, len(ids))
	for i, id := range ids {
		if _, ok := valid.Lookup(id); !ok {
			out[i] = PriceState{Kind: Unsupported}
			continue
		}
		res, ok := cache[id]
		contributions[i] = res.contributions
		if !ok || res.kind != resultAvailable {
			out[i] = PriceState{Kind: Unavailable}
			continue
		}
		scaled, fits := decimal.ToInt64Scaled(res.value, priceScale)
		if !fits {
			out[i] = PriceState{Kind: Unsupported}
			continue
		}
		out[i] = PriceState{Kind: Available, Price: scaled}
	}
	return out, contributions, nil
}

// fetchRawAssets concurrently pulls every (source, query) pair the plan
// needs and classifies each against the staleness threshold.
func fetchRawAssets(ctx context.Context, s Store, plan planner.Plan, now time.Time, staleness time.Duration) (map[string]map[string]asset.State, error) {
	result := make(map[string]map[string]asset.State, len(plan.SourceTasks))
	for sourceID, queries := range plan.SourceTasks {
		result[sourceID] = make(map[string]asset.State, len(queries))
	}

	g, _ := errgroup.WithContext(ctx)
	type fetched struct {
		sourceID, queryID string
		state             asset.State
	}
	results := make(chan fetched, totalQueries(plan))

	for sourceID, queries := range plan.SourceTasks {
		sourceID := sourceID
		for queryID := range queries {
			queryID := queryID
			g.Go(func() error {
				info, found, err := s.GetAsset(sourceID, queryID)
				if err != nil {
					return fmt.Errorf("get asset %s/%s: %w", sourceID, queryID, err)
				}
				var state asset.State
				if !found {
					state = asset.NewUnsupported()
				} else {
					state = asset.EvaluateStaleness(info, now, staleness)
				}
				results <- fetched{sourceID: sourceID, queryID: queryID, state: state}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(results)
	for f := range results {
		result[f.sourceID][f.queryID] = f.state
	}
	return result, nil
}

func totalQueries(plan planner.Plan) int {
	n := 0
	for _, queries := range plan.SourceTasks {
		n += len(queries)
	}
	return n
}

// evaluateSignal folds each surviving source query's routed value through
// the signal's processor and post-processors. Layer order guarantees
// every route dependency is already present in cache.
func evaluateSignal(valid registry.Valid, signalID string, rawAssets map[string]map[string]asset.State, cache map[string]signalResult) signalResult {
	signal, ok := valid.Lookup(signalID)
	if !ok {
		return signalResult{kind: resultUnavailable}
	}

	var values []processor.SourceValue
	var contributions []Contribution
	for _, sq := range signal.SourceQueries {
		state, ok := rawAssets[sq.SourceID][sq.QueryID]
		if !ok || state.Kind != asset.Available {
			continue
		}
		adjusted, ok := applyRoutes(state.Info.Price, sq.Routes, cache)
		if !ok {
			continue
		}
		values = append(values, processor.SourceValue{SourceID: sq.SourceID, Value: adjusted})
		contributions = append(contributions, Contribution{
			SourceID: sq.SourceID,
			QueryID:  sq.QueryID,
			Raw:      state.Info.Price,
			Routed:   adjusted,
		})
	}

	aggregated, err := processor.Run(signal.Processor, values)
	if err != nil {
		return signalResult{kind: resultUnavailable, contributions: contributions}
	}

	final, err := processor.RunPostProcessors(signal.PostProcessors, aggregated)
	if err != nil {
		return signalResult{kind: resultUnavailable, contributions: contributions}
	}

	return signalResult{kind: resultAvailable, value: final, contributions: contributions}
}

// applyRoutes left-folds each route's arithmetic operation over value,
// pulling the dependency's already-computed signal value from cache. A
// route referencing a dependency that did not resolve to Available fails
// the whole source query, not just that route.
func applyRoutes(value decimal.Decimal, routes []registry.Route, cache map[string]signalResult) (decimal.Decimal, bool) {
	result := value
	for _, route := range routes {
		dep, ok := cache[route.SignalID]
		if !ok || dep.kind != resultAvailable {
			return decimal.Decimal{}, false
		}
		switch route.Operation {
		case registry.OpAdd:
			result = result.Add(dep.value)
		case registry.OpSub:
			result = result.Sub(dep.value)
		case registry.OpMul:
			result = result.Mul(dep.value)
		case registry.OpDiv:
			quotient, err := result.Div(dep.value, decimal.ToNearest)
			if err != nil {
				return decimal.Decimal{}, false
			}
			result = quotient
		default:
			return decimal.Decimal{}, false
		}
	}
	return result, true
}
