// Package manager is the crypto-asset manager (§4.I): it owns the
// currently-installed registry, dispatches active query-id sets out to
// each worker when the set of signals operators care about changes, and
// is the single entry point getPrices calls go through.
package manager

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/Masterminds/semver"
	"golang.org/x/sync/errgroup"

	"bothan/internal/ipfs"
	"bothan/internal/monitoring"
	"bothan/internal/planner"
	"bothan/internal/priceengine"
	"bothan/internal/registry"
	"bothan/internal/store"
)

// Version is bothand's own running version, checked against the
// version_requirement passed to SetRegistry/SetRegistryFromIPFS (§4.I).
const Version = "1.0.0"

// checkVersionRequirement rejects a registry update whose
// version_requirement (a semver range, e.g. ">= 1.0.0, < 2.0.0") this
// binary's own Version does not satisfy. An empty requirement imposes
// no constraint.
func checkVersionRequirement(requirement string) error {
	if requirement == "" {
		return nil
	}
	constraint, err := semver.NewConstraint(requirement)
	if err != nil {
		return &SetRegistryError{Kind: UnsupportedVersion, Err: fmt.Errorf("invalid version requirement %q: %w", requirement, err)}
	}
	v, err := semver.NewVersion(Version)
	if err != nil {
		return fmt.Errorf("manager: bothand version %q does not parse as semver: %w", Version, err)
	}
	if !constraint.Check(v) {
		return &SetRegistryError{Kind: UnsupportedVersion, Err: fmt.Errorf("bothand version %s does not satisfy %q", Version, requirement)}
	}
	return nil
}

// StreamingWorker is the subset of streamworker.Worker the manager needs:
// a live push of a new subscription set, best-effort and non-blocking
// from the manager's point of view.
type StreamingWorker interface {
	UpdateQueryIDs(ids map[string]struct{}) error
}

// Manager ties the store, registry, planner, price engine, and the
// running workers together.
type Manager struct {
	store            *store.Store
	ipfsFetcher      ipfs.Fetcher
	uplink           monitoring.Uplink
	streamingWorkers map[string]StreamingWorker

	registry atomic.Pointer[registry.Valid]
}

// New builds a Manager. uplink may be nil (monitoring disabled).
func New(s *store.Store, ipfsFetcher ipfs.Fetcher, streamingWorkers map[string]StreamingWorker, uplink monitoring.Uplink) *Manager {
	return &Manager{
		store:            s,
		ipfsFetcher:      ipfsFetcher,
		uplink:           uplink,
		streamingWorkers: streamingWorkers,
	}
}

// Build restores a previously installed registry from the store at
// startup, if one exists. It is not an error for none to exist yet.
func (m *Manager) Build() error {
	v, err := m.store.GetRegistry()
	if err != nil {
		log.Printf("[manager] no registry in store yet: %v", err)
		return nil
	}
	m.registry.Store(&v)
	return nil
}

// Registry returns the currently installed registry, or false if none has
// been installed yet.
func (m *Manager) Registry() (registry.Valid, bool) {
	p := m.registry.Load()
	if p == nil {
		return registry.Valid{}, false
	}
	return *p, true
}

// SetRegistry parses, validates, persists, and hot-swaps in a new
// registry. versionRequirement is a semver range this binary's own
// Version must satisfy or the call is rejected before the registry is
// even parsed ("" imposes no constraint). The swap is atomic
// success-or-failure: a registry that fails the version check, parsing,
// or validation never replaces the one already installed.
func (m *Manager) SetRegistry(data []byte, versionRequirement string) error {
	if err := checkVersionRequirement(versionRequirement); err != nil {
		return err
	}
	v, err := registry.ParseAndValidate(data)
	if err != nil {
		return &SetRegistryError{Kind: InvalidRegistry, Err: err}
	}
	if err := m.store.SetRegistry(v, ""); err != nil {
		return &SetRegistryError{Kind: StoreError, Err: err}
	}
	m.registry.Store(&v)
	return nil
}

// SetRegistryFromIPFS fetches, then installs, a registry published at
// hash. Like SetRegistry, a failed version check, bad fetch, or invalid
// registry never disturbs the one currently installed.
func (m *Manager) SetRegistryFromIPFS(ctx context.Context, hash string, versionRequirement string) error {
	if err := checkVersionRequirement(versionRequirement); err != nil {
		return err
	}
	data, err := m.ipfsFetcher.Fetch(ctx, hash)
	if err != nil {
		return &SetRegistryError{Kind: FailedToRetrieve, Err: err}
	}
	v, err := registry.ParseAndValidate(data)
	if err != nil {
		return &SetRegistryError{Kind: InvalidRegistry, Err: err}
	}
	if err := m.store.SetRegistry(v, hash); err != nil {
		return &SetRegistryError{Kind: StoreError, Err: err}
	}
	m.registry.Store(&v)
	return nil
}

// SetActiveSignalIDs compiles signalIDs against the installed registry
// into per-worker query-id sets, persists each worker's set, and hands
// the new set to the streaming worker registered under that source name,
// which sends the subscribe/unsubscribe diff if it is connected.
// A single worker's failure to apply the update is logged and does not
// block the others (§4.I's "best effort per worker").
func (m *Manager) SetActiveSignalIDs(ctx context.Context, signalIDs []string) error {
	v, ok := m.Registry()
	if !ok {
		return fmt.Errorf("manager: no registry installed")
	}
	plan, err := planner.Compile(v, signalIDs)
	if err != nil {
		return fmt.Errorf("manager: compile plan: %w", err)
	}

	g, _ := errgroup.WithContext(ctx)
	for worker, ids := range plan.SourceTasks {
		worker, ids := worker, ids
		g.Go(func() error {
			if _, _, err := m.store.SetQueryIDs(worker, ids); err != nil {
				log.Printf("[manager] set query ids for %s: %v", worker, err)
				return nil
			}
			if sw, ok := m.streamingWorkers[worker]; ok {
				if err := sw.UpdateQueryIDs(ids); err != nil {
					log.Printf("[manager] push query ids to %s: %v", worker, err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// GetPrices computes prices for ids against the installed registry, and,
// if a monitoring uplink is configured, publishes a proof-of-computation
// record for the batch.
func (m *Manager) GetPrices(ctx context.Context, ids []string, staleness time.Duration, now time.Time) ([]priceengine.PriceState, error) {
	v, ok := m.Registry()
	if !ok {
		return nil, fmt.Errorf("manager: no registry installed")
	}
	states, contributions, err := priceengine.GetPrices(ctx, m.store, v, ids, now, staleness)
	if err != nil {
		return nil, fmt.Errorf("manager: get prices: %w", err)
	}

	if m.uplink != nil {
		records := make([]monitoring.SignalComputationRecord, len(ids))
		for i, id := range ids {
			records[i] = monitoring.NewSignalComputationRecord(id, toSourceContributions(contributions[i]), states[i], now)
		}
		if err := monitoring.PublishRecords(ctx, m.uplink, records); err != nil {
			log.Printf("[manager] publish monitoring records: %v", err)
		}
	}
	return states, nil
}

// toSourceContributions maps the price engine's internal per-source
// contributions into monitoring's wire-facing shape.
func toSourceContributions(cs []priceengine.Contribution) []monitoring.SourceContribution {
	if len(cs) == 0 {
		return nil
	}
	out := make([]monitoring.SourceContribution, len(cs))
	for i, c := range cs {
		out[i] = monitoring.SourceContribution{
			SourceID: c.SourceID,
			QueryID:  c.QueryID,
			Raw:      c.Raw.String(),
			Routed:   c.Routed.String(),
		}
	}
	return out
}
