// Package pollworker runs the interval-driven REST fetch loop (§4.F): on
// each tick it re-reads the worker's active query-id set from the store
// (so ids written by the manager's SetActiveSignalIDs are picked up
// without a restart), fetches
// them from the source within a timeout bounded by the interval, and
// writes whatever came back.
package pollworker

import (
	"context"
	"log"
	"time"

	"bothan/internal/asset"
	"bothan/internal/store"
)

// defaultInterval is used when a non-positive interval is configured.
const defaultInterval = 60 * time.Second

// Source is a polling price source: Binance's REST book-ticker, CoinGecko's
// simple-price endpoint, and so on.
type Source interface {
	Name() string
	Fetch(ctx context.Context, queryIDs []string) ([]asset.Info, error)
}

// Worker drives one Source on a fixed interval.
type Worker struct {
	source   Source
	store    *store.Store
	interval time.Duration
}

// New builds a Worker. interval <= 0 falls back to defaultInterval.
func New(source Source, s *store.Store, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Worker{source: source, store: s, interval: interval}
}

// Run ticks until ctx is cancelled, fetching once immediately and then on
// every interval boundary.
func (w *Worker) Run(ctx context.Context) {
	log.Printf("[pollworker %s] starting (interval %s)", w.source.Name(), w.interval)

	w.tick(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[pollworker %s] stopping", w.source.Name())
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, w.interval)
	defer cancel()

	ids, err := w.store.GetQueryIDs(w.source.Name())
	if err != nil {
		log.Printf("[pollworker %s] get query ids: %v", w.source.Name(), err)
		return
	}
	if len(ids) == 0 {
		return
	}
	queryIDs := make([]string, 0, len(ids))
	for id := range ids {
		queryIDs = append(queryIDs, id)
	}

	infos, err := w.source.Fetch(fetchCtx, queryIDs)
	if err != nil {
		log.Printf("[pollworker %s] fetch: %v", w.source.Name(), err)
		return
	}
	if err := w.store.SetAssets(w.source.Name(), infos); err != nil {
		log.Printf("[pollworker %s] set assets: %v", w.source.Name(), err)
	}
}
