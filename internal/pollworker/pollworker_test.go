package pollworker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"bothan/internal/asset"
	"bothan/internal/decimal"
	"bothan/internal/store"
)

type fakeSource struct {
	name     string
	fetchCnt int32
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) Fetch(ctx context.Context, queryIDs []string) ([]asset.Info, error) {
	atomic.AddInt32(&s.fetchCnt, 1)
	infos := make([]asset.Info, len(queryIDs))
	for i, id := range queryIDs {
		infos[i] = asset.Info{ID: id, Price: decimal.NewFromInt(1), Timestamp: time.Now().Unix()}
	}
	return infos, nil
}

func TestWorkerFetchesImmediatelyAndOnInterval(t *testing.T) {
	s := store.New(store.NewMemoryEngine())
	if _, _, err := s.SetQueryIDs("coingecko", map[string]struct{}{"usdt": {}}); err != nil {
		t.Fatalf("SetQueryIDs: %v", err)
	}

	source := &fakeSource{name: "coingecko"}
	w := New(source, s, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	if atomic.LoadInt32(&source.fetchCnt) < 2 {
		t.Fatalf("expected at least 2 fetches, got %d", source.fetchCnt)
	}
	if _, found, err := s.GetAsset("coingecko", "usdt"); err != nil || !found {
		t.Fatalf("expected fetched asset in store, found=%v err=%v", found, err)
	}
}

func TestWorkerSkipsFetchWhenNoQueryIDs(t *testing.T) {
	s := store.New(store.NewMemoryEngine())
	source := &fakeSource{name: "coingecko"}
	w := New(source, s, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	if atomic.LoadInt32(&source.fetchCnt) != 0 {
		t.Fatalf("expected 0 fetches with no active query ids, got %d", source.fetchCnt)
	}
}
