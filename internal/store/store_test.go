package store

import (
	"testing"

	"bothan/internal/asset"
	"bothan/internal/decimal"
	"bothan/internal/registry"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(NewMemoryEngine())
}

func TestGetAssetMissingIsNotFoundNotError(t *testing.T) {
	s := newTestStore(t)
	_, found, err := s.GetAsset("binance", "btcusdt")
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if found {
		t.Fatal("expected found=false for never-written asset")
	}
}

func TestSetAssetsThenGetAssetRoundTrips(t *testing.T) {
	s := newTestStore(t)
	info := asset.Info{ID: "btcusdt", Price: decimal.NewFromInt(65000), Timestamp: 1000}
	if err := s.SetAssets("binance", []asset.Info{info}); err != nil {
		t.Fatalf("SetAssets: %v", err)
	}
	got, found, err := s.GetAsset("binance", "btcusdt")
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if !found {
		t.Fatal("expected found=true")
	}
	if got.ID != info.ID || got.Timestamp != info.Timestamp || got.Price.Cmp(info.Price) != 0 {
		t.Fatalf("got %+v, want %+v", got, info)
	}
}

func TestSetQueryIDsReportsAddedAndRemoved(t *testing.T) {
	s := newTestStore(t)

	added, removed, err := s.SetQueryIDs("binance", map[string]struct{}{"btcusdt": {}, "ethusdt": {}})
	if err != nil {
		t.Fatalf("SetQueryIDs: %v", err)
	}
	if len(removed) != 0 || len(added) != 2 {
		t.Fatalf("first call: added=%v removed=%v", added, removed)
	}

	added, removed, err = s.SetQueryIDs("binance", map[string]struct{}{"ethusdt": {}, "solusdt": {}})
	if err != nil {
		t.Fatalf("SetQueryIDs: %v", err)
	}
	if len(added) != 1 || added[0] != "solusdt" {
		t.Fatalf("expected added=[solusdt], got %v", added)
	}
	if len(removed) != 1 || removed[0] != "btcusdt" {
		t.Fatalf("expected removed=[btcusdt], got %v", removed)
	}
}

func TestComputeQueryIDDiffPure(t *testing.T) {
	old := map[string]struct{}{"a": {}, "b": {}}
	newSet := map[string]struct{}{"b": {}, "c": {}}
	added, removed := ComputeQueryIDDiff(old, newSet)
	if len(added) != 1 || added[0] != "c" {
		t.Fatalf("added=%v, want [c]", added)
	}
	if len(removed) != 1 || removed[0] != "a" {
		t.Fatalf("removed=%v, want [a]", removed)
	}
}

func TestGetRegistryWithoutSetIsError(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetRegistry(); err == nil {
		t.Fatal("expected error reading registry before it is ever set")
	}
}

func TestSetRegistryThenGetRegistryRoundTrips(t *testing.T) {
	s := newTestStore(t)
	r := registry.Registry{
		"BTC-USD": registry.Signal{
			SourceQueries: []registry.SourceQuery{{SourceID: "binance", QueryID: "btcusdt"}},
			Processor:     registry.Processor{Function: registry.ProcessorMedian, MinSourceCount: 1},
		},
	}
	v, err := registry.Validate(r)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := s.SetRegistry(v, "Qm123"); err != nil {
		t.Fatalf("SetRegistry: %v", err)
	}

	got, err := s.GetRegistry()
	if err != nil {
		t.Fatalf("GetRegistry: %v", err)
	}
	if _, ok := got.Lookup("BTC-USD"); !ok {
		t.Fatal("expected BTC-USD in round-tripped registry")
	}

	hash, ok, err := s.GetRegistryIPFSHash()
	if err != nil {
		t.Fatalf("GetRegistryIPFSHash: %v", err)
	}
	if !ok || hash != "Qm123" {
		t.Fatalf("hash=%q ok=%v, want Qm123/true", hash, ok)
	}
}

func TestGetRegistryIPFSHashAbsentWhenNeverSet(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.GetRegistryIPFSHash()
	if err != nil {
		t.Fatalf("GetRegistryIPFSHash: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false before any registry is installed")
	}
}
