package processor

import (
	"errors"
	"testing"

	"bothan/internal/decimal"
	"bothan/internal/registry"
)

func sv(source string, value string) SourceValue {
	d, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return SourceValue{SourceID: source, Value: d}
}

func TestMedianOddCount(t *testing.T) {
	got, err := Median([]SourceValue{sv("a", "3"), sv("b", "1"), sv("c", "2")}, 1)
	if err != nil {
		t.Fatalf("Median: %v", err)
	}
	if got.String() != "2" {
		t.Fatalf("got %s, want 2", got)
	}
}

func TestMedianEvenCountAverages(t *testing.T) {
	got, err := Median([]SourceValue{sv("a", "10"), sv("b", "20")}, 1)
	if err != nil {
		t.Fatalf("Median: %v", err)
	}
	if got.String() != "15" {
		t.Fatalf("got %s, want 15", got)
	}
}

func TestMedianIdenticalValuesReturnsThatValue(t *testing.T) {
	got, err := Median([]SourceValue{sv("a", "7"), sv("b", "7"), sv("c", "7")}, 2)
	if err != nil {
		t.Fatalf("Median: %v", err)
	}
	if got.String() != "7" {
		t.Fatalf("got %s, want 7", got)
	}
}

func TestMedianZeroMinSourceCountIsInvalidParameter(t *testing.T) {
	_, err := Median([]SourceValue{sv("a", "1")}, 0)
	var invalid *ErrInvalidParameter
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestMedianNotEnoughSources(t *testing.T) {
	_, err := Median([]SourceValue{sv("a", "1")}, 2)
	var notEnough *ErrNotEnoughSources
	if !errors.As(err, &notEnough) {
		t.Fatalf("expected ErrNotEnoughSources, got %v", err)
	}
}

func TestWeightedMedianSpecExample(t *testing.T) {
	weights := map[string]uint64{"a": 1, "b": 1, "c": 3}
	values := []SourceValue{sv("a", "10"), sv("b", "20"), sv("c", "30")}
	got, err := WeightedMedian(values, weights)
	if err != nil {
		t.Fatalf("WeightedMedian: %v", err)
	}
	if got.String() != "30" {
		t.Fatalf("got %s, want 30", got)
	}
}

func TestWeightedMedianEmptyFails(t *testing.T) {
	if _, err := WeightedMedian(nil, map[string]uint64{}); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestIdentityRequiresExactlyOneSource(t *testing.T) {
	got, err := Identity([]SourceValue{sv("a", "42")})
	if err != nil {
		t.Fatalf("Identity: %v", err)
	}
	if got.String() != "42" {
		t.Fatalf("got %s, want 42", got)
	}
	if _, err := Identity([]SourceValue{sv("a", "1"), sv("b", "2")}); err == nil {
		t.Fatal("expected error for 2 sources")
	}
	if _, err := Identity(nil); err == nil {
		t.Fatal("expected error for 0 sources")
	}
}

func TestTickConvertorAcceptedBoundary(t *testing.T) {
	tick, err := TickConvertor(decimal.NewFromInt(1))
	if err != nil {
		t.Fatalf("TickConvertor(1): %v", err)
	}
	if tick.String() != "262144" {
		t.Fatalf("tick(1) = %s, want 262144", tick)
	}
}

func TestTickConvertorOutOfBound(t *testing.T) {
	tiny, err := decimal.NewFromString("0.000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000001")
	if err != nil {
		t.Fatalf("NewFromString: %v", err)
	}
	_, err = TickConvertor(tiny)
	var oob *ErrOutOfBound
	if !errors.As(err, &oob) {
		t.Fatalf("expected ErrOutOfBound, got %v", err)
	}
}

func TestTickConvertorMonotonic(t *testing.T) {
	small := decimal.NewFromInt(2)
	big := decimal.NewFromInt(3)
	ts, err := TickConvertor(small)
	if err != nil {
		t.Fatalf("TickConvertor(2): %v", err)
	}
	tb, err := TickConvertor(big)
	if err != nil {
		t.Fatalf("TickConvertor(3): %v", err)
	}
	if ts.Cmp(tb) >= 0 {
		t.Fatalf("expected tick(2) < tick(3), got %s >= %s", ts, tb)
	}
}

func TestRunPostProcessorsAppliesInOrder(t *testing.T) {
	posts := []registry.PostProcessor{{Function: registry.PostProcessorTickConvertor}}
	got, err := RunPostProcessors(posts, decimal.NewFromInt(1))
	if err != nil {
		t.Fatalf("RunPostProcessors: %v", err)
	}
	if got.String() != "262144" {
		t.Fatalf("got %s, want 262144", got)
	}
}

func TestRunPostProcessorsStopsOnFirstError(t *testing.T) {
	tiny, err := decimal.NewFromString("0.000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000001")
	if err != nil {
		t.Fatalf("NewFromString: %v", err)
	}
	posts := []registry.PostProcessor{{Function: registry.PostProcessorTickConvertor}}
	if _, err := RunPostProcessors(posts, tiny); err == nil {
		t.Fatal("expected out-of-bound error to propagate")
	}
}
