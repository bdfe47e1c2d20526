package registry

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseCanonicalSchema(t *testing.T) {
	data := []byte(`{
		"BTC-USD": {
			"sources": [
				{"source_id": "binance", "id": "btcusdt", "routes": [{"signal_id": "USDT-USD", "operation": "*"}]}
			],
			"processor": {"function": "median", "params": {"min_source_count": 1}},
			"post_processors": [{"function": "tick_convertor", "params": {}}]
		},
		"USDT-USD": {
			"sources": [{"source_id": "coingecko", "id": "tether"}],
			"processor": {"function": "median", "params": {"min_source_count": 1}}
		}
	}`)

	r, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(r) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(r))
	}
	btc := r["BTC-USD"]
	if len(btc.SourceQueries) != 1 || btc.SourceQueries[0].SourceID != "binance" {
		t.Fatalf("unexpected BTC-USD sources: %+v", btc.SourceQueries)
	}
	if len(btc.SourceQueries[0].Routes) != 1 || btc.SourceQueries[0].Routes[0].SignalID != "USDT-USD" {
		t.Fatalf("unexpected routes: %+v", btc.SourceQueries[0].Routes)
	}
	if len(btc.PostProcessors) != 1 || btc.PostProcessors[0].Function != PostProcessorTickConvertor {
		t.Fatalf("unexpected post processors: %+v", btc.PostProcessors)
	}
}

func TestParseSerializeRoundTrip(t *testing.T) {
	data := []byte(`{
		"X": {
			"sources": [{"source_id": "binance", "id": "btcusdt"}],
			"processor": {"function": "median", "params": {"min_source_count": 1}}
		}
	}`)
	r, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	serialized, err := Serialize(r)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	reparsed, err := Parse(serialized)
	if err != nil {
		t.Fatalf("re-Parse: %v", err)
	}

	a, _ := json.Marshal(r)
	b, _ := json.Marshal(reparsed)
	if string(a) != string(b) {
		t.Fatalf("round trip mismatch:\n%s\nvs\n%s", a, b)
	}
}

func TestValidateMissingDependency(t *testing.T) {
	r := Registry{
		"X": Signal{
			SourceQueries: []SourceQuery{
				{SourceID: "binance", QueryID: "btcusdt", Routes: []Route{{SignalID: "NOPE", Operation: OpMul}}},
			},
			Processor: Processor{Function: ProcessorMedian, MinSourceCount: 1},
		},
	}
	_, err := Validate(r)
	var depErr *ErrInvalidDependency
	if !errors.As(err, &depErr) {
		t.Fatalf("expected ErrInvalidDependency, got %v", err)
	}
	if depErr.Missing != "NOPE" {
		t.Fatalf("expected missing=NOPE, got %q", depErr.Missing)
	}
}

func TestValidateCycle(t *testing.T) {
	r := Registry{
		"A": Signal{
			SourceQueries: []SourceQuery{{SourceID: "s", QueryID: "q", Routes: []Route{{SignalID: "B", Operation: OpAdd}}}},
			Processor:     Processor{Function: ProcessorMedian, MinSourceCount: 1},
		},
		"B": Signal{
			SourceQueries: []SourceQuery{{SourceID: "s", QueryID: "q", Routes: []Route{{SignalID: "A", Operation: OpAdd}}}},
			Processor:     Processor{Function: ProcessorMedian, MinSourceCount: 1},
		},
	}
	_, err := Validate(r)
	var cycleErr *ErrCycleDetected
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
}

func TestValidateSelfCycleNeverSlipsThrough(t *testing.T) {
	r := Registry{
		"A": Signal{
			SourceQueries: []SourceQuery{{SourceID: "s", QueryID: "q", Routes: []Route{{SignalID: "A", Operation: OpAdd}}}},
			Processor:     Processor{Function: ProcessorMedian, MinSourceCount: 1},
		},
	}
	if _, err := Validate(r); err == nil {
		t.Fatal("expected self-referencing signal to fail validation")
	}
}

func TestValidateWeightedMedianMissingWeight(t *testing.T) {
	r := Registry{
		"X": Signal{
			SourceQueries: []SourceQuery{
				{SourceID: "a", QueryID: "q"},
				{SourceID: "b", QueryID: "q"},
			},
			Processor: Processor{
				Function:      ProcessorWeightedMedian,
				SourceWeights: map[string]uint64{"a": 1},
			},
		},
	}
	_, err := Validate(r)
	var wmErr *ErrInvalidWeightedMedianProcessor
	if !errors.As(err, &wmErr) {
		t.Fatalf("expected ErrInvalidWeightedMedianProcessor, got %v", err)
	}
	if wmErr.SourceID != "b" {
		t.Fatalf("expected missing source b, got %q", wmErr.SourceID)
	}
}

func TestValidateAcceptsValidRegistry(t *testing.T) {
	r := Registry{
		"USDT-USD": Signal{
			SourceQueries: []SourceQuery{{SourceID: "coingecko", QueryID: "tether"}},
			Processor:     Processor{Function: ProcessorMedian, MinSourceCount: 1},
		},
		"BTC-USD": Signal{
			SourceQueries: []SourceQuery{
				{SourceID: "binance", QueryID: "btcusdt", Routes: []Route{{SignalID: "USDT-USD", Operation: OpMul}}},
			},
			Processor: Processor{Function: ProcessorMedian, MinSourceCount: 1},
		},
	}
	v, err := Validate(r)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(v.Keys()) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(v.Keys()))
	}
}
