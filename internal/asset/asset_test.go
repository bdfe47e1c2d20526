package asset

import (
	"testing"
	"time"

	"bothan/internal/decimal"
)

func TestEvaluateStaleness(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	info := Info{ID: "btcusdt", Price: decimal.NewFromInt(50000), Timestamp: now.Unix() - 10}

	cases := []struct {
		name      string
		threshold time.Duration
		want      StateKind
	}{
		{"within threshold", 300 * time.Second, Available},
		{"exactly at threshold", 10 * time.Second, Available},
		{"past threshold", 5 * time.Second, Stale},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := EvaluateStaleness(info, now, tc.threshold)
			if got.Kind != tc.want {
				t.Fatalf("got kind %v, want %v", got.Kind, tc.want)
			}
		})
	}
}
