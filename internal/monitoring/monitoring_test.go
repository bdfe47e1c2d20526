package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"bothan/internal/priceengine"
)

type fakeUplink struct {
	published []Topic
	lastBody  []byte
}

func (f *fakeUplink) Publish(ctx context.Context, id uuid.UUID, topic Topic, body []byte) error {
	if id == uuid.Nil {
		panic("monitoring: published with nil id")
	}
	f.published = append(f.published, topic)
	f.lastBody = body
	return nil
}

func TestPublishRecordsSkipsEmptyBatch(t *testing.T) {
	up := &fakeUplink{}
	if err := PublishRecords(context.Background(), up, nil); err != nil {
		t.Fatalf("PublishRecords: %v", err)
	}
	if len(up.published) != 0 {
		t.Fatal("expected no publish for empty batch")
	}
}

func TestPublishRecordsPublishesOnce(t *testing.T) {
	up := &fakeUplink{}
	rec := NewSignalComputationRecord("BTC-USD", nil, priceengine.PriceState{Kind: priceengine.Available, Price: 65000_000_000_000}, time.Unix(1700000000, 0))
	if err := PublishRecords(context.Background(), up, []SignalComputationRecord{rec}); err != nil {
		t.Fatalf("PublishRecords: %v", err)
	}
	if len(up.published) != 1 || up.published[0] != TopicSignalComputation {
		t.Fatalf("expected one signal_computation publish, got %v", up.published)
	}
}

func TestHeartbeatPublishesHeartbeatTopic(t *testing.T) {
	up := &fakeUplink{}
	if err := Heartbeat(context.Background(), up, "binance", time.Unix(1700000000, 0)); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if len(up.published) != 1 || up.published[0] != TopicHeartbeat {
		t.Fatalf("expected one heartbeat publish, got %v", up.published)
	}
}

func TestNewSignalComputationRecordTagsResultKind(t *testing.T) {
	rec := NewSignalComputationRecord("X", nil, priceengine.PriceState{Kind: priceengine.Unavailable}, time.Now())
	if rec.ResultKind != "unavailable" || rec.Price != nil {
		t.Fatalf("got %+v", rec)
	}
}
