package streamworker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bothan/internal/asset"
	"bothan/internal/decimal"
	"bothan/internal/store"
)

type fakeConn struct {
	mu       sync.Mutex
	messages chan []byte
	closed   bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{messages: make(chan []byte, 8)}
}

func (c *fakeConn) WriteJSON(v any) error { return nil }

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	msg, ok := <-c.messages
	if !ok {
		return 0, nil, errors.New("fakeConn: closed")
	}
	return 1, msg, nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.messages)
	}
	return nil
}

type fakeDialer struct {
	conns chan *fakeConn
}

func (d *fakeDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	select {
	case c := <-d.conns:
		if c == nil {
			return nil, errors.New("fakeDialer: dial failure injected")
		}
		return c, nil
	default:
		return nil, errors.New("fakeDialer: no connection queued")
	}
}

type echoProtocol struct{}

func (echoProtocol) Subscribe(conn Conn, queryIDs []string) error   { return nil }
func (echoProtocol) Unsubscribe(conn Conn, queryIDs []string) error { return nil }
func (echoProtocol) ParseMessage(data []byte) ([]asset.Info, error) {
	if len(data) == 0 {
		return nil, nil
	}
	return []asset.Info{{ID: string(data), Price: decimal.NewFromInt(1), Timestamp: 1000}}, nil
}

func TestWorkerStreamsMessagesIntoStore(t *testing.T) {
	s := store.New(store.NewMemoryEngine())
	conn := newFakeConn()
	dialer := &fakeDialer{conns: make(chan *fakeConn, 1)}
	dialer.conns <- conn

	w := New("testsource", "wss://example.invalid", dialer, echoProtocol{}, s, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	conn.messages <- []byte("btcusdt")

	deadline := time.After(2 * time.Second)
	for {
		if _, found, err := s.GetAsset("testsource", "btcusdt"); err == nil && found {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for streamed asset to land in store")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}

func TestWorkerBacksOffOnDialFailure(t *testing.T) {
	s := store.New(store.NewMemoryEngine())
	dialer := &fakeDialer{conns: make(chan *fakeConn, 1)}
	dialer.conns <- nil // first dial fails

	w := New("testsource", "wss://example.invalid", dialer, echoProtocol{}, s, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for w.State() != Backoff {
		select {
		case <-deadline:
			t.Fatalf("worker never entered Backoff, last state %s", w.State())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}
