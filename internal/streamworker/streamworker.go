// Package streamworker runs the reconnecting WebSocket subscription state
// machine (§4.E): connect, subscribe to the worker's active query ids,
// stream ticks into the store, and on any disconnect or stall fall back
// into jittered exponential backoff before reconnecting.
package streamworker

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"bothan/internal/asset"
	"bothan/internal/store"
)

// State tags where in the reconnect lifecycle a Worker currently is.
type State int

const (
	Disconnected State = iota
	Connecting
	Subscribing
	Streaming
	Backoff
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Subscribing:
		return "subscribing"
	case Streaming:
		return "streaming"
	case Backoff:
		return "backoff"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is the subset of a live connection the state machine drives. The
// real implementation wraps *gorilla/websocket.Conn (see conn.go);
// streamworker is tested against a fake.
type Conn interface {
	WriteJSON(v any) error
	ReadMessage() (messageType int, data []byte, err error)
	Close() error
}

// Dialer opens a new Conn to url.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Conn, error)
}

// Protocol encodes one upstream's wire format: how to ask for query ids
// and how to turn an inbound frame into normalized asset values.
type Protocol interface {
	Subscribe(conn Conn, queryIDs []string) error
	Unsubscribe(conn Conn, queryIDs []string) error
	// ParseMessage returns (nil, nil) for frames that carry no price data
	// (acks, pings) rather than erroring.
	ParseMessage(data []byte) ([]asset.Info, error)
}

const (
	defaultHeartbeatTimeout = 60 * time.Second
	minBackoff              = 1 * time.Second
	maxBackoff              = 60 * time.Second
	backoffJitter           = 0.2
)

// Worker owns one upstream streaming connection.
type Worker struct {
	name              string
	url               string
	dialer            Dialer
	protocol          Protocol
	store             *store.Store
	heartbeatTimeout  time.Duration
	connectLimiter    *rate.Limiter

	mu         sync.Mutex
	state      State
	conn       Conn
	subscribed map[string]struct{}
}

// New builds a Worker. heartbeatTimeout <= 0 falls back to 60s.
func New(name, url string, dialer Dialer, protocol Protocol, s *store.Store, heartbeatTimeout time.Duration) *Worker {
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = defaultHeartbeatTimeout
	}
	return &Worker{
		name:             name,
		url:              url,
		dialer:           dialer,
		protocol:         protocol,
		store:            s,
		heartbeatTimeout: heartbeatTimeout,
		// Independent of the jittered backoff below, this caps how often
		// the worker is willing to attempt a fresh dial at all: a upstream
		// that keeps accepting and immediately dropping connections must
		// not be hammered faster than one attempt per minBackoff.
		connectLimiter: rate.NewLimiter(rate.Every(minBackoff), 1),
		state:          Disconnected,
		subscribed:     map[string]struct{}{},
	}
}

// State reports the worker's current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// UpdateQueryIDs applies a subscribe/unsubscribe diff against whatever the
// worker is currently subscribed to. If the worker is not connected no
// request is sent; the next Subscribing phase subscribes to the set
// stored for this worker in the store, not to newSet.
func (w *Worker) UpdateQueryIDs(newSet map[string]struct{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	added, removed := store.ComputeQueryIDDiff(w.subscribed, newSet)
	if w.conn != nil {
		if len(added) > 0 {
			if err := w.protocol.Subscribe(w.conn, added); err != nil {
				return fmt.Errorf("streamworker %s: subscribe: %w", w.name, err)
			}
		}
		if len(removed) > 0 {
			if err := w.protocol.Unsubscribe(w.conn, removed); err != nil {
				return fmt.Errorf("streamworker %s: unsubscribe: %w", w.name, err)
			}
		}
	}
	w.subscribed = newSet
	return nil
}

// Run drives the state machine until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			w.setState(Closed)
			return
		}

		w.setState(Connecting)
		if err := w.connectLimiter.Wait(ctx); err != nil {
			w.setState(Closed)
			return
		}
		conn, err := w.dialer.DialContext(ctx, w.url)
		if err != nil {
			log.Printf("[streamworker %s] connect: %v", w.name, err)
			if !w.sleepBackoff(ctx, &backoff) {
				return
			}
			continue
		}

		w.setState(Subscribing)
		ids, err := w.store.GetQueryIDs(w.name)
		if err != nil {
			log.Printf("[streamworker %s] get query ids: %v", w.name, err)
			conn.Close()
			if !w.sleepBackoff(ctx, &backoff) {
				return
			}
			continue
		}
		idList := make([]string, 0, len(ids))
		for id := range ids {
			idList = append(idList, id)
		}
		if err := w.protocol.Subscribe(conn, idList); err != nil {
			log.Printf("[streamworker %s] subscribe: %v", w.name, err)
			conn.Close()
			if !w.sleepBackoff(ctx, &backoff) {
				return
			}
			continue
		}

		w.mu.Lock()
		w.conn = conn
		w.subscribed = ids
		w.mu.Unlock()

		backoff = minBackoff // a successful connect+subscribe resets backoff
		w.setState(Streaming)
		streamErr := w.stream(ctx, conn)

		w.mu.Lock()
		w.conn = nil
		w.mu.Unlock()
		conn.Close()

		if streamErr == nil {
			// ctx cancelled cleanly.
			w.setState(Closed)
			return
		}
		log.Printf("[streamworker %s] stream ended: %v", w.name, streamErr)
		if !w.sleepBackoff(ctx, &backoff) {
			return
		}
	}
}

// stream reads frames until ctx is cancelled, the connection errors, or no
// frame arrives within heartbeatTimeout. Returns nil only on clean ctx
// cancellation.
func (w *Worker) stream(ctx context.Context, conn Conn) error {
	type frame struct {
		data []byte
		err  error
	}
	frames := make(chan frame, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			select {
			case frames <- frame{data: data, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	timer := time.NewTimer(w.heartbeatTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			return fmt.Errorf("no data within heartbeat timeout %s", w.heartbeatTimeout)
		case f := <-frames:
			if f.err != nil {
				return f.err
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.heartbeatTimeout)

			infos, err := w.protocol.ParseMessage(f.data)
			if err != nil {
				log.Printf("[streamworker %s] parse message: %v", w.name, err)
				continue
			}
			if len(infos) == 0 {
				continue
			}
			if err := w.store.SetAssets(w.name, infos); err != nil {
				log.Printf("[streamworker %s] set assets: %v", w.name, err)
			}
		}
	}
}

// sleepBackoff waits the current backoff (±20% jitter), doubling it for
// next time up to maxBackoff. Returns false if ctx was cancelled during
// the wait.
func (w *Worker) sleepBackoff(ctx context.Context, backoff *time.Duration) bool {
	w.setState(Backoff)
	jitter := 1 + (rand.Float64()*2-1)*backoffJitter
	wait := time.Duration(float64(*backoff) * jitter)

	select {
	case <-ctx.Done():
		w.setState(Closed)
		return false
	case <-time.After(wait):
	}

	next := *backoff * 2
	if next > maxBackoff {
		next = maxBackoff
	}
	*backoff = next
	return true
}
