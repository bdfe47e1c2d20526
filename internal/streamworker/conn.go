package streamworker

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
)

// GorillaDialer dials real upstream WebSocket endpoints.
type GorillaDialer struct{}

func (GorillaDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return gorillaConn{conn}, nil
}

type gorillaConn struct {
	conn *websocket.Conn
}

func (c gorillaConn) WriteJSON(v any) error { return c.conn.WriteJSON(v) }

func (c gorillaConn) ReadMessage() (int, []byte, error) { return c.conn.ReadMessage() }

func (c gorillaConn) Close() error { return c.conn.Close() }
