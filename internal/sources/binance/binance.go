// Package binance implements a streamworker.Protocol against Binance's
// combined-stream WebSocket mini-ticker feed.
package binance

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"bothan/internal/asset"
	"bothan/internal/decimal"
	"bothan/internal/streamworker"
)

// DefaultURL is Binance's combined-stream endpoint. The combined path takes
// no stream names up front: streams are added and removed entirely through
// SUBSCRIBE/UNSUBSCRIBE requests, which is what Protocol.Subscribe sends.
const DefaultURL = "wss://stream.binance.com:9443/stream"

// Protocol implements streamworker.Protocol for Binance ticker streams. A
// query id is a lowercase Binance symbol ("btcusdt").
type Protocol struct{}

var _ streamworker.Protocol = Protocol{}

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

func tickerStream(queryID string) string {
	return strings.ToLower(queryID) + "@miniTicker"
}

// Subscribe sends a SUBSCRIBE request naming each query id's ticker stream.
func (Protocol) Subscribe(conn streamworker.Conn, queryIDs []string) error {
	if len(queryIDs) == 0 {
		return nil
	}
	streams := make([]string, len(queryIDs))
	for i, id := range queryIDs {
		streams[i] = tickerStream(id)
	}
	return conn.WriteJSON(subscribeRequest{Method: "SUBSCRIBE", Params: streams, ID: time.Now().UnixNano()})
}

// Unsubscribe sends an UNSUBSCRIBE request for each query id's ticker stream.
func (Protocol) Unsubscribe(conn streamworker.Conn, queryIDs []string) error {
	if len(queryIDs) == 0 {
		return nil
	}
	streams := make([]string, len(queryIDs))
	for i, id := range queryIDs {
		streams[i] = tickerStream(id)
	}
	return conn.WriteJSON(subscribeRequest{Method: "UNSUBSCRIBE", Params: streams, ID: time.Now().UnixNano()})
}

// combinedFrame is the envelope Binance's combined-stream endpoint wraps
// every ticker payload in.
type combinedFrame struct {
	Stream string `json:"stream"`
	Data   struct {
		EventType string `json:"e"`
		Symbol    string `json:"s"`
		LastPrice string `json:"c"`
	} `json:"data"`
}

// ParseMessage decodes one combined-stream frame into an asset.Info.
// Subscription ack frames (which carry no "data" field) parse to (nil, nil).
func (Protocol) ParseMessage(data []byte) ([]asset.Info, error) {
	var frame combinedFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("binance: parse message: %w", err)
	}
	if frame.Data.LastPrice == "" {
		return nil, nil
	}
	if frame.Data.EventType != "24hrMiniTicker" {
		return nil, nil
	}

	price, err := decimal.NewFromString(frame.Data.LastPrice)
	if err != nil {
		return nil, fmt.Errorf("binance: parse price %q: %w", frame.Data.LastPrice, err)
	}

	return []asset.Info{{
		ID:        strings.ToLower(frame.Data.Symbol),
		Price:     price,
		Timestamp: time.Now().Unix(),
	}}, nil
}
