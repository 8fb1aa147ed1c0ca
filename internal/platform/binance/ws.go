package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

// DefaultStreamURL is the raw stream endpoint of the all-market ticker.
const DefaultStreamURL = "wss://stream.binance.com:9443/ws/!ticker@arr"

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next message from the peer.
	// The all-market stream pushes every second, so silence this long means
	// the connection is dead.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// TickersHandler is called with every batch of tickers pushed by the stream.
type TickersHandler func([]domain.Ticker)

// StreamClient is a websocket client for the all-market 24h ticker stream.
// It does not reconnect on its own: Done is closed when the read loop ends
// and callers dial a fresh client.
type StreamClient struct {
	streamURL string
	conn      *websocket.Conn

	mu     sync.Mutex
	closed bool

	handlers  []TickersHandler
	handlerMu sync.RWMutex

	done chan struct{}
	err  error
}

// NewStreamClient creates a client for streamURL, e.g. DefaultStreamURL.
func NewStreamClient(streamURL string) *StreamClient {
	if streamURL == "" {
		streamURL = DefaultStreamURL
	}
	return &StreamClient{
		streamURL: streamURL,
		done:      make(chan struct{}),
	}
}

// OnTickers registers a handler for ticker batches.
func (s *StreamClient) OnTickers(handler TickersHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Connect dials the stream and starts the read and ping loops.
func (s *StreamClient) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("binance/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.streamURL, nil)
	if err != nil {
		return fmt.Errorf("binance/ws: connect: %w", err)
	}
	s.conn = conn

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go s.readLoop()
	go s.pingLoop()

	return nil
}

// Done is closed when the connection ends for any reason.
func (s *StreamClient) Done() <-chan struct{} { return s.done }

// Err returns the error that ended the read loop, if any.
func (s *StreamClient) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close shuts down the connection.
func (s *StreamClient) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.conn != nil {
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		return s.conn.Close()
	}
	close(s.done)
	return nil
}

func (s *StreamClient) readLoop() {
	defer close(s.done)

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			if !s.closed {
				s.err = fmt.Errorf("binance/ws: read: %w: %v", domain.ErrWSDisconnect, err)
			}
			s.mu.Unlock()
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.handleMessage(message)
	}
}

func (s *StreamClient) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// handleMessage decodes a ticker array and dispatches it. Combined-stream
// envelopes ({"stream":..., "data":[...]}) are unwrapped. Unparseable
// messages are dropped.
func (s *StreamClient) handleMessage(raw []byte) {
	payload := raw
	if trimmed := strings.TrimSpace(string(raw)); strings.HasPrefix(trimmed, "{") {
		var envelope struct {
			Stream string          `json:"stream"`
			Data   json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.Data) == 0 {
			return
		}
		payload = envelope.Data
	}

	var rows []WSTicker
	if err := json.Unmarshal(payload, &rows); err != nil {
		return
	}
	tickers := make([]domain.Ticker, 0, len(rows))
	for i := range rows {
		tickers = append(tickers, rows[i].ToDomainTicker())
	}

	s.handlerMu.RLock()
	handlers := s.handlers
	s.handlerMu.RUnlock()

	for _, h := range handlers {
		h(tickers)
	}
}
