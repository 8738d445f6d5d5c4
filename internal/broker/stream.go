package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/optionbot/internal/crypto"
	"github.com/alanyoungcy/optionbot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// QuoteHandler is called for every live quote received on the "quotes"
// channel.
type QuoteHandler func(domain.Quote)

// SettlementHandler is called for every settlement push on the
// "settlements" channel. Delivery is at least once; downstream must
// deduplicate.
type SettlementHandler func(domain.SettlementEvent)

// DisconnectHandler is called once per connection loss, before the stream
// starts its reconnect backoff.
type DisconnectHandler func(err error)

// Stream is the websocket client for the platform's real-time feed. It
// manages the connection lifecycle, authentication, subscriptions and
// dispatches messages to registered handlers.
type Stream struct {
	wsURL string
	auth  *crypto.HMACAuth
	conn  *websocket.Conn

	mu     sync.RWMutex
	closed bool

	// Subscriptions to restore on reconnect.
	subscriptions []wsCommand

	quoteHandlers      []QuoteHandler
	settlementHandlers []SettlementHandler
	disconnectHandlers []DisconnectHandler
	handlerMu          sync.RWMutex

	logger *slog.Logger

	// done is closed when the stream is shut down.
	done chan struct{}
}

// NewStream creates a websocket client for the given endpoint, e.g.
// "wss://stream.example-options.com/ws".
func NewStream(wsURL string, auth *crypto.HMACAuth, logger *slog.Logger) *Stream {
	return &Stream{
		wsURL:  wsURL,
		auth:   auth,
		logger: logger.With(slog.String("component", "broker_stream")),
		done:   make(chan struct{}),
	}
}

// Connect dials the platform, authenticates, joins the account-scoped
// settlements channel and restores any quote subscriptions from before a
// reconnect.
func (s *Stream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("broker/stream: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("broker/stream: connect: %v: %w", err, domain.ErrConnectivity)
	}

	s.conn = conn

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if err := s.sendCommand(s.authCommand()); err != nil {
		s.conn.Close()
		s.conn = nil
		return fmt.Errorf("broker/stream: auth: %w", err)
	}

	// Settlements are account-scoped and always on.
	if err := s.sendCommand(wsCommand{Type: "subscribe", Channel: "settlements"}); err != nil {
		s.conn.Close()
		s.conn = nil
		return fmt.Errorf("broker/stream: subscribe settlements: %w", err)
	}

	go s.readLoop()
	go s.pingLoop()

	for _, cmd := range s.subscriptions {
		if err := s.sendCommand(cmd); err != nil {
			return fmt.Errorf("broker/stream: restore subscription: %w", err)
		}
	}

	s.logger.Info("stream connected", slog.String("url", s.wsURL))
	return nil
}

// authCommand signs the handshake the same way the REST client signs
// requests, so one credential pair covers both transports.
func (s *Stream) authCommand() wsCommand {
	headers := s.auth.Headers("GET", "/ws", "")
	return wsCommand{
		Type:      "auth",
		APIKey:    headers["X-Api-Key"],
		Timestamp: headers["X-Timestamp"],
		Signature: headers["X-Signature"],
	}
}

// Subscribe joins the quotes channel for the given asset IDs.
func (s *Stream) Subscribe(ctx context.Context, assetIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("broker/stream: not connected")
	}

	cmd := wsCommand{
		Type:    "subscribe",
		Channel: "quotes",
		Assets:  assetIDs,
	}
	if err := s.sendCommand(cmd); err != nil {
		return fmt.Errorf("broker/stream: subscribe quotes: %w", err)
	}

	// Track subscription for reconnection.
	s.subscriptions = append(s.subscriptions, cmd)
	return nil
}

// Unsubscribe leaves the quotes channel for the given asset IDs.
func (s *Stream) Unsubscribe(ctx context.Context, assetIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("broker/stream: not connected")
	}

	cmd := wsCommand{
		Type:    "unsubscribe",
		Channel: "quotes",
		Assets:  assetIDs,
	}
	if err := s.sendCommand(cmd); err != nil {
		return fmt.Errorf("broker/stream: unsubscribe quotes: %w", err)
	}

	// Drop the assets from the tracked subscriptions.
	assetSet := make(map[string]struct{}, len(assetIDs))
	for _, a := range assetIDs {
		assetSet[a] = struct{}{}
	}

	filtered := s.subscriptions[:0]
	for _, sub := range s.subscriptions {
		if sub.Channel != "quotes" {
			filtered = append(filtered, sub)
			continue
		}
		remaining := make([]string, 0, len(sub.Assets))
		for _, a := range sub.Assets {
			if _, found := assetSet[a]; !found {
				remaining = append(remaining, a)
			}
		}
		if len(remaining) > 0 {
			sub.Assets = remaining
			filtered = append(filtered, sub)
		}
	}
	s.subscriptions = filtered
	return nil
}

// Close shuts down the connection and stops the loops.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	close(s.done)

	if s.conn != nil {
		_ = s.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return s.conn.Close()
	}
	return nil
}

// OnQuote registers a live quote handler.
func (s *Stream) OnQuote(handler QuoteHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.quoteHandlers = append(s.quoteHandlers, handler)
}

// OnSettlement registers a settlement handler.
func (s *Stream) OnSettlement(handler SettlementHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.settlementHandlers = append(s.settlementHandlers, handler)
}

// OnDisconnect registers a connection-loss handler.
func (s *Stream) OnDisconnect(handler DisconnectHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.disconnectHandlers = append(s.disconnectHandlers, handler)
}

// sendCommand sends a JSON command to the websocket. Caller must hold s.mu.
func (s *Stream) sendCommand(cmd wsCommand) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop continuously reads messages and dispatches them to handlers. On
// disconnect it notifies the disconnect handlers and hands off to the
// reconnect backoff.
func (s *Stream) readLoop() {
	defer func() {
		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}

			s.logger.Warn("stream disconnected", slog.String("error", err.Error()))
			s.handlerMu.RLock()
			handlers := s.disconnectHandlers
			s.handlerMu.RUnlock()
			for _, h := range handlers {
				h(fmt.Errorf("broker/stream: %v: %w", err, domain.ErrWSDisconnect))
			}

			s.reconnect()
			return // readLoop is restarted by reconnect -> Connect
		}

		s.handleMessage(message)
	}
}

// pingLoop sends periodic pings to keep the connection alive.
func (s *Stream) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()

			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses a raw frame and routes it by envelope type.
func (s *Stream) handleMessage(raw []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return // Silently drop unparseable messages.
	}

	switch envelope.Type {
	case "quote":
		var q quotePayload
		if err := json.Unmarshal(raw, &q); err != nil {
			return
		}

		s.handlerMu.RLock()
		handlers := s.quoteHandlers
		s.handlerMu.RUnlock()

		for _, h := range handlers {
			h(q.toDomain())
		}

	case "settlement":
		var p settlementPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return
		}

		s.handlerMu.RLock()
		handlers := s.settlementHandlers
		s.handlerMu.RUnlock()

		for _, h := range handlers {
			h(p.toDomain())
		}
	}
}

// reconnect re-establishes the connection with exponential backoff. It
// blocks until successful or the stream is closed.
func (s *Stream) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-s.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := s.Connect(ctx)
		cancel()

		if err == nil {
			return
		}
		s.logger.Warn("stream reconnect failed",
			slog.String("error", err.Error()),
			slog.Duration("next_delay", delay),
		)

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
