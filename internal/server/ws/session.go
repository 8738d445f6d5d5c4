package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeTimeout bounds every write to the connection.
	writeTimeout = 10 * time.Second

	// pongTimeout is how long a session may go without a pong before the
	// read loop gives up on it.
	pongTimeout = 60 * time.Second

	// pingEvery must be shorter than pongTimeout.
	pingEvery = pongTimeout * 9 / 10

	// maxFrameSize caps incoming subscription frames.
	maxFrameSize = 4096

	// outBufferSize is the per-session outgoing buffer.
	outBufferSize = 256
)

// session is one dashboard WebSocket connection. The read loop mutates the
// channel set; the hub consults it through wants when routing frames.
type session struct {
	hub  *Hub
	conn *websocket.Conn
	out  chan []byte

	mu       sync.RWMutex
	channels map[string]struct{}
}

func newSession(h *Hub, conn *websocket.Conn) *session {
	s := &session{
		hub:      h,
		conn:     conn,
		out:      make(chan []byte, outBufferSize),
		channels: make(map[string]struct{}, len(streamChannels)),
	}
	for _, name := range streamChannels {
		s.channels[name] = struct{}{}
	}
	return s
}

// channelRequest is the frame clients send to adjust their subscriptions:
// {"action":"subscribe","channels":["quotes"]}.
type channelRequest struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

func (s *session) wants(channel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.channels[channel]
	return ok
}

func (s *session) updateChannels(req channelRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch req.Action {
	case "subscribe":
		for _, name := range req.Channels {
			s.channels[name] = struct{}{}
		}
	case "unsubscribe":
		for _, name := range req.Channels {
			delete(s.channels, name)
		}
	}
}

type helloFrame struct {
	Type    string      `json:"type"`
	Payload helloDetail `json:"payload"`
}

type helloDetail struct {
	Mode          string   `json:"mode"`
	WSConnected   bool     `json:"ws_connected"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	Channels      []string `json:"channels"`
}

// greet queues a hello envelope so the dashboard can mark the link healthy
// before the first engine event arrives.
func (s *session) greet(mode string, started time.Time) {
	uptime := int64(time.Since(started).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	payload, err := json.Marshal(helloFrame{
		Type: "hello",
		Payload: helloDetail{
			Mode:          mode,
			WSConnected:   true,
			UptimeSeconds: uptime,
			Channels:      streamChannels,
		},
	})
	if err != nil {
		return
	}

	select {
	case s.out <- payload:
	default:
	}
}

// readLoop consumes client frames until the connection drops. The only
// frames clients send are channel requests; everything else is ignored.
func (s *session) readLoop() {
	defer func() {
		s.hub.drop(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxFrameSize)
	s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}

		var req channelRequest
		if err := json.Unmarshal(data, &req); err == nil && req.Action != "" {
			s.updateChannels(req)
		}
	}
}

// writeLoop pushes hub frames and keepalive pings until the out channel
// closes or a write fails.
func (s *session) writeLoop() {
	keepalive := time.NewTicker(pingEvery)
	defer func() {
		keepalive.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// The hub closed the channel.
				s.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-keepalive.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
