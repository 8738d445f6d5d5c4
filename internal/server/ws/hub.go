// Package ws bridges the Redis signal bus to dashboard WebSocket clients.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

// streamChannels are the bus channels mirrored to dashboard clients. New
// sessions start subscribed to all of them.
var streamChannels = []string{
	"quotes",
	"signals",
	"positions",
	"status",
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced by the CORS middleware.
		return true
	},
}

// frame is one bus message tagged with its source channel so routing can
// honor per-session subscriptions.
type frame struct {
	channel string
	payload []byte
}

// Config captures metadata for the hello frame pushed on connect.
type Config struct {
	Mode      string
	StartedAt time.Time
}

// Hub fans bus messages out to connected sessions. The session set lives
// inside Run, so joins, leaves, and frame routing all happen on a single
// goroutine and need no locking.
type Hub struct {
	bus     domain.SignalBus
	logger  *slog.Logger
	mode    string
	started time.Time

	join   chan *session
	leave  chan *session
	frames chan frame
	done   chan struct{}
}

// NewHub creates a hub over the given signal bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	started := cfg.StartedAt
	if started.IsZero() {
		started = time.Now().UTC()
	}

	return &Hub{
		bus:     bus,
		logger:  logger.With(slog.String("component", "ws_hub")),
		mode:    mode,
		started: started,
		join:    make(chan *session),
		leave:   make(chan *session),
		frames:  make(chan frame, 256),
		done:    make(chan struct{}),
	}
}

// Run owns the session set and routes relayed bus frames to every session
// subscribed to their channel. It exits when the context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for _, name := range streamChannels {
		go h.relay(ctx, name)
	}

	sessions := make(map[*session]struct{})
	for {
		select {
		case <-ctx.Done():
			for s := range sessions {
				close(s.out)
			}
			return ctx.Err()

		case s := <-h.join:
			sessions[s] = struct{}{}
			h.logger.Info("client connected", slog.Int("total_clients", len(sessions)))

		case s := <-h.leave:
			if _, ok := sessions[s]; ok {
				delete(sessions, s)
				close(s.out)
			}
			h.logger.Info("client disconnected", slog.Int("total_clients", len(sessions)))

		case f := <-h.frames:
			for s := range sessions {
				if !s.wants(f.channel) {
					continue
				}
				select {
				case s.out <- f.payload:
				default:
					// Full buffer: drop the frame, not the session.
					h.logger.Warn("dropping frame for slow client",
						slog.String("channel", f.channel))
				}
			}
		}
	}
}

// relay forwards one bus channel into the routing loop.
func (h *Hub) relay(ctx context.Context, channel string) {
	src, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("bus subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}

	h.logger.Info("subscribed to channel", slog.String("channel", channel))

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-src:
			if !ok {
				h.logger.Warn("channel subscription closed", slog.String("channel", channel))
				return
			}
			select {
			case h.frames <- frame{channel: channel, payload: payload}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HandleWS upgrades the request and hands the connection to the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	s := newSession(h, conn)
	select {
	case h.join <- s:
	case <-h.done:
		conn.Close()
		return
	}

	s.greet(h.mode, h.started)
	go s.writeLoop()
	go s.readLoop()
}

// drop hands a session back for removal without blocking past shutdown.
func (h *Hub) drop(s *session) {
	select {
	case h.leave <- s:
	case <-h.done:
	}
}
