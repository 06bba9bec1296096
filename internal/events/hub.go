// Package events streams committed registry events to websocket subscribers.
package events

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"carbon-scribe/credit-registry/internal/ledger"
	"carbon-scribe/credit-registry/internal/registry"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// Filter selects the events a subscriber receives. Zero values match
// everything.
type Filter struct {
	Registries map[string]bool
	TokenID    ledger.TokenID
}

// Match reports whether ev passes the filter
func (f Filter) Match(ev registry.Event) bool {
	if len(f.Registries) > 0 && !f.Registries[ev.Registry] {
		return false
	}
	if f.TokenID != 0 && ev.TokenID != f.TokenID {
		return false
	}
	return true
}

// Subscriber is one websocket client
type Subscriber struct {
	ID          string
	Filter      Filter
	ConnectedAt time.Time
	RemoteAddr  string

	conn      *websocket.Conn
	send      chan registry.Event
	done      chan struct{}
	closeOnce sync.Once
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// Hub fans events out to subscribers. It implements registry.Publisher.
type Hub struct {
	subscribers *xsync.Map[string, *Subscriber]
	upgrader    websocket.Upgrader
	logger      *zap.Logger
}

// NewHub creates an empty hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subscribers: xsync.NewMap[string, *Subscriber](),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Publish queues ev for every matching subscriber. A subscriber whose buffer
// is full is disconnected rather than allowed to stall the publisher.
func (h *Hub) Publish(ev registry.Event) {
	h.subscribers.Range(func(id string, s *Subscriber) bool {
		if !s.Filter.Match(ev) {
			return true
		}
		select {
		case s.send <- ev:
		case <-s.done:
		default:
			h.logger.Warn("Subscriber too slow, disconnecting", zap.String("subscriber", id))
			h.unregister(s)
		}
		return true
	})
}

// Count returns the number of connected subscribers
func (h *Hub) Count() int {
	return h.subscribers.Size()
}

// Subscribe upgrades the request to a websocket and streams matching events
// until the client goes away
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request, filter Filter) (*Subscriber, error) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	s := &Subscriber{
		ID:          uuid.New().String(),
		Filter:      filter,
		ConnectedAt: time.Now().UTC(),
		RemoteAddr:  r.RemoteAddr,
		conn:        conn,
		send:        make(chan registry.Event, sendBuffer),
		done:        make(chan struct{}),
	}
	h.subscribers.Store(s.ID, s)
	h.logger.Info("Subscriber connected", zap.String("subscriber", s.ID), zap.String("remote", s.RemoteAddr))

	go h.readPump(s)
	go h.writePump(s)
	return s, nil
}

func (h *Hub) unregister(s *Subscriber) {
	if _, ok := h.subscribers.LoadAndDelete(s.ID); ok {
		h.logger.Info("Subscriber disconnected", zap.String("subscriber", s.ID))
	}
	s.close()
}

// readPump only services control frames; clients never send events.
func (h *Hub) readPump(s *Subscriber) {
	defer func() {
		h.unregister(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("Subscriber read failed", zap.String("subscriber", s.ID), zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(s *Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case ev := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(ev); err != nil {
				h.unregister(s)
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(s)
				return
			}
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Close disconnects every subscriber
func (h *Hub) Close() {
	h.subscribers.Range(func(_ string, s *Subscriber) bool {
		h.unregister(s)
		return true
	})
}

// ParseFilter reads a filter from the registry and token_id query values.
// registry may be a comma separated list.
func ParseFilter(registries, tokenID string) (Filter, error) {
	var f Filter
	for _, name := range strings.Split(registries, ",") {
		if name = strings.TrimSpace(name); name != "" {
			if f.Registries == nil {
				f.Registries = make(map[string]bool)
			}
			f.Registries[name] = true
		}
	}
	if tokenID != "" {
		id, err := ledger.ParseTokenID(tokenID)
		if err != nil {
			return Filter{}, err
		}
		f.TokenID = id
	}
	return f, nil
}
