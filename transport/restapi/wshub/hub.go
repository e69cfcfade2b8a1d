// Package wshub streams campaign ledger events to websocket subscribers.
package wshub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yusufsyaifudin/bulkmail/internal/svc/campaignsvc"
	"github.com/yusufsyaifudin/bulkmail/pkg/ledger"
	"github.com/yusufsyaifudin/bulkmail/pkg/logger"
)

const (
	DefaultBuffer = 256
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = pongWait * 9 / 10
)

// Message is what a subscriber receives, one per ledger change.
type Message struct {
	Type string  `json:"type"`
	Data Payload `json:"data"`
}

type Payload struct {
	CampaignID string         `json:"campaign_id"`
	Entry      *ledger.Entry  `json:"entry,omitempty"`
	Summary    ledger.Summary `json:"summary"`
	Progress   float64        `json:"progress"`
}

type Hub struct {
	upgrader  websocket.Upgrader
	broadcast chan campaignsvc.Event

	mu      sync.Mutex
	clients map[string]map[*websocket.Conn]struct{}

	closeOnce sync.Once
	done      chan struct{}
}

var _ campaignsvc.Publisher = (*Hub)(nil)

// New starts the broadcast loop. buffer bounds events waiting to be written, extra events are dropped.
func New(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		broadcast: make(chan campaignsvc.Event, buffer),
		clients:   make(map[string]map[*websocket.Conn]struct{}),
		done:      make(chan struct{}),
	}

	go h.handleBroadcasts()
	return h
}

// Publish never blocks.
func (h *Hub) Publish(ctx context.Context, event campaignsvc.Event) {
	select {
	case <-h.done:
		return
	default:
	}

	select {
	case h.broadcast <- event:
	default:
		logger.Warn(ctx, "websocket broadcast buffer full, event dropped",
			logger.KV("campaign_id", event.CampaignID),
			logger.KV("type", event.Type),
		)
	}
}

// Serve upgrades the request and streams events of campaignID until the client goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, campaignID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	h.add(campaignID, conn)
	defer h.remove(campaignID, conn)

	stopPing := make(chan struct{})
	defer close(stopPing)
	go h.ping(conn, stopPing)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// subscribers only listen, reading is needed to process control frames
	for {
		if _, _, err = conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug(r.Context(), "websocket closed", logger.KV("error", err))
			}

			return nil
		}
	}
}

// Subscribers returns the number of connections listening to campaignID.
func (h *Hub) Subscribers(campaignID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[campaignID])
}

// Close stops the broadcast loop and disconnects every subscriber.
func (h *Hub) Close() error {
	h.closeOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		defer h.mu.Unlock()

		for id, conns := range h.clients {
			for conn := range conns {
				_ = conn.Close()
			}

			delete(h.clients, id)
		}
	})

	return nil
}

func (h *Hub) add(campaignID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[campaignID] == nil {
		h.clients[campaignID] = make(map[*websocket.Conn]struct{})
	}

	h.clients[campaignID][conn] = struct{}{}
}

func (h *Hub) remove(campaignID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.clients[campaignID]
	if _, ok := conns[conn]; !ok {
		return
	}

	delete(conns, conn)
	if len(conns) == 0 {
		delete(h.clients, campaignID)
	}

	_ = conn.Close()
}

func (h *Hub) ping(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			h.mu.Unlock()
			if err != nil {
				return
			}

		case <-stop:
			return
		case <-h.done:
			return
		}
	}
}

func (h *Hub) handleBroadcasts() {
	for {
		select {
		case ev := <-h.broadcast:
			h.write(ev)
		case <-h.done:
			return
		}
	}
}

func (h *Hub) write(ev campaignsvc.Event) {
	msg := Message{
		Type: string(ev.Type),
		Data: Payload{
			CampaignID: ev.CampaignID,
			Entry:      ev.Entry,
			Summary:    ev.Summary,
			Progress:   ev.Progress,
		},
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients[ev.CampaignID] {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			delete(h.clients[ev.CampaignID], conn)
			_ = conn.Close()
		}
	}

	if len(h.clients[ev.CampaignID]) == 0 {
		delete(h.clients, ev.CampaignID)
	}
}
