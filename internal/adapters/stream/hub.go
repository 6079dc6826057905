// Package stream pushes fused snapshots to websocket clients.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/LdDl/mot-fusion/mot"
	"github.com/LdDl/mot-fusion/pkg/logger"
	"github.com/pkg/errors"
)

// ErrBroadcastFull is returned by Publish when the hub cannot keep up.
var ErrBroadcastFull = errors.New("stream broadcast buffer full")

// ClientGauge receives the number of connected clients.
type ClientGauge interface {
	SetStreamClients(count int)
}

// Hub keeps the set of connected clients and fans snapshots out to them.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}

	mu     sync.RWMutex
	latest []byte

	gauge  ClientGauge
	logger logger.Logger
}

// HubOption configures Hub.
type HubOption func(*Hub)

// WithClientGauge reports the client count after every change.
func WithClientGauge(gauge ClientGauge) HubOption {
	return func(h *Hub) {
		h.gauge = gauge
	}
}

// WithLogger sets hub logger.
func WithLogger(l logger.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHub creates a hub. Call Run to start it.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run serves register, unregister and broadcast events until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info(ctx, "stream hub started")
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			h.logger.Info(ctx, "stream hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			count := len(h.clients)
			latest := h.latest
			h.mu.Unlock()
			h.reportClients(count)
			h.logger.Info(ctx, "stream client connected",
				logger.String("client_id", client.id),
				logger.String("remote_addr", client.remoteAddr),
				logger.Int("clients", count),
			)
			// Late joiners get the last snapshot right away
			if latest != nil {
				select {
				case client.send <- latest:
				default:
				}
			}

		case client := <-h.unregister:
			h.remove(ctx, client)

		case message := <-h.broadcast:
			var dead []*Client
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					dead = append(dead, client)
				}
			}
			h.mu.RUnlock()
			for _, client := range dead {
				h.logger.Warn(ctx, "stream client too slow, dropping", logger.String("client_id", client.id))
				h.remove(ctx, client)
			}
		}
	}
}

func (h *Hub) remove(ctx context.Context, client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	count := len(h.clients)
	h.mu.Unlock()
	h.reportClients(count)
	h.logger.Info(ctx, "stream client disconnected",
		logger.String("client_id", client.id),
		logger.Int("clients", count),
		logger.Duration("connected_for", time.Since(client.connectedAt)),
	)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()
	h.reportClients(0)
}

func (h *Hub) reportClients(count int) {
	if h.gauge != nil {
		h.gauge.SetStreamClients(count)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Name identifies the hub as a snapshot publisher.
func (h *Hub) Name() string {
	return "stream"
}

// Publish queues a fused snapshot for every client. It never blocks.
func (h *Hub) Publish(_ context.Context, output mot.FusedOutput) error {
	payload, err := serializeMessage(Message{
		Type:      MessageSnapshot,
		Timestamp: time.Now().UTC(),
		Data:      output,
	})
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	h.mu.Lock()
	h.latest = payload
	h.mu.Unlock()

	select {
	case h.broadcast <- payload:
		return nil
	default:
		return ErrBroadcastFull
	}
}
