// Package server coordinates client registration, event delivery, and
// connection cleanup for the relay's WebSocket transport via the Hub type.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomrelay/roomrelay/internal/relay"
)

// Hub owns the set of live WebSocket clients and moves their lifecycle
// events through the relay router. It implements relay.Sender: the router
// hands it encoded outbound events addressed by connection id.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	router     *relay.Router
	log        zerolog.Logger
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub ready to manage WebSocket connections. SetRouter must
// be called before Run.
func NewHub(log zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log.With().Str("component", "hub").Logger(),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// SetRouter binds the relay router the hub feeds connection lifecycle and
// inbound frames into. The hub and router reference each other, so the
// router is attached after construction.
func (h *Hub) SetRouter(router *relay.Router) {
	h.router = router
}

// RegisterClient queues a freshly upgraded connection for registration.
func (h *Hub) RegisterClient(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
		_ = client.conn.Close()
	}
}

// Run starts the hub's main event loop, handling client registration,
// unregistration, and shutdown. It should be called in its own goroutine as
// it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn().Msg("received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client.id] = client
			clientCount := len(h.clients)
			h.mutex.Unlock()

			h.router.Connect(client.id)
			h.log.Info().Str("connection", client.id).Str("addr", client.addr).Int("clients", clientCount).Msg("client registered")

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.dropClient(client)
		}
	}
}

// dropClient removes a client from the hub and runs the router's disconnect
// cascade. Called only from the Run goroutine, so the cascade's fan-out to
// the remaining clients cannot deadlock against a handler in flight.
func (h *Hub) dropClient(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client.id]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client.id)
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	// Close the channel after releasing the lock.
	close(client.send)
	h.router.Disconnect(client.id)
	h.log.Info().Str("connection", client.id).Str("addr", client.addr).Int("clients", clientCount).Msg("client unregistered")
}

// Send implements relay.Sender. Delivery is non-blocking: a client whose
// send buffer is full is scheduled for removal rather than ever stalling
// the router.
func (h *Hub) Send(connectionID string, data []byte) {
	h.mutex.RLock()
	client, ok := h.clients[connectionID]
	if !ok || client.closed {
		h.mutex.RUnlock()
		return
	}

	select {
	case client.send <- data:
		h.mutex.RUnlock()
	default:
		h.mutex.RUnlock()
		h.log.Warn().Str("connection", connectionID).Str("addr", client.addr).Msg("send buffer full; dropping client")
		h.scheduleUnregister(client)
	}
}

// scheduleUnregister hands a client to the Run loop for removal. Done off
// the caller's goroutine because Send may run inside a room lock while the
// disconnect cascade needs to take it again.
func (h *Hub) scheduleUnregister(client *Client) {
	go func() {
		select {
		case h.unregister <- client:
		case <-h.ctx.Done():
		}
	}()
}

// ClientCount returns the number of currently registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// shutdownClients closes all active client connections.
func (h *Hub) shutdownClients() {
	h.log.Info().Msg("shutting down all client connections")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.log.Warn().Err(err).Str("addr", client.addr).Msg("error closing client connection")
			}
		}
	}

	h.log.Info().Int("clients", len(clients)).Msg("closed client connections")
}

// Shutdown initiates graceful shutdown of the hub and waits for all client
// goroutines to complete, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info().Msg("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Msg("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn().Msg("hub shutdown timeout reached; some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
