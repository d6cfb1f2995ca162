package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/5usu/depthcam/internal/logger"

	"github.com/gorilla/websocket"
)

const (
	broadcastBuffer = 4
	writeTimeout    = 2 * time.Second
)

// message is one queue entry. A frame carries its JSON header so both
// parts are queued or dropped together.
type message struct {
	kind   int
	data   []byte
	header []byte
}

// HubService fans messages out to every connected viewer. Broadcast never
// blocks: when the queue is full the message is dropped.
type HubService struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan message
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	dropped    atomic.Uint64
	logger     *logger.Logger
}

func NewHubService(logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan message, broadcastBuffer),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves the hub until ctx is cancelled, then closes every client.
func (h *HubService) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Viewer connected. Total: %d", total)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Viewer disconnected. Total: %d", total)

		case msg := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				if err := send(client, msg); err != nil {
					h.logger.Error("Error sending message: %v", err)
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Register adds a viewer. After the hub has stopped the connection is
// closed instead.
func (h *HubService) Register(client *websocket.Conn) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

func (h *HubService) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func send(client *websocket.Conn, msg message) error {
	client.SetWriteDeadline(time.Now().Add(writeTimeout))
	if msg.header != nil {
		if err := client.WriteMessage(websocket.TextMessage, msg.header); err != nil {
			return err
		}
	}
	return client.WriteMessage(msg.kind, msg.data)
}

// BroadcastFrame queues a frame header and its encoded image as one entry,
// so a viewer never receives one without the other.
func (h *HubService) BroadcastFrame(header, image []byte) bool {
	return h.enqueue(message{kind: websocket.BinaryMessage, data: image, header: header})
}

// BroadcastText queues a text (JSON) message for all viewers.
func (h *HubService) BroadcastText(data []byte) bool {
	return h.enqueue(message{kind: websocket.TextMessage, data: data})
}

func (h *HubService) enqueue(msg message) bool {
	select {
	case h.broadcast <- msg:
		return true
	default:
		h.dropped.Add(1)
		return false
	}
}

func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Dropped reports how many messages were discarded because the queue was full.
func (h *HubService) Dropped() uint64 {
	return h.dropped.Load()
}
