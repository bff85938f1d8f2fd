package websocket

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// Message types pushed to clients
const (
	MessageSnapshot = "RESULTS_SNAPSHOT"
	MessageUpdate   = "RESULTS_UPDATE"
)

// Message is the JSON frame sent to clients
type Message struct {
	Type       string      `json:"type"`
	QuestionID uint        `json:"question_id"`
	Payload    interface{} `json:"payload"`
}

// Client is one WebSocket connection watching a question
type Client struct {
	QuestionID uint
	conn       *websocket.Conn
	send       chan []byte
}

type broadcast struct {
	questionID uint
	payload    []byte
}

// Hub tracks clients per question and fans out messages to them. All map
// access happens on the Run goroutine.
type Hub struct {
	clients    map[uint]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcast
	done       chan struct{}
	stopOnce   sync.Once

	mu     sync.RWMutex
	counts map[uint]int
}

// NewHub creates a hub; start it with Run
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uint]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcast, 256),
		done:       make(chan struct{}),
		counts:     make(map[uint]int),
	}
}

// Run processes registrations and broadcasts until Stop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			if _, ok := h.clients[client.QuestionID]; !ok {
				h.clients[client.QuestionID] = make(map[*Client]bool)
			}
			h.clients[client.QuestionID][client] = true
			h.setCount(client.QuestionID)

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			for client := range h.clients[msg.questionID] {
				select {
				case client.send <- msg.payload:
				default:
					// slow client
					h.remove(client)
				}
			}

		case <-h.done:
			for _, clients := range h.clients {
				for client := range clients {
					close(client.send)
				}
			}
			h.clients = make(map[uint]map[*Client]bool)
			h.mu.Lock()
			h.counts = make(map[uint]int)
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.QuestionID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, client.QuestionID)
	}
	h.setCount(client.QuestionID)
}

func (h *Hub) setCount(questionID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n := len(h.clients[questionID]); n > 0 {
		h.counts[questionID] = n
	} else {
		delete(h.counts, questionID)
	}
}

// Stop closes every client and ends Run
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// ClientCount returns the number of clients watching the question
func (h *Hub) ClientCount(questionID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.counts[questionID]
}

// TotalClients returns the number of connected clients
func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, n := range h.counts {
		total += n
	}
	return total
}

// Broadcast sends msg to every client of the question
func (h *Hub) Broadcast(questionID uint, msg *Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Error encoding WebSocket message: %v", err)
		return
	}

	select {
	case h.broadcast <- broadcast{questionID: questionID, payload: payload}:
	case <-h.done:
	}
}

// RegisterClient adds the client to the hub
func (h *Hub) RegisterClient(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// UnregisterClient removes the client from the hub
func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
