package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"polls-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second

	pongWait = 60 * time.Second

	// must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ResultsSource provides the results snapshot sent on connect
type ResultsSource interface {
	Results(ctx context.Context, questionID uint) (*service.Results, error)
}

// Handler serves live results connections
type Handler struct {
	hub     *Hub
	results ResultsSource
}

// NewHandler creates a WebSocket handler
func NewHandler(hub *Hub, results ResultsSource) *Handler {
	return &Handler{hub: hub, results: results}
}

// ServeResults upgrades the request and streams results of the question
func (h *Handler) ServeResults(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "question not found"})
		return
	}
	questionID := uint(id)

	snapshot, err := h.results.Results(c.Request.Context(), questionID)
	if errors.Is(err, service.ErrQuestionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "question not found"})
		return
	}
	if err != nil {
		log.Printf("Failed to load results of question %d: %v", questionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load results"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade to WebSocket: %v", err)
		return
	}

	client := &Client{
		QuestionID: questionID,
		conn:       conn,
		send:       make(chan []byte, 256),
	}

	payload, err := json.Marshal(&Message{Type: MessageSnapshot, QuestionID: questionID, Payload: snapshot})
	if err == nil {
		client.send <- payload
	}

	if !h.hub.RegisterClient(client) {
		conn.Close()
		return
	}

	go h.writePump(client)
	go h.readPump(client)
}

// readPump drains client frames so pongs and close frames are processed
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.hub.UnregisterClient(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Error reading WebSocket message: %v", err)
			}
			return
		}
	}
}

// writePump sends queued messages, one frame each, and keeps the
// connection alive with pings
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := client.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
