package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"polls-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticResults map[uint]*service.Results

func (s staticResults) Results(_ context.Context, id uint) (*service.Results, error) {
	if r, ok := s[id]; ok {
		return r, nil
	}
	return nil, service.ErrQuestionNotFound
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestHub_BroadcastOnlyToQuestion(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	a := &Client{QuestionID: 1, send: make(chan []byte, 1)}
	b := &Client{QuestionID: 2, send: make(chan []byte, 1)}
	require.True(t, hub.RegisterClient(a))
	require.True(t, hub.RegisterClient(b))
	waitFor(t, func() bool { return hub.TotalClients() == 2 })

	hub.Broadcast(1, &Message{Type: MessageUpdate, QuestionID: 1})

	select {
	case payload := <-a.send:
		var msg Message
		require.NoError(t, json.Unmarshal(payload, &msg))
		assert.Equal(t, MessageUpdate, msg.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no broadcast received")
	}
	assert.Empty(t, b.send)

	hub.UnregisterClient(a)
	waitFor(t, func() bool { return hub.ClientCount(1) == 0 })
	assert.Equal(t, 1, hub.ClientCount(2))
}

func TestHub_DropsSlowClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	slow := &Client{QuestionID: 1, send: make(chan []byte)}
	require.True(t, hub.RegisterClient(slow))
	waitFor(t, func() bool { return hub.ClientCount(1) == 1 })

	hub.Broadcast(1, &Message{Type: MessageUpdate, QuestionID: 1})
	waitFor(t, func() bool { return hub.ClientCount(1) == 0 })

	_, open := <-slow.send
	assert.False(t, open)
}

func TestHub_StopRejectsRegistration(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	hub.Stop()

	assert.False(t, hub.RegisterClient(&Client{QuestionID: 1, send: make(chan []byte, 1)}))
}

func TestServeResults(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	source := staticResults{7: {QuestionID: 7, QuestionText: "Q", TotalVotes: 2}}
	router := gin.New()
	router.GET("/polls/:id/results/ws", NewHandler(hub, source).ServeResults)
	server := httptest.NewServer(router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	t.Run("unknown question", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL+"/polls/99/results/ws", nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("snapshot then updates", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/polls/7/results/ws", nil)
		require.NoError(t, err)
		defer conn.Close()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))

		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, MessageSnapshot, msg.Type)
		assert.Equal(t, uint(7), msg.QuestionID)

		waitFor(t, func() bool { return hub.ClientCount(7) == 1 })
		hub.Broadcast(7, &Message{Type: MessageUpdate, QuestionID: 7, Payload: map[string]int{"total_votes": 3}})

		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, MessageUpdate, msg.Type)
	})
}
