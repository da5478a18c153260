package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/Baaaki/deepmatch-realtime/internal/models"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wireFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (s *HandlerIntegrationTestSuite) startServer() *httptest.Server {
	server := httptest.NewServer(s.engine)
	s.T().Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server, tok string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws?token=" + tok
}

func (s *HandlerIntegrationTestSuite) dial(server *httptest.Server, userID uint) *websocket.Conn {
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(server, token(s.T(), userID, false)), nil)
	require.NoError(s.T(), err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	s.T().Cleanup(func() { conn.Close() })
	return conn
}

func (s *HandlerIntegrationTestSuite) write(conn *websocket.Conn, eventType string, data any) {
	frame := map[string]any{"type": eventType}
	if data != nil {
		frame["data"] = data
	}
	require.NoError(s.T(), conn.WriteJSON(frame))
}

// readUntil skips frames until one of the given type arrives
func (s *HandlerIntegrationTestSuite) readUntil(conn *websocket.Conn, eventType string) wireFrame {
	deadline := time.Now().Add(3 * time.Second)
	require.NoError(s.T(), conn.SetReadDeadline(deadline))
	for {
		var frame wireFrame
		err := conn.ReadJSON(&frame)
		require.NoError(s.T(), err, "waiting for %s", eventType)
		if frame.Type == eventType {
			return frame
		}
	}
}

func (s *HandlerIntegrationTestSuite) TestWebSocket_RejectsMissingToken() {
	server := s.startServer()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(s.T(), err)
	require.NotNil(s.T(), resp)
	defer resp.Body.Close()
	assert.Equal(s.T(), http.StatusUnauthorized, resp.StatusCode)
}

func (s *HandlerIntegrationTestSuite) TestWebSocket_RejectsBannedUser() {
	require.NoError(s.T(), s.testDB.DB.Create(&models.User{ID: carol, IsBanned: true}).Error)
	server := s.startServer()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, token(s.T(), carol, false)), nil)
	require.Error(s.T(), err)
	require.NotNil(s.T(), resp)
	defer resp.Body.Close()
	assert.Equal(s.T(), http.StatusForbidden, resp.StatusCode)
	assert.Zero(s.T(), s.router.Registry().SessionCount())
}

func (s *HandlerIntegrationTestSuite) TestWebSocket_PresenceAndMessaging() {
	server := s.startServer()

	aliceConn := s.dial(server, alice)
	bobConn := s.dial(server, bob)

	var status struct {
		UserID   uint `json:"userId"`
		IsOnline bool `json:"isOnline"`
	}
	frame := s.readUntil(aliceConn, "user_status")
	require.NoError(s.T(), json.Unmarshal(frame.Data, &status))
	assert.Equal(s.T(), bob, status.UserID)
	assert.True(s.T(), status.IsOnline)

	s.write(bobConn, "send_message", map[string]any{
		"receiver_id": alice,
		"content":     "hello over the wire",
		"temp_id":     "tmp-1",
	})

	var incoming struct {
		ID      uint   `json:"id"`
		MatchID uint   `json:"match_id"`
		Content string `json:"content"`
		TempID  string `json:"temp_id"`
	}
	frame = s.readUntil(aliceConn, "new_message")
	require.NoError(s.T(), json.Unmarshal(frame.Data, &incoming))
	assert.Equal(s.T(), "hello over the wire", incoming.Content)
	assert.Equal(s.T(), s.conv.ID, incoming.MatchID)
	assert.Equal(s.T(), "tmp-1", incoming.TempID)

	var ack struct {
		Event     string `json:"event"`
		MessageID uint   `json:"messageId"`
		TempID    string `json:"temp_id"`
	}
	frame = s.readUntil(bobConn, "ack")
	require.NoError(s.T(), json.Unmarshal(frame.Data, &ack))
	assert.Equal(s.T(), "send_message", ack.Event)
	assert.Equal(s.T(), incoming.ID, ack.MessageID)
	assert.Equal(s.T(), "tmp-1", ack.TempID)

	// history fetched over the socket marks the message delivered
	s.write(aliceConn, "fetch_messages", map[string]any{"match_id": s.conv.ID})
	var history struct {
		MatchID  uint             `json:"matchId"`
		Messages []models.Message `json:"messages"`
	}
	frame = s.readUntil(aliceConn, "messages")
	require.NoError(s.T(), json.Unmarshal(frame.Data, &history))
	require.Len(s.T(), history.Messages, 1)
	assert.True(s.T(), history.Messages[0].IsDelivered)

	var delivered struct {
		MessageID uint `json:"messageId"`
	}
	frame = s.readUntil(bobConn, "message_delivered")
	require.NoError(s.T(), json.Unmarshal(frame.Data, &delivered))
	assert.Equal(s.T(), incoming.ID, delivered.MessageID)

	// bob leaving flips him offline for alice
	bobConn.Close()
	frame = s.readUntil(aliceConn, "user_status")
	require.NoError(s.T(), json.Unmarshal(frame.Data, &status))
	assert.Equal(s.T(), bob, status.UserID)
	assert.False(s.T(), status.IsOnline)
}

func (s *HandlerIntegrationTestSuite) TestWebSocket_BadFramesKeepSocketOpen() {
	server := s.startServer()
	conn := s.dial(server, alice)

	require.NoError(s.T(), conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	var errEvent struct {
		Code string `json:"code"`
	}
	frame := s.readUntil(conn, "error")
	require.NoError(s.T(), json.Unmarshal(frame.Data, &errEvent))
	assert.Equal(s.T(), "validation_error", errEvent.Code)

	s.write(conn, "teleport", nil)
	frame = s.readUntil(conn, "error")
	require.NoError(s.T(), json.Unmarshal(frame.Data, &errEvent))
	assert.Equal(s.T(), "validation_error", errEvent.Code)

	s.write(conn, "get_online_users", nil)
	var online struct {
		Users []uint `json:"users"`
	}
	frame = s.readUntil(conn, "online_users")
	require.NoError(s.T(), json.Unmarshal(frame.Data, &online))
	assert.Equal(s.T(), []uint{alice}, online.Users)
}

func (s *HandlerIntegrationTestSuite) TestWebSocket_DisconnectEventClosesSession() {
	server := s.startServer()
	conn := s.dial(server, alice)

	assert.Eventually(s.T(), func() bool {
		return s.router.Registry().IsOnline(alice)
	}, time.Second, 10*time.Millisecond)

	s.write(conn, "disconnect", nil)

	assert.Eventually(s.T(), func() bool {
		return !s.router.Registry().IsOnline(alice)
	}, 2*time.Second, 10*time.Millisecond)
}

func (s *HandlerIntegrationTestSuite) TestWebSocket_BanClosesLiveSession() {
	server := s.startServer()
	conn := s.dial(server, bob)

	w := s.doAs(http.MethodPost, "/api/admin/users/"+itoa(bob)+"/ban", admin, true, map[string]any{"reason": "abuse"})
	require.Equal(s.T(), http.StatusOK, w.Code)

	require.NoError(s.T(), conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			assert.True(s.T(), websocket.IsCloseError(err, websocket.CloseNormalClosure), err.Error())
			break
		}
	}
}
