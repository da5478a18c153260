package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Baaaki/deepmatch-realtime/internal/handler"
	"github.com/Baaaki/deepmatch-realtime/internal/models"
	"github.com/Baaaki/deepmatch-realtime/internal/realtime"
	"github.com/Baaaki/deepmatch-realtime/internal/repository"
	"github.com/Baaaki/deepmatch-realtime/internal/service"
	"github.com/Baaaki/deepmatch-realtime/internal/testutil"
	"github.com/Baaaki/deepmatch-realtime/internal/utils"
	"github.com/Baaaki/deepmatch-realtime/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const (
	testSecret      = "test-secret-key"
	alice      uint = 1
	bob        uint = 2
	carol      uint = 3
	admin      uint = 99
)

type HandlerIntegrationTestSuite struct {
	suite.Suite
	testDB *testutil.TestDatabase
	router *realtime.Router
	ws     *handler.WebSocketHandler
	engine *gin.Engine
	conv   *models.Conversation
}

func (s *HandlerIntegrationTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	logger.Init(false)
	s.testDB = testutil.SetupTestDatabase(s.T())
}

func (s *HandlerIntegrationTestSuite) TearDownSuite() {
	s.testDB.Teardown(s.T())
}

func (s *HandlerIntegrationTestSuite) SetupTest() {
	testutil.CleanDatabase(s.T(), s.testDB.DB)

	db := s.testDB.DB
	messageRepo := repository.NewMessageRepository(db)
	convRepo := repository.NewConversationRepository(db)
	blockRepo := repository.NewBlockRepository(db)
	userRepo := repository.NewUserRepository(db)
	notifRepo := repository.NewNotificationRepository(db)

	chat := service.NewChatService(db, messageRepo, convRepo, blockRepo, userRepo, service.ChatConfig{})
	matches := service.NewMatchService(db, convRepo, blockRepo, userRepo, notifRepo)
	presence := service.NewPresenceService(userRepo, nil)

	promReg := prometheus.NewRegistry()
	s.router = realtime.NewRouter(chat, matches, presence, promReg)
	matches.SetEvents(s.router)

	s.ws = handler.NewWebSocketHandler(s.router, handler.WebSocketConfig{
		AllowedOrigins:  []string{"*"},
		EventsPerSecond: 100,
		EventBurst:      100,
	})

	s.engine = gin.New()
	handler.Routes{
		JWTSecret: testSecret,
		Metrics:   promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
		WebSocket: s.ws,
		Messages:  handler.NewMessageHandler(s.router),
		Matches:   handler.NewMatchHandler(matches),
		Admin:     handler.NewAdminHandler(matches),
	}.Register(s.engine)

	s.conv = testutil.CreateTestMatch(s.T(), db, alice, bob)
}

func (s *HandlerIntegrationTestSuite) TearDownTest() {
	// sessions from websocket tests unwind asynchronously
	s.ws.CloseAll()
	assert.Eventually(s.T(), func() bool {
		return s.router.Registry().SessionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func token(t *testing.T, userID uint, isAdmin bool) string {
	tok, err := utils.GenerateToken(userID, isAdmin, testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *HandlerIntegrationTestSuite) do(method, path string, userID uint, body any) *httptest.ResponseRecorder {
	return s.doAs(method, path, userID, false, body)
}

func (s *HandlerIntegrationTestSuite) doAs(method, path string, userID uint, isAdmin bool, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.T(), err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+token(s.T(), userID, isAdmin))
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s *HandlerIntegrationTestSuite) sendREST(from, to uint, content string) uint {
	w := s.do(http.MethodPost, "/api/messages", from, map[string]any{
		"receiver_id": to,
		"content":     content,
	})
	require.Equal(s.T(), http.StatusCreated, w.Code, w.Body.String())
	msg := decode(s.T(), w)["message"].(map[string]any)
	return uint(msg["id"].(float64))
}

func (s *HandlerIntegrationTestSuite) TestHealthIsPublic() {
	w := s.do(http.MethodGet, "/api/health", 0, nil)
	assert.Equal(s.T(), http.StatusOK, w.Code)
	assert.Equal(s.T(), "healthy", decode(s.T(), w)["status"])
}

func (s *HandlerIntegrationTestSuite) TestMissingTokenIsUnauthorized() {
	w := s.do(http.MethodGet, "/api/notifications", 0, nil)
	assert.Equal(s.T(), http.StatusUnauthorized, w.Code)
	assert.Equal(s.T(), "unauthorized", decode(s.T(), w)["code"])
}

func (s *HandlerIntegrationTestSuite) TestInvalidTokenIsUnauthorized() {
	req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(s.T(), http.StatusUnauthorized, w.Code)
}

func (s *HandlerIntegrationTestSuite) TestSendAndFetchMessages() {
	s.sendREST(alice, bob, "hey")
	s.sendREST(bob, alice, "hi!")

	w := s.do(http.MethodGet, "/api/messages/"+itoa(s.conv.ID), bob, nil)
	require.Equal(s.T(), http.StatusOK, w.Code)

	body := decode(s.T(), w)
	assert.EqualValues(s.T(), 2, body["count"])
	messages := body["messages"].([]any)
	first := messages[0].(map[string]any)
	assert.Equal(s.T(), "hey", first["content"])
	assert.Equal(s.T(), true, first["is_delivered"])
}

func (s *HandlerIntegrationTestSuite) TestSendWithoutMatchIsRejected() {
	w := s.do(http.MethodPost, "/api/messages", alice, map[string]any{
		"receiver_id": carol,
		"content":     "hello?",
	})
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
	assert.Equal(s.T(), "not_matched", decode(s.T(), w)["code"])
}

func (s *HandlerIntegrationTestSuite) TestSendValidation() {
	w := s.do(http.MethodPost, "/api/messages", alice, map[string]any{
		"receiver_id": bob,
		"content":     "   ",
	})
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
	assert.Equal(s.T(), "validation_error", decode(s.T(), w)["code"])
}

func (s *HandlerIntegrationTestSuite) TestFetchForeignConversationIsNotFound() {
	w := s.do(http.MethodGet, "/api/messages/"+itoa(s.conv.ID), carol, nil)
	assert.Equal(s.T(), http.StatusNotFound, w.Code)
	assert.Equal(s.T(), "not_found", decode(s.T(), w)["code"])
}

func (s *HandlerIntegrationTestSuite) TestInvalidIDIsBadRequest() {
	w := s.do(http.MethodGet, "/api/messages/abc", alice, nil)
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
}

func (s *HandlerIntegrationTestSuite) TestEditByNonSenderIsForbidden() {
	id := s.sendREST(alice, bob, "original")

	w := s.do(http.MethodPost, "/api/messages/"+itoa(id)+"/edit", bob, map[string]any{"content": "hijack"})
	assert.Equal(s.T(), http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/api/messages/"+itoa(id)+"/edit", alice, map[string]any{"content": "edited"})
	require.Equal(s.T(), http.StatusOK, w.Code)
	msg := decode(s.T(), w)["message"].(map[string]any)
	assert.Equal(s.T(), "edited", msg["content"])
	assert.NotNil(s.T(), msg["edited_at"])
}

func (s *HandlerIntegrationTestSuite) TestDeleteWithEmptyBodyHidesForCaller() {
	id := s.sendREST(alice, bob, "oops")

	w := s.do(http.MethodPost, "/api/messages/"+itoa(id)+"/delete", alice, nil)
	require.Equal(s.T(), http.StatusOK, w.Code, w.Body.String())
	assert.Equal(s.T(), false, decode(s.T(), w)["delete_for_everyone"])

	w = s.do(http.MethodGet, "/api/messages/"+itoa(s.conv.ID), alice, nil)
	assert.EqualValues(s.T(), 0, decode(s.T(), w)["count"])

	w = s.do(http.MethodGet, "/api/messages/"+itoa(s.conv.ID), bob, nil)
	assert.EqualValues(s.T(), 1, decode(s.T(), w)["count"])
}

func (s *HandlerIntegrationTestSuite) TestDeleteForEveryoneBlanksContent() {
	id := s.sendREST(alice, bob, "regret")

	w := s.do(http.MethodPost, "/api/messages/"+itoa(id)+"/delete", alice, map[string]any{"delete_for_everyone": true})
	require.Equal(s.T(), http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api/messages/"+itoa(s.conv.ID), bob, nil)
	msg := decode(s.T(), w)["messages"].([]any)[0].(map[string]any)
	assert.Equal(s.T(), "", msg["content"])
	assert.Equal(s.T(), true, msg["is_deleted_for_everyone"])
}

func (s *HandlerIntegrationTestSuite) TestReactToggles() {
	id := s.sendREST(alice, bob, "joke")

	w := s.do(http.MethodPost, "/api/messages/"+itoa(id)+"/react", bob, map[string]any{"emoji": "😂"})
	require.Equal(s.T(), http.StatusOK, w.Code)
	reactions := decode(s.T(), w)["reactions"].(map[string]any)
	assert.Equal(s.T(), []any{float64(bob)}, reactions["😂"])

	w = s.do(http.MethodPost, "/api/messages/"+itoa(id)+"/react", bob, map[string]any{"emoji": "😂"})
	require.Equal(s.T(), http.StatusOK, w.Code)
	assert.Empty(s.T(), decode(s.T(), w)["reactions"])
}

func (s *HandlerIntegrationTestSuite) TestMarkRead() {
	id := s.sendREST(alice, bob, "read me")

	w := s.do(http.MethodPost, "/api/messages/"+itoa(s.conv.ID)+"/mark-read", bob, nil)
	require.Equal(s.T(), http.StatusOK, w.Code)
	assert.Equal(s.T(), []any{float64(id)}, decode(s.T(), w)["message_ids"])

	w = s.do(http.MethodPost, "/api/messages/"+itoa(s.conv.ID)+"/mark-read", bob, nil)
	assert.Equal(s.T(), []any{}, decode(s.T(), w)["message_ids"])
}

func (s *HandlerIntegrationTestSuite) TestCreateMatchIsIdempotent() {
	w := s.doAs(http.MethodPost, "/api/admin/matches", admin, true, map[string]any{"user_id": alice, "other_user_id": carol})
	require.Equal(s.T(), http.StatusCreated, w.Code)
	assert.Equal(s.T(), true, decode(s.T(), w)["created"])

	w = s.doAs(http.MethodPost, "/api/admin/matches", admin, true, map[string]any{"user_id": carol, "other_user_id": alice})
	require.Equal(s.T(), http.StatusOK, w.Code)
	assert.Equal(s.T(), false, decode(s.T(), w)["created"])

	w = s.do(http.MethodGet, "/api/notifications", carol, nil)
	require.Equal(s.T(), http.StatusOK, w.Code)
	assert.EqualValues(s.T(), 1, decode(s.T(), w)["count"])
}

func (s *HandlerIntegrationTestSuite) TestCreateMatchRequiresAdmin() {
	w := s.do(http.MethodPost, "/api/admin/matches", alice, map[string]any{"user_id": alice, "other_user_id": carol})
	assert.Equal(s.T(), http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/api/matches", alice, map[string]any{"user_id": carol})
	assert.Equal(s.T(), http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/api/messages", alice, map[string]any{
		"receiver_id": carol,
		"content":     "hi",
	})
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
	assert.Equal(s.T(), "not_matched", decode(s.T(), w)["code"])
}

func (s *HandlerIntegrationTestSuite) TestBlockStopsMessaging() {
	w := s.do(http.MethodPost, "/api/block-user", bob, map[string]any{"blocked_user_id": alice})
	require.Equal(s.T(), http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/api/messages", alice, map[string]any{
		"receiver_id": bob,
		"content":     "still there?",
	})
	assert.Equal(s.T(), http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/api/unblock-user", bob, map[string]any{"blocked_user_id": alice})
	assert.Equal(s.T(), http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/api/unblock-user", bob, map[string]any{"blocked_user_id": alice})
	assert.Equal(s.T(), http.StatusNotFound, w.Code)
}

func (s *HandlerIntegrationTestSuite) TestAdminRoutesRequireAdmin() {
	w := s.do(http.MethodPost, "/api/admin/users/"+itoa(bob)+"/ban", alice, map[string]any{"reason": "spam"})
	assert.Equal(s.T(), http.StatusForbidden, w.Code)

	w = s.doAs(http.MethodPost, "/api/admin/users/"+itoa(bob)+"/ban", admin, true, map[string]any{"reason": "spam"})
	require.Equal(s.T(), http.StatusOK, w.Code, w.Body.String())

	var user models.User
	require.NoError(s.T(), s.testDB.DB.First(&user, bob).Error)
	assert.True(s.T(), user.IsBanned)
	assert.Equal(s.T(), "spam", user.BanReason)

	w = s.doAs(http.MethodPost, "/api/admin/users/"+itoa(bob)+"/unban", admin, true, nil)
	require.Equal(s.T(), http.StatusOK, w.Code)
	require.NoError(s.T(), s.testDB.DB.First(&user, bob).Error)
	assert.False(s.T(), user.IsBanned)
}

func (s *HandlerIntegrationTestSuite) TestMetricsEndpoint() {
	w := s.do(http.MethodGet, "/metrics", 0, nil)
	require.Equal(s.T(), http.StatusOK, w.Code)
	assert.True(s.T(), strings.Contains(w.Body.String(), "deepmatch_ws_sessions"))
}

func TestHandlerIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(HandlerIntegrationTestSuite))
}
