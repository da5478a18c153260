package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/Baaaki/deepmatch-realtime/internal/models"
	"github.com/Baaaki/deepmatch-realtime/internal/realtime"
	"github.com/Baaaki/deepmatch-realtime/internal/service"
	"github.com/gin-gonic/gin"
)

// MessageHandler is the REST face of the message log. Mutations go through
// the realtime router so connected clients see the same events as on the
// socket.
type MessageHandler struct {
	router *realtime.Router
}

func NewMessageHandler(router *realtime.Router) *MessageHandler {
	return &MessageHandler{router: router}
}

type SendMessageRequest struct {
	ReceiverID uint   `json:"receiver_id" binding:"required"`
	Type       string `json:"type"`
	Content    string `json:"content"`
	MediaURL   string `json:"media_url"`
	ReplyTo    *uint  `json:"reply_to"`
}

type EditMessageRequest struct {
	Content string `json:"content"`
}

type DeleteMessageRequest struct {
	DeleteForEveryone bool `json:"delete_for_everyone"`
}

type ReactRequest struct {
	Emoji string `json:"emoji"`
}

// currentUser reads the identity set by AuthMiddleware
func currentUser(c *gin.Context) (uint, bool) {
	value, exists := c.Get("user_id")
	if !exists {
		return 0, false
	}
	id, ok := value.(uint)
	return id, ok && id != 0
}

func parseID(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "invalid "+param)
		return 0, false
	}
	return uint(id), true
}

// GET /api/messages/:id (match id)
func (h *MessageHandler) GetMessages(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		respondError(c, service.ErrUnauthorized)
		return
	}
	matchID, ok := parseID(c, "id")
	if !ok {
		return
	}

	result, err := h.router.FetchMessages(c.Request.Context(), userID, matchID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"match_id": matchID,
		"messages": result.Messages,
		"count":    len(result.Messages),
	})
}

// POST /api/messages/:id/mark-read (match id)
func (h *MessageHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		respondError(c, service.ErrUnauthorized)
		return
	}
	matchID, ok := parseID(c, "id")
	if !ok {
		return
	}

	ids, err := h.router.MarkRead(c.Request.Context(), userID, matchID)
	if err != nil {
		respondError(c, err)
		return
	}
	if ids == nil {
		ids = []uint{}
	}

	c.JSON(http.StatusOK, gin.H{
		"match_id":    matchID,
		"message_ids": ids,
	})
}

// POST /api/messages
func (h *MessageHandler) SendMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		respondError(c, service.ErrUnauthorized)
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	msg, err := h.router.SendMessage(c.Request.Context(), userID, service.SendInput{
		ReceiverID: req.ReceiverID,
		Type:       models.MessageType(req.Type),
		Content:    req.Content,
		MediaURL:   req.MediaURL,
		ReplyTo:    req.ReplyTo,
	}, "")
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// POST /api/messages/:id/edit
func (h *MessageHandler) EditMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		respondError(c, service.ErrUnauthorized)
		return
	}
	messageID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	msg, err := h.router.EditMessage(c.Request.Context(), userID, messageID, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// POST /api/messages/:id/delete
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		respondError(c, service.ErrUnauthorized)
		return
	}
	messageID, ok := parseID(c, "id")
	if !ok {
		return
	}

	// an empty body means delete for me
	var req DeleteMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "Invalid request body")
		return
	}

	msg, err := h.router.DeleteMessage(c.Request.Context(), userID, messageID, req.DeleteForEveryone)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message_id":          msg.ID,
		"match_id":            msg.ConversationID,
		"delete_for_everyone": req.DeleteForEveryone,
	})
}

// POST /api/messages/:id/react
func (h *MessageHandler) React(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		respondError(c, service.ErrUnauthorized)
		return
	}
	messageID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req ReactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	msg, err := h.router.React(c.Request.Context(), userID, messageID, req.Emoji)
	if err != nil {
		respondError(c, err)
		return
	}

	reactions := msg.Reactions
	if reactions == nil {
		reactions = models.Reactions{}
	}
	c.JSON(http.StatusOK, gin.H{
		"message_id": msg.ID,
		"reactions":  reactions,
	})
}

// GET /api/online-users
func (h *MessageHandler) OnlineUsers(c *gin.Context) {
	users := h.router.OnlineUsers()
	if users == nil {
		users = []uint{}
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}
