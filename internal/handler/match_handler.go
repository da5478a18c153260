package handler

import (
	"net/http"

	"github.com/Baaaki/deepmatch-realtime/internal/service"
	"github.com/Baaaki/deepmatch-realtime/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MatchHandler exposes the match collaborator: opening conversations,
// blocking and the notification inbox
type MatchHandler struct {
	matchService *service.MatchService
}

func NewMatchHandler(matchService *service.MatchService) *MatchHandler {
	return &MatchHandler{matchService: matchService}
}

// CreateMatchRequest names both sides of an accepted mutual interest
type CreateMatchRequest struct {
	UserID      uint `json:"user_id"`
	OtherUserID uint `json:"other_user_id"`
}

type BlockRequest struct {
	BlockedUserID uint `json:"blocked_user_id"`
}

// POST /api/admin/matches
func (h *MatchHandler) CreateMatch(c *gin.Context) {
	var req CreateMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	conv, created, err := h.matchService.CreateMatch(c.Request.Context(), req.UserID, req.OtherUserID)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"match":   conv,
		"created": created,
	})
}

// POST /api/block-user
func (h *MatchHandler) Block(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		respondError(c, service.ErrUnauthorized)
		return
	}

	var req BlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	alreadyBlocked, err := h.matchService.Block(c.Request.Context(), userID, req.BlockedUserID)
	if err != nil {
		respondError(c, err)
		return
	}

	logger.Log.Info("User blocked",
		zap.Uint("blocker_id", userID),
		zap.Uint("blocked_id", req.BlockedUserID),
		zap.Bool("already_blocked", alreadyBlocked),
	)

	message := "User blocked"
	if alreadyBlocked {
		message = "User already blocked"
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}

// POST /api/unblock-user
func (h *MatchHandler) Unblock(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		respondError(c, service.ErrUnauthorized)
		return
	}

	var req BlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	if err := h.matchService.Unblock(c.Request.Context(), userID, req.BlockedUserID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User unblocked"})
}

// GET /api/notifications
func (h *MatchHandler) Notifications(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		respondError(c, service.ErrUnauthorized)
		return
	}

	notifications, err := h.matchService.Notifications(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": notifications,
		"count":         len(notifications),
	})
}
