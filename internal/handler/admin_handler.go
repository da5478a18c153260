package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/Baaaki/deepmatch-realtime/internal/service"
	"github.com/Baaaki/deepmatch-realtime/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AdminHandler struct {
	matchService *service.MatchService
}

func NewAdminHandler(matchService *service.MatchService) *AdminHandler {
	return &AdminHandler{
		matchService: matchService,
	}
}

type BanUserRequest struct {
	Reason string `json:"reason"`
}

// BanUser flags the account, closes its conversations and drops its sessions
// POST /api/admin/users/:id/ban
func (h *AdminHandler) BanUser(c *gin.Context) {
	targetID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req BanUserRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		logger.Log.Warn("Ban user request parsing failed",
			zap.Error(err),
		)
		badRequest(c, "Invalid request body")
		return
	}

	adminID, _ := currentUser(c)
	logger.Log.Info("Admin banning user",
		zap.Uint("admin_id", adminID),
		zap.Uint("target_user_id", targetID),
		zap.String("reason", req.Reason),
	)

	if err := h.matchService.Ban(c.Request.Context(), targetID, req.Reason); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "User banned successfully",
	})
}

// POST /api/admin/users/:id/unban
func (h *AdminHandler) UnbanUser(c *gin.Context) {
	targetID, ok := parseID(c, "id")
	if !ok {
		return
	}

	adminID, _ := currentUser(c)
	logger.Log.Info("Admin unbanning user",
		zap.Uint("admin_id", adminID),
		zap.Uint("target_user_id", targetID),
	)

	if err := h.matchService.Unban(c.Request.Context(), targetID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "User unbanned successfully",
	})
}
