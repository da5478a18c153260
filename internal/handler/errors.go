package handler

import (
	"net/http"

	"github.com/Baaaki/deepmatch-realtime/internal/service"
	"github.com/Baaaki/deepmatch-realtime/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var statusByCode = map[string]int{
	service.CodeUnauthorized:      http.StatusUnauthorized,
	service.CodeNotFound:          http.StatusNotFound,
	service.CodeNotMatched:        http.StatusBadRequest,
	service.CodeForbidden:         http.StatusForbidden,
	service.CodeEditWindowExpired: http.StatusForbidden,
	service.CodeValidation:        http.StatusBadRequest,
}

// respondError writes {"error", "code"} with the status for err's code
func respondError(c *gin.Context, err error) {
	code := service.Code(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
		logger.Log.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error": service.PublicMessage(err),
		"code":  code,
	})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error": message,
		"code":  service.CodeValidation,
	})
}
