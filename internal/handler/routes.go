package handler

import (
	"net/http"

	"github.com/Baaaki/deepmatch-realtime/internal/middleware"
	"github.com/gin-gonic/gin"
)

// Routes groups the handlers mounted on the engine. RateLimiter and
// Metrics are optional.
type Routes struct {
	JWTSecret   string
	RateLimiter *middleware.RateLimiter
	Metrics     http.Handler

	WebSocket *WebSocketHandler
	Messages  *MessageHandler
	Matches   *MatchHandler
	Admin     *AdminHandler
}

func (r Routes) Register(engine *gin.Engine) {
	engine.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	if r.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(r.Metrics))
	}

	// Protected routes (require JWT)
	protected := engine.Group("/api")
	protected.Use(middleware.AuthMiddleware(r.JWTSecret))
	if r.RateLimiter != nil {
		protected.Use(r.RateLimiter.Middleware())
	}
	// gin needs one wildcard name per segment, so :id is the match id on
	// the first two message routes and the message id on the rest
	{
		protected.GET("/ws", r.WebSocket.HandleWebSocket)

		protected.GET("/messages/:id", r.Messages.GetMessages)
		protected.POST("/messages/:id/mark-read", r.Messages.MarkRead)
		protected.POST("/messages", r.Messages.SendMessage)
		protected.POST("/messages/:id/edit", r.Messages.EditMessage)
		protected.POST("/messages/:id/delete", r.Messages.DeleteMessage)
		protected.POST("/messages/:id/react", r.Messages.React)
		protected.GET("/online-users", r.Messages.OnlineUsers)

		protected.POST("/block-user", r.Matches.Block)
		protected.POST("/unblock-user", r.Matches.Unblock)
		protected.GET("/notifications", r.Matches.Notifications)
	}

	admin := protected.Group("/admin")
	admin.Use(middleware.AdminMiddleware())
	{
		admin.POST("/matches", r.Matches.CreateMatch)
		admin.POST("/users/:id/ban", r.Admin.BanUser)
		admin.POST("/users/:id/unban", r.Admin.UnbanUser)
	}
}
