package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Baaaki/deepmatch-realtime/internal/broker"
	"github.com/Baaaki/deepmatch-realtime/internal/config"
	"github.com/Baaaki/deepmatch-realtime/internal/database"
	"github.com/Baaaki/deepmatch-realtime/internal/handler"
	"github.com/Baaaki/deepmatch-realtime/internal/middleware"
	"github.com/Baaaki/deepmatch-realtime/internal/realtime"
	"github.com/Baaaki/deepmatch-realtime/internal/repository"
	"github.com/Baaaki/deepmatch-realtime/internal/service"
	"github.com/Baaaki/deepmatch-realtime/pkg/logger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	if err := logger.InitWithOptions(!cfg.IsProduction(), logger.Options{FilePath: cfg.LogFile}); err != nil {
		panic(err)
	}
	defer logger.Sync()

	db, err := database.Connect(cfg)
	if err != nil {
		logger.Log.Fatal("Database connection failed", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logger.Log.Fatal("Database migration failed", zap.Error(err))
	}

	// Redis is optional: presence mirror and HTTP rate limiting
	var presenceBroker broker.PresenceBroker = broker.NoopBroker{}
	var rateLimiter *middleware.RateLimiter
	if cfg.RedisURL != "" {
		redisBroker, err := broker.NewRedisPresenceBroker(cfg.RedisURL)
		if err != nil {
			logger.Log.Fatal("Failed to initialize Redis broker", zap.Error(err))
		}
		presenceBroker = redisBroker
		rateLimiter = middleware.NewRateLimiter(redisBroker.Client(), middleware.RateLimiterConfig{
			MaxRequests: cfg.RateLimitMaxRequests,
			Window:      cfg.RateLimitWindow,
			BlockTime:   cfg.RateLimitBlockTime,
		})
	} else {
		logger.Log.Warn("REDIS_URL not set, presence mirror and rate limiting disabled")
	}
	defer presenceBroker.Close()

	// Initialize repositories
	messageRepo := repository.NewMessageRepository(db)
	convRepo := repository.NewConversationRepository(db)
	blockRepo := repository.NewBlockRepository(db)
	userRepo := repository.NewUserRepository(db)
	notifRepo := repository.NewNotificationRepository(db)

	// Initialize services
	chatService := service.NewChatService(db, messageRepo, convRepo, blockRepo, userRepo, service.ChatConfig{
		EditWindow:       cfg.EditWindow,
		MaxMessageLength: cfg.MaxMessageLength,
	})
	matchService := service.NewMatchService(db, convRepo, blockRepo, userRepo, notifRepo)
	presenceService := service.NewPresenceService(userRepo, presenceBroker)

	router := realtime.NewRouter(chatService, matchService, presenceService, prometheus.DefaultRegisterer)
	matchService.SetEvents(router)

	// Initialize handlers
	wsHandler := handler.NewWebSocketHandler(router, handler.WebSocketConfig{
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		EventsPerSecond: cfg.WSEventsPerSecond,
		EventBurst:      cfg.WSEventBurst,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(corsConfig(cfg.CORSAllowedOrigins)))
	engine.Use(middleware.SecurityHeadersMiddleware(cfg.IsProduction()))

	handler.Routes{
		JWTSecret:   cfg.JWTSecret,
		RateLimiter: rateLimiter,
		Metrics:     promhttp.Handler(),
		WebSocket:   wsHandler,
		Messages:    handler.NewMessageHandler(router),
		Matches:     handler.NewMatchHandler(matchService),
		Admin:       handler.NewAdminHandler(matchService),
	}.Register(engine)

	srv := &http.Server{
		Addr:              cfg.ServerPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("Server starting",
			zap.String("addr", cfg.ServerPort),
			zap.String("environment", cfg.Environment),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server shutdown failed", zap.Error(err))
	}
	// hijacked WebSocket connections are not covered by Shutdown
	closed := wsHandler.CloseAll()
	logger.Log.Info("Closed live sessions", zap.Int("sessions", closed))

	// let the read loops record last seen before the store goes away
	deadline := time.Now().Add(5 * time.Second)
	for router.Registry().SessionCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Log.Info("Server stopped")
}

func corsConfig(origins []string) cors.Config {
	config := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	return config
}
