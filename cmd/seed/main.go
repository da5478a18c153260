package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/Baaaki/deepmatch-realtime/internal/config"
	"github.com/Baaaki/deepmatch-realtime/internal/database"
	"github.com/Baaaki/deepmatch-realtime/internal/repository"
	"github.com/Baaaki/deepmatch-realtime/internal/service"
	"github.com/Baaaki/deepmatch-realtime/internal/utils"
	"github.com/Baaaki/deepmatch-realtime/pkg/logger"
	"go.uber.org/zap"
)

// seed opens a match between SEED_USER_A and SEED_USER_B and prints a
// development token for each of them. SEED_ADMIN=true makes both tokens
// carry the admin claim.
func main() {
	cfg := config.Load()
	if err := logger.Init(true); err != nil {
		panic(err)
	}
	defer logger.Sync()

	userA := envUint("SEED_USER_A")
	userB := envUint("SEED_USER_B")
	isAdmin := os.Getenv("SEED_ADMIN") == "true"

	db, err := database.Connect(cfg)
	if err != nil {
		logger.Log.Fatal("Database connection failed", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logger.Log.Fatal("Database migration failed", zap.Error(err))
	}

	matchService := service.NewMatchService(db,
		repository.NewConversationRepository(db),
		repository.NewBlockRepository(db),
		repository.NewUserRepository(db),
		repository.NewNotificationRepository(db),
	)

	conv, created, err := matchService.CreateMatch(context.Background(), userA, userB)
	if err != nil {
		logger.Log.Fatal("Failed to create match", zap.Error(err))
	}
	if created {
		logger.Log.Info("Match created", zap.Uint("match_id", conv.ID))
	} else {
		logger.Log.Info("Match already exists",
			zap.Uint("match_id", conv.ID),
			zap.Bool("is_active", conv.IsActive),
		)
	}

	for _, id := range []uint{userA, userB} {
		tok, err := utils.GenerateToken(id, isAdmin, cfg.JWTSecret, cfg.JWTExpiry)
		if err != nil {
			logger.Log.Fatal("Failed to sign token", zap.Uint("user_id", id), zap.Error(err))
		}
		fmt.Printf("user %d: %s\n", id, tok)
	}
	fmt.Printf("room: match_%d\n", conv.ID)
}

func envUint(key string) uint {
	value, err := strconv.ParseUint(os.Getenv(key), 10, 64)
	if err != nil || value == 0 {
		logger.Log.Fatal("Missing or invalid environment variable", zap.String("key", key))
	}
	return uint(value)
}
