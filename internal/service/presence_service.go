package service

import (
	"context"
	"time"

	"github.com/Baaaki/deepmatch-realtime/internal/broker"
	"github.com/Baaaki/deepmatch-realtime/internal/repository"
	"github.com/Baaaki/deepmatch-realtime/pkg/logger"
	"go.uber.org/zap"
)

// PresenceService persists online/offline transitions. Failures are logged
// and swallowed since presence carries no delivery guarantee.
type PresenceService struct {
	userRepo *repository.UserRepository
	broker   broker.PresenceBroker
}

func NewPresenceService(userRepo *repository.UserRepository, presenceBroker broker.PresenceBroker) *PresenceService {
	if presenceBroker == nil {
		presenceBroker = broker.NoopBroker{}
	}
	return &PresenceService{userRepo: userRepo, broker: presenceBroker}
}

func (s *PresenceService) MarkOnline(ctx context.Context, userID uint, at time.Time) {
	if err := s.userRepo.SetPresence(ctx, userID, true, at); err != nil {
		logger.Log.Warn("Failed to persist online status", zap.Uint("user_id", userID), zap.Error(err))
	}
	if err := s.broker.SetOnline(ctx, userID, at); err != nil {
		logger.Log.Warn("Failed to mirror online status", zap.Uint("user_id", userID), zap.Error(err))
	}
}

func (s *PresenceService) MarkOffline(ctx context.Context, userID uint, at time.Time) {
	if err := s.userRepo.SetPresence(ctx, userID, false, at); err != nil {
		logger.Log.Warn("Failed to persist last seen", zap.Uint("user_id", userID), zap.Error(err))
	}
	if err := s.broker.SetOffline(ctx, userID, at); err != nil {
		logger.Log.Warn("Failed to mirror offline status", zap.Uint("user_id", userID), zap.Error(err))
	}
}
