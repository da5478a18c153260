package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Baaaki/deepmatch-realtime/internal/models"
	"github.com/Baaaki/deepmatch-realtime/internal/repository"
	"github.com/Baaaki/deepmatch-realtime/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const notificationPageSize = 50

// ConversationEvents is notified after match state changes commit
type ConversationEvents interface {
	ConversationOpened(conv *models.Conversation)
	ConversationClosed(conv *models.Conversation)
	UserBanned(userID uint)
}

type noopConversationEvents struct{}

func (noopConversationEvents) ConversationOpened(*models.Conversation) {}
func (noopConversationEvents) ConversationClosed(*models.Conversation) {}
func (noopConversationEvents) UserBanned(uint)                         {}

// MatchService is the narrow slice of match, block and ban bookkeeping that
// the chat core depends on
type MatchService struct {
	db        *gorm.DB
	convRepo  *repository.ConversationRepository
	blockRepo *repository.BlockRepository
	userRepo  *repository.UserRepository
	notifRepo *repository.NotificationRepository
	events    ConversationEvents
	now       func() time.Time
}

func NewMatchService(
	db *gorm.DB,
	convRepo *repository.ConversationRepository,
	blockRepo *repository.BlockRepository,
	userRepo *repository.UserRepository,
	notifRepo *repository.NotificationRepository,
) *MatchService {
	return &MatchService{
		db:        db,
		convRepo:  convRepo,
		blockRepo: blockRepo,
		userRepo:  userRepo,
		notifRepo: notifRepo,
		events:    noopConversationEvents{},
		now:       time.Now,
	}
}

// SetEvents registers the listener for room bookkeeping
func (s *MatchService) SetEvents(events ConversationEvents) {
	if events == nil {
		events = noopConversationEvents{}
	}
	s.events = events
}

// CreateMatch opens the conversation between a and b. An existing row for
// the pair is returned as is, even when inactive.
func (s *MatchService) CreateMatch(ctx context.Context, a, b uint) (conv *models.Conversation, created bool, err error) {
	if a == 0 || b == 0 {
		return nil, false, fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	if a == b {
		return nil, false, fmt.Errorf("%w: cannot match with yourself", ErrValidation)
	}

	banned, err := s.userRepo.IsAnyBanned(ctx, a, b)
	if err != nil {
		return nil, false, err
	}
	blocked, err := s.blockRepo.IsBlockedEitherWay(ctx, a, b)
	if err != nil {
		return nil, false, err
	}
	if banned || blocked {
		return nil, false, fmt.Errorf("%w: users cannot be matched", ErrForbidden)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		convs := s.convRepo.WithTx(tx)

		existing, err := convs.FindByPair(ctx, a, b)
		if err != nil {
			return err
		}
		if existing != nil {
			conv = existing
			return nil
		}

		low, high := models.CanonicalPair(a, b)
		conv = &models.Conversation{
			User1ID:   low,
			User2ID:   high,
			IsActive:  true,
			MatchedAt: s.now().UTC(),
		}
		if err := convs.Create(ctx, conv); err != nil {
			return err
		}
		created = true

		return s.notifRepo.WithTx(tx).Create(ctx,
			&models.Notification{UserID: a, FromUserID: b, Type: models.NotificationMatch, Message: "It's a match! 💕"},
			&models.Notification{UserID: b, FromUserID: a, Type: models.NotificationMatch, Message: "It's a match! 💕"},
		)
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		logger.Log.Info("Match created",
			zap.Uint("match_id", conv.ID),
			zap.Uint("user1_id", conv.User1ID),
			zap.Uint("user2_id", conv.User2ID),
		)
		s.events.ConversationOpened(conv)
	}

	return conv, created, nil
}

// Block records the block and deactivates the pair's conversation
func (s *MatchService) Block(ctx context.Context, blockerID, blockedID uint) (alreadyBlocked bool, err error) {
	if blockedID == 0 {
		return false, fmt.Errorf("%w: blocked_user_id is required", ErrValidation)
	}
	if blockerID == blockedID {
		return false, fmt.Errorf("%w: cannot block yourself", ErrValidation)
	}

	var closed *models.Conversation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err := s.blockRepo.WithTx(tx).Create(ctx, blockerID, blockedID)
		if err != nil {
			return err
		}
		alreadyBlocked = !inserted

		convs := s.convRepo.WithTx(tx)
		conv, err := convs.FindActiveByPair(ctx, blockerID, blockedID)
		if err != nil || conv == nil {
			return err
		}
		if _, err := convs.Deactivate(ctx, conv.ID, s.now().UTC()); err != nil {
			return err
		}
		conv.IsActive = false
		closed = conv
		return nil
	})
	if err != nil {
		return false, err
	}

	logger.Log.Info("User blocked",
		zap.Uint("blocker_id", blockerID),
		zap.Uint("blocked_user_id", blockedID),
		zap.Bool("already_blocked", alreadyBlocked),
	)

	if closed != nil {
		s.events.ConversationClosed(closed)
	}
	return alreadyBlocked, nil
}

// Unblock removes the block. The conversation stays inactive.
func (s *MatchService) Unblock(ctx context.Context, blockerID, blockedID uint) error {
	deleted, err := s.blockRepo.Delete(ctx, blockerID, blockedID)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: block not found", ErrNotFound)
	}

	logger.Log.Info("User unblocked",
		zap.Uint("blocker_id", blockerID),
		zap.Uint("blocked_user_id", blockedID),
	)
	return nil
}

// IsBanned reports whether the user is barred from connecting
func (s *MatchService) IsBanned(ctx context.Context, userID uint) (bool, error) {
	return s.userRepo.IsAnyBanned(ctx, userID)
}

// Ban flags the user, deactivates all of their conversations and asks the
// listener to drop their live sessions
func (s *MatchService) Ban(ctx context.Context, userID uint, reason string) error {
	if userID == 0 {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if reason == "" {
		reason = "Banned by admin"
	}

	now := s.now().UTC()
	var closed []models.Conversation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.userRepo.WithTx(tx).SetBan(ctx, userID, true, reason, now); err != nil {
			return err
		}
		var err error
		closed, err = s.convRepo.WithTx(tx).DeactivateAllForUser(ctx, userID, now)
		return err
	})
	if err != nil {
		return err
	}

	logger.Log.Warn("User banned",
		zap.Uint("user_id", userID),
		zap.String("reason", reason),
		zap.Int("closed_matches", len(closed)),
	)

	for i := range closed {
		closed[i].IsActive = false
		s.events.ConversationClosed(&closed[i])
	}
	s.events.UserBanned(userID)
	return nil
}

// Unban clears the moderation flags. Conversations are not reactivated.
func (s *MatchService) Unban(ctx context.Context, userID uint) error {
	if userID == 0 {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if err := s.userRepo.SetBan(ctx, userID, false, "", s.now().UTC()); err != nil {
		return err
	}

	logger.Log.Info("User unbanned", zap.Uint("user_id", userID))
	return nil
}

func (s *MatchService) Notifications(ctx context.Context, userID uint) ([]models.Notification, error) {
	return s.notifRepo.ListForUser(ctx, userID, notificationPageSize)
}
