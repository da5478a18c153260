package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Baaaki/deepmatch-realtime/internal/keylock"
	"github.com/Baaaki/deepmatch-realtime/internal/models"
	"github.com/Baaaki/deepmatch-realtime/internal/repository"
	"github.com/Baaaki/deepmatch-realtime/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultEditWindow       = 15 * time.Minute
	DefaultMaxMessageLength = 5000
)

// ChatConfig tunes the message rules. Zero values fall back to defaults.
type ChatConfig struct {
	EditWindow       time.Duration
	MaxMessageLength int
	// Now is the clock used for timestamps and the edit window
	Now func() time.Time
}

// ChatService owns the message log state machine. Every mutation runs in a
// single transaction; callers fan out events only after a nil error.
type ChatService struct {
	db          *gorm.DB
	messageRepo *repository.MessageRepository
	convRepo    *repository.ConversationRepository
	blockRepo   *repository.BlockRepository
	userRepo    *repository.UserRepository

	editWindow time.Duration
	maxLength  int
	now        func() time.Time

	convLocks *keylock.Keyed
	msgLocks  *keylock.Keyed

	// newest timestamp handed out per conversation, guarded by lastMu and
	// only advanced while the conversation lock is held
	lastMu   sync.Mutex
	lastSent map[uint]time.Time
}

func NewChatService(
	db *gorm.DB,
	messageRepo *repository.MessageRepository,
	convRepo *repository.ConversationRepository,
	blockRepo *repository.BlockRepository,
	userRepo *repository.UserRepository,
	cfg ChatConfig,
) *ChatService {
	if cfg.EditWindow <= 0 {
		cfg.EditWindow = DefaultEditWindow
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = DefaultMaxMessageLength
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &ChatService{
		db:          db,
		messageRepo: messageRepo,
		convRepo:    convRepo,
		blockRepo:   blockRepo,
		userRepo:    userRepo,
		editWindow:  cfg.EditWindow,
		maxLength:   cfg.MaxMessageLength,
		now:         cfg.Now,
		convLocks:   keylock.New(),
		msgLocks:    keylock.New(),
		lastSent:    make(map[uint]time.Time),
	}
}

// SendInput is a send request as received from a client
type SendInput struct {
	ReceiverID uint
	Type       models.MessageType
	Content    string
	MediaURL   string
	ReplyTo    *uint
}

// FetchResult is the history returned to a requester plus the IDs that
// this fetch flipped to delivered
type FetchResult struct {
	Conversation *models.Conversation
	Messages     []models.Message
	Delivered    []uint
}

// SendMessage appends a message to the conversation between sender and
// receiver. Blocks and bans are checked before the match itself.
func (s *ChatService) SendMessage(ctx context.Context, senderID uint, in SendInput) (*models.Message, error) {
	if senderID == 0 {
		return nil, ErrUnauthorized
	}

	content, err := s.validateSend(senderID, &in)
	if err != nil {
		logger.Log.Debug("Send validation failed",
			zap.Uint("sender_id", senderID),
			zap.Error(err),
		)
		return nil, err
	}

	if err := s.ensureCanMessage(ctx, senderID, in.ReceiverID); err != nil {
		return nil, err
	}

	conv, err := s.convRepo.FindActiveByPair(ctx, senderID, in.ReceiverID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		logger.Log.Debug("Send rejected, no active match",
			zap.Uint("sender_id", senderID),
			zap.Uint("receiver_id", in.ReceiverID),
		)
		return nil, ErrNotMatched
	}

	unlock := s.convLocks.Lock(conv.ID)
	defer unlock()

	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		ReceiverID:     in.ReceiverID,
		Content:        content,
		Type:           in.Type,
		ReplyToID:      in.ReplyTo,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		messages := s.messageRepo.WithTx(tx)

		// a block or ban may have landed since the check above; the row
		// lock orders this insert against their deactivating UPDATE
		current, err := s.convRepo.WithTx(tx).LockActive(ctx, conv.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrNotMatched
		}

		if in.ReplyTo != nil {
			ok, err := messages.BelongsTo(ctx, *in.ReplyTo, conv.ID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: reply target is not part of this conversation", ErrValidation)
			}
		}

		ts, err := s.nextTimestamp(ctx, messages, conv.ID)
		if err != nil {
			return err
		}
		msg.CreatedAt = ts

		return messages.CreateMessage(ctx, msg)
	})
	if err != nil {
		return nil, err
	}

	s.lastMu.Lock()
	s.lastSent[conv.ID] = msg.CreatedAt
	s.lastMu.Unlock()

	logger.Log.Debug("Message stored",
		zap.Uint("message_id", msg.ID),
		zap.Uint("match_id", conv.ID),
		zap.Uint("sender_id", senderID),
	)

	return msg, nil
}

func (s *ChatService) validateSend(senderID uint, in *SendInput) (string, error) {
	if in.ReceiverID == 0 {
		return "", fmt.Errorf("%w: receiver_id is required", ErrValidation)
	}
	if in.ReceiverID == senderID {
		return "", fmt.Errorf("%w: cannot message yourself", ErrValidation)
	}
	if in.Type == "" {
		in.Type = models.MessageTypeText
	}
	if !in.Type.Valid() {
		return "", fmt.Errorf("%w: unsupported message type %q", ErrValidation, in.Type)
	}

	content := in.Content
	if in.Type.IsMedia() && in.MediaURL != "" {
		content = in.MediaURL
	}
	if strings.TrimSpace(content) == "" {
		if in.Type.IsMedia() {
			return "", fmt.Errorf("%w: media_url is required", ErrValidation)
		}
		return "", fmt.Errorf("%w: content is required", ErrValidation)
	}
	if utf8.RuneCountInString(content) > s.maxLength {
		return "", fmt.Errorf("%w: content exceeds %d characters", ErrValidation, s.maxLength)
	}
	return content, nil
}

func (s *ChatService) ensureCanMessage(ctx context.Context, senderID, receiverID uint) error {
	banned, err := s.userRepo.IsAnyBanned(ctx, senderID, receiverID)
	if err != nil {
		return err
	}
	blocked, err := s.blockRepo.IsBlockedEitherWay(ctx, senderID, receiverID)
	if err != nil {
		return err
	}
	if banned || blocked {
		logger.Log.Info("Send rejected by block list",
			zap.Uint("sender_id", senderID),
			zap.Uint("receiver_id", receiverID),
			zap.Bool("banned", banned),
		)
		return fmt.Errorf("%w: you cannot message this user", ErrForbidden)
	}
	return nil
}

// ForgetConversation drops the cached send timestamp of a conversation that
// no longer accepts messages. A later send reseeds it from storage.
func (s *ChatService) ForgetConversation(conversationID uint) {
	unlock := s.convLocks.Lock(conversationID)
	defer unlock()

	s.lastMu.Lock()
	delete(s.lastSent, conversationID)
	s.lastMu.Unlock()
}

// nextTimestamp must be called with the conversation lock held
func (s *ChatService) nextTimestamp(ctx context.Context, messages *repository.MessageRepository, conversationID uint) (time.Time, error) {
	s.lastMu.Lock()
	last, ok := s.lastSent[conversationID]
	s.lastMu.Unlock()

	if !ok {
		var err error
		last, err = messages.LatestCreatedAt(ctx, conversationID)
		if err != nil {
			return time.Time{}, err
		}
	}

	ts := s.now().UTC().Truncate(time.Microsecond)
	if !ts.After(last) {
		ts = last.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
	}
	return ts, nil
}

// FetchMessages returns the requester's view of a conversation and marks
// what was addressed to them as delivered
func (s *ChatService) FetchMessages(ctx context.Context, requesterID, conversationID uint) (*FetchResult, error) {
	conv, err := s.participantConversation(ctx, requesterID, conversationID)
	if err != nil {
		return nil, err
	}

	result := &FetchResult{Conversation: conv}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		messages := s.messageRepo.WithTx(tx)

		list, err := messages.ListVisible(ctx, conversationID, requesterID)
		if err != nil {
			return err
		}

		var delivered []uint
		for i := range list {
			if list[i].IsDeletedForEveryone {
				list[i].Content = ""
			}
			if list[i].ReceiverID == requesterID && !list[i].IsDelivered {
				delivered = append(delivered, list[i].ID)
			}
		}

		if err := messages.MarkDelivered(ctx, delivered); err != nil {
			return err
		}

		for i := range list {
			if list[i].ReceiverID == requesterID {
				list[i].IsDelivered = true
			}
		}

		result.Messages = list
		result.Delivered = delivered
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// MarkRead flags every message the requester received in the conversation
// as read and returns the IDs that changed
func (s *ChatService) MarkRead(ctx context.Context, requesterID, conversationID uint) ([]uint, error) {
	if _, err := s.participantConversation(ctx, requesterID, conversationID); err != nil {
		return nil, err
	}

	var ids []uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		ids, err = s.messageRepo.WithTx(tx).MarkRead(ctx, conversationID, requesterID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// EditMessage replaces the content of the requester's own message while
// the edit window is open
func (s *ChatService) EditMessage(ctx context.Context, requesterID, messageID uint, content string) (*models.Message, error) {
	unlock := s.msgLocks.Lock(messageID)
	defer unlock()

	var msg *models.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		messages := s.messageRepo.WithTx(tx)

		var err error
		msg, err = s.participantMessage(ctx, messages, requesterID, messageID)
		if err != nil {
			return err
		}
		if msg.SenderID != requesterID {
			return fmt.Errorf("%w: only the sender can edit a message", ErrForbidden)
		}
		if msg.IsDeletedForEveryone {
			return fmt.Errorf("%w: message was deleted", ErrForbidden)
		}

		now := s.now().UTC()
		if now.Sub(msg.CreatedAt) > s.editWindow {
			return ErrEditWindowExpired
		}
		if strings.TrimSpace(content) == "" {
			return fmt.Errorf("%w: content is required", ErrValidation)
		}
		if utf8.RuneCountInString(content) > s.maxLength {
			return fmt.Errorf("%w: content exceeds %d characters", ErrValidation, s.maxLength)
		}

		editedAt := now.Truncate(time.Microsecond)
		if err := messages.UpdateContent(ctx, msg.ID, content, editedAt); err != nil {
			return err
		}
		msg.Content = content
		msg.EditedAt = &editedAt
		return nil
	})
	if err != nil {
		return nil, err
	}

	return msg, nil
}

// DeleteMessage hides a message for the requester, or redacts it for both
// participants when forEveryone is set. changed is false when nothing needs
// to be broadcast.
func (s *ChatService) DeleteMessage(ctx context.Context, requesterID, messageID uint, forEveryone bool) (msg *models.Message, changed bool, err error) {
	unlock := s.msgLocks.Lock(messageID)
	defer unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		messages := s.messageRepo.WithTx(tx)

		var err error
		msg, err = s.participantMessage(ctx, messages, requesterID, messageID)
		if err != nil {
			return err
		}

		if !forEveryone {
			return messages.HideForUser(ctx, msg.ID, requesterID)
		}

		if msg.SenderID != requesterID {
			return fmt.Errorf("%w: only the sender can delete for everyone", ErrForbidden)
		}
		changed, err = messages.MarkDeletedForEveryone(ctx, msg.ID)
		if err != nil {
			return err
		}
		msg.IsDeletedForEveryone = true
		msg.Content = ""
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return msg, changed, nil
}

// React toggles the requester in the emoji's reaction set
func (s *ChatService) React(ctx context.Context, requesterID, messageID uint, emoji string) (*models.Message, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, fmt.Errorf("%w: emoji is required", ErrValidation)
	}

	unlock := s.msgLocks.Lock(messageID)
	defer unlock()

	var msg *models.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		messages := s.messageRepo.WithTx(tx)

		var err error
		msg, err = s.participantMessage(ctx, messages, requesterID, messageID)
		if err != nil {
			return err
		}

		msg.Reactions.Toggle(emoji, requesterID)
		return messages.UpdateReactions(ctx, msg.ID, msg.Reactions)
	})
	if err != nil {
		return nil, err
	}

	return msg, nil
}

// ActiveConversations lists the conversations whose rooms userID belongs in
func (s *ChatService) ActiveConversations(ctx context.Context, userID uint) ([]models.Conversation, error) {
	return s.convRepo.ListActiveForUser(ctx, userID)
}

// IsActiveParticipant reports whether userID may subscribe to the
// conversation's room
func (s *ChatService) IsActiveParticipant(ctx context.Context, userID, conversationID uint) (bool, error) {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return false, err
	}
	return conv != nil && conv.IsActive && conv.Includes(userID), nil
}

func (s *ChatService) participantConversation(ctx context.Context, userID, conversationID uint) (*models.Conversation, error) {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil || !conv.Includes(userID) {
		return nil, fmt.Errorf("%w: conversation %d", ErrNotFound, conversationID)
	}
	return conv, nil
}

// participantMessage hides messages of foreign conversations behind NotFound
func (s *ChatService) participantMessage(ctx context.Context, messages *repository.MessageRepository, userID, messageID uint) (*models.Message, error) {
	msg, err := messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil || (msg.SenderID != userID && msg.ReceiverID != userID) {
		return nil, fmt.Errorf("%w: message %d", ErrNotFound, messageID)
	}
	return msg, nil
}
