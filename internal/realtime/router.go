package realtime

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Baaaki/deepmatch-realtime/internal/keylock"
	"github.com/Baaaki/deepmatch-realtime/internal/models"
	"github.com/Baaaki/deepmatch-realtime/internal/service"
	"github.com/Baaaki/deepmatch-realtime/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Router validates client intents against the message log and fans the
// resulting events out to rooms and users. Durable writes always complete
// before anything is broadcast.
type Router struct {
	registry *Registry
	rooms    *Rooms
	chat     *service.ChatService
	matches  *service.MatchService
	presence *service.PresenceService
	metrics  *Metrics
	now      func() time.Time

	// held per user across a registry change and the presence write and
	// broadcast that follow it
	userLocks *keylock.Keyed

	// read side: sessions joining rooms from a fresh match listing.
	// write side: match lifecycle hooks.
	membershipMu sync.RWMutex
}

// NewRouter wires the router. reg may be nil to skip metric registration.
func NewRouter(
	chat *service.ChatService,
	matches *service.MatchService,
	presence *service.PresenceService,
	reg prometheus.Registerer,
) *Router {
	registry := NewRegistry()
	rooms := NewRooms()

	return &Router{
		registry: registry,
		rooms:    rooms,
		chat:     chat,
		matches:  matches,
		presence: presence,
		metrics:  NewMetrics(reg, registry, rooms),
		now:      time.Now,

		userLocks: keylock.New(),
	}
}

func (r *Router) Registry() *Registry { return r.registry }
func (r *Router) Rooms() *Rooms       { return r.rooms }

// Connect admits a session. Nothing stays registered unless every lookup
// succeeds.
func (r *Router) Connect(ctx context.Context, s Session) error {
	userID := s.UserID()
	if userID == 0 {
		return service.ErrUnauthorized
	}

	unlock := r.userLocks.Lock(userID)
	defer unlock()

	banned, err := r.matches.IsBanned(ctx, userID)
	if err != nil {
		return err
	}
	if banned {
		return fmt.Errorf("%w: account is banned", service.ErrForbidden)
	}

	first, matched, err := r.admit(ctx, s)
	if err != nil {
		return err
	}

	logger.Log.Info("Session connected",
		zap.Uint("user_id", userID),
		zap.String("session_id", s.ID()),
		zap.Int("matches", matched),
		zap.Bool("first_session", first),
	)

	if first {
		r.presence.MarkOnline(ctx, userID, r.now().UTC())
		r.registry.BroadcastExcept(userID, UserStatus{UserID: userID, IsOnline: true})
		r.metrics.observePresence(true)
	}
	return nil
}

// admit registers the session before listing its matches, so a match
// opened or closed meanwhile is either in the listing or applied to the
// registered session by the lifecycle hook
func (r *Router) admit(ctx context.Context, s Session) (first bool, matched int, err error) {
	userID := s.UserID()

	r.membershipMu.RLock()
	defer r.membershipMu.RUnlock()

	first = r.registry.Register(s)
	convs, err := r.chat.ActiveConversations(ctx, userID)
	if err != nil {
		r.registry.Unregister(s.ID())
		r.rooms.LeaveAll(s.ID())
		return false, 0, err
	}

	r.rooms.Join(s, PersonalRoom(userID))
	for _, conv := range convs {
		r.rooms.Join(s, ConversationRoom(conv.ID))
	}
	return first, len(convs), nil
}

// Disconnect is safe to call more than once for the same session
func (r *Router) Disconnect(ctx context.Context, s Session) {
	unlock := r.userLocks.Lock(s.UserID())
	defer unlock()

	r.membershipMu.RLock()
	userID, last, ok := r.registry.Unregister(s.ID())
	if ok {
		r.rooms.LeaveAll(s.ID())
	}
	r.membershipMu.RUnlock()
	if !ok {
		return
	}

	logger.Log.Info("Session disconnected",
		zap.Uint("user_id", userID),
		zap.String("session_id", s.ID()),
		zap.Bool("last_session", last),
	)

	if !last {
		return
	}

	lastSeen := r.now().UTC()
	r.presence.MarkOffline(ctx, userID, lastSeen)
	r.registry.BroadcastExcept(userID, UserStatus{UserID: userID, IsOnline: false, LastSeen: &lastSeen})
	r.metrics.observePresence(false)
}

// SendMessage stores the message and publishes it to the conversation room
func (r *Router) SendMessage(ctx context.Context, senderID uint, in service.SendInput, tempID string) (*models.Message, error) {
	msg, err := r.chat.SendMessage(ctx, senderID, in)
	if err != nil {
		return nil, err
	}

	r.rooms.Broadcast(ConversationRoom(msg.ConversationID), NewMessage{Message: msg, TempID: tempID})
	r.metrics.observeMessage()
	return msg, nil
}

// FetchMessages returns history and announces what it delivered
func (r *Router) FetchMessages(ctx context.Context, requesterID, conversationID uint) (*service.FetchResult, error) {
	result, err := r.chat.FetchMessages(ctx, requesterID, conversationID)
	if err != nil {
		return nil, err
	}

	room := ConversationRoom(conversationID)
	for _, id := range result.Delivered {
		r.rooms.Broadcast(room, MessageDelivered{MessageID: id, MatchID: conversationID})
	}
	return result, nil
}

func (r *Router) MarkRead(ctx context.Context, requesterID, conversationID uint) ([]uint, error) {
	ids, err := r.chat.MarkRead(ctx, requesterID, conversationID)
	if err != nil {
		return nil, err
	}

	if len(ids) > 0 {
		r.rooms.Broadcast(ConversationRoom(conversationID), MessageRead{
			MatchID:    conversationID,
			ReaderID:   requesterID,
			MessageIDs: ids,
		})
	}
	return ids, nil
}

func (r *Router) EditMessage(ctx context.Context, requesterID, messageID uint, content string) (*models.Message, error) {
	msg, err := r.chat.EditMessage(ctx, requesterID, messageID, content)
	if err != nil {
		return nil, err
	}

	r.broadcastToParticipants(msg, MessageEdited{
		MessageID: msg.ID,
		MatchID:   msg.ConversationID,
		Content:   msg.Content,
		EditedAt:  *msg.EditedAt,
	})
	return msg, nil
}

func (r *Router) DeleteMessage(ctx context.Context, requesterID, messageID uint, forEveryone bool) (*models.Message, error) {
	msg, changed, err := r.chat.DeleteMessage(ctx, requesterID, messageID, forEveryone)
	if err != nil {
		return nil, err
	}

	if changed {
		r.broadcastToParticipants(msg, MessageDeleted{MessageID: msg.ID, MatchID: msg.ConversationID})
	}
	return msg, nil
}

func (r *Router) React(ctx context.Context, requesterID, messageID uint, emoji string) (*models.Message, error) {
	msg, err := r.chat.React(ctx, requesterID, messageID, emoji)
	if err != nil {
		return nil, err
	}

	reactions := msg.Reactions.Clone()
	if reactions == nil {
		reactions = models.Reactions{}
	}
	r.broadcastToParticipants(msg, MessageReaction{
		MessageID: msg.ID,
		MatchID:   msg.ConversationID,
		Reactions: reactions,
	})
	return msg, nil
}

// broadcastToParticipants covers the conversation room and both personal
// rooms, so a session that has not joined the conversation room yet still
// hears about the change
func (r *Router) broadcastToParticipants(msg *models.Message, ev OutboundEvent) {
	r.rooms.Broadcast(ConversationRoom(msg.ConversationID), ev)
	r.rooms.Broadcast(PersonalRoom(msg.SenderID), ev)
	r.rooms.Broadcast(PersonalRoom(msg.ReceiverID), ev)
}

// Typing relays an ephemeral indicator to the other members of the room
func (r *Router) Typing(s Session, room string, typing bool) error {
	if err := r.requireMember(s, room); err != nil {
		return err
	}

	var ev OutboundEvent = UserTyping{UserID: s.UserID(), Room: room}
	if !typing {
		ev = UserStopTyping{UserID: s.UserID(), Room: room}
	}
	r.rooms.BroadcastExcept(room, ev, s.UserID())
	return nil
}

func (r *Router) SeenMessage(s Session, room string) error {
	if err := r.requireMember(s, room); err != nil {
		return err
	}
	r.rooms.BroadcastExcept(room, MessageSeen{UserID: s.UserID(), Room: room}, s.UserID())
	return nil
}

func (r *Router) requireMember(s Session, room string) error {
	if strings.TrimSpace(room) == "" {
		return fmt.Errorf("%w: room is required", service.ErrValidation)
	}
	if !r.rooms.IsMember(s.ID(), room) {
		return fmt.Errorf("%w: not a member of %s", service.ErrForbidden, room)
	}
	return nil
}

// JoinChat subscribes the session to a UI room. Reserved rooms are limited
// to their owner or to active participants.
func (r *Router) JoinChat(ctx context.Context, s Session, room string) error {
	if strings.TrimSpace(room) == "" {
		return fmt.Errorf("%w: room is required", service.ErrValidation)
	}

	switch kind, id := ParseRoom(room); kind {
	case RoomPersonal:
		if id != s.UserID() {
			return fmt.Errorf("%w: cannot join another user's room", service.ErrForbidden)
		}
	case RoomConversation:
		r.membershipMu.RLock()
		defer r.membershipMu.RUnlock()

		ok, err := r.chat.IsActiveParticipant(ctx, s.UserID(), id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: not a participant of %s", service.ErrForbidden, room)
		}
	}

	r.rooms.Join(s, room)
	return nil
}

func (r *Router) LeaveChat(s Session, room string) error {
	if strings.TrimSpace(room) == "" {
		return fmt.Errorf("%w: room is required", service.ErrValidation)
	}
	if kind, id := ParseRoom(room); kind == RoomPersonal && id == s.UserID() {
		return fmt.Errorf("%w: cannot leave personal room", service.ErrForbidden)
	}

	r.rooms.Leave(s.ID(), room)
	return nil
}

func (r *Router) OnlineUsers() []uint {
	return r.registry.OnlineUsers()
}

// ConversationOpened joins the live sessions of both users to the new room
func (r *Router) ConversationOpened(conv *models.Conversation) {
	r.membershipMu.Lock()
	defer r.membershipMu.Unlock()

	room := ConversationRoom(conv.ID)
	for _, userID := range []uint{conv.User1ID, conv.User2ID} {
		for _, s := range r.registry.SessionsFor(userID) {
			r.rooms.Join(s, room)
		}
	}
}

// ConversationClosed empties the conversation room
func (r *Router) ConversationClosed(conv *models.Conversation) {
	r.membershipMu.Lock()
	defer r.membershipMu.Unlock()

	r.rooms.Close(ConversationRoom(conv.ID))
	r.chat.ForgetConversation(conv.ID)
}

// UserBanned closes every live session of the user
func (r *Router) UserBanned(userID uint) {
	for _, s := range r.registry.SessionsFor(userID) {
		s.Close()
	}
}

// Dispatch executes one inbound event for the session. Failures are
// reported back to that session only.
func (r *Router) Dispatch(ctx context.Context, s Session, ev InboundEvent) {
	name := ev.EventName()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Log.Error("Panic while dispatching event",
				zap.String("event", name),
				zap.Uint("user_id", s.UserID()),
				zap.Any("panic", rec),
			)
			r.reply(s, name, fmt.Errorf("panic: %v", rec))
		}
	}()

	r.metrics.observeEvent(name)

	var err error
	switch e := ev.(type) {
	case SendMessageEvent:
		var msg *models.Message
		msg, err = r.SendMessage(ctx, s.UserID(), service.SendInput{
			ReceiverID: e.ReceiverID,
			Type:       models.MessageType(e.Type),
			Content:    e.Content,
			MediaURL:   e.MediaURL,
			ReplyTo:    e.ReplyTo,
		}, e.TempID)
		if err == nil {
			s.Send(Ack{
				Event:     name,
				MessageID: msg.ID,
				MatchID:   msg.ConversationID,
				TempID:    e.TempID,
				SentAt:    &msg.CreatedAt,
			})
		}

	case DeleteMessageEvent:
		var msg *models.Message
		msg, err = r.DeleteMessage(ctx, s.UserID(), e.MessageID, e.DeleteForEveryone)
		if err == nil {
			s.Send(Ack{Event: name, MessageID: msg.ID, MatchID: msg.ConversationID})
		}

	case EditMessageEvent:
		_, err = r.EditMessage(ctx, s.UserID(), e.MessageID, e.Content)

	case ReactMessageEvent:
		_, err = r.React(ctx, s.UserID(), e.MessageID, e.Emoji)

	case TypingEvent:
		err = r.Typing(s, e.Room, true)

	case StopTypingEvent:
		err = r.Typing(s, e.Room, false)

	case SeenMessageEvent:
		err = r.SeenMessage(s, e.Room)

	case JoinChatEvent:
		err = r.JoinChat(ctx, s, e.Room)

	case LeaveChatEvent:
		err = r.LeaveChat(s, e.Room)

	case GetOnlineUsersEvent:
		s.Send(OnlineUsers{Users: r.OnlineUsers()})

	case FetchMessagesEvent:
		var result *service.FetchResult
		result, err = r.FetchMessages(ctx, s.UserID(), e.MatchID)
		if err == nil {
			s.Send(MessageHistory{MatchID: e.MatchID, Messages: result.Messages})
		}

	case MarkReadEvent:
		_, err = r.MarkRead(ctx, s.UserID(), e.MatchID)
		if err == nil {
			s.Send(Ack{Event: name, MatchID: e.MatchID})
		}

	case DisconnectEvent:
		s.Close()

	default:
		err = fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}

	if err != nil {
		r.reply(s, name, err)
	}
}

// ReplyError reports a frame that could not be decoded
func (r *Router) ReplyError(s Session, name string, err error) {
	r.reply(s, name, err)
}

func (r *Router) reply(s Session, name string, err error) {
	code := service.Code(err)
	message := service.PublicMessage(err)
	if code == service.CodeInternal {
		switch {
		case isFrameError(err):
			code = service.CodeValidation
			message = err.Error()
		default:
			logger.Log.Error("Event failed",
				zap.String("event", name),
				zap.Uint("user_id", s.UserID()),
				zap.Error(err),
			)
		}
	}

	r.metrics.observeError(name, code)
	s.Send(ErrorEvent{Event: name, Code: code, Error: message})
}
