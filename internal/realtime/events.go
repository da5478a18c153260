package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Baaaki/deepmatch-realtime/internal/models"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownEvent   = errors.New("unknown event")
)

func isFrameError(err error) bool {
	return errors.Is(err, ErrMalformedFrame) || errors.Is(err, ErrUnknownEvent)
}

// Envelope is the wire frame in both directions
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// InboundEvent is the closed set of frames a client may send
type InboundEvent interface {
	EventName() string
	inbound()
}

type SendMessageEvent struct {
	ReceiverID uint   `json:"receiver_id"`
	Type       string `json:"type"`
	Content    string `json:"content"`
	MediaURL   string `json:"media_url"`
	ReplyTo    *uint  `json:"reply_to"`
	TempID     string `json:"temp_id"`
}

type DeleteMessageEvent struct {
	MessageID         uint `json:"message_id"`
	DeleteForEveryone bool `json:"delete_for_everyone"`
}

type EditMessageEvent struct {
	MessageID uint   `json:"message_id"`
	Content   string `json:"content"`
}

type ReactMessageEvent struct {
	MessageID uint   `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// TypingEvent carries the room only; the typist is the session's user
type TypingEvent struct {
	Room string `json:"room"`
}

type StopTypingEvent struct {
	Room string `json:"room"`
}

type JoinChatEvent struct {
	Room string `json:"room"`
}

type LeaveChatEvent struct {
	Room string `json:"room"`
}

type SeenMessageEvent struct {
	Room string `json:"room"`
}

type GetOnlineUsersEvent struct{}

type FetchMessagesEvent struct {
	MatchID uint `json:"match_id"`
}

type MarkReadEvent struct {
	MatchID uint `json:"match_id"`
}

type DisconnectEvent struct{}

func (SendMessageEvent) EventName() string    { return "send_message" }
func (DeleteMessageEvent) EventName() string  { return "message_delete" }
func (EditMessageEvent) EventName() string    { return "message_edit" }
func (ReactMessageEvent) EventName() string   { return "message_react" }
func (TypingEvent) EventName() string         { return "typing" }
func (StopTypingEvent) EventName() string     { return "stop_typing" }
func (JoinChatEvent) EventName() string       { return "join_chat" }
func (LeaveChatEvent) EventName() string      { return "leave_chat" }
func (SeenMessageEvent) EventName() string    { return "seen_message" }
func (GetOnlineUsersEvent) EventName() string { return "get_online_users" }
func (FetchMessagesEvent) EventName() string  { return "fetch_messages" }
func (MarkReadEvent) EventName() string       { return "mark_read" }
func (DisconnectEvent) EventName() string     { return "disconnect" }

func (SendMessageEvent) inbound()    {}
func (DeleteMessageEvent) inbound()  {}
func (EditMessageEvent) inbound()    {}
func (ReactMessageEvent) inbound()   {}
func (TypingEvent) inbound()         {}
func (StopTypingEvent) inbound()     {}
func (JoinChatEvent) inbound()       {}
func (LeaveChatEvent) inbound()      {}
func (SeenMessageEvent) inbound()    {}
func (GetOnlineUsersEvent) inbound() {}
func (FetchMessagesEvent) inbound()  {}
func (MarkReadEvent) inbound()       {}
func (DisconnectEvent) inbound()     {}

// DecodeInbound parses one client frame. The returned name is the frame's
// type field even when decoding fails, so errors can be attributed.
func DecodeInbound(raw []byte) (InboundEvent, string, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var ev InboundEvent
	switch env.Type {
	case "send_message":
		ev = &SendMessageEvent{}
	case "message_delete":
		ev = &DeleteMessageEvent{}
	case "message_edit":
		ev = &EditMessageEvent{}
	case "message_react":
		ev = &ReactMessageEvent{}
	case "typing":
		ev = &TypingEvent{}
	case "stop_typing":
		ev = &StopTypingEvent{}
	case "join_chat":
		ev = &JoinChatEvent{}
	case "leave_chat":
		ev = &LeaveChatEvent{}
	case "seen_message":
		ev = &SeenMessageEvent{}
	case "get_online_users":
		return GetOnlineUsersEvent{}, env.Type, nil
	case "fetch_messages":
		ev = &FetchMessagesEvent{}
	case "mark_read":
		ev = &MarkReadEvent{}
	case "disconnect":
		return DisconnectEvent{}, env.Type, nil
	default:
		return nil, env.Type, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}

	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, ev); err != nil {
			return nil, env.Type, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
	}

	return deref(ev), env.Type, nil
}

// deref hands out value types so a type switch needs one case per event
func deref(ev InboundEvent) InboundEvent {
	switch e := ev.(type) {
	case *SendMessageEvent:
		return *e
	case *DeleteMessageEvent:
		return *e
	case *EditMessageEvent:
		return *e
	case *ReactMessageEvent:
		return *e
	case *TypingEvent:
		return *e
	case *StopTypingEvent:
		return *e
	case *JoinChatEvent:
		return *e
	case *LeaveChatEvent:
		return *e
	case *SeenMessageEvent:
		return *e
	case *FetchMessagesEvent:
		return *e
	case *MarkReadEvent:
		return *e
	}
	return ev
}

// OutboundEvent is anything the server pushes to a session
type OutboundEvent interface {
	EventName() string
}

// Encode wraps an outbound event in the wire envelope
func Encode(ev OutboundEvent) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: ev.EventName(), Data: data})
}

type NewMessage struct {
	*models.Message
	TempID string `json:"temp_id,omitempty"`
}

type MessageDelivered struct {
	MessageID uint `json:"messageId"`
	MatchID   uint `json:"matchId"`
}

type MessageRead struct {
	MatchID    uint   `json:"matchId"`
	ReaderID   uint   `json:"readerId"`
	MessageIDs []uint `json:"messageIds"`
}

type MessageEdited struct {
	MessageID uint      `json:"messageId"`
	MatchID   uint      `json:"matchId"`
	Content   string    `json:"content"`
	EditedAt  time.Time `json:"editedAt"`
}

type MessageDeleted struct {
	MessageID uint `json:"messageId"`
	MatchID   uint `json:"matchId"`
}

type MessageReaction struct {
	MessageID uint             `json:"messageId"`
	MatchID   uint             `json:"matchId"`
	Reactions models.Reactions `json:"reactions"`
}

type UserStatus struct {
	UserID   uint       `json:"userId"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type UserTyping struct {
	UserID uint   `json:"userId"`
	Room   string `json:"room"`
}

type UserStopTyping struct {
	UserID uint   `json:"userId"`
	Room   string `json:"room"`
}

type MessageSeen struct {
	UserID uint   `json:"userId"`
	Room   string `json:"room"`
}

type OnlineUsers struct {
	Users []uint `json:"users"`
}

type MessageHistory struct {
	MatchID  uint             `json:"matchId"`
	Messages []models.Message `json:"messages"`
}

// Ack confirms a request that produced no broadcast for the caller to see,
// or carries the identifiers the caller needs to reconcile local state
type Ack struct {
	Event     string     `json:"event"`
	MessageID uint       `json:"messageId,omitempty"`
	MatchID   uint       `json:"matchId,omitempty"`
	TempID    string     `json:"temp_id,omitempty"`
	SentAt    *time.Time `json:"sentAt,omitempty"`
}

type ErrorEvent struct {
	Event string `json:"event,omitempty"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

func (NewMessage) EventName() string       { return "new_message" }
func (MessageDelivered) EventName() string { return "message_delivered" }
func (MessageRead) EventName() string      { return "message_read" }
func (MessageEdited) EventName() string    { return "message_edited" }
func (MessageDeleted) EventName() string   { return "message_deleted" }
func (MessageReaction) EventName() string  { return "message_reaction" }
func (UserStatus) EventName() string       { return "user_status" }
func (UserTyping) EventName() string       { return "user_typing" }
func (UserStopTyping) EventName() string   { return "user_stop_typing" }
func (MessageSeen) EventName() string      { return "message_seen" }
func (OnlineUsers) EventName() string      { return "online_users" }
func (MessageHistory) EventName() string   { return "messages" }
func (Ack) EventName() string              { return "ack" }
func (ErrorEvent) EventName() string       { return "error" }
