package broker

import (
	"context"
	"time"
)

// PresenceEvent is published whenever a user goes online or offline
type PresenceEvent struct {
	UserID   uint      `json:"user_id"`
	IsOnline bool      `json:"is_online"`
	LastSeen time.Time `json:"last_seen"`
}

// PresenceBroker mirrors the in-process registry into a shared store so that
// collaborators outside this process can read presence
type PresenceBroker interface {
	SetOnline(ctx context.Context, userID uint, at time.Time) error
	SetOffline(ctx context.Context, userID uint, at time.Time) error
	OnlineUsers(ctx context.Context) ([]uint, error)
	LastSeen(ctx context.Context, userID uint) (time.Time, bool, error)

	Close() error
}

// NoopBroker is used when REDIS_URL is not configured
type NoopBroker struct{}

func (NoopBroker) SetOnline(context.Context, uint, time.Time) error  { return nil }
func (NoopBroker) SetOffline(context.Context, uint, time.Time) error { return nil }
func (NoopBroker) OnlineUsers(context.Context) ([]uint, error)       { return nil, nil }
func (NoopBroker) LastSeen(context.Context, uint) (time.Time, bool, error) {
	return time.Time{}, false, nil
}
func (NoopBroker) Close() error { return nil }
