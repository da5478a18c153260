package broker

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	onlineSetKey    = "presence:online"
	lastSeenKey     = "presence:last_seen"
	presenceChannel = "presence:events"
)

// RedisPresenceBroker implements PresenceBroker with a set of online users,
// a hash of last-seen timestamps and a pub/sub channel
type RedisPresenceBroker struct {
	client *redis.Client
	pubsub *redis.PubSub
}

func NewRedisPresenceBroker(redisURL string) (*RedisPresenceBroker, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	return &RedisPresenceBroker{client: client}, nil
}

// Client exposes the underlying connection for other Redis-backed components
func (r *RedisPresenceBroker) Client() *redis.Client {
	return r.client
}

func (r *RedisPresenceBroker) SetOnline(ctx context.Context, userID uint, at time.Time) error {
	member := strconv.FormatUint(uint64(userID), 10)

	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, onlineSetKey, member)
	pipe.HSet(ctx, lastSeenKey, member, at.UTC().Unix())
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	return r.publish(ctx, PresenceEvent{UserID: userID, IsOnline: true, LastSeen: at.UTC()})
}

func (r *RedisPresenceBroker) SetOffline(ctx context.Context, userID uint, at time.Time) error {
	member := strconv.FormatUint(uint64(userID), 10)

	pipe := r.client.TxPipeline()
	pipe.SRem(ctx, onlineSetKey, member)
	pipe.HSet(ctx, lastSeenKey, member, at.UTC().Unix())
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	return r.publish(ctx, PresenceEvent{UserID: userID, IsOnline: false, LastSeen: at.UTC()})
}

func (r *RedisPresenceBroker) OnlineUsers(ctx context.Context) ([]uint, error) {
	members, err := r.client.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, uint(id))
	}
	slices.Sort(ids)
	return ids, nil
}

func (r *RedisPresenceBroker) LastSeen(ctx context.Context, userID uint) (time.Time, bool, error) {
	val, err := r.client.HGet(ctx, lastSeenKey, strconv.FormatUint(uint64(userID), 10)).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(val, 0).UTC(), true, nil
}

func (r *RedisPresenceBroker) publish(ctx context.Context, ev PresenceEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, presenceChannel, data).Err()
}

// Subscribe streams presence events published by any process sharing this
// Redis. The channel closes when Close is called.
func (r *RedisPresenceBroker) Subscribe(ctx context.Context) (<-chan PresenceEvent, error) {
	r.pubsub = r.client.Subscribe(ctx, presenceChannel)
	if _, err := r.pubsub.Receive(ctx); err != nil {
		return nil, err
	}

	events := make(chan PresenceEvent, 100)

	go func() {
		defer close(events)

		for redisMsg := range r.pubsub.Channel() {
			var ev PresenceEvent

			if err := json.Unmarshal([]byte(redisMsg.Payload), &ev); err != nil {
				continue
			}

			events <- ev
		}
	}()

	return events, nil
}

func (r *RedisPresenceBroker) Close() error {
	if r.pubsub != nil {
		r.pubsub.Close()
	}
	return r.client.Close()
}
