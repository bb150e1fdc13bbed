package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/git-krishnabisht/vaatsip-sub000/internal/domain"
	goredis "github.com/go-redis/redis/v8"
)

// The in-process registry stays authoritative for presence; redis is a
// best-effort mirror so REST lookups can report last-seen times across
// restarts. Mirror failures are logged by callers and never block delivery.
type RedisClient struct {
	client *goredis.Client
}

func NewRedisClient(host, port, password string) *RedisClient {
	client := goredis.NewClient(&goredis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       0,
	})
	return &RedisClient{client: client}
}

func (r *RedisClient) SetPresence(ctx context.Context, userID int64, status domain.UserStatus, lastSeen time.Time) error {
	key := fmt.Sprintf("presence:%d", userID)
	return r.client.HSet(ctx, key,
		"status", string(status),
		"last_seen", lastSeen.UTC().Format(time.RFC3339Nano),
	).Err()
}

func (r *RedisClient) Presence(ctx context.Context, userID int64) (*domain.PresenceRecord, error) {
	key := fmt.Sprintf("presence:%d", userID)
	fields, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, goredis.Nil
	}

	rec := &domain.PresenceRecord{UserID: userID, Status: domain.StatusOffline}
	if status, ok := fields["status"]; ok {
		rec.Status = domain.UserStatus(status)
	}
	if raw, ok := fields["last_seen"]; ok {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			rec.LastSeen = ts
		}
	}
	return rec, nil
}

func (r *RedisClient) SetTyping(ctx context.Context, senderID, receiverID int64, isTyping bool) error {
	key := fmt.Sprintf("typing:%d:%d", senderID, receiverID)
	if isTyping {
		return r.client.Set(ctx, key, "true", 10*time.Second).Err()
	}
	return r.client.Del(ctx, key).Err()
}

func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
