// internal/app/system/cachebus/cachebus.go
//
// Package cachebus fans policy cache invalidations out to every process
// sharing a Redis instance. A process publishes "<origin> <userID>" on the
// channel after each local Invalidate; peers evict the user on receipt and
// ignore their own messages.
package cachebus

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/shopdesk/internal/app/system/timeouts"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// DefaultChannel is used when no channel is configured.
const DefaultChannel = "shopdesk:policy:invalidate"

// Config holds the Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// Evicter drops a cached user without re-broadcasting.
// *shoppolicy.Cache satisfies it.
type Evicter interface {
	Evict(id primitive.ObjectID)
}

// Connect opens a Redis client and verifies it answers a ping.
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, timeouts.Ping())
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	logger.Info("connected to redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return client, nil
}

// Bus relays invalidations through Redis pub/sub.
type Bus struct {
	client  *redis.Client
	channel string
	origin  string
	cache   Evicter
	log     *zap.Logger
}

// New creates a Bus for cache on the given channel.
func New(client *redis.Client, channel string, cache Evicter, logger *zap.Logger) *Bus {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		cache:   cache,
		log:     logger,
	}
}

// Origin identifies this process on the channel.
func (b *Bus) Origin() string { return b.origin }

// Publish announces that id was invalidated locally. Failures are logged;
// peers then rely on their cache TTL.
func (b *Bus) Publish(id primitive.ObjectID) {
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.Short())
	defer cancel()
	if err := b.client.Publish(ctx, b.channel, encode(b.origin, id)).Err(); err != nil {
		b.log.Warn("cache invalidation not published",
			zap.String("user_id", id.Hex()),
			zap.Error(err))
	}
}

// Run subscribes to the channel and evicts users announced by peers until
// ctx is cancelled.
func (b *Bus) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	b.log.Info("cache invalidation bus subscribed", zap.String("channel", b.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("cachebus: subscription closed")
			}
			b.handle(msg.Payload)
		}
	}
}

func (b *Bus) handle(payload string) {
	origin, id, err := decode(payload)
	if err != nil {
		b.log.Warn("ignoring malformed invalidation", zap.String("payload", payload))
		return
	}
	if origin == b.origin {
		return
	}
	b.cache.Evict(id)
	b.log.Debug("evicted user on peer invalidation",
		zap.String("user_id", id.Hex()),
		zap.String("origin", origin))
}

func encode(origin string, id primitive.ObjectID) string {
	return origin + " " + id.Hex()
}

func decode(payload string) (string, primitive.ObjectID, error) {
	origin, hex, ok := strings.Cut(payload, " ")
	if !ok || origin == "" {
		return "", primitive.NilObjectID, errors.New("missing origin")
	}
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return "", primitive.NilObjectID, err
	}
	return origin, id, nil
}

// Wait blocks up to d for the subscription to be live. It is meant for
// tests and startup checks against a real server.
func (b *Bus) Wait(ctx context.Context, d time.Duration) error {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		counts, err := b.client.PubSubNumSub(ctx, b.channel).Result()
		if err == nil && counts[b.channel] > 0 {
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return errors.New("cachebus: subscriber not ready")
}
