package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Ensure the buses implement InvalidationBus.
var (
	_ InvalidationBus = (*redisBus)(nil)
	_ InvalidationBus = (*localBus)(nil)
)

// Invalidation is the message broadcast to other front instances after a mutation.
type Invalidation struct {
	Origin string    `json:"origin"`
	Tags   []Tag     `json:"tags"`
	SentAt time.Time `json:"sentAt"`
}

// InvalidationBus fans out cache invalidations between front instances.
type InvalidationBus interface {
	Publish(ctx context.Context, tags ...Tag) error
	// Receive blocks until an invalidation from another instance arrives.
	Receive(ctx context.Context) (Invalidation, error)
	Close() error
}

// GetRedisClient provides a ready to use redis client.
func GetRedisClient(config *Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", config.Redis.Host, config.Redis.Port),
		DialTimeout:  config.Redis.DialTimeout,
		ReadTimeout:  config.Redis.ReadTimeout,
		WriteTimeout: config.Redis.WriteTimeout,
		PoolSize:     config.Redis.PoolSize,
		PoolTimeout:  config.Redis.PoolTimeout,
		Password:     config.Redis.Password,
		Username:     config.Redis.Username,
		DB:           config.Redis.DatabaseIndex,
	})

	// test connection.
	if pong, err := client.Ping(context.Background()).Result(); pong != "PONG" || err != nil {
		return client, fmt.Errorf("test connection failed: %v", err)
	}
	return client, nil
}

type redisBus struct {
	logger   *zap.Logger
	client   *redis.Client
	channel  string
	instance string
	clock    Clocker
	pubsub   *redis.PubSub
}

// NewRedisBus provides a redis pub/sub based bus. The channel subscription
// is confirmed before returning so invalidations published from then on
// are buffered until received. Messages published by the same instance
// are skipped on reception.
func NewRedisBus(ctx context.Context, logger *zap.Logger, client *redis.Client, channel, instance string, clock Clocker) (InvalidationBus, error) {
	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %q: %w", channel, err)
	}
	return &redisBus{
		logger:   logger,
		client:   client,
		channel:  channel,
		instance: instance,
		clock:    clock,
		pubsub:   pubsub,
	}, nil
}

// Publish sends the tags on the shared channel.
func (b *redisBus) Publish(ctx context.Context, tags ...Tag) error {
	payload, err := jsonCodec.Marshal(Invalidation{Origin: b.instance, Tags: tags, SentAt: b.clock.Now()})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Receive returns the next invalidation published by another instance.
func (b *redisBus) Receive(ctx context.Context) (Invalidation, error) {
	for {
		msg, err := b.pubsub.ReceiveMessage(ctx)
		if err != nil {
			return Invalidation{}, err
		}

		var inv Invalidation
		if err = jsonCodec.Unmarshal([]byte(msg.Payload), &inv); err != nil {
			b.logger.Warn("bus: failed to decode invalidation", zap.String("bus.payload", msg.Payload), zap.Error(err))
			continue
		}
		if inv.Origin == b.instance {
			continue
		}
		return inv, nil
	}
}

// Close releases the subscription and the client.
func (b *redisBus) Close() error {
	_ = b.pubsub.Close()
	return b.client.Close()
}

// localBus is used when a single front instance runs. Nothing is ever received.
type localBus struct{}

// NewLocalBus provides a bus which does not leave the process.
func NewLocalBus() InvalidationBus {
	return &localBus{}
}

func (*localBus) Publish(context.Context, ...Tag) error {
	return nil
}

func (*localBus) Receive(ctx context.Context) (Invalidation, error) {
	<-ctx.Done()
	return Invalidation{}, ctx.Err()
}

func (*localBus) Close() error {
	return nil
}
