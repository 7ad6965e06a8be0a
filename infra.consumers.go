package main

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// retryDelay is the pause after a failed bus receive.
const retryDelay = time.Second

// Invalidator is implemented by the query cache.
type Invalidator interface {
	Invalidate(tags ...Tag) int
}

// Consumer processes messages until its context is done.
type Consumer interface {
	Consume(ctx context.Context) error
}

type invalidationConsumer struct {
	logger *zap.Logger
	bus    InvalidationBus
	cache  Invalidator
}

// NewInvalidationConsumer applies invalidations received from other instances to the local cache.
func NewInvalidationConsumer(logger *zap.Logger, bus InvalidationBus, cache Invalidator) Consumer {
	return &invalidationConsumer{logger, bus, cache}
}

func (ic *invalidationConsumer) Consume(ctx context.Context) error {
	for {
		inv, err := ic.bus.Receive(ctx)
		if err != nil && ctx.Err() != nil {
			ic.logger.Info("consumer: bus receive call: context is done: exit", zap.String("reason", ctx.Err().Error()))
			return nil
		}

		if err != nil {
			ic.logger.Error("consumer: error on bus receive call", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(retryDelay):
			}
			continue
		}

		if len(inv.Tags) == 0 {
			ic.logger.Warn("consumer: received invalidation without tags", zap.String("origin", inv.Origin))
			continue
		}

		n := ic.cache.Invalidate(inv.Tags...)
		ic.logger.Debug("consumer: applied remote invalidation",
			zap.String("origin", inv.Origin),
			zap.Any("tags", inv.Tags),
			zap.Int("entries", n),
		)
	}
}
