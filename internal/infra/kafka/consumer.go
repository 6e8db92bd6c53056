// Package kafka consumes proctoring signals published by the browser-side
// monitoring services.
package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"live-arena-service/internal/metrics"
)

type EventHandler func(ctx context.Context, message kafka.Message) error

// Consumer runs one reader per topic and dispatches messages to the handler
// registered for that topic. Messages are committed after handling, whether
// or not the handler succeeded.
type Consumer struct {
	readers  []*kafka.Reader
	handlers map[string]EventHandler
	logger   zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewConsumer(brokers []string, groupID string, topics []string, logger zerolog.Logger) *Consumer {
	readers := make([]*kafka.Reader, 0, len(topics))
	for _, topic := range topics {
		readers = append(readers, kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			GroupID:        groupID,
			Topic:          topic,
			MinBytes:       1,
			MaxBytes:       10e6,
			MaxWait:        500 * time.Millisecond,
			CommitInterval: time.Second,
			StartOffset:    kafka.LastOffset,
		}))
	}
	return &Consumer{
		readers:  readers,
		handlers: make(map[string]EventHandler),
		logger:   logger.With().Str("component", "kafka").Logger(),
	}
}

// RegisterHandler must be called before Start.
func (c *Consumer) RegisterHandler(topic string, handler EventHandler) {
	c.handlers[topic] = handler
}

func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	for _, reader := range c.readers {
		c.wg.Add(1)
		go func(r *kafka.Reader) {
			defer c.wg.Done()
			c.consume(ctx, r)
		}(reader)
	}
	c.logger.Info().Int("topics", len(c.readers)).Msg("kafka consumer started")
}

func (c *Consumer) consume(ctx context.Context, reader *kafka.Reader) {
	topic := reader.Config().Topic
	handler, ok := c.handlers[topic]
	if !ok {
		c.logger.Warn().Str("topic", topic).Msg("no handler registered for topic")
		return
	}

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error().Err(err).Str("topic", topic).Msg("fetch message")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		status := "ok"
		if err := handler(ctx, msg); err != nil {
			status = "error"
			c.logger.Error().Err(err).Str("topic", topic).Int64("offset", msg.Offset).Msg("handler failed")
		}
		metrics.KafkaMessage(topic, status)

		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error().Err(err).Str("topic", topic).Msg("commit message")
		}
	}
}

func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	var lastErr error
	for _, reader := range c.readers {
		if err := reader.Close(); err != nil {
			lastErr = err
			c.logger.Error().Err(err).Msg("close reader")
		}
	}
	c.logger.Info().Msg("kafka consumer stopped")
	return lastErr
}
