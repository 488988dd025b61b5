// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/botwatch/internal/attempts"
	"github.com/tomtom215/botwatch/internal/metrics"
)

// Backends
const (
	BackendChannel = "channel"
	BackendNATS    = "nats"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("event bus is closed")

// Config configures a Bus.
type Config struct {
	Backend    string
	Topic      string
	BufferSize int64

	NATSURL          string
	QueueGroup       string
	SubscribersCount int
	AckWaitTimeout   time.Duration
	CloseTimeout     time.Duration
	MaxReconnects    int
	ReconnectWait    time.Duration

	// BreakerMaxFailures consecutive publish failures open the breaker for
	// BreakerOpenTimeout.
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

// DefaultConfig returns an in-process bus configuration.
func DefaultConfig() Config {
	return Config{
		Backend:            BackendChannel,
		Topic:              DefaultTopic,
		BufferSize:         256,
		NATSURL:            natsgo.DefaultURL,
		SubscribersCount:   1,
		AckWaitTimeout:     30 * time.Second,
		CloseTimeout:       10 * time.Second,
		MaxReconnects:      -1,
		ReconnectWait:      2 * time.Second,
		BreakerMaxFailures: 5,
		BreakerOpenTimeout: 30 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Backend == "" {
		c.Backend = def.Backend
	}
	if c.Topic == "" {
		c.Topic = def.Topic
	}
	if c.BufferSize <= 0 {
		c.BufferSize = def.BufferSize
	}
	if c.NATSURL == "" {
		c.NATSURL = def.NATSURL
	}
	if c.SubscribersCount <= 0 || c.QueueGroup == "" {
		c.SubscribersCount = 1
	}
	if c.AckWaitTimeout <= 0 {
		c.AckWaitTimeout = def.AckWaitTimeout
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = def.CloseTimeout
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = def.MaxReconnects
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = def.ReconnectWait
	}
	if c.BreakerMaxFailures == 0 {
		c.BreakerMaxFailures = def.BreakerMaxFailures
	}
	if c.BreakerOpenTimeout <= 0 {
		c.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
}

// Bus publishes AttemptRecorded events and hands out subscriptions to them.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	breaker    *gobreaker.CircuitBreaker[struct{}]
	cfg        Config
	logger     watermill.LoggerAdapter

	mu     sync.RWMutex
	closed bool
}

// NewBus connects the configured backend.
func NewBus(cfg Config, logger watermill.LoggerAdapter) (*Bus, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	b := &Bus{cfg: cfg, logger: logger}

	switch cfg.Backend {
	case BackendChannel:
		ch := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: cfg.BufferSize,
		}, logger)
		b.publisher, b.subscriber = ch, ch

	case BackendNATS:
		pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
			URL:         cfg.NATSURL,
			NatsOptions: natsOptions(cfg, logger, "publisher"),
			Marshaler:   &wmNats.NATSMarshaler{},
			JetStream:   wmNats.JetStreamConfig{Disabled: true},
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create NATS publisher: %w", err)
		}

		sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
			URL:              cfg.NATSURL,
			QueueGroupPrefix: cfg.QueueGroup,
			SubscribersCount: cfg.SubscribersCount,
			AckWaitTimeout:   cfg.AckWaitTimeout,
			CloseTimeout:     cfg.CloseTimeout,
			NatsOptions:      natsOptions(cfg, logger, "subscriber"),
			Unmarshaler:      &wmNats.NATSMarshaler{},
			JetStream:        wmNats.JetStreamConfig{Disabled: true},
		}, logger)
		if err != nil {
			_ = pub.Close()
			return nil, fmt.Errorf("failed to create NATS subscriber: %w", err)
		}
		b.publisher, b.subscriber = pub, sub

	default:
		return nil, fmt.Errorf("unknown event backend %q", cfg.Backend)
	}

	b.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "event-bus",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed", watermill.LogFields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})

	return b, nil
}

func natsOptions(cfg Config, logger watermill.LoggerAdapter, role string) []natsgo.Option {
	return []natsgo.Option{
		natsgo.Name("botwatch-" + role),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, watermill.LogFields{"role": role})
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"role": role, "url": nc.ConnectedUrl()})
		}),
	}
}

// Backend returns the configured backend name.
func (b *Bus) Backend() string {
	return b.cfg.Backend
}

// Topic returns the topic events are published on.
func (b *Bus) Topic() string {
	return b.cfg.Topic
}

// Publish announces rec. Repeated failures open a circuit breaker so a dead
// broker fails fast instead of stalling every submission.
func (b *Bus) Publish(ctx context.Context, rec *attempts.Record) (err error) {
	defer func() { metrics.RecordEventPublish(err) }()

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	event := NewAttemptRecorded(rec)
	payload, err := event.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode attempt event: %w", err)
	}

	msg := message.NewMessage(event.EventID, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(MetadataVerdict, string(rec.Verdict))
	msg.Metadata.Set(MetadataTriggerSource, string(rec.TriggerSource))

	_, err = b.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, b.publisher.Publish(b.cfg.Topic, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to publish attempt event: %w", err)
	}
	return nil
}

// Subscribe returns a channel of messages on the event topic. Each message
// must be acked or nacked.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.subscriber.Subscribe(ctx, b.cfg.Topic)
}

// Close shuts the publisher and subscriber down. It is safe to call twice.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	if err := b.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("publisher: %w", err))
	}
	// gochannel uses one value for both roles.
	if b.cfg.Backend != BackendChannel {
		if err := b.subscriber.Close(); err != nil {
			errs = append(errs, fmt.Errorf("subscriber: %w", err))
		}
	}
	return errors.Join(errs...)
}
