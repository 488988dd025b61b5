// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/botwatch/internal/analytics"
	"github.com/tomtom215/botwatch/internal/logging"
)

// MessageTypeAttempt is the websocket message type of relayed attempts.
const MessageTypeAttempt = "attempt"

// ErrSubscriptionClosed is returned by Serve when the bus ends the
// subscription while the relay is still wanted.
var ErrSubscriptionClosed = errors.New("event subscription closed")

// Subscriber is the subscription side of a Bus.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan *message.Message, error)
}

// Broadcaster pushes a typed JSON message to live clients.
type Broadcaster interface {
	BroadcastJSON(messageType string, data interface{})
}

// Relay forwards AttemptRecorded events to a Broadcaster as recent-log
// entries in the dashboard's zone.
type Relay struct {
	subscriber  Subscriber
	broadcaster Broadcaster
	tzOffset    time.Duration
}

// NewRelay creates a relay.
func NewRelay(subscriber Subscriber, broadcaster Broadcaster, tzOffset time.Duration) *Relay {
	return &Relay{
		subscriber:  subscriber,
		broadcaster: broadcaster,
		tzOffset:    tzOffset,
	}
}

// Serve relays events until ctx is done. It returns ErrSubscriptionClosed
// if the subscription ends first so a supervisor can restart it.
func (r *Relay) Serve(ctx context.Context) error {
	messages, err := r.subscriber.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to attempt events: %w", err)
	}

	logging.Info().Str("component", "events-relay").Msg("relaying attempt events to live dashboards")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrSubscriptionClosed
			}
			r.handle(msg)
		}
	}
}

// handle always acks: an undecodable payload will not decode on
// redelivery either.
func (r *Relay) handle(msg *message.Message) {
	defer msg.Ack()

	event, err := DecodeAttemptRecorded(msg.Payload)
	if err != nil {
		logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("dropping undecodable attempt event")
		return
	}
	r.broadcaster.BroadcastJSON(MessageTypeAttempt, analytics.NewRecentLog(&event.Attempt, r.tzOffset))
}

func (r *Relay) String() string {
	return "events-relay"
}
