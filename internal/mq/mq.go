// Package mq publishes blog lifecycle events (user signups, post
// mutations) to a configurable message broker.
package mq

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// Event types published by the server.
const (
	EventUserRegistered = "user.registered"
	EventPostCreated    = "post.created"
	EventPostUpdated    = "post.updated"
	EventPostDeleted    = "post.deleted"
)

// EventPublisher emits JSON-encoded lifecycle events on a single
// channel. Publishing is best-effort: failures are logged and swallowed
// so a broker outage never fails the originating request. A nil
// publisher is valid and drops all events.
type EventPublisher struct {
	backend Backend
	channel string
	logger  *zap.Logger
}

func NewEventPublisher(backend Backend, channel string, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{
		backend: backend,
		channel: channel,
		logger:  logger,
	}
}

// Publish encodes payload as JSON and sends it with the event type as a
// message attribute.
func (p *EventPublisher) Publish(ctx context.Context, eventType string, payload any) {
	if p == nil || p.backend == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("event encode failed",
			zap.String("type", eventType),
			zap.Error(err),
		)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	id, err := p.backend.Publish(ctx, p.channel, data, map[string]string{"type": eventType})
	if err != nil {
		p.logger.Warn("event publish failed",
			zap.String("type", eventType),
			zap.Error(err),
		)
		return
	}
	p.logger.Debug("event published",
		zap.String("type", eventType),
		zap.String("id", id),
	)
}

// Close closes the underlying backend.
func (p *EventPublisher) Close() error {
	if p == nil || p.backend == nil {
		return nil
	}
	return p.backend.Close()
}
