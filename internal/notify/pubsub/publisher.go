// Package pubsub publishes unit events to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/regscan/crawler/internal/crawl"
)

// Config captures the Pub/Sub connection parameters.
type Config struct {
	ProjectID string
	Topic     string
}

// Publisher wraps a Pub/Sub topic.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	logger *zap.Logger
}

// New creates a Publisher for the configured topic.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Publisher, error) {
	if cfg.ProjectID == "" || cfg.Topic == "" {
		return nil, fmt.Errorf("pubsub project and topic are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &Publisher{
		client: client,
		topic:  client.Topic(cfg.Topic),
		logger: logger,
	}, nil
}

// Publish marshals the event to JSON and publishes it. Delivery is
// fire-and-forget; a failed publish never fails the unit.
func (p *Publisher) Publish(ctx context.Context, event crawl.UnitEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal unit event: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"run_id": event.RunID,
			"status": event.Status,
		},
	})
	go func() {
		if _, err := result.Get(context.Background()); err != nil {
			p.logger.Warn("publish unit event failed",
				zap.String("unit_ref", event.UnitRef),
				zap.Error(err),
			)
		}
	}()
	return nil
}

// Close flushes pending messages and releases the client.
func (p *Publisher) Close() error {
	p.topic.Stop()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
