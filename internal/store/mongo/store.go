// Package mongo implements the checkpoint store, unit ledger and entity
// store on a MongoDB database. Every write is a single-document operation;
// no cross-collection transactions are assumed or required.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/regscan/crawler/internal/crawl"
)

// Collection names.
const (
	checkpointsCollection = "checkpoints"
	ledgerCollection      = "unit_ledger"
	entitiesCollection    = "entities"
)

// Config captures the connection parameters for the document store.
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	ConnectRetries int
	RetryDelay     time.Duration
	// StaleAfter controls when an abandoned processing claim becomes
	// retry-eligible.
	StaleAfter time.Duration
}

// Store holds the client and collection handles shared by the three
// store implementations.
type Store struct {
	client      *mongo.Client
	checkpoints *mongo.Collection
	ledger      *mongo.Collection
	entities    *mongo.Collection
	clock       crawl.Clock
	staleAfter  time.Duration
	logger      *zap.Logger
}

// NewStore connects with bounded retries, pings the server, and ensures the
// query indexes exist. An unreachable store here is a fatal setup failure.
func NewStore(ctx context.Context, cfg Config, clock crawl.Clock, logger *zap.Logger) (*Store, error) {
	if cfg.URI == "" {
		return nil, crawl.E(crawl.KindConfig, "mongo.connect", fmt.Errorf("mongo URI is not configured"))
	}
	if cfg.Database == "" {
		cfg.Database = "regscan"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ConnectRetries <= 0 {
		cfg.ConnectRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if clock == nil {
		clock = crawl.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := connect(ctx, cfg, logger)
	if err != nil {
		return nil, crawl.E(crawl.KindConfig, "mongo.connect", err)
	}

	db := client.Database(cfg.Database)
	s := &Store{
		client:      client,
		checkpoints: db.Collection(checkpointsCollection),
		ledger:      db.Collection(ledgerCollection),
		entities:    db.Collection(entitiesCollection),
		clock:       clock,
		staleAfter:  cfg.StaleAfter,
		logger:      logger,
	}

	if err := s.ensureIndexes(ctx); err != nil {
		return nil, crawl.E(crawl.KindConfig, "mongo.indexes", err)
	}
	logger.Info("connected to mongodb", zap.String("database", cfg.Database))
	return s, nil
}

func connect(ctx context.Context, cfg Config, logger *zap.Logger) (*mongo.Client, error) {
	var lastErr error
	for attempt := 1; attempt <= cfg.ConnectRetries; attempt++ {
		connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
		if err == nil {
			err = client.Ping(connectCtx, readpref.Primary())
			if err == nil {
				cancel()
				return client, nil
			}
			_ = client.Disconnect(connectCtx)
		}
		cancel()
		lastErr = err
		if attempt < cfg.ConnectRetries {
			logger.Warn("mongodb connection attempt failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("retry_in", cfg.RetryDelay),
				zap.Error(err),
			)
			select {
			case <-time.After(cfg.RetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("connect after %d attempts: %w", cfg.ConnectRetries, lastErr)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	entityIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "entity_name", Value: 1}}},
		{Keys: bson.D{{Key: "entity_type", Value: 1}}},
		{Keys: bson.D{{Key: "sentiment", Value: 1}}},
		{Keys: bson.D{{Key: "source_ref", Value: 1}}},
		{Keys: bson.D{{Key: "pan", Value: 1}}},
		{Keys: bson.D{{Key: "cin", Value: 1}}},
		{Keys: bson.D{{Key: "entity_name", Value: 1}, {Key: "pan", Value: 1}}},
	}
	if _, err := s.entities.Indexes().CreateMany(ctx, entityIndexes); err != nil {
		return fmt.Errorf("create entity indexes: %w", err)
	}

	ledgerIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}},
	}
	if _, err := s.ledger.Indexes().CreateMany(ctx, ledgerIndexes); err != nil {
		return fmt.Errorf("create ledger indexes: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	disconnectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.client.Disconnect(disconnectCtx); err != nil {
		return fmt.Errorf("disconnect mongodb: %w", err)
	}
	return nil
}
