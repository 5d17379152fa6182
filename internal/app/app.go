// Package app initializes and holds long-lived application services, acting
// as the dependency injection container for the crawler.
package app

import (
	"context"
	"fmt"
	"time"

	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	archgcs "github.com/regscan/crawler/internal/archive/gcs"
	archlocal "github.com/regscan/crawler/internal/archive/local"
	archmemory "github.com/regscan/crawler/internal/archive/memory"
	"github.com/regscan/crawler/internal/config"
	"github.com/regscan/crawler/internal/crawl"
	"github.com/regscan/crawler/internal/extract"
	"github.com/regscan/crawler/internal/fetch"
	"github.com/regscan/crawler/internal/hash/sha256"
	notifymemory "github.com/regscan/crawler/internal/notify/memory"
	notifypubsub "github.com/regscan/crawler/internal/notify/pubsub"
	"github.com/regscan/crawler/internal/ratelimit"
	mongostore "github.com/regscan/crawler/internal/store/mongo"
	pgstore "github.com/regscan/crawler/internal/store/postgres"
	"github.com/regscan/crawler/internal/walker"
)

// App holds the shared, long-lived services for the crawler. It is built
// once at startup and torn down in Close; construction fails fast when any
// critical backend is unreachable.
type App struct {
	Cfg    config.Config
	Logger *zap.Logger

	Store     *mongostore.Store
	Analytics *pgstore.EntityStore
	Archive   crawl.BlobStore
	Publisher crawl.Publisher
	Fetcher   *fetch.Fetcher
	Extractor *extract.Pipeline
	Walker    crawl.Walker
	Hasher    crawl.Hasher
	Clock     crawl.Clock

	indexWalker *walker.IndexWalker
}

// New wires the application from config.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		Cfg:    cfg,
		Logger: logger,
		Hasher: sha256.New(),
		Clock:  crawl.SystemClock{},
	}

	store, err := mongostore.NewStore(ctx, mongostore.Config{
		URI:        cfg.Mongo.URI,
		Database:   cfg.Mongo.Database,
		StaleAfter: cfg.StaleClaimAge(),
	}, a.Clock, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize document store: %w", err)
	}
	a.Store = store

	if err := a.initArchive(ctx); err != nil {
		return nil, err
	}
	if err := a.initAnalytics(ctx); err != nil {
		return nil, err
	}
	if err := a.initPublisher(ctx); err != nil {
		return nil, err
	}

	limiter := ratelimit.New(cfg.HTTP.HostQPS, 1)
	policy := crawl.NewExponentialRetryPolicy(cfg.HTTP.MaxRetries, cfg.BackoffInitial(), cfg.BackoffMax())
	a.Fetcher = fetch.New(fetch.Config{
		UserAgent:      cfg.HTTP.UserAgent,
		RequestTimeout: cfg.RequestTimeout(),
	}, limiter, policy, logger)
	a.Extractor = extract.NewPipeline(logger)

	if err := a.initWalker(policy); err != nil {
		return nil, err
	}

	logger.Info("application services initialized",
		zap.String("crawl_kind", cfg.Crawl.Kind),
		zap.String("archive", cfg.Archive.Provider),
		zap.String("analytics", cfg.Analytics.Provider),
	)
	return a, nil
}

func (a *App) initArchive(ctx context.Context) error {
	switch a.Cfg.Archive.Provider {
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create storage client: %w", err)
		}
		store, err := archgcs.New(client, archgcs.Config{Bucket: a.Cfg.Archive.GCSBucket})
		if err != nil {
			return fmt.Errorf("initialize gcs archive: %w", err)
		}
		a.Archive = store
	case "local":
		store, err := archlocal.New(archlocal.Config{BaseDir: a.Cfg.Archive.BaseDir})
		if err != nil {
			return fmt.Errorf("initialize local archive: %w", err)
		}
		a.Archive = store
	case "none":
		a.Logger.Info("archive disabled, raw documents will be discarded")
		a.Archive = archmemory.New()
	default:
		return fmt.Errorf("unknown archive provider: %s", a.Cfg.Archive.Provider)
	}
	return nil
}

func (a *App) initAnalytics(ctx context.Context) error {
	switch a.Cfg.Analytics.Provider {
	case "postgres":
		store, err := pgstore.NewEntityStore(ctx, pgstore.EntityStoreConfig{
			DSN:   a.Cfg.Analytics.DSN,
			Table: a.Cfg.Analytics.Table,
		})
		if err != nil {
			return fmt.Errorf("initialize analytics sink: %w", err)
		}
		a.Analytics = store
	case "none":
	default:
		return fmt.Errorf("unknown analytics provider: %s", a.Cfg.Analytics.Provider)
	}
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	if !a.Cfg.PubSub.Enabled {
		a.Publisher = notifymemory.New()
		return nil
	}
	pub, err := notifypubsub.New(ctx, notifypubsub.Config{
		ProjectID: a.Cfg.PubSub.ProjectID,
		Topic:     a.Cfg.PubSub.TopicName,
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("initialize pubsub publisher: %w", err)
	}
	a.Publisher = pub
	return nil
}

func (a *App) initWalker(policy crawl.RetryPolicy) error {
	switch crawl.CrawlKind(a.Cfg.Crawl.Kind) {
	case crawl.KindListing:
		w, err := walker.NewListingWalker(walker.ListingConfig{
			BaseURL:        a.Cfg.Source.ListingURL,
			UserAgent:      a.Cfg.HTTP.UserAgent,
			RequestTimeout: a.Cfg.RequestTimeout(),
			MaxEmptyPages:  a.Cfg.Source.MaxEmptyPages,
		}, policy, a.Logger)
		if err != nil {
			return fmt.Errorf("initialize listing walker: %w", err)
		}
		a.Walker = w
	case crawl.KindIndex:
		w, err := walker.NewIndexWalker(walker.IndexConfig{
			URL:         a.Cfg.Source.IndexURL,
			RowSelector: a.Cfg.Source.RowSelector,
			UserAgent:   a.Cfg.HTTP.UserAgent,
		}, nil, policy, a.Logger)
		if err != nil {
			return fmt.Errorf("initialize index walker: %w", err)
		}
		a.Walker = w
		a.indexWalker = w
	default:
		return fmt.Errorf("unknown crawl kind: %s", a.Cfg.Crawl.Kind)
	}
	return nil
}

// EntityStore returns the primary entity sink, fanned out to the analytics
// sink when one is configured.
func (a *App) EntityStore() crawl.EntityStore {
	if a.Analytics == nil {
		return a.Store
	}
	return &fanoutEntityStore{primary: a.Store, secondary: a.Analytics, logger: a.Logger}
}

// Close tears down the application services.
func (a *App) Close(ctx context.Context) {
	if a.indexWalker != nil {
		a.indexWalker.Close()
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			a.Logger.Warn("close publisher", zap.Error(err))
		}
	}
	if a.Analytics != nil {
		a.Analytics.Close()
	}
	if a.Store != nil {
		closeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := a.Store.Close(closeCtx); err != nil {
			a.Logger.Warn("close document store", zap.Error(err))
		}
	}
}

// fanoutEntityStore writes to the document store first and mirrors to the
// analytics sink best-effort. The document store count is the authoritative
// result; an analytics failure is logged, never escalated.
type fanoutEntityStore struct {
	primary   crawl.EntityStore
	secondary crawl.EntityStore
	logger    *zap.Logger
}

func (f *fanoutEntityStore) SaveEntities(ctx context.Context, entities []crawl.Entity) (int, error) {
	n, err := f.primary.SaveEntities(ctx, entities)
	if err != nil {
		return n, err
	}
	if _, serr := f.secondary.SaveEntities(ctx, entities); serr != nil {
		f.logger.Warn("analytics sink write failed", zap.Error(serr))
	}
	return n, nil
}

func (f *fanoutEntityStore) Summary(ctx context.Context) (crawl.EntitySummary, error) {
	return f.primary.Summary(ctx)
}
