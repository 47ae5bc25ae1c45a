// Package app assembles the reconciler and its collaborators from config.
package app

import (
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/i474232898/ward-air-quality/internal/airquality/batch"
	"github.com/i474232898/ward-air-quality/internal/airquality/upstream"
	"github.com/i474232898/ward-air-quality/internal/config"
	"github.com/i474232898/ward-air-quality/internal/dataset"
	"github.com/i474232898/ward-air-quality/internal/observability"
	"github.com/i474232898/ward-air-quality/internal/reconcile"
	"github.com/i474232898/ward-air-quality/internal/store"
)

type Components struct {
	HTTPClient *http.Client
	Google     *upstream.GoogleClient
	// Lookuper is nil when neither a proxy URL nor an API key is configured.
	Lookuper     batch.Lookuper
	Orchestrator *batch.Orchestrator
	Loader       *dataset.Loader
	History      *store.MemoryStore
	Reconciler   *reconcile.Reconciler
}

// Build wires every component. metrics may be nil.
func Build(cfg *config.AppConfig, logger *zap.Logger, metrics *observability.Metrics) *Components {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	var limiter *rate.Limiter
	if cfg.ProxyRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.ProxyRateLimit), cfg.ProxyRateBurst)
	}
	google := upstream.NewGoogleClient(httpClient, cfg.GoogleAPIKey, cfg.GoogleURL, limiter, logger.Named("google"), metrics)

	c := &Components{
		HTTPClient: httpClient,
		Google:     google,
		Loader:     dataset.NewLoader(cfg.WardDatasetSource, cfg.WardNamesSource, httpClient, logger.Named("dataset")),
		History:    store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge),
	}

	switch {
	case cfg.UseProxy():
		c.Lookuper = upstream.NewProxyClient(httpClient, cfg.UpstreamProxyURL, logger.Named("upstream"), metrics)
	case google.Configured():
		c.Lookuper = google
	default:
		logger.Warn("no air quality proxy or API key configured; serving the local dataset only")
	}

	var fetcher reconcile.Fetcher
	if c.Lookuper != nil {
		c.Orchestrator = batch.New(c.Lookuper,
			batch.WithChunkSize(cfg.FetchChunkSize),
			batch.WithDelay(cfg.FetchChunkDelay),
			batch.WithMetrics(metrics),
		)
		fetcher = c.Orchestrator
	}

	c.Reconciler = reconcile.New(c.Loader, fetcher,
		reconcile.WithEnhancement(cfg.EnhanceEnabled),
		reconcile.WithBatchSize(cfg.EnhanceBatchSize),
		reconcile.WithLogger(logger.Named("reconcile")),
		reconcile.WithMetrics(metrics),
		reconcile.WithHistory(c.History),
	)
	return c
}
