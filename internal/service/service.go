// Package service assembles the template repository from configuration:
// it reads the workflow schema and the listing through the configured
// fetchers, loads the repository and records every load.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/me/wftemplates/internal/config"
	"github.com/me/wftemplates/internal/loader"
	"github.com/me/wftemplates/internal/metrics"
	"github.com/me/wftemplates/internal/repository"
	"github.com/me/wftemplates/internal/source"
	"github.com/me/wftemplates/internal/store"
	"github.com/me/wftemplates/pkg/model"
)

// UserAgent is sent with every HTTP fetch.
const UserAgent = "wfrepo/1"

// NewFetcher returns the fetcher for bare paths, file://, http(s):// and
// s3:// URIs. S3 credentials come from the default AWS chain on first use.
func NewFetcher(cfg config.FetchConfig) *loader.Mux {
	m := loader.NewMux(loader.HTTPFetcherConfig{
		Timeout:        cfg.Timeout,
		DefaultHeaders: map[string]string{"User-Agent": UserAgent},
	})
	m.Handle(loader.SchemeS3, loader.NewS3Fetcher(nil))
	return m
}

// Service owns the repository and its load history.
type Service struct {
	cfg     config.Config
	logger  *slog.Logger
	fetcher loader.Fetcher
	store   store.Store
	metrics *metrics.Metrics
	now     func() time.Time

	repo *repository.Repository
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithFetcher replaces the fetcher built from the configuration.
func WithFetcher(f loader.Fetcher) Option {
	return func(s *Service) {
		s.fetcher = f
	}
}

// WithStore records loads and snapshots the served templates in st.
func WithStore(st store.Store) Option {
	return func(s *Service) {
		s.store = st
	}
}

// WithMetrics instruments fetches, cache hits and loads.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New reads the workflow schema named by cfg.DB.Schema, when set, and
// creates an empty repository validating against it.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Service, error) {
	s := &Service{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fetcher == nil {
		s.fetcher = NewFetcher(cfg.Fetch)
	}
	var loaderOpts []loader.Option
	if s.metrics != nil {
		s.fetcher = s.metrics.Fetcher(s.fetcher)
		loaderOpts = append(loaderOpts, s.metrics.LoaderOption())
	}
	loaderOpts = append(loaderOpts, loader.WithLogger(s.logger))

	policy, err := repository.ParsePolicy(cfg.DB.Policy)
	if err != nil {
		return nil, err
	}
	repoOpts := []repository.Option{
		repository.WithPolicy(policy),
		repository.WithLogger(s.logger),
		repository.WithLoaderOptions(loaderOpts...),
	}

	if cfg.DB.Schema != nil {
		doc, err := source.ReadDocument(ctx, s.fetcher, cfg.DB.Schema, loaderOpts...)
		if err != nil {
			return nil, fmt.Errorf("read workflow schema: %w", err)
		}
		v, err := repository.NewSchemaValidator(doc)
		if err != nil {
			return nil, fmt.Errorf("workflow schema: %w", err)
		}
		repoOpts = append(repoOpts, repository.WithValidator(v))
		s.logger.Info("workflow schema loaded", "source", describe(cfg.DB.Schema))
	} else {
		s.logger.Warn("no workflow schema configured, templates are not validated")
	}

	s.repo = repository.New(s.fetcher, repoOpts...)
	return s, nil
}

// Repository returns the repository the service loads into.
func (s *Service) Repository() *repository.Repository { return s.repo }

// Reload reads the listing and loads it into the repository. The returned
// run is recorded even when err is non-nil.
func (s *Service) Reload(ctx context.Context) (*model.LoadRun, error) {
	run := &model.LoadRun{
		ID:        "load_" + uuid.New().String(),
		Listing:   describe(s.cfg.DB.URI),
		Policy:    string(s.repo.Policy()),
		StartedAt: s.now().UTC(),
	}

	listing, err := s.readListing(ctx)
	if err != nil {
		run.State = model.LoadStateFailed
		run.Error = err.Error()
		s.finish(ctx, run)
		return run, err
	}

	report, err := s.repo.Load(ctx, listing)
	run.Entries = report.Entries
	run.Loaded = len(report.Loaded)
	run.Failures = report.Failures
	run.State = report.State()
	if err != nil {
		run.State = model.LoadStateFailed
		run.Error = err.Error()
	}
	s.finish(ctx, run)
	return run, err
}

// Start performs the initial load. When the listing cannot be loaded and
// the store holds a snapshot of an earlier load, the snapshot is served
// instead and Start succeeds.
func (s *Service) Start(ctx context.Context) (*model.LoadRun, error) {
	run, err := s.Reload(ctx)
	if err == nil || s.store == nil || ctx.Err() != nil {
		return run, err
	}

	snap, serr := s.store.LoadSnapshot(ctx)
	if serr != nil {
		return run, errors.Join(err, fmt.Errorf("read snapshot: %w", serr))
	}
	if len(snap) == 0 {
		return run, err
	}
	s.repo.Replace(snap)
	if s.metrics != nil {
		s.metrics.SetTemplates(s.repo.Len())
	}
	s.logger.Warn("listing could not be loaded, serving stored snapshot",
		"error", err, "templates", s.repo.Len())
	return run, nil
}

func (s *Service) readListing(ctx context.Context) ([]repository.Descriptor, error) {
	if s.cfg.DB.URI == nil {
		return nil, fmt.Errorf("%w: db.uri is not set", source.ErrConfiguration)
	}
	doc, err := source.ReadDocument(ctx, s.fetcher, s.cfg.DB.URI)
	if err != nil {
		return nil, fmt.Errorf("read listing: %w", err)
	}
	return repository.ParseListing(doc)
}

// finish stamps the run and records it. Store failures are logged; they
// never fail the load.
func (s *Service) finish(ctx context.Context, run *model.LoadRun) {
	run.FinishedAt = s.now().UTC()
	if s.metrics != nil {
		s.metrics.ObserveLoad(run, s.repo.Len())
	}
	s.logger.Info("load finished", "run", run.ID, "state", run.State,
		"entries", run.Entries, "loaded", run.Loaded, "failed", len(run.Failures),
		"duration", run.Duration().String())

	if s.store == nil {
		return
	}
	if err := s.store.RecordLoad(ctx, run); err != nil {
		s.logger.Error("record load", "run", run.ID, "error", err)
	}
	// An empty result never replaces the snapshot a restart falls back to.
	if run.State.Served() && run.Loaded > 0 {
		if err := s.store.SaveSnapshot(ctx, run.ID, s.repo.Snapshot()); err != nil {
			s.logger.Error("save snapshot", "run", run.ID, "error", err)
		}
	}
}

// describe renders a listing or schema reference for logs and load runs.
func describe(ref any) string {
	switch v := ref.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		h, err := source.FromValue(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return h.String()
	}
}
