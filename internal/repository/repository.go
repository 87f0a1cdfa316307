// Package repository holds the workflow templates served by the API.
//
// A load reads every listing entry's schema through its source handle,
// validates it and swaps the complete result in. Two failure policies are
// supported: fail-soft skips a failing entry and records it in the
// LoadReport, fail-fast abandons the whole load on the first failure and
// leaves the current contents untouched.
package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/me/wftemplates/internal/loader"
	"github.com/me/wftemplates/internal/source"
	"github.com/me/wftemplates/pkg/model"
)

// Policy decides what a failing listing entry does to a load.
type Policy string

const (
	FailSoft Policy = "fail-soft"
	FailFast Policy = "fail-fast"
)

// ParsePolicy accepts "fail-soft" and "fail-fast". Empty means fail-soft.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", FailSoft:
		return FailSoft, nil
	case FailFast:
		return FailFast, nil
	}
	return "", fmt.Errorf("unknown load policy %q (want %s or %s)", s, FailSoft, FailFast)
}

// ErrDuplicateIdentifier is returned when two listing entries share an
// identifier.
var ErrDuplicateIdentifier = errors.New("duplicate workflow template")

// EntryError wraps the failure of one listing entry.
type EntryError struct {
	Position   int
	Identifier string
	Err        error
}

func (e *EntryError) Error() string {
	if e.Identifier == "" {
		return fmt.Sprintf("listing entry %d: %v", e.Position, e.Err)
	}
	return fmt.Sprintf("listing entry %d (%s): %v", e.Position, e.Identifier, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }

// LoadReport describes the outcome of one Load call.
type LoadReport struct {
	Policy   Policy
	Entries  int
	Loaded   []string // identifiers in listing order
	Failures []model.LoadFailure
}

// State summarizes the report.
func (r *LoadReport) State() model.LoadState {
	switch {
	case len(r.Failures) == 0:
		return model.LoadStateSuccess
	case r.Policy == FailFast:
		return model.LoadStateFailed
	default:
		return model.LoadStatePartial
	}
}

// Repository is a keyed, read-mostly collection of templates. It is safe
// for concurrent use; Load calls are serialized.
type Repository struct {
	fetcher    loader.Fetcher
	validator  Validator
	policy     Policy
	logger     *slog.Logger
	loaderOpts []loader.Option

	loadMu sync.Mutex

	mu        sync.RWMutex
	templates map[string]*model.Template
	order     []*model.Template
}

// Option configures a Repository.
type Option func(*Repository)

// WithPolicy sets the failure policy. The default is FailSoft.
func WithPolicy(p Policy) Option {
	return func(r *Repository) {
		r.policy = p
	}
}

// WithValidator sets the validator every resolved schema must pass.
func WithValidator(v Validator) Option {
	return func(r *Repository) {
		r.validator = v
	}
}

// WithLogger sets the logger used to report skipped entries.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Repository) {
		r.logger = logger.With("component", "repository")
	}
}

// WithLoaderOptions passes options to every loader the repository creates.
func WithLoaderOptions(opts ...loader.Option) Option {
	return func(r *Repository) {
		r.loaderOpts = append(r.loaderOpts, opts...)
	}
}

// New creates an empty repository reading schemas through fetcher.
func New(fetcher loader.Fetcher, opts ...Option) *Repository {
	r := &Repository{
		fetcher:   fetcher,
		policy:    FailSoft,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		templates: make(map[string]*model.Template),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the configured failure policy.
func (r *Repository) Policy() Policy { return r.policy }

// Load builds a template for every listing entry and replaces the
// repository contents with the result. Under FailFast the first failing
// entry aborts the load with an *EntryError and nothing changes; under
// FailSoft failures are logged, recorded in the report and skipped. A
// cancelled context always aborts.
func (r *Repository) Load(ctx context.Context, listing []Descriptor) (*LoadReport, error) {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	report := &LoadReport{Policy: r.policy, Entries: len(listing)}
	byID := make(map[string]*model.Template, len(listing))
	order := make([]*model.Template, 0, len(listing))

	for i, d := range listing {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		tmpl, err := r.build(ctx, d, byID)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			entryErr := &EntryError{Position: i, Identifier: d.Identifier, Err: err}
			report.Failures = append(report.Failures, failure(entryErr))
			if r.policy == FailFast {
				r.logger.Error("template load aborted", "position", i, "identifier", d.Identifier, "error", err)
				return report, entryErr
			}
			r.logger.Error("skipping workflow template", "position", i, "identifier", d.Identifier, "error", err)
			continue
		}
		byID[tmpl.ID] = tmpl
		order = append(order, tmpl)
		report.Loaded = append(report.Loaded, tmpl.ID)
		r.logger.Debug("loaded workflow template", "identifier", tmpl.ID, "name", tmpl.Name)
	}

	r.mu.Lock()
	r.templates = byID
	r.order = order
	r.mu.Unlock()

	r.logger.Info("repository loaded", "policy", r.policy, "entries", report.Entries,
		"loaded", len(report.Loaded), "failed", len(report.Failures))
	return report, nil
}

func (r *Repository) build(ctx context.Context, d Descriptor, seen map[string]*model.Template) (*model.Template, error) {
	if d.Identifier == "" {
		return nil, fmt.Errorf("%w: missing identifier", source.ErrConfiguration)
	}
	if _, dup := seen[d.Identifier]; dup {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateIdentifier, d.Identifier)
	}
	h, err := source.FromValue(d.Schema)
	if err != nil {
		return nil, err
	}
	schema, err := h.Read(ctx, r.fetcher, r.loaderOpts...)
	if err != nil {
		return nil, err
	}
	if r.validator != nil {
		if err := r.validator.Validate(schema); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				ve.Identifier = d.Identifier
			}
			return nil, err
		}
	}
	return &model.Template{
		ID:          d.Identifier,
		Name:        d.Name,
		Description: d.Description,
		Schema:      schema,
		Parameters:  d.Parameters,
	}, nil
}

// Replace swaps in templates directly, bypassing sources and validation.
// Later duplicates of an identifier are dropped.
func (r *Repository) Replace(templates []*model.Template) {
	byID := make(map[string]*model.Template, len(templates))
	order := make([]*model.Template, 0, len(templates))
	for _, t := range templates {
		if _, dup := byID[t.ID]; dup {
			continue
		}
		byID[t.ID] = t
		order = append(order, t)
	}
	r.mu.Lock()
	r.templates = byID
	r.order = order
	r.mu.Unlock()
}

// Get returns the template with the given identifier.
func (r *Repository) Get(id string) (*model.Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id]
	return t, ok
}

// List returns all templates ordered by name; templates with equal names
// keep their listing order.
func (r *Repository) List() []*model.Template {
	r.mu.RLock()
	out := make([]*model.Template, len(r.order))
	copy(out, r.order)
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Snapshot returns all templates in listing order.
func (r *Repository) Snapshot() []*model.Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Template, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of templates.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func failure(e *EntryError) model.LoadFailure {
	f := model.LoadFailure{
		Position:   e.Position,
		Identifier: e.Identifier,
		Kind:       Classify(e.Err),
		Message:    e.Err.Error(),
	}
	var ve *ValidationError
	if errors.As(e.Err, &ve) {
		f.Details = ve.Details
	}
	return f
}

// Classify maps an entry error to its failure kind.
func Classify(err error) model.FailureKind {
	switch {
	case errors.Is(err, source.ErrConfiguration):
		return model.FailureConfiguration
	case errors.Is(err, ErrDuplicateIdentifier):
		return model.FailureDuplicate
	case errors.Is(err, ErrValidation):
		return model.FailureValidation
	case errors.Is(err, source.ErrUnknownResource):
		return model.FailureUnknown
	case errors.Is(err, loader.ErrResourceUnavailable):
		return model.FailureResource
	case errors.Is(err, loader.ErrDecode):
		return model.FailureDecode
	case errors.Is(err, loader.ErrFragmentNotFound):
		return model.FailureFragment
	case errors.Is(err, loader.ErrCyclicReference):
		return model.FailureCycle
	}
	return model.FailureOther
}
