package loader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"
)

// RefKey is the single key that marks a reference node.
const RefKey = "$ref"

// Loader fetches structured documents, replaces every reference node with
// the content it points to and caches each resolved resource, so a
// resource is fetched and decoded at most once per Loader.
//
// Values returned by Load are shared with the cache and must not be
// modified; use Clone for a private copy. A Loader may be shared between
// goroutines: Load calls are serialized.
type Loader struct {
	fetcher    Fetcher
	decoder    Decoder
	baseURI    string
	logger     *slog.Logger
	onCacheHit func(resource string)

	mu    sync.Mutex
	cache map[string]any
}

// Option configures a Loader.
type Option func(*Loader)

// WithBaseURI sets the base every relative reference is resolved against.
// Without it each resource's own directory is used.
func WithBaseURI(base string) Option {
	return func(l *Loader) {
		l.baseURI = base
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger.With("component", "loader")
	}
}

// WithCacheHook registers a callback invoked whenever a resource is served
// from the cache.
func WithCacheHook(fn func(resource string)) Option {
	return func(l *Loader) {
		l.onCacheHit = fn
	}
}

// New creates a Loader with an empty cache.
func New(fetcher Fetcher, decoder Decoder, opts ...Option) *Loader {
	l := &Loader{
		fetcher: fetcher,
		decoder: decoder,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		cache:   make(map[string]any),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the fully dereferenced document at uri. A '#/a/b' fragment
// selects a sub-value by successive mapping-key lookups.
func (l *Loader) Load(ctx context.Context, uri string) (any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(ctx, uri, nil)
}

// CachedResources lists the resource URIs resolved so far, sorted.
func (l *Loader) CachedResources() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.cache))
	for k := range l.cache {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// load resolves uri; chain holds the resources currently being resolved
// by the calling stack.
func (l *Loader) load(ctx context.Context, uri string, chain []string) (any, error) {
	resource, fragment := SplitFragment(uri)
	resource = normalizeResource(resource)
	doc, err := l.resource(ctx, resource, chain)
	if err != nil {
		return nil, err
	}
	return lookup(doc, resource, fragment)
}

func (l *Loader) resource(ctx context.Context, resource string, chain []string) (any, error) {
	if doc, ok := l.cache[resource]; ok {
		if l.onCacheHit != nil {
			l.onCacheHit(resource)
		}
		return doc, nil
	}
	for _, c := range chain {
		if c == resource {
			return nil, &CycleError{Chain: appendCopy(chain, resource)}
		}
	}

	data, err := l.fetcher.Fetch(ctx, resource)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("fetched resource", "uri", resource, "size", humanize.Bytes(uint64(len(data))))

	raw, err := l.decoder.Decode(data)
	if err != nil {
		var de *DecodeError
		if !errors.As(err, &de) {
			return nil, &DecodeError{URI: resource, Format: l.decoder.Format(), Err: err}
		}
		if de.URI == "" {
			de.URI = resource
		}
		return nil, de
	}

	base := l.baseURI
	if base == "" {
		base = BaseOf(resource)
	}
	r := &resolver{
		loader:   l,
		ctx:      ctx,
		resource: resource,
		raw:      raw,
		base:     base,
		chain:    appendCopy(chain, resource),
	}
	doc, err := r.walk(raw, nil)
	if err != nil {
		return nil, err
	}
	l.cache[resource] = doc
	return doc, nil
}

// resolver walks one decoded resource.
type resolver struct {
	loader   *Loader
	ctx      context.Context
	resource string
	raw      any
	base     string
	chain    []string
}

// walk returns a copy of v with every reference node replaced. Containers
// are rebuilt so the decoded input is never modified. local tracks the
// same-document fragments currently being expanded.
func (r *resolver) walk(v any, local []string) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		if ref, ok := RefTarget(val); ok {
			return r.deref(ref, local)
		}
		out := make(map[string]any, len(val))
		for k, child := range val {
			resolved, err := r.walk(child, local)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil

	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			resolved, err := r.walk(child, local)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil

	default:
		return v, nil
	}
}

func (r *resolver) deref(ref string, local []string) (any, error) {
	refPath, fragment := SplitFragment(ref)
	if refPath != "" {
		abs := Resolve(r.base, ref)
		if res, _ := SplitFragment(abs); res != r.resource {
			return r.loader.load(r.ctx, abs, r.chain)
		}
	}

	// Same-document reference: expand the addressed part of this resource.
	key := r.resource + "#" + fragment
	for _, k := range local {
		if k == key {
			return nil, &CycleError{Chain: append(appendCopy(r.chain[:len(r.chain)-1], local...), key)}
		}
	}
	local = appendCopy(local, key)
	target, err := r.lookupLocal(fragment, local)
	if err != nil {
		return nil, err
	}
	return r.walk(target, local)
}

// lookupLocal walks fragment through the resource being resolved. A
// reference node met on the way is dereferenced before the walk goes on,
// so the result matches a lookup in the resolved document.
func (r *resolver) lookupLocal(fragment string, local []string) (any, error) {
	if fragment == "" {
		return r.raw, nil
	}
	cur := r.raw
	for _, seg := range fragmentSegments(fragment) {
		if m, ok := cur.(map[string]any); ok {
			if ref, isRef := RefTarget(m); isRef {
				resolved, err := r.deref(ref, local)
				if err != nil {
					return nil, err
				}
				cur = resolved
			}
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, &FragmentError{URI: r.resource, Fragment: fragment, Segment: seg}
		}
		next, ok := m[seg]
		if !ok {
			return nil, &FragmentError{URI: r.resource, Fragment: fragment, Segment: seg}
		}
		cur = next
	}
	return cur, nil
}

// RefTarget reports whether m is a reference node and returns its target.
// A reference node has exactly one key, "$ref", with a string value.
func RefTarget(m map[string]any) (string, bool) {
	if len(m) != 1 {
		return "", false
	}
	ref, ok := m[RefKey].(string)
	return ref, ok
}

// lookup walks fragment through doc by plain mapping-key lookups.
func lookup(doc any, resource, fragment string) (any, error) {
	if fragment == "" {
		return doc, nil
	}
	cur := doc
	for _, seg := range fragmentSegments(fragment) {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, &FragmentError{URI: resource, Fragment: fragment, Segment: seg}
		}
		next, ok := m[seg]
		if !ok {
			return nil, &FragmentError{URI: resource, Fragment: fragment, Segment: seg}
		}
		cur = next
	}
	return cur, nil
}

func appendCopy(s []string, more ...string) []string {
	out := make([]string, 0, len(s)+len(more))
	out = append(out, s...)
	return append(out, more...)
}

// Clone returns a deep copy of a structured value.
func Clone(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = Clone(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = Clone(child)
		}
		return out
	default:
		return v
	}
}

// ContainsRef reports whether any reference node remains in v.
func ContainsRef(v any) bool {
	switch val := v.(type) {
	case map[string]any:
		if _, ok := RefTarget(val); ok {
			return true
		}
		for _, child := range val {
			if ContainsRef(child) {
				return true
			}
		}
	case []any:
		for _, child := range val {
			if ContainsRef(child) {
				return true
			}
		}
	}
	return false
}
