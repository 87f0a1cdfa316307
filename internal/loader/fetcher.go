package loader

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Fetcher retrieves the raw bytes behind a URI. Implementations fail with
// an error matching ErrResourceUnavailable and never retry.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, uri string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, uri string) ([]byte, error) {
	return f(ctx, uri)
}

// FileFetcher reads bare local paths and file:// URIs.
type FileFetcher struct{}

func (FileFetcher) Fetch(_ context.Context, uri string) ([]byte, error) {
	p := uri
	if ParseScheme(uri) == SchemeFile {
		u, err := url.Parse(uri)
		if err != nil {
			return nil, &ResourceError{URI: uri, Err: err}
		}
		p = u.Path
		if u.Host != "" && u.Host != "localhost" {
			return nil, &ResourceError{URI: uri, Detail: "remote file host " + u.Host + " not supported"}
		}
	}
	data, err := os.ReadFile(p)
	if err != nil {
		detail := ""
		switch {
		case errors.Is(err, fs.ErrNotExist):
			detail = "not found"
		case errors.Is(err, fs.ErrPermission):
			detail = "permission denied"
		}
		return nil, &ResourceError{URI: uri, Detail: detail, Err: err}
	}
	return data, nil
}

// HTTPFetcherConfig contains HTTP/HTTPS fetcher settings.
type HTTPFetcherConfig struct {
	// Timeout is the overall request timeout. Zero means none.
	Timeout time.Duration

	// DefaultHeaders are added to every request.
	DefaultHeaders map[string]string
}

// HTTPFetcher retrieves http:// and https:// resources with a single GET.
type HTTPFetcher struct {
	config HTTPFetcherConfig
	client *http.Client
}

// NewHTTPFetcher creates an HTTPFetcher. tlsCfg may be nil.
func NewHTTPFetcher(cfg HTTPFetcherConfig, tlsCfg *tls.Config) *HTTPFetcher {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSClientConfig:     tlsCfg,
	}
	return &HTTPFetcher{
		config: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}
}

// maxDetail caps the upstream body echoed into error messages.
const maxDetail = 512

func (f *HTTPFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, &ResourceError{URI: uri, Err: err}
	}
	for k, v := range f.config.DefaultHeaders {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &ResourceError{URI: uri, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := strings.TrimSpace(string(body))
		if len(detail) > maxDetail {
			detail = detail[:maxDetail] + "..."
		}
		if detail == "" {
			detail = resp.Status
		}
		return nil, &ResourceError{URI: uri, Status: resp.StatusCode, Detail: detail}
	}
	if err != nil {
		return nil, &ResourceError{URI: uri, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

// Mux dispatches to a Fetcher by URI scheme. Bare paths use the ""
// entry, so callers never branch on scheme themselves.
type Mux struct {
	fetchers map[string]Fetcher
}

// NewMux returns a Mux serving bare paths and file:// from the local disk
// and http(s):// through an HTTPFetcher with the given config.
func NewMux(httpCfg HTTPFetcherConfig) *Mux {
	m := &Mux{fetchers: make(map[string]Fetcher)}
	m.Handle("", FileFetcher{})
	m.Handle(SchemeFile, FileFetcher{})
	hf := NewHTTPFetcher(httpCfg, nil)
	m.Handle(SchemeHTTP, hf)
	m.Handle(SchemeHTTPS, hf)
	return m
}

// Handle registers f for scheme, replacing any previous registration.
func (m *Mux) Handle(scheme string, f Fetcher) {
	m.fetchers[strings.ToLower(scheme)] = f
}

func (m *Mux) Fetch(ctx context.Context, uri string) ([]byte, error) {
	scheme := ParseScheme(uri)
	f, ok := m.fetchers[scheme]
	if !ok {
		return nil, &ResourceError{URI: uri, Detail: fmt.Sprintf("unsupported scheme %q", scheme)}
	}
	return f.Fetch(ctx, uri)
}
