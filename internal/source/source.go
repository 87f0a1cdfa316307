// Package source turns a template's source handle into a resolved schema
// document.
//
// A handle is a small descriptor {kind, properties}. JSON and YAML handles
// name a document (resourceUri) and optionally the base URI its references
// resolve against (baseUri). CAP handles name a remote catalog (baseUri)
// and the workflow to pick from it (resourceId).
package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/me/wftemplates/internal/loader"
)

// Kind identifies how a template schema is obtained.
type Kind string

const (
	KindCAP  Kind = "CAP"
	KindJSON Kind = "JSON"
	KindYAML Kind = "YAML"
)

// Kinds lists the supported handle kinds.
var Kinds = []Kind{KindCAP, KindJSON, KindYAML}

// Property names understood by the handle kinds.
const (
	PropResourceURI = "resourceUri"
	PropBaseURI     = "baseUri"
	PropResourceID  = "resourceId"
)

var (
	// ErrConfiguration is returned for an unknown handle kind or a missing
	// required property.
	ErrConfiguration = errors.New("invalid source configuration")

	// ErrUnknownResource is returned when a catalog has no entry for the
	// requested workflow.
	ErrUnknownResource = errors.New("unknown resource")
)

// Source reads one template schema. The set of implementations is closed:
// DocumentSource and CatalogSource.
type Source interface {
	Read(ctx context.Context, fetcher loader.Fetcher, opts ...loader.Option) (any, error)
	source()
}

// Handle is an immutable source descriptor.
type Handle struct {
	kind       Kind
	properties map[string]string
	src        Source
}

// NewHandle validates kind and the properties it requires. The property
// map is copied.
func NewHandle(kind string, properties map[string]string) (Handle, error) {
	k, err := parseKind(kind)
	if err != nil {
		return Handle{}, err
	}
	props := make(map[string]string, len(properties))
	for key, v := range properties {
		props[canonicalProperty(key)] = v
	}

	h := Handle{kind: k, properties: props}
	switch k {
	case KindJSON, KindYAML:
		uri, err := require(k, props, PropResourceURI)
		if err != nil {
			return Handle{}, err
		}
		format := loader.FormatJSON
		if k == KindYAML {
			format = loader.FormatYAML
		}
		h.src = &DocumentSource{Format: format, ResourceURI: uri, BaseURI: props[PropBaseURI]}
	case KindCAP:
		base, err := require(k, props, PropBaseURI)
		if err != nil {
			return Handle{}, err
		}
		id, err := require(k, props, PropResourceID)
		if err != nil {
			return Handle{}, err
		}
		h.src = &CatalogSource{BaseURI: base, ResourceID: id}
	}
	return h, nil
}

// FromValue builds a handle from a decoded descriptor of the form
// {type: KIND, properties: {...}}. "kind" is accepted in place of "type".
func FromValue(v any) (Handle, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return Handle{}, fmt.Errorf("%w: source descriptor must be a mapping, got %T", ErrConfiguration, v)
	}
	kind, _ := m["type"].(string)
	if kind == "" {
		kind, _ = m["kind"].(string)
	}
	if kind == "" {
		return Handle{}, fmt.Errorf("%w: source descriptor has no type", ErrConfiguration)
	}

	props := map[string]string{}
	switch raw := m["properties"].(type) {
	case nil:
	case map[string]any:
		for key, val := range raw {
			switch val := val.(type) {
			case string:
				props[key] = val
			case nil:
			default:
				props[key] = fmt.Sprint(val)
			}
		}
	default:
		return Handle{}, fmt.Errorf("%w: source properties must be a mapping, got %T", ErrConfiguration, raw)
	}
	return NewHandle(kind, props)
}

// Kind returns the handle kind.
func (h Handle) Kind() Kind { return h.kind }

// Property returns one handle property.
func (h Handle) Property(key string) (string, bool) {
	v, ok := h.properties[key]
	return v, ok
}

// Properties returns a copy of the handle properties.
func (h Handle) Properties() map[string]string {
	out := make(map[string]string, len(h.properties))
	for k, v := range h.properties {
		out[k] = v
	}
	return out
}

// Source returns the variant the handle describes.
func (h Handle) Source() Source { return h.src }

// Read resolves the schema the handle names.
func (h Handle) Read(ctx context.Context, fetcher loader.Fetcher, opts ...loader.Option) (any, error) {
	if h.src == nil {
		return nil, fmt.Errorf("%w: empty source handle", ErrConfiguration)
	}
	return h.src.Read(ctx, fetcher, opts...)
}

func (h Handle) String() string {
	keys := make([]string, 0, len(h.properties))
	for k := range h.properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + h.properties[k]
	}
	return string(h.kind) + "{" + strings.Join(parts, ", ") + "}"
}

func parseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if strings.EqualFold(s, string(k)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: invalid source type %q", ErrConfiguration, s)
}

// canonicalProperty restores the spelling of a known property name.
// Layered configuration lower-cases map keys on the way in.
func canonicalProperty(key string) string {
	for _, known := range []string{PropResourceURI, PropBaseURI, PropResourceID} {
		if strings.EqualFold(key, known) {
			return known
		}
	}
	return key
}

func require(k Kind, props map[string]string, key string) (string, error) {
	v := props[key]
	if v == "" {
		return "", fmt.Errorf("%w: missing property %s for %s source", ErrConfiguration, key, k)
	}
	return v, nil
}
