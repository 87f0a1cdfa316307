package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Decoder turns raw bytes into a structured value: nil, bool, a number,
// string, []any or map[string]any. Decoding is all-or-nothing.
type Decoder interface {
	Decode(data []byte) (any, error)
	Format() string
}

// Format names.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// JSONDecoder decodes JSON documents. Comments and trailing commas are
// stripped before decoding. Duplicate object keys are last-wins. Every
// number decodes to float64, so integers beyond 2^53 lose precision; the
// YAML decoder keeps integers as int.
type JSONDecoder struct{}

func (JSONDecoder) Format() string { return FormatJSON }

func (JSONDecoder) Decode(data []byte) (any, error) {
	stripped := jsonc.ToJSON(data)

	dec := json.NewDecoder(bytes.NewReader(stripped))
	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &DecodeError{Format: FormatJSON, Err: errors.New("empty document")}
		}
		return nil, &DecodeError{Format: FormatJSON, Err: err}
	}
	// Reject trailing garbage after the first value.
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("unexpected data after top-level value")
		}
		return nil, &DecodeError{Format: FormatJSON, Err: err}
	}
	return v, nil
}

// YAMLDecoder decodes the first document of a YAML stream. Duplicate
// mapping keys are rejected. An empty stream decodes to nil.
type YAMLDecoder struct{}

func (YAMLDecoder) Format() string { return FormatYAML }

func (YAMLDecoder) Decode(data []byte) (any, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, &DecodeError{Format: FormatYAML, Err: err}
	}
	out, err := normalize(v)
	if err != nil {
		return nil, &DecodeError{Format: FormatYAML, Err: err}
	}
	return out, nil
}

// DecoderFor returns the decoder for a format name ("json", "yaml", "yml").
func DecoderFor(format string) (Decoder, error) {
	switch strings.ToLower(format) {
	case FormatJSON:
		return JSONDecoder{}, nil
	case FormatYAML, "yml":
		return YAMLDecoder{}, nil
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// DecoderForURI picks a decoder from the resource extension, defaulting to
// YAML (a superset of JSON).
func DecoderForURI(uri string) Decoder {
	resource, _ := SplitFragment(uri)
	if i := strings.IndexByte(resource, '?'); i >= 0 {
		resource = resource[:i]
	}
	if strings.HasSuffix(strings.ToLower(resource), ".json") {
		return JSONDecoder{}
	}
	return YAMLDecoder{}
}

// normalize converts map[any]any (produced by YAML for non-string keys)
// into map[string]any throughout the tree.
func normalize(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			n, err := normalize(child)
			if err != nil {
				return nil, err
			}
			val[k] = n
		}
		return val, nil
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			key := fmt.Sprint(k)
			if _, dup := out[key]; dup {
				return nil, fmt.Errorf("mapping key %q collides after conversion to string", key)
			}
			n, err := normalize(child)
			if err != nil {
				return nil, err
			}
			out[key] = n
		}
		return out, nil
	case []any:
		for i, child := range val {
			n, err := normalize(child)
			if err != nil {
				return nil, err
			}
			val[i] = n
		}
		return val, nil
	default:
		return v, nil
	}
}
