package source

import (
	"context"
	"fmt"

	"github.com/me/wftemplates/internal/loader"
)

// ReadDocument reads a document given either as a path/URI string or as a
// source handle descriptor. Strings are decoded by extension: ".json" as
// JSON, anything else as YAML. References are resolved in both forms.
func ReadDocument(ctx context.Context, fetcher loader.Fetcher, ref any, opts ...loader.Option) (any, error) {
	switch r := ref.(type) {
	case string:
		if r == "" {
			return nil, fmt.Errorf("%w: empty document location", ErrConfiguration)
		}
		return loader.New(fetcher, loader.DecoderForURI(r), opts...).Load(ctx, r)
	case nil:
		return nil, fmt.Errorf("%w: no document location", ErrConfiguration)
	default:
		h, err := FromValue(ref)
		if err != nil {
			return nil, err
		}
		return h.Read(ctx, fetcher, opts...)
	}
}
