package source

import (
	"context"

	"github.com/me/wftemplates/internal/loader"
)

// DocumentSource reads a JSON or YAML document and resolves its references.
type DocumentSource struct {
	Format      string
	ResourceURI string
	BaseURI     string // optional
}

// Read loads the document through a fresh loader, so every read fetches
// each referenced resource once and nothing is shared between reads.
func (s *DocumentSource) Read(ctx context.Context, fetcher loader.Fetcher, opts ...loader.Option) (any, error) {
	dec, err := loader.DecoderFor(s.Format)
	if err != nil {
		return nil, err
	}
	if s.BaseURI != "" {
		opts = append(opts, loader.WithBaseURI(s.BaseURI))
	}
	return loader.New(fetcher, dec, opts...).Load(ctx, s.ResourceURI)
}

func (*DocumentSource) source() {}
