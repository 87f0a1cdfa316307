package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/me/wftemplates/internal/loader"
)

// catalogWorkflows is where a catalog record keeps its workflow entries.
const catalogWorkflows = "metadata._metadata.workflows"

// CatalogSource picks one named workflow from a remote catalog record.
// The catalog is fetched again on every read.
type CatalogSource struct {
	BaseURI    string
	ResourceID string
}

// Read fetches the catalog at BaseURI and returns the workflow of the
// entry named ResourceID. Options are accepted for symmetry with
// DocumentSource; catalog workflows are returned as stored.
func (s *CatalogSource) Read(ctx context.Context, fetcher loader.Fetcher, _ ...loader.Option) (any, error) {
	data, err := fetcher.Fetch(ctx, s.BaseURI)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, &loader.DecodeError{URI: s.BaseURI, Format: loader.FormatJSON, Err: errors.New("invalid JSON")}
	}

	workflows := gjson.GetBytes(data, catalogWorkflows)
	if !workflows.IsArray() {
		return nil, &loader.DecodeError{
			URI:    s.BaseURI,
			Format: loader.FormatJSON,
			Err:    fmt.Errorf("no %s list in catalog", catalogWorkflows),
		}
	}

	var match gjson.Result
	workflows.ForEach(func(_, entry gjson.Result) bool {
		if entry.Get("name").String() == s.ResourceID {
			match = entry
			return false
		}
		return true
	})
	if !match.Exists() {
		return nil, fmt.Errorf("%w: workflow %q not in catalog %s", ErrUnknownResource, s.ResourceID, s.BaseURI)
	}

	wf := match.Get("workflow")
	if !wf.Exists() {
		return nil, fmt.Errorf("%w: catalog entry %q has no workflow", ErrUnknownResource, s.ResourceID)
	}
	v, err := loader.JSONDecoder{}.Decode([]byte(wf.Raw))
	if err != nil {
		var de *loader.DecodeError
		if errors.As(err, &de) {
			de.URI = s.BaseURI
		}
		return nil, err
	}
	return v, nil
}

func (*CatalogSource) source() {}
