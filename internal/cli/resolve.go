package cli

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/wftemplates/internal/config"
	"github.com/me/wftemplates/internal/loader"
	"github.com/me/wftemplates/internal/service"
)

func newResolveCmd() *cobra.Command {
	var (
		baseURI string
		format  string
		stats   bool
	)

	cmd := &cobra.Command{
		Use:   "resolve <uri>",
		Short: "Load a document and print it with all references resolved",
		Long: "Fetch a local path or a file://, http(s):// or s3:// URI, replace every\n" +
			"$ref node with the document it points to and print the result.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uri := args[0]

			dec := loader.DecoderForURI(uri)
			if format != "" {
				var err error
				if dec, err = loader.DecoderFor(format); err != nil {
					return err
				}
			}

			var fetched, size atomic.Int64
			mux := service.NewFetcher(config.FetchConfig{Timeout: flagFetchTimeout})
			counting := loader.FetcherFunc(func(ctx context.Context, u string) ([]byte, error) {
				data, err := mux.Fetch(ctx, u)
				if err == nil {
					fetched.Add(1)
					size.Add(int64(len(data)))
				}
				return data, err
			})

			opts := []loader.Option{loader.WithLogger(logger)}
			if baseURI != "" {
				opts = append(opts, loader.WithBaseURI(baseURI))
			}
			l := loader.New(counting, dec, opts...)

			start := time.Now()
			doc, err := l.Load(cmd.Context(), uri)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", uri, err)
			}
			elapsed := time.Since(start)

			if err := writeDocument(cmd.OutOrStdout(), doc, flagOutput); err != nil {
				return err
			}

			if stats {
				errw := cmd.ErrOrStderr()
				fmt.Fprintf(errw, "Resolved %d resource(s), %s in %s\n",
					fetched.Load(), humanize.Bytes(uint64(size.Load())), elapsed.Round(time.Millisecond))
				for _, r := range l.CachedResources() {
					fmt.Fprintf(errw, "  %s\n", r)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURI, "base-uri", "", "Base every relative reference is resolved against (default: each document's directory)")
	cmd.Flags().StringVar(&format, "format", "", "Input format, json or yaml (default: by extension)")
	cmd.Flags().BoolVar(&stats, "stats", false, "Print fetch statistics to stderr")
	return cmd
}
