package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/wftemplates/internal/config"
	"github.com/me/wftemplates/internal/service"
)

func newCheckCmd() *cobra.Command {
	var (
		schema string
		policy string
	)

	cmd := &cobra.Command{
		Use:   "check <listing>",
		Short: "Load a template listing locally and report every failing template",
		Long: "Read a listing document ({templates: [...]}), resolve and validate each\n" +
			"template exactly as the server does, and print a report. Exits non-zero\n" +
			"when any template fails.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			cfg.DB.URI = args[0]
			if schema != "" {
				cfg.DB.Schema = schema
			}
			cfg.DB.Policy = policy
			cfg.Fetch.Timeout = flagFetchTimeout

			svc, err := service.New(cmd.Context(), cfg, service.WithLogger(logger))
			if err != nil {
				return err
			}
			run, err := svc.Reload(cmd.Context())
			if rerr := renderRun(cmd.OutOrStdout(), run); rerr != nil {
				return rerr
			}
			if err != nil {
				return err
			}
			if n := len(run.Failures); n > 0 {
				return fmt.Errorf("%d of %d templates failed", n, run.Entries)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&schema, "schema", "", "Workflow JSON schema path or URI to validate against")
	cmd.Flags().StringVar(&policy, "policy", "fail-soft", "Failure policy: fail-soft or fail-fast")
	return cmd
}
