package cli

import (
	"fmt"
	"net/url"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/me/wftemplates/pkg/model"
)

func newLoadsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "loads [id]",
		Short: "Show the server's repository load history, or one load with its failures",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				resp, err := client.GetEnvelope(cmd.Context(), "/loads/"+url.PathEscape(args[0]))
				if err != nil {
					return fmt.Errorf("get load %s: %w", args[0], err)
				}
				var run model.LoadRun
				if err := json.Unmarshal(resp.Data, &run); err != nil {
					return fmt.Errorf("parse response: %w", err)
				}
				return renderRun(out, &run)
			}

			resp, err := client.GetEnvelope(cmd.Context(), fmt.Sprintf("/loads?limit=%d", limit))
			if err != nil {
				return fmt.Errorf("list loads: %w", err)
			}
			var runs []model.LoadRun
			if err := json.Unmarshal(resp.Data, &runs); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			if err := renderLoads(out, runs); err != nil {
				return err
			}
			if resp.Pagination != nil && resp.Pagination.HasMore {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(runs), resp.Pagination.Total)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of loads to show")
	return cmd
}
