package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/me/wftemplates/pkg/model"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the templates served by the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var listing model.TemplateListing
			if err := client.GetJSON(cmd.Context(), "/templates", &listing); err != nil {
				return fmt.Errorf("list templates: %w", err)
			}
			return renderTemplates(cmd.OutOrStdout(), listing.Workflows)
		},
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print one template with its resolved schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc map[string]any
			if err := client.GetJSON(cmd.Context(), "/templates/"+url.PathEscape(args[0]), &doc); err != nil {
				return fmt.Errorf("get template %s: %w", args[0], err)
			}
			return writeDocument(cmd.OutOrStdout(), doc, flagOutput)
		},
	}
}
