package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"gopkg.in/yaml.v3"

	"github.com/me/wftemplates/pkg/model"
)

// writeDocument prints v as indented JSON or as YAML.
func writeDocument(w io.Writer, v any, format string) error {
	switch strings.ToLower(format) {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q (want json or yaml)", format)
	}
}

func renderTable(w io.Writer, header []any, rows [][]any) error {
	table := tablewriter.NewTable(w, tablewriter.WithHeaderAutoFormat(tw.Off))
	table.Header(header...)
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func renderTemplates(w io.Writer, list []model.TemplateSummary) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "No templates found.")
		return err
	}
	rows := make([][]any, len(list))
	for i, t := range list {
		params := "-"
		if t.Parameters != nil {
			params = "yes"
		}
		rows[i] = []any{t.ID, t.Name, t.Description, params}
	}
	return renderTable(w, []any{"ID", "Name", "Description", "Parameters"}, rows)
}

func renderLoads(w io.Writer, runs []model.LoadRun) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No loads recorded.")
		return err
	}
	rows := make([][]any, len(runs))
	for i, r := range runs {
		rows[i] = []any{
			r.ID,
			string(r.State),
			strconv.Itoa(r.Entries),
			strconv.Itoa(r.Loaded),
			humanize.Time(r.StartedAt),
			r.Duration().Round(time.Millisecond).String(),
		}
	}
	return renderTable(w, []any{"ID", "State", "Entries", "Loaded", "Started", "Duration"}, rows)
}

// renderRun prints a load summary followed by its failures.
func renderRun(w io.Writer, run *model.LoadRun) error {
	fmt.Fprintf(w, "Load %s: %s (policy %s)\n", run.ID, run.State, run.Policy)
	if run.Listing != "" {
		fmt.Fprintf(w, "Listing:  %s\n", run.Listing)
	}
	fmt.Fprintf(w, "Entries:  %d, loaded %d, failed %d in %s\n",
		run.Entries, run.Loaded, len(run.Failures), run.Duration().Round(time.Millisecond))
	if run.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", run.Error)
	}
	if len(run.Failures) == 0 {
		return nil
	}
	rows := make([][]any, len(run.Failures))
	for i, f := range run.Failures {
		msg := f.Message
		for _, d := range f.Details {
			msg += "\n  " + d.String()
		}
		rows[i] = []any{strconv.Itoa(f.Position), f.Identifier, string(f.Kind), msg}
	}
	return renderTable(w, []any{"Position", "Identifier", "Kind", "Message"}, rows)
}
