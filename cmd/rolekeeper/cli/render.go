package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/rolekeeper/rolekeeper/internal/metadata"
)

func newTable(w io.Writer, header ...interface{}) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row(header))
	return t
}

// renderChanges prints a change report as a colored diff.
func renderChanges(w io.Writer, report metadata.ChangeReport) {
	if !report.HasChanges {
		fmt.Fprintln(w, color.GreenString("No changes."))
		return
	}

	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	for _, item := range report.Items {
		switch item.Type {
		case metadata.ChangeAdded:
			green.Fprintf(w, "+ %s\n", item.Description)
		case metadata.ChangeRemoved:
			red.Fprintf(w, "- %s\n", item.Description)
		default:
			yellow.Fprintf(w, "~ %s\n", item.Description)
		}
	}
	fmt.Fprintf(w, "\n%d added, %d removed, %d modified\n", report.Added, report.Removed, report.Modified)
}

// commit prints the pending changes of the workspace session and, unless
// dryRun is set, replaces the remote document with the edited one. Without
// permission changes nothing is written unless otherChanges is set.
func commit(ctx context.Context, w io.Writer, ws *workspace, dryRun, otherChanges bool) error {
	report, err := ws.session.Changes()
	if err != nil {
		return err
	}
	renderChanges(w, report)
	if !report.HasChanges {
		if !otherChanges {
			return nil
		}
		fmt.Fprintln(w, "Members outside the permission lists differ.")
	}
	if dryRun {
		fmt.Fprintln(w, color.CyanString("Dry run: metadata not replaced."))
		return nil
	}
	if _, err := ws.session.Save(ctx); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	fmt.Fprintf(w, "Metadata replaced at %s\n", ws.client.Endpoint())
	return nil
}
