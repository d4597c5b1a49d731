package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rolekeeper/rolekeeper/internal/metadata"
)

func newTableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Inspect tracked tables",
	}
	cmd.AddCommand(newTableListCmd())
	return cmd
}

func newTableListCmd() *cobra.Command {
	var (
		source     string
		permitted  bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tracked tables with their permission counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTableList(cmd.Context(), source, permitted, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Only list tables of this source")
	cmd.Flags().BoolVar(&permitted, "permitted", false, "Only list tables with at least one permission")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

type tableRow struct {
	Source      string                `json:"source"`
	Schema      string                `json:"schema"`
	Name        string                `json:"name"`
	Permissions map[metadata.Kind]int `json:"permissions"`
}

func runTableList(ctx context.Context, source string, permitted, jsonOutput bool) error {
	ws, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer ws.Close()
	if err := ws.load(ctx); err != nil {
		return err
	}
	doc, err := ws.session.Document()
	if err != nil {
		return err
	}

	rows := []tableRow{}
	for _, src := range metadata.ListDataSources(doc) {
		if source != "" && src.Name != source {
			continue
		}
		for i := range src.Tables {
			t := &src.Tables[i]
			row := tableRow{Source: src.Name, Schema: t.Table.Schema, Name: t.Table.Name, Permissions: map[metadata.Kind]int{}}
			total := 0
			for _, k := range metadata.Kinds() {
				row.Permissions[k] = len(t.Permissions(k))
				total += row.Permissions[k]
			}
			if permitted && total == 0 {
				continue
			}
			rows = append(rows, row)
		}
	}

	if jsonOutput {
		return printJSON(os.Stdout, rows)
	}
	if len(rows) == 0 {
		fmt.Println("No tables found.")
		return nil
	}

	t := newTable(os.Stdout, "SOURCE", "SCHEMA", "TABLE", "SELECT", "INSERT", "UPDATE", "DELETE")
	for _, r := range rows {
		t.AppendRow([]interface{}{
			r.Source, r.Schema, r.Name,
			r.Permissions[metadata.KindSelect], r.Permissions[metadata.KindInsert],
			r.Permissions[metadata.KindUpdate], r.Permissions[metadata.KindDelete],
		})
	}
	t.AppendFooter([]interface{}{"", "", fmt.Sprintf("%d tables", len(rows))})
	t.Render()
	return nil
}

func newSourceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Inspect data sources",
	}
	cmd.AddCommand(newSourceListCmd())
	return cmd
}

func newSourceListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the data sources of the metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := openWorkspace(ctx)
			if err != nil {
				return err
			}
			defer ws.Close()
			if err := ws.load(ctx); err != nil {
				return err
			}
			doc, err := ws.session.Document()
			if err != nil {
				return err
			}

			sources := metadata.Summarize(doc).Sources
			if jsonOutput {
				return printJSON(os.Stdout, sources)
			}
			t := newTable(os.Stdout, "SOURCE", "KIND", "TABLES")
			for _, s := range sources {
				t.AppendRow([]interface{}{s.Name, s.Kind, s.Tables})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
