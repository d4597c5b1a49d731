package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rolekeeper/rolekeeper/internal/metadata"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check the connection to the metadata API",
		Long:  "Export the metadata once and summarize its sources, tables and roles.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := openWorkspace(ctx)
			if err != nil {
				return err
			}
			defer ws.Close()

			start := time.Now()
			loadErr := ws.load(ctx)
			elapsed := time.Since(start)

			if jsonOutput {
				out := map[string]interface{}{
					"endpoint":   ws.client.Endpoint(),
					"reachable":  loadErr == nil,
					"elapsed_ms": elapsed.Milliseconds(),
				}
				if loadErr != nil {
					out["error"] = loadErr.Error()
				} else {
					doc, _ := ws.session.Document()
					out["summary"] = metadata.Summarize(doc)
				}
				return printJSON(os.Stdout, out)
			}

			fmt.Printf("Endpoint:  %s\n", ws.client.Endpoint())
			if loadErr != nil {
				fmt.Printf("Status:    %s\n", color.RedString("unreachable"))
				return loadErr
			}
			doc, err := ws.session.Document()
			if err != nil {
				return err
			}
			summary := metadata.Summarize(doc)
			fmt.Printf("Status:    %s (%s)\n", color.GreenString("ok"), elapsed.Round(time.Millisecond))
			fmt.Printf("Version:   %d\n", summary.Version)
			fmt.Printf("Tables:    %d\n", summary.Tables)
			fmt.Printf("Roles:     %d\n", summary.Roles)
			fmt.Println()

			t := newTable(os.Stdout, "SOURCE", "KIND", "TABLES")
			for _, s := range summary.Sources {
				t.AppendRow([]interface{}{s.Name, s.Kind, s.Tables})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
