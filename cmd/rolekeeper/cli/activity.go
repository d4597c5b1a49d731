package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rolekeeper/rolekeeper/internal/model"
)

func newActivityCmd() *cobra.Command {
	var (
		role       string
		action     string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show the local activity log",
		Long:  "Show loads, saves and role changes recorded by this machine, newest first.",
		Example: `  rolekeeper activity
  rolekeeper activity --role support --limit 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openConfigStore()
			if err != nil {
				return fmt.Errorf("open local store: %w", err)
			}
			defer store.Close()

			entries, err := store.ListActivity(cmd.Context(), model.ActivityFilter{
				Role:   role,
				Action: action,
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				if entries == nil {
					entries = []model.Activity{}
				}
				return printJSON(os.Stdout, entries)
			}
			if len(entries) == 0 {
				fmt.Println("No activity recorded.")
				return nil
			}

			t := newTable(os.Stdout, "WHEN", "ACTION", "ROLE", "DETAIL", "ENDPOINT")
			for _, e := range entries {
				t.AppendRow([]interface{}{e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Action, e.Role, e.Detail, e.Endpoint})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "Only entries about this role")
	cmd.Flags().StringVar(&action, "action", "", "Only entries with this action (load, save, add_role, remove_role, apply)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of entries")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
