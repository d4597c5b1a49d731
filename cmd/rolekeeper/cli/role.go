package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rolekeeper/rolekeeper/internal/config"
	"github.com/rolekeeper/rolekeeper/internal/metadata"
)

func newRoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Inspect and edit roles",
		Long:  "List roles, show their permissions, copy a role into a new one or remove a role from every table.",
	}

	cmd.AddCommand(newRoleListCmd())
	cmd.AddCommand(newRoleShowCmd())
	cmd.AddCommand(newRoleAddCmd())
	cmd.AddCommand(newRoleRemoveCmd())

	return cmd
}

// ---------- role list ----------

func newRoleListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoleList(cmd.Context(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runRoleList(ctx context.Context, jsonOutput bool) error {
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
	roles := metadata.ListRoles(doc)

	type roleRow struct {
		Name    string         `json:"name"`
		Grants  int            `json:"grants"`
		Schemas []string       `json:"schemas"`
		Kinds   map[string]int `json:"kinds"`
	}
	rows := make([]roleRow, len(roles))
	for i, name := range roles {
		row := roleRow{Name: name, Kinds: make(map[string]int)}
		for _, g := range metadata.RoleGrants(doc, name) {
			row.Grants++
			row.Kinds[string(g.Kind)]++
		}
		for _, s := range metadata.GroupGrantsBySchema(metadata.RoleGrants(doc, name)) {
			row.Schemas = append(row.Schemas, s.Schema)
		}
		rows[i] = row
	}

	if jsonOutput {
		return printJSON(os.Stdout, rows)
	}

	if len(rows) == 0 {
		fmt.Println("No roles hold any permission. Use 'rolekeeper role add' to create one.")
		return nil
	}

	t := newTable(os.Stdout, "ROLE", "GRANTS", "SELECT", "INSERT", "UPDATE", "DELETE", "SCHEMAS")
	for _, r := range rows {
		t.AppendRow([]interface{}{
			r.Name, r.Grants,
			r.Kinds["select"], r.Kinds["insert"], r.Kinds["update"], r.Kinds["delete"],
			strings.Join(r.Schemas, ", "),
		})
	}
	t.Render()
	return nil
}

// ---------- role show ----------

func newRoleShowCmd() *cobra.Command {
	var (
		kinds      string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "show <role>",
		Short:   "Show every permission of a role",
		Example: `  rolekeeper role show user --kind select,update`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoleShow(cmd.Context(), args[0], kinds, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&kinds, "kind", "", "Only show these permission kinds (comma separated: select, insert, update, delete)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runRoleShow(ctx context.Context, role, kinds string, jsonOutput bool) error {
	// Reject a bad --kind before contacting the engine.
	if _, err := filterGrants(nil, kinds); err != nil {
		return err
	}

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
	grants := metadata.RoleGrants(doc, role)
	if len(grants) == 0 {
		return fmt.Errorf("role %q not found", role)
	}
	grants, err = filterGrants(grants, kinds)
	if err != nil {
		return err
	}
	schemas := metadata.GroupGrantsBySchema(grants)

	if jsonOutput {
		return printJSON(os.Stdout, schemas)
	}

	t := newTable(os.Stdout, "SCHEMA", "TABLE", "KIND", "COLUMNS", "SOURCE")
	for _, s := range schemas {
		for _, g := range s.Grants {
			t.AppendRow([]interface{}{s.Schema, g.Table.Name, g.Kind, describeColumns(g.Kind, g.Permission.Columns), g.Source})
		}
	}
	t.Render()
	return nil
}

// filterGrants keeps the grants whose kind is named in kinds, a comma
// separated list such as "select,update". An empty list keeps everything.
func filterGrants(grants []metadata.Grant, kinds string) ([]metadata.Grant, error) {
	if strings.TrimSpace(kinds) == "" {
		return grants, nil
	}
	want := make(map[metadata.Kind]bool)
	for _, name := range strings.Split(kinds, ",") {
		k, err := metadata.ParseKind(strings.ToLower(strings.TrimSpace(name)))
		if err != nil {
			return nil, err
		}
		want[k] = true
	}
	var out []metadata.Grant
	for _, g := range grants {
		if want[g.Kind] {
			out = append(out, g)
		}
	}
	return out, nil
}

// describeColumns renders the columns of a grant. Delete permissions carry
// no column list.
func describeColumns(kind metadata.Kind, c metadata.ColumnSet) string {
	switch {
	case kind == metadata.KindDelete:
		return "-"
	case c.AllColumns():
		return "*"
	default:
		return strings.Join(c.Names, ", ")
	}
}

// ---------- role add ----------

func newRoleAddCmd() *cobra.Command {
	var (
		copyFrom string
		dryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a role by copying the permissions of another role",
		Long: `Add a role. With --copy-from every permission of that role is copied to the
new role and the metadata is replaced. A role without permissions cannot be
stored in the metadata, so --copy-from is required unless the
console.default_copy_from setting names a role.`,
		Example: `  rolekeeper role add support --copy-from user
  rolekeeper role add auditor --copy-from admin --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoleAdd(cmd.Context(), args[0], copyFrom, dryRun)
		},
	}

	cmd.Flags().StringVar(&copyFrom, "copy-from", "", "Existing role whose permissions are copied")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the changes without replacing the metadata")

	return cmd
}

func runRoleAdd(ctx context.Context, name, copyFrom string, dryRun bool) error {
	ws, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer ws.Close()

	if copyFrom == "" {
		v, err := ws.store.GetSetting(ctx, config.SettingDefaultCopyFrom)
		if err != nil && !errors.Is(err, config.ErrNotFound) {
			return err
		}
		copyFrom = v
	}
	if copyFrom == "" {
		return fmt.Errorf("--copy-from is required: a role without permissions cannot be saved")
	}

	if err := ws.load(ctx); err != nil {
		return err
	}
	doc, err := ws.session.Document()
	if err != nil {
		return err
	}
	if !metadata.HasRole(doc, copyFrom) {
		return fmt.Errorf("role %q to copy from not found", copyFrom)
	}

	name, err = ws.session.AddRole(ctx, name, copyFrom)
	if err != nil {
		return err
	}
	fmt.Printf("Adding role %s (copy of %s)\n\n", color.New(color.Bold).Sprint(name), copyFrom)
	return commit(ctx, os.Stdout, ws, dryRun, false)
}

// ---------- role remove ----------

func newRoleRemoveCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:     "remove <role>",
		Aliases: []string{"rm"},
		Short:   "Remove a role from every permission list",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoleRemove(cmd.Context(), args[0], dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the changes without replacing the metadata")

	return cmd
}

func runRoleRemove(ctx context.Context, role string, dryRun bool) error {
	ws, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer ws.Close()
	if err := ws.load(ctx); err != nil {
		return err
	}

	found, err := ws.session.RemoveRole(ctx, role)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("role %q not found", role)
	}
	fmt.Printf("Removing role %s\n\n", color.New(color.Bold).Sprint(role))
	return commit(ctx, os.Stdout, ws, dryRun, false)
}
