package mcp

import (
	"context"
	"slices"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rolekeeper/rolekeeper/internal/metadata"
	"github.com/rolekeeper/rolekeeper/internal/model"
)

// registerTools registers the console tools on the given server. Mutating
// tools are skipped in read-only mode.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	// ----- Discovery tools -----

	srv.AddTool(
		mcp.NewTool("rolekeeper_list_roles",
			mcp.WithDescription(
				"List every role that holds a permission in the metadata document, plus "+
					"roles added in this session without permissions. Returns each role's "+
					"name and number of permission entries. Use this first to discover roles.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleListRoles,
	)

	srv.AddTool(
		mcp.NewTool("rolekeeper_list_tables",
			mcp.WithDescription(
				"List tracked tables with the number of select, insert, update and delete "+
					"permission entries on each.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("source",
				mcp.Description("Only list tables of this data source"),
			),
			mcp.WithBoolean("permitted",
				mcp.Description("Only list tables that have at least one permission entry"),
			),
		),
		s.handleListTables,
	)

	srv.AddTool(
		mcp.NewTool("rolekeeper_list_sources",
			mcp.WithDescription("List the data sources of the metadata document with their kind and table count."),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleListSources,
	)

	srv.AddTool(
		mcp.NewTool("rolekeeper_role_permissions",
			mcp.WithDescription(
				"Show every permission held by a role, grouped by schema. Each entry has "+
					"the permission kind, the table and the permission body (columns, filter, "+
					"check, presets) exactly as stored in the metadata.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("role",
				mcp.Required(),
				mcp.Description("Name of the role"),
			),
		),
		s.handleRolePermissions,
	)

	srv.AddTool(
		mcp.NewTool("rolekeeper_pending_changes",
			mcp.WithDescription(
				"Describe the unsaved edits: permission entries added, removed or modified "+
					"since the document was last loaded.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handlePendingChanges,
	)

	srv.AddTool(
		mcp.NewTool("rolekeeper_reload",
			mcp.WithDescription(
				"Fetch the metadata document again from the metadata API. Unsaved edits "+
					"and roles added without permissions are discarded.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleReload,
	)

	if s.activity != nil {
		srv.AddTool(
			mcp.NewTool("rolekeeper_activity",
				mcp.WithDescription("List recent console activity (loads, saves, role changes), newest first."),
				mcp.WithToolAnnotation(readOnlyAnnotation()),
				mcp.WithString("role",
					mcp.Description("Only entries about this role"),
				),
				mcp.WithString("action",
					mcp.Description("Only entries with this action"),
					mcp.Enum(model.ActionLoad, model.ActionSave, model.ActionAddRole, model.ActionRemoveRole, model.ActionApply),
				),
				mcp.WithNumber("limit",
					mcp.Description("Maximum number of entries to return (default 50, max 500)"),
				),
			),
			s.handleActivity,
		)
	}

	if s.opts.ReadOnly {
		return
	}

	// ----- Mutation tools -----

	srv.AddTool(
		mcp.NewTool("rolekeeper_add_role",
			mcp.WithDescription(
				"Add a role. With copy_from, every permission of that role is copied to "+
					"the new role. Without it the role starts with no permissions and only "+
					"exists in this session until it gains one. The change is local until "+
					"rolekeeper_save is called.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation(false)),
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description("Name of the new role. Surrounding whitespace is trimmed."),
			),
			mcp.WithString("copy_from",
				mcp.Description("Existing role whose permissions are copied"),
			),
		),
		s.handleAddRole,
	)

	srv.AddTool(
		mcp.NewTool("rolekeeper_remove_role",
			mcp.WithDescription(
				"Remove every permission entry of a role. The change is local until "+
					"rolekeeper_save is called.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation(true)),
			mcp.WithString("role",
				mcp.Required(),
				mcp.Description("Name of the role to remove"),
			),
		),
		s.handleRemoveRole,
	)

	srv.AddTool(
		mcp.NewTool("rolekeeper_save",
			mcp.WithDescription(
				"Replace the remote metadata with the edited document, then reload it. "+
					"Returns the changes that were written. The remote service applies the "+
					"document as a whole or rejects it.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation(true)),
		),
		s.handleSave,
	)
}

// document loads the session on first use and returns a copy of the
// current document.
func (s *MCPServer) document(ctx context.Context) (*metadata.Document, error) {
	if err := s.session.EnsureLoaded(ctx); err != nil {
		return nil, err
	}
	return s.session.Document()
}

type roleSummary struct {
	Name      string `json:"name"`
	Grants    int    `json:"grants"`
	Transient bool   `json:"transient,omitempty"`
}

// handleListRoles lists roles with their permission entry counts.
func (s *MCPServer) handleListRoles(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	doc, err := s.document(ctx)
	if err != nil {
		return sessionError(err)
	}
	roles, err := s.session.Roles()
	if err != nil {
		return sessionError(err)
	}

	out := make([]roleSummary, len(roles))
	for i, name := range roles {
		out[i] = roleSummary{
			Name:      name,
			Grants:    len(metadata.RoleGrants(doc, name)),
			Transient: s.session.IsTransient(name),
		}
	}
	return successJSON(out)
}

type tableSummary struct {
	Source      string                `json:"source"`
	Table       string                `json:"table"`
	Permissions map[metadata.Kind]int `json:"permissions"`
}

// handleListTables lists tables with permission counts per kind.
func (s *MCPServer) handleListTables(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	doc, err := s.document(ctx)
	if err != nil {
		return sessionError(err)
	}
	source := optionalString(request, "source")
	permitted := optionalBool(request, "permitted")

	var names []string
	found := source == ""
	out := []tableSummary{}
	for _, src := range metadata.ListDataSources(doc) {
		names = append(names, src.Name)
		if source != "" && src.Name != source {
			continue
		}
		found = true
		for i := range src.Tables {
			t := &src.Tables[i]
			row := tableSummary{
				Source:      src.Name,
				Table:       t.Table.String(),
				Permissions: make(map[metadata.Kind]int),
			}
			total := 0
			for _, k := range metadata.Kinds() {
				row.Permissions[k] = len(t.Permissions(k))
				total += row.Permissions[k]
			}
			if permitted && total == 0 {
				continue
			}
			out = append(out, row)
		}
	}
	if !found {
		return toolError("Source %q not found. Available sources: %v", source, names)
	}
	return successJSON(out)
}

// handleListSources lists the document's data sources.
func (s *MCPServer) handleListSources(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	doc, err := s.document(ctx)
	if err != nil {
		return sessionError(err)
	}
	return successJSON(metadata.Summarize(doc).Sources)
}

// handleRolePermissions returns the grants of one role grouped by schema.
func (s *MCPServer) handleRolePermissions(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	role, err := requireString(request, "role")
	if err != nil {
		return toolError("%v", err)
	}
	doc, err := s.document(ctx)
	if err != nil {
		return sessionError(err)
	}

	grants := metadata.RoleGrants(doc, role)
	if len(grants) == 0 && !s.session.IsTransient(role) {
		roles, _ := s.session.Roles()
		return toolError("Role %q not found. Available roles: %v", role, roles)
	}
	schemas := metadata.GroupGrantsBySchema(grants)
	if schemas == nil {
		schemas = []metadata.SchemaGrants{}
	}
	return successJSON(map[string]interface{}{
		"role":    role,
		"schemas": schemas,
	})
}

// handlePendingChanges reports the unsaved edits.
func (s *MCPServer) handlePendingChanges(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	if err := s.session.EnsureLoaded(ctx); err != nil {
		return sessionError(err)
	}
	report, err := s.session.Changes()
	if err != nil {
		return sessionError(err)
	}
	return successJSON(report)
}

// handleReload fetches the document again.
func (s *MCPServer) handleReload(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	doc, err := s.session.Load(ctx)
	if err != nil {
		return sessionError(err)
	}
	return successJSON(metadata.Summarize(doc))
}

// handleActivity lists audit entries.
func (s *MCPServer) handleActivity(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	entries, err := s.activity.ListActivity(ctx, model.ActivityFilter{
		Role:   optionalString(request, "role"),
		Action: optionalString(request, "action"),
		Limit:  clamp(optionalInt(request, "limit", 50), 1, 500),
	})
	if err != nil {
		return toolError("Failed to list activity: %v", err)
	}
	if entries == nil {
		entries = []model.Activity{}
	}
	return successJSON(entries)
}

// handleAddRole adds a role, optionally copying another role.
func (s *MCPServer) handleAddRole(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	name, err := requireString(request, "name")
	if err != nil {
		return toolError("%v", err)
	}
	copyFrom := optionalString(request, "copy_from")

	if err := s.session.EnsureLoaded(ctx); err != nil {
		return sessionError(err)
	}
	if copyFrom != "" {
		roles, _ := s.session.Roles()
		if !slices.Contains(roles, copyFrom) {
			return toolError("Role %q to copy from not found. Available roles: %v", copyFrom, roles)
		}
	}

	name, err = s.session.AddRole(ctx, name, copyFrom)
	if err != nil {
		return sessionError(err)
	}
	doc, err := s.session.Document()
	if err != nil {
		return sessionError(err)
	}
	changes, _ := s.session.Changes()

	return successJSON(map[string]interface{}{
		"role":            name,
		"copied_from":     copyFrom,
		"grants":          len(metadata.RoleGrants(doc, name)),
		"transient":       s.session.IsTransient(name),
		"pending_changes": changes.Added + changes.Removed + changes.Modified,
	})
}

// handleRemoveRole removes every permission entry of a role.
func (s *MCPServer) handleRemoveRole(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	role, err := requireString(request, "role")
	if err != nil {
		return toolError("%v", err)
	}
	if err := s.session.EnsureLoaded(ctx); err != nil {
		return sessionError(err)
	}

	found, err := s.session.RemoveRole(ctx, role)
	if err != nil {
		return sessionError(err)
	}
	if !found {
		roles, _ := s.session.Roles()
		return toolError("Role %q not found. Available roles: %v", role, roles)
	}
	changes, _ := s.session.Changes()
	return successJSON(map[string]interface{}{
		"role":            role,
		"removed":         true,
		"pending_changes": changes.Added + changes.Removed + changes.Modified,
	})
}

// handleSave writes the edited document to the metadata API.
func (s *MCPServer) handleSave(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	report, err := s.session.Save(ctx)
	if err != nil {
		return sessionError(err)
	}
	return successJSON(report)
}
