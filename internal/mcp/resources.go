package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rolekeeper/rolekeeper/internal/metadata"
)

const (
	metadataURI     = "rolekeeper://metadata"
	rolesURI        = "rolekeeper://roles"
	roleURIPrefix   = "rolekeeper://roles/"
	roleURITemplate = "rolekeeper://roles/{role}"
)

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that LLM clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {

	// -------------------------------------------------------------------
	// rolekeeper://metadata: the edited metadata document
	// -------------------------------------------------------------------
	srv.AddResource(
		mcp.NewResource(
			metadataURI,
			"Metadata Document",
			mcp.WithResourceDescription(
				"The metadata document as currently edited, including unsaved changes.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleMetadataResource,
	)

	// -------------------------------------------------------------------
	// rolekeeper://roles: role names
	// -------------------------------------------------------------------
	srv.AddResource(
		mcp.NewResource(
			rolesURI,
			"Roles",
			mcp.WithResourceDescription("Sorted list of role names."),
			mcp.WithMIMEType("application/json"),
		),
		s.handleRolesResource,
	)

	// -------------------------------------------------------------------
	// rolekeeper://roles/{role}: grants of one role (template)
	// -------------------------------------------------------------------
	srv.AddResourceTemplate(
		mcp.NewResourceTemplate(
			roleURITemplate,
			"Role Permissions",
			mcp.WithTemplateDescription("Every permission entry held by a role, grouped by schema."),
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.handleRoleResource,
	)
}

// handleMetadataResource returns the current document.
func (s *MCPServer) handleMetadataResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	doc, err := s.document(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}
	return jsonContents(request.Params.URI, doc)
}

// handleRolesResource returns the role names.
func (s *MCPServer) handleRolesResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	if err := s.session.EnsureLoaded(ctx); err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}
	roles, err := s.session.Roles()
	if err != nil {
		return nil, err
	}
	return jsonContents(request.Params.URI, roles)
}

// handleRoleResource returns the grants of the role named in the URI.
func (s *MCPServer) handleRoleResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	uri := request.Params.URI
	role := strings.TrimPrefix(uri, roleURIPrefix)
	if role == "" || role == uri {
		return nil, fmt.Errorf("invalid role URI %q: expected %s", uri, roleURITemplate)
	}

	doc, err := s.document(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}
	grants := metadata.RoleGrants(doc, role)
	if len(grants) == 0 && !s.session.IsTransient(role) {
		roles, _ := s.session.Roles()
		return nil, fmt.Errorf("role %q not found (available: %v)", role, roles)
	}
	schemas := metadata.GroupGrantsBySchema(grants)
	if schemas == nil {
		schemas = []metadata.SchemaGrants{}
	}
	return jsonContents(uri, schemas)
}

func jsonContents(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
