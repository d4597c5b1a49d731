package openapi

import (
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

const errorRef = "#/components/schemas/ErrorResponse"

// Generate builds the OpenAPI 3.1 description of the console API.
func Generate(baseURL, version string) *openapi3.T {
	if version == "" {
		version = "dev"
	}
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "rolekeeper console API",
			Description: "Inspect and edit the role permissions of a GraphQL metadata service.",
			Version:     version,
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
		Tags: openapi3.Tags{
			{Name: "metadata", Description: "Fetch, export and save the metadata document."},
			{Name: "roles", Description: "Roles and their per-table permissions."},
			{Name: "browse", Description: "Tables, sources and the permission tree."},
			{Name: "system", Description: "Session status and activity log."},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = componentSchemas()
	doc.Components = &components

	doc.Paths = openapi3.NewPaths()
	addMetadataPaths(doc)
	addRolePaths(doc)
	addBrowsePaths(doc)
	addSystemPaths(doc)

	return doc
}

func addMetadataPaths(doc *openapi3.T) {
	doc.Paths.Set("/api/v1/metadata", &openapi3.PathItem{
		Get: operation("metadata", "get_metadata", "Current metadata document",
			"Return the locally edited copy of the metadata document, fetching it first when needed.",
			newResponses("200", "Metadata document", schemaRef("Document"))),
	})

	formatParam := openapi3.NewQueryParameter("format").
		WithDescription("Output format: json (default) or yaml.").
		WithSchema(openapi3.NewStringSchema().WithEnum("json", "yaml"))
	export := operation("metadata", "export_metadata", "Export metadata document",
		"Download the current document as JSON or YAML.",
		newResponses("200", "Exported document", schemaRef("Document")))
	export.Parameters = openapi3.Parameters{{Value: formatParam}}
	doc.Paths.Set("/api/v1/metadata/export", &openapi3.PathItem{Get: export})

	doc.Paths.Set("/api/v1/metadata/reload", &openapi3.PathItem{
		Post: operation("metadata", "reload_metadata", "Reload from the metadata service",
			"Fetch the document again. Unsaved edits and transient roles are discarded.",
			newResponses("200", "Document summary", schemaRef("Summary"))),
	})
	doc.Paths.Set("/api/v1/metadata/save", &openapi3.PathItem{
		Post: operation("metadata", "save_metadata", "Save edits",
			"Replace the remote document with the edited copy, then reload it.",
			newResponses("200", "Changes written", schemaRef("ChangeReport"))),
	})
	doc.Paths.Set("/api/v1/metadata/changes", &openapi3.PathItem{
		Get: operation("metadata", "pending_changes", "Pending changes",
			"Compare the edited copy with the last fetched document.",
			newResponses("200", "Pending changes", schemaRef("ChangeReport"))),
	})
}

func addRolePaths(doc *openapi3.T) {
	create := operation("roles", "create_role", "Add a role",
		"Add a role, optionally copying every permission of an existing role.",
		newResponses("201", "Role added", schemaRef("RoleDetail")))
	create.RequestBody = &openapi3.RequestBodyRef{
		Value: openapi3.NewRequestBody().
			WithRequired(true).
			WithJSONSchemaRef(schemaRef("RoleRequest")),
	}
	addErrorResponse(create.Responses, "409", "Role already exists")
	addErrorResponse(create.Responses, "422", "Invalid role name")

	doc.Paths.Set("/api/v1/roles", &openapi3.PathItem{
		Get: operation("roles", "list_roles", "List roles",
			"List every role that holds a permission, plus roles added in this session.",
			newResponses("200", "Roles", listOf(schemaRef("RoleInfo")))),
		Post: create,
	})

	roleParam := &openapi3.ParameterRef{Value: openapi3.NewPathParameter("role").
		WithDescription("Role name.").
		WithSchema(openapi3.NewStringSchema())}

	get := operation("roles", "get_role", "Role permissions",
		"Return the permissions granted to a role, grouped by schema.",
		newResponses("200", "Role permissions", schemaRef("RoleDetail")))
	get.Parameters = openapi3.Parameters{roleParam}

	del := operation("roles", "delete_role", "Remove a role",
		"Remove every permission entry for the role from the edited copy.",
		newResponses("200", "Role removed", &openapi3.SchemaRef{Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"role":    stringSchema(""),
				"removed": {Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
			},
		}}))
	del.Parameters = openapi3.Parameters{roleParam}

	doc.Paths.Set("/api/v1/roles/{role}", &openapi3.PathItem{Get: get, Delete: del})

	sel := operation("roles", "select_role", "Select a role",
		"Mark the role as selected in this session.",
		newResponses("200", "Session status", schemaRef("Status")))
	sel.Parameters = openapi3.Parameters{roleParam}
	doc.Paths.Set("/api/v1/roles/{role}/select", &openapi3.PathItem{Post: sel})
}

func addBrowsePaths(doc *openapi3.T) {
	doc.Paths.Set("/api/v1/tables", &openapi3.PathItem{
		Get: operation("browse", "list_tables", "List tables",
			"List every tracked table across all sources with permission counts per kind.",
			newResponses("200", "Tables", listOf(schemaRef("TableInfo")))),
	})
	doc.Paths.Set("/api/v1/sources", &openapi3.PathItem{
		Get: operation("browse", "list_sources", "List data sources",
			"List the data sources of the document.",
			newResponses("200", "Sources", listOf(schemaRef("SourceSummary")))),
	})
	doc.Paths.Set("/api/v1/tree", &openapi3.PathItem{
		Get: operation("browse", "permission_tree", "Permission tree",
			"Sources, tables, permission kinds and roles as a tree.",
			newResponses("200", "Tree", listOf(schemaRef("TreeNode")))),
	})
}

func addSystemPaths(doc *openapi3.T) {
	doc.Paths.Set("/api/v1/status", &openapi3.PathItem{
		Get: operation("system", "session_status", "Session status",
			"Describe the editing session.",
			newResponses("200", "Session status", schemaRef("Status"))),
	})

	activity := operation("system", "list_activity", "Activity log",
		"Most recent console operations first.",
		newResponses("200", "Activity entries", listOf(schemaRef("Activity"))))
	activity.Parameters = openapi3.Parameters{
		{Value: openapi3.NewQueryParameter("role").
			WithDescription("Only entries for this role.").
			WithSchema(openapi3.NewStringSchema())},
		{Value: openapi3.NewQueryParameter("action").
			WithDescription("Only entries with this action.").
			WithSchema(openapi3.NewStringSchema())},
		{Value: openapi3.NewQueryParameter("limit").
			WithDescription("Maximum entries returned (1-1000, default 100).").
			WithSchema(openapi3.NewIntegerSchema())},
	}
	doc.Paths.Set("/api/v1/activity", &openapi3.PathItem{Get: activity})

	doc.Paths.Set("/api/v1/system/settings", &openapi3.PathItem{
		Get: operation("system", "list_settings", "List settings",
			"Stored settings ordered by key. Secret values are masked.",
			newResponses("200", "Settings", listOf(schemaRef("Setting")))),
	})

	keyParam := &openapi3.ParameterRef{Value: openapi3.NewPathParameter("key").
		WithDescription("Setting key, e.g. hasura.endpoint.").
		WithSchema(openapi3.NewStringSchema())}

	put := operation("system", "put_setting", "Set a setting",
		"Create or replace a setting.",
		newResponses("200", "Stored setting", schemaRef("Setting")))
	put.Parameters = openapi3.Parameters{keyParam}
	put.RequestBody = &openapi3.RequestBodyRef{
		Value: openapi3.NewRequestBody().
			WithRequired(true).
			WithJSONSchemaRef(objectSchema(openapi3.Schemas{"value": stringSchema("")})),
	}
	del := operation("system", "delete_setting", "Delete a setting",
		"Remove a setting.",
		newResponses("200", "Setting deleted", objectSchema(openapi3.Schemas{
			"key":     stringSchema(""),
			"deleted": {Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
		})))
	del.Parameters = openapi3.Parameters{keyParam}
	doc.Paths.Set("/api/v1/system/settings/{key}", &openapi3.PathItem{Put: put, Delete: del})
}

func operation(tag, id, summary, description string, responses *openapi3.Responses) *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{tag},
		Summary:     summary,
		Description: description,
		OperationID: id,
		Responses:   responses,
	}
}

// newResponses creates a response set with the success response and the
// error responses every console endpoint can return.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()

	successDesc := description
	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &successDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})

	addErrorResponse(responses, "404", "Not found")
	addErrorResponse(responses, "500", "Internal server error")
	addErrorResponse(responses, "502", "Metadata service error")
	return responses
}

func addErrorResponse(responses *openapi3.Responses, code, description string) {
	desc := description
	responses.Set(code, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &desc,
			Content:     openapi3.NewContentWithJSONSchemaRef(openapi3.NewSchemaRef(errorRef, nil)),
		},
	})
}

func schemaRef(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef(fmt.Sprintf("#/components/schemas/%s", name), nil)
}

// listOf wraps items in the {"resource": [...], "meta": {...}} envelope.
func listOf(items *openapi3.SchemaRef) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"resource": {Value: &openapi3.Schema{
					Type:  &openapi3.Types{"array"},
					Items: items,
				}},
				"meta": metaSchema(),
			},
		},
	}
}

// metaSchema returns the schema for the "meta" field in list responses.
func metaSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"count": {Value: &openapi3.Schema{
					Type:        &openapi3.Types{"integer"},
					Format:      "int32",
					Description: "Number of items returned.",
				}},
			},
		},
	}
}
