package openapi

import "github.com/getkin/kin-openapi/openapi3"

// componentSchemas returns the shared schemas referenced by the console
// paths.
func componentSchemas() openapi3.Schemas {
	kinds := []any{"select", "insert", "update", "delete"}

	return openapi3.Schemas{
		"ErrorResponse": objectSchema(openapi3.Schemas{
			"error": objectSchema(openapi3.Schemas{
				"code":    {Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
				"message": stringSchema(""),
				"context": {Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
			}),
		}),

		// The document is open-ended: unknown members are kept verbatim.
		"Document": {Value: &openapi3.Schema{
			Type:        &openapi3.Types{"object"},
			Description: "Metadata document. Members not listed here are preserved as-is.",
			Properties: openapi3.Schemas{
				"version": {Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}}},
				"sources": {Value: &openapi3.Schema{
					Type:  &openapi3.Types{"array"},
					Items: &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
				}},
			},
		}},

		"Summary": objectSchema(openapi3.Schemas{
			"version": intSchema(),
			"tables":  intSchema(),
			"roles":   intSchema(),
			"sources": arraySchema(schemaRef("SourceSummary")),
		}),

		"SourceSummary": objectSchema(openapi3.Schemas{
			"name":   stringSchema(""),
			"kind":   stringSchema("Backend kind, e.g. postgres."),
			"tables": intSchema(),
		}),

		"TableInfo": objectSchema(openapi3.Schemas{
			"source":      stringSchema(""),
			"schema":      stringSchema(""),
			"name":        stringSchema(""),
			"permissions": {Value: &openapi3.Schema{
				Type:        &openapi3.Types{"object"},
				Description: "Number of permission entries per kind.",
				AdditionalProperties: openapi3.AdditionalProperties{
					Schema: intSchema(),
				},
			}},
		}),

		"TableRef": objectSchema(openapi3.Schemas{
			"schema": stringSchema(""),
			"name":   stringSchema(""),
		}),

		"Grant": objectSchema(openapi3.Schemas{
			"kind":       {Value: openapi3.NewStringSchema().WithEnum(kinds...)},
			"source":     stringSchema(""),
			"table":      schemaRef("TableRef"),
			"permission": {Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
			"comment":    {Value: &openapi3.Schema{Description: "Opaque comment value."}},
		}),

		"RoleInfo": objectSchema(openapi3.Schemas{
			"name":      stringSchema(""),
			"grants":    intSchema(),
			"transient": {Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}, Description: "Added in this session without permissions."}},
			"selected":  {Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
		}),

		"RoleDetail": objectSchema(openapi3.Schemas{
			"name":      stringSchema(""),
			"transient": {Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
			"schemas": arraySchema(objectSchema(openapi3.Schemas{
				"schema": stringSchema(""),
				"grants": arraySchema(schemaRef("Grant")),
			})),
		}),

		"RoleRequest": {Value: &openapi3.Schema{
			Type:     &openapi3.Types{"object"},
			Required: []string{"name"},
			Properties: openapi3.Schemas{
				"name":      stringSchema("New role name. Surrounding whitespace is trimmed."),
				"copy_from": stringSchema("Existing role whose permissions are copied."),
			},
		}},

		"ChangeReport": objectSchema(openapi3.Schemas{
			"has_changes": {Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
			"added":       intSchema(),
			"removed":     intSchema(),
			"modified":    intSchema(),
			"roles":       arraySchema(stringSchema("")),
			"items": arraySchema(objectSchema(openapi3.Schemas{
				"type":        {Value: openapi3.NewStringSchema().WithEnum("added", "removed", "modified")},
				"source":      stringSchema(""),
				"table":       stringSchema(""),
				"kind":        {Value: openapi3.NewStringSchema().WithEnum(kinds...)},
				"role":        stringSchema(""),
				"description": stringSchema(""),
			})),
		}),

		"TreeNode": objectSchema(openapi3.Schemas{
			"id":       stringSchema(""),
			"label":    stringSchema(""),
			"type":     {Value: openapi3.NewStringSchema().WithEnum("source", "table", "permission", "role")},
			"kind":     {Value: openapi3.NewStringSchema().WithEnum(kinds...)},
			"children": arraySchema(schemaRef("TreeNode")),
		}),

		"Status": objectSchema(openapi3.Schemas{
			"loaded":          {Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
			"endpoint":        stringSchema("Metadata API URL."),
			"loaded_at":       {Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}},
			"selected_role":   stringSchema(""),
			"roles":           intSchema(),
			"transient_roles": arraySchema(stringSchema("")),
			"pending_changes": intSchema(),
		}),

		"Setting": objectSchema(openapi3.Schemas{
			"key":   stringSchema(""),
			"value": stringSchema(""),
		}),

		"Activity": objectSchema(openapi3.Schemas{
			"id":         {Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}},
			"action":     {Value: openapi3.NewStringSchema().WithEnum("load", "save", "add_role", "remove_role", "apply")},
			"role":       stringSchema(""),
			"detail":     stringSchema(""),
			"endpoint":   stringSchema(""),
			"created_at": {Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}},
		}),
	}
}

func objectSchema(props openapi3.Schemas) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: props,
	}}
}

func arraySchema(items *openapi3.SchemaRef) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:  &openapi3.Types{"array"},
		Items: items,
	}}
}

func stringSchema(description string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:        &openapi3.Types{"string"},
		Description: description,
	}}
}

func intSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:   &openapi3.Types{"integer"},
		Format: "int32",
	}}
}
