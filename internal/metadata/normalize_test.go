package metadata

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sourcesDoc = `{
  "version": 3,
  "sources": [
    {
      "name": "default",
      "kind": "postgres",
      "tables": [
        {
          "table": {"schema": "public", "name": "widgets"},
          "select_permissions": [
            {"role": "viewer", "permission": {"columns": ["id", "name"], "filter": {"owner_id": {"_eq": "X-Hasura-User-Id"}}, "limit": 10}, "comment": "read own"}
          ],
          "insert_permissions": [
            {"role": "admin", "permission": {"columns": "*", "check": {}, "set": {"owner_id": "x-hasura-user-id"}, "backend_only": false}}
          ],
          "delete_permissions": [],
          "event_triggers": [{"name": "widget_created"}]
        },
        {
          "table": {"schema": "sales", "name": "orders"},
          "is_enum": false,
          "configuration": {"custom_name": "Orders"}
        }
      ],
      "configuration": {"connection_info": {"database_url": {"from_env": "PG_DATABASE_URL"}}},
      "customization": {"root_fields": {"namespace": "db"}}
    }
  ],
  "actions": [{"name": "login"}],
  "custom_types": {"objects": []},
  "remote_schemas": [{"name": "payments", "definition": {"url": "https://payments.internal"}}],
  "inherited_roles": [],
  "api_limits": null
}`

func TestNormalizeSourcesShapeIsIdentity(t *testing.T) {
	doc, err := Normalize([]byte(sourcesDoc))
	require.NoError(t, err)

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, sourcesDoc, string(out))
}

func TestNormalizePreservesExtraKeyOrder(t *testing.T) {
	doc, err := Normalize([]byte(sourcesDoc))
	require.NoError(t, err)
	require.NotNil(t, doc.Extra)

	var keys []string
	for pair := doc.Extra.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	assert.Equal(t, []string{"remote_schemas", "inherited_roles", "api_limits"}, keys)

	raw, ok := doc.Extra.Get("api_limits")
	require.True(t, ok)
	assert.Equal(t, "null", string(raw))
}

func TestNormalizeSourcesShapeTypedFields(t *testing.T) {
	doc, err := Normalize([]byte(sourcesDoc))
	require.NoError(t, err)

	require.Len(t, doc.Sources, 1)
	src := doc.Sources[0]
	assert.Equal(t, "default", src.Name)
	require.Len(t, src.Tables, 2)

	widgets := src.Tables[0]
	assert.Equal(t, "public.widgets", widgets.Table.String())
	require.Len(t, widgets.SelectPermissions, 1)
	assert.Equal(t, []string{"id", "name"}, widgets.SelectPermissions[0].Permission.Columns.Names)
	require.NotNil(t, widgets.SelectPermissions[0].Permission.Limit)
	assert.Equal(t, json.Number("10"), *widgets.SelectPermissions[0].Permission.Limit)
	assert.True(t, widgets.InsertPermissions[0].Permission.Columns.Wildcard)
	assert.NotNil(t, widgets.DeletePermissions)
	assert.Empty(t, widgets.DeletePermissions)
	assert.Nil(t, widgets.UpdatePermissions)
}

func TestNormalizeLegacyShape(t *testing.T) {
	payload := `{
	  "version": 2,
	  "tables": [
	    {
	      "table": {"schema": "public", "name": "widgets"},
	      "select_permissions": [
	        {"role": "viewer", "permission": {"columns": ["id"]}}
	      ]
	    }
	  ]
	}`
	doc, err := Normalize([]byte(payload))
	require.NoError(t, err)

	require.Len(t, doc.Sources, 1)
	src := doc.Sources[0]
	assert.Equal(t, "default", src.Name)
	assert.Equal(t, "postgres", src.Kind)
	require.Len(t, src.Tables, 1)

	tbl := src.Tables[0]
	assert.Equal(t, "widgets", tbl.Table.Name)
	assert.Equal(t, "public", tbl.Table.Schema)
	require.Len(t, tbl.SelectPermissions, 1)
	assert.Equal(t, "viewer", tbl.SelectPermissions[0].Role)
	assert.Equal(t, []string{"id"}, tbl.SelectPermissions[0].Permission.Columns.Names)

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{
	  "version": 2,
	  "sources": [{
	    "name": "default",
	    "kind": "postgres",
	    "configuration": {},
	    "tables": [{
	      "table": {"schema": "public", "name": "widgets"},
	      "select_permissions": [{"role": "viewer", "permission": {"columns": ["id"]}}]
	    }]
	  }],
	  "actions": null,
	  "custom_types": null
	}`, string(out))
}

func TestNormalizeLegacyDefaults(t *testing.T) {
	payload := `{
	  "tables": [
	    {
	      "table": {"name": "audit_log"},
	      "insert_permissions": [
	        {"role": "writer", "permission": {"check": {"ok": true}, "filter": {"ignored": true}, "backend_only": true}, "comment": "service writes"}
	      ],
	      "delete_permissions": [
	        {"role": "admin", "permission": {"columns": ["id"], "filter": {}}}
	      ]
	    },
	    {"table": "legacy_name"}
	  ],
	  "query_templates": [{"name": "q1"}],
	  "actions": [{"name": "a"}]
	}`
	doc, err := Normalize([]byte(payload))
	require.NoError(t, err)

	assert.Equal(t, 0, doc.Version)
	assert.JSONEq(t, `[{"name":"a"}]`, string(doc.Actions))
	assert.Equal(t, "null", string(doc.CustomTypes))

	tables := doc.Sources[0].Tables
	require.Len(t, tables, 2)
	assert.Equal(t, "public", tables[0].Table.Schema)
	assert.Equal(t, "public.legacy_name", tables[1].Table.String())

	ins := tables[0].InsertPermissions[0]
	assert.JSONEq(t, `"service writes"`, string(ins.Comment))
	assert.NotNil(t, ins.Permission.Columns.Names, "columns default to an empty list")
	assert.Empty(t, ins.Permission.Columns.Names)
	assert.Nil(t, ins.Permission.Filter, "filter is not an insert field")
	require.NotNil(t, ins.Permission.BackendOnly)
	assert.True(t, *ins.Permission.BackendOnly)

	del := tables[0].DeletePermissions[0]
	assert.True(t, del.Permission.Columns.IsZero(), "delete carries no columns")
	assert.JSONEq(t, `{}`, string(del.Permission.Filter))

	require.NotNil(t, doc.Extra)
	raw, ok := doc.Extra.Get("query_templates")
	require.True(t, ok)
	assert.JSONEq(t, `[{"name":"q1"}]`, string(raw))
	_, ok = doc.Extra.Get("tables")
	assert.False(t, ok)
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	payload := []byte(`{"tables":[{"table":{"name":"t"},"select_permissions":[{"role":"r","permission":{}}]}]}`)
	before := string(payload)
	_, err := Normalize(payload)
	require.NoError(t, err)
	assert.Equal(t, before, string(payload))
}

func TestNormalizeUnknownShapePassesThrough(t *testing.T) {
	payload := `{"version": 1, "remote_schemas": [], "sources": "not-an-array"}`
	doc, err := Normalize([]byte(payload))
	require.NoError(t, err)
	assert.Nil(t, doc.Sources)
	assert.Equal(t, 1, doc.Version)

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, payload, string(out))
}

func TestNormalizeRejectsNonObject(t *testing.T) {
	tests := []string{`[]`, `"text"`, `42`, ``}
	for _, payload := range tests {
		_, err := Normalize([]byte(payload))
		if !errors.Is(err, ErrNotObject) {
			t.Errorf("Normalize(%q): got %v, want ErrNotObject", payload, err)
		}
	}

	_, err := Normalize([]byte(`{"sources": [`))
	assert.Error(t, err)
}

func TestNormalizeDataConnectorTableRefs(t *testing.T) {
	payload := `{
	  "version": 3,
	  "sources": [{
	    "name": "chinook",
	    "kind": "sqlite",
	    "tables": [
	      {"table": ["Album"], "select_permissions": [{"role": "user", "permission": {"columns": ["AlbumId"], "filter": {}}}]},
	      {"table": ["main", "Artist"], "select_permissions": [{"role": "user", "permission": {"columns": ["Name"], "filter": {}, "limit": 10.0}}]}
	    ],
	    "configuration": {"value": {"db": "/chinook.db"}}
	  }]
	}`

	doc, err := Normalize([]byte(payload))
	require.NoError(t, err)

	tables := ListTables(doc)
	require.Len(t, tables, 2)
	assert.Equal(t, "Album", tables[0].Table.String())
	assert.Equal(t, "main.Artist", tables[1].Table.String())
	assert.Equal(t, json.Number("10.0"), *tables[1].SelectPermissions[0].Permission.Limit)

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, payload, string(out))

	// Array refs survive a role copy and keep their grants apart.
	cloned := CloneRolePermissions(doc, "user", "reader")
	grants := RoleGrants(cloned, "reader")
	require.Len(t, grants, 2)
	out, err = json.Marshal(cloned.Sources[0].Tables[0].Table)
	require.NoError(t, err)
	assert.Equal(t, `["Album"]`, string(out))
}

func TestNormalizeKeepsMembersOfUnexpectedType(t *testing.T) {
	payload := `{
	  "version": 3,
	  "sources": [{
	    "name": "default",
	    "kind": "postgres",
	    "tables": [{
	      "table": {"schema": "public", "name": "users"},
	      "is_enum": "sometimes",
	      "select_permissions": [
	        {"role": "user", "permission": {"columns": ["id"], "filter": {}, "allow_aggregations": "yes", "limit": "ten"}}
	      ]
	    }]
	  }]
	}`

	doc, err := Normalize([]byte(payload))
	require.NoError(t, err)

	tbl := doc.Sources[0].Tables[0]
	assert.Nil(t, tbl.IsEnum)
	perm := tbl.SelectPermissions[0].Permission
	assert.Equal(t, []string{"id"}, perm.Columns.Names)
	assert.Nil(t, perm.AllowAggregations)
	assert.Nil(t, perm.Limit)
	assert.True(t, HasRole(doc, "user"))

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, payload, string(out))
}

func TestNormalizeKeepsExplicitNulls(t *testing.T) {
	payload := `{
	  "version": 3,
	  "sources": [
	    {"name": "empty", "kind": "postgres", "tables": null},
	    {"name": "default", "kind": "postgres", "tables": [{
	      "table": {"schema": "public", "name": "users"},
	      "insert_permissions": null,
	      "select_permissions": [{"role": "user", "permission": {"columns": null, "filter": {}, "limit": null}}]
	    }]}
	  ]
	}`

	doc, err := Normalize([]byte(payload))
	require.NoError(t, err)

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, payload, string(out))

	// A null list gives way to real entries once it is filled.
	tbl := doc.Sources[1].Tables[0]
	tbl.SetPermissions(KindInsert, []PermissionEntry{{Role: "user", Permission: Permission{Columns: Columns("id")}}})
	edited, err := json.Marshal(tbl)
	require.NoError(t, err)
	assert.Contains(t, string(edited), `"insert_permissions":[{"role":"user","permission":{"columns":["id"]}}]`)
}
