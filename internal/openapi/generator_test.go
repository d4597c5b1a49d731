package openapi

import (
	"encoding/json"
	"regexp"
	"strings"
	"testing"
)

func TestGenerate_Info(t *testing.T) {
	doc := Generate("http://localhost:8090", "1.2.3")

	if doc.OpenAPI != "3.1.0" {
		t.Errorf("OpenAPI version = %q, want %q", doc.OpenAPI, "3.1.0")
	}
	if doc.Info == nil {
		t.Fatal("Info is nil")
	}
	if doc.Info.Version != "1.2.3" {
		t.Errorf("Info.Version = %q, want %q", doc.Info.Version, "1.2.3")
	}
	if len(doc.Servers) != 1 || doc.Servers[0].URL != "http://localhost:8090" {
		t.Errorf("Servers not set correctly")
	}
}

func TestGenerate_DefaultVersion(t *testing.T) {
	doc := Generate("http://localhost:8090", "")
	if doc.Info.Version != "dev" {
		t.Errorf("Info.Version = %q, want dev", doc.Info.Version)
	}
}

func TestGenerate_Paths(t *testing.T) {
	doc := Generate("http://localhost:8090", "1.0.0")

	tests := []struct {
		path   string
		method string
		id     string
	}{
		{"/api/v1/metadata", "GET", "get_metadata"},
		{"/api/v1/metadata/export", "GET", "export_metadata"},
		{"/api/v1/metadata/reload", "POST", "reload_metadata"},
		{"/api/v1/metadata/save", "POST", "save_metadata"},
		{"/api/v1/metadata/changes", "GET", "pending_changes"},
		{"/api/v1/roles", "GET", "list_roles"},
		{"/api/v1/roles", "POST", "create_role"},
		{"/api/v1/roles/{role}", "GET", "get_role"},
		{"/api/v1/roles/{role}", "DELETE", "delete_role"},
		{"/api/v1/roles/{role}/select", "POST", "select_role"},
		{"/api/v1/tables", "GET", "list_tables"},
		{"/api/v1/sources", "GET", "list_sources"},
		{"/api/v1/tree", "GET", "permission_tree"},
		{"/api/v1/status", "GET", "session_status"},
		{"/api/v1/activity", "GET", "list_activity"},
		{"/api/v1/system/settings", "GET", "list_settings"},
		{"/api/v1/system/settings/{key}", "PUT", "put_setting"},
		{"/api/v1/system/settings/{key}", "DELETE", "delete_setting"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			item := doc.Paths.Find(tt.path)
			if item == nil {
				t.Fatalf("path %s not found", tt.path)
			}
			op := item.GetOperation(tt.method)
			if op == nil {
				t.Fatalf("no %s operation on %s", tt.method, tt.path)
			}
			if op.OperationID != tt.id {
				t.Errorf("OperationID = %q, want %q", op.OperationID, tt.id)
			}
			if op.Responses.Value("502") == nil {
				t.Error("missing 502 response")
			}
		})
	}

	if got := doc.Paths.Len(); got != 15 {
		t.Errorf("got %d paths, want 15", got)
	}
}

func TestGenerate_CreateRole(t *testing.T) {
	doc := Generate("http://localhost:8090", "1.0.0")
	op := doc.Paths.Find("/api/v1/roles").Post

	if op.RequestBody == nil || !op.RequestBody.Value.Required {
		t.Fatal("create_role must require a body")
	}
	for _, code := range []string{"201", "409", "422"} {
		if op.Responses.Value(code) == nil {
			t.Errorf("missing %s response", code)
		}
	}

	req := doc.Components.Schemas["RoleRequest"].Value
	if len(req.Required) != 1 || req.Required[0] != "name" {
		t.Errorf("RoleRequest.Required = %v", req.Required)
	}
}

func TestGenerate_ExportFormatParameter(t *testing.T) {
	doc := Generate("http://localhost:8090", "1.0.0")
	op := doc.Paths.Find("/api/v1/metadata/export").Get

	if len(op.Parameters) != 1 {
		t.Fatalf("got %d parameters", len(op.Parameters))
	}
	p := op.Parameters[0].Value
	if p.Name != "format" || p.In != "query" {
		t.Errorf("unexpected parameter %s in %s", p.Name, p.In)
	}
	if len(p.Schema.Value.Enum) != 2 {
		t.Errorf("format enum = %v", p.Schema.Value.Enum)
	}
}

func TestGenerate_RefsResolve(t *testing.T) {
	doc := Generate("http://localhost:8090", "1.0.0")

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	refs := regexp.MustCompile(`"\$ref":"#/components/schemas/([A-Za-z]+)"`).FindAllStringSubmatch(string(data), -1)
	if len(refs) == 0 {
		t.Fatal("no refs found")
	}
	for _, m := range refs {
		if _, ok := doc.Components.Schemas[m[1]]; !ok {
			t.Errorf("unresolved ref %s", m[1])
		}
	}
}

func TestGenerate_ErrorResponseSchema(t *testing.T) {
	doc := Generate("http://localhost:8090", "1.0.0")

	errSchema, ok := doc.Components.Schemas["ErrorResponse"]
	if !ok {
		t.Fatal("ErrorResponse schema missing")
	}
	inner := errSchema.Value.Properties["error"]
	if inner == nil {
		t.Fatal("error property missing")
	}
	for _, field := range []string{"code", "message", "context"} {
		if _, ok := inner.Value.Properties[field]; !ok {
			t.Errorf("error.%s missing", field)
		}
	}
}

func TestGenerate_JSONIsStable(t *testing.T) {
	a, _ := json.Marshal(Generate("http://x", "1"))
	b, _ := json.Marshal(Generate("http://x", "1"))
	if string(a) != string(b) {
		t.Error("generated document differs between calls")
	}
	if !strings.Contains(string(a), `"openapi":"3.1.0"`) {
		t.Errorf("unexpected document head: %.80s", a)
	}
}
