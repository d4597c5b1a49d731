package handler

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/rolekeeper/rolekeeper/internal/hasura"
	"github.com/rolekeeper/rolekeeper/internal/metadata"
	"github.com/rolekeeper/rolekeeper/internal/model"
)

func TestStatusBeforeLoad(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/api/v1/status", nil)
	assertStatus(t, rr, http.StatusOK)

	var st struct {
		Loaded   bool   `json:"loaded"`
		Endpoint string `json:"endpoint"`
	}
	decodeJSON(t, rr, &st)
	if st.Loaded {
		t.Error("status must not trigger a load")
	}
	if st.Endpoint != "http://engine.test/v1/metadata" {
		t.Errorf("endpoint = %q", st.Endpoint)
	}
}

func TestGetMetadataLoadsOnFirstUse(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/api/v1/metadata", nil)
	assertStatus(t, rr, http.StatusOK)

	var doc struct {
		Version int `json:"version"`
		Sources []struct {
			Name string `json:"name"`
		} `json:"sources"`
	}
	decodeJSON(t, rr, &doc)
	if doc.Version != 3 || len(doc.Sources) != 1 {
		t.Errorf("unexpected document: %+v", doc)
	}

	entries, err := env.store.ListActivity(t.Context(), model.ActivityFilter{})
	if err != nil {
		t.Fatalf("ListActivity: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != model.ActionLoad {
		t.Errorf("expected one load entry, got %+v", entries)
	}
}

func TestExport(t *testing.T) {
	env := newTestEnv(t)

	t.Run("json", func(t *testing.T) {
		rr := env.do(t, "GET", "/api/v1/metadata/export", nil)
		assertStatus(t, rr, http.StatusOK)
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "metadata.json") {
			t.Errorf("Content-Disposition = %q", cd)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		rr := env.do(t, "GET", "/api/v1/metadata/export?format=yaml", nil)
		assertStatus(t, rr, http.StatusOK)
		if ct := rr.Header().Get("Content-Type"); ct != "application/yaml" {
			t.Errorf("Content-Type = %q", ct)
		}
		body := rr.Body.String()
		for _, want := range []string{"version: 3", "name: users", "comment: finance only"} {
			if !strings.Contains(body, want) {
				t.Errorf("yaml missing %q:\n%s", want, body)
			}
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		rr := env.do(t, "GET", "/api/v1/metadata/export?format=xml", nil)
		assertStatus(t, rr, http.StatusBadRequest)
	})
}

func TestTables(t *testing.T) {
	env := newTestEnv(t)

	var resp struct {
		Resource []tableInfo `json:"resource"`
		Meta     struct {
			Count int `json:"count"`
		} `json:"meta"`
	}
	rr := env.do(t, "GET", "/api/v1/tables", nil)
	assertStatus(t, rr, http.StatusOK)
	decodeJSON(t, rr, &resp)

	if resp.Meta.Count != 3 || len(resp.Resource) != 3 {
		t.Fatalf("got %d tables, want 3", len(resp.Resource))
	}
	users := resp.Resource[0]
	if users.Schema != "public" || users.Name != "users" || users.Source != "default" {
		t.Errorf("unexpected first row %+v", users)
	}
	if users.Permissions[metadata.KindSelect] != 2 || users.Permissions[metadata.KindUpdate] != 1 || users.Permissions[metadata.KindDelete] != 0 {
		t.Errorf("unexpected counts %+v", users.Permissions)
	}

	rr = env.do(t, "GET", "/api/v1/tables?permitted=true", nil)
	assertStatus(t, rr, http.StatusOK)
	resp.Resource = nil
	decodeJSON(t, rr, &resp)
	if len(resp.Resource) != 2 {
		t.Errorf("got %d permitted tables, want 2", len(resp.Resource))
	}
}

func TestSourcesAndTree(t *testing.T) {
	env := newTestEnv(t)

	var sources struct {
		Resource []metadata.SourceSummary `json:"resource"`
	}
	rr := env.do(t, "GET", "/api/v1/sources", nil)
	assertStatus(t, rr, http.StatusOK)
	decodeJSON(t, rr, &sources)
	if len(sources.Resource) != 1 || sources.Resource[0].Tables != 3 || sources.Resource[0].Kind != "postgres" {
		t.Errorf("unexpected sources %+v", sources.Resource)
	}

	var tree struct {
		Resource []metadata.TreeNode `json:"resource"`
	}
	rr = env.do(t, "GET", "/api/v1/tree", nil)
	assertStatus(t, rr, http.StatusOK)
	decodeJSON(t, rr, &tree)
	if len(tree.Resource) != 1 {
		t.Fatalf("got %d roots", len(tree.Resource))
	}
	// audit_log has no permissions and is pruned.
	if n := len(tree.Resource[0].Children); n != 2 {
		t.Errorf("got %d table nodes, want 2", n)
	}
}

func TestLoadFailureMapsToBadGateway(t *testing.T) {
	env := newTestEnv(t)
	env.transport.setFetchErr(&hasura.TransportError{
		Op:     hasura.OpExport,
		Status: http.StatusUnauthorized,
		Body:   `{"path":"$","error":"invalid x-hasura-admin-secret/x-hasura-access-key","code":"access-denied"}`,
	})

	rr := env.do(t, "GET", "/api/v1/roles", nil)
	assertStatus(t, rr, http.StatusBadGateway)

	var body errorBody
	decodeJSON(t, rr, &body)
	if body.Error.Context["upstream_status"] != float64(401) {
		t.Errorf("upstream_status = %v", body.Error.Context["upstream_status"])
	}
	if body.Error.Context["upstream_code"] != "access-denied" {
		t.Errorf("upstream_code = %v", body.Error.Context["upstream_code"])
	}
	if !strings.HasPrefix(body.Error.Message, "failed to export metadata: 401") {
		t.Errorf("message = %q", body.Error.Message)
	}

	env.transport.setFetchErr(errors.New("dial tcp: connection refused"))
	rr = env.do(t, "POST", "/api/v1/metadata/reload", nil)
	assertStatus(t, rr, http.StatusBadGateway)
}

func TestSaveWritesAndReloads(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "DELETE", "/api/v1/roles/user", nil)
	assertStatus(t, rr, http.StatusOK)

	var changes metadata.ChangeReport
	rr = env.do(t, "GET", "/api/v1/metadata/changes", nil)
	assertStatus(t, rr, http.StatusOK)
	decodeJSON(t, rr, &changes)
	if !changes.HasChanges || changes.Removed != 1 {
		t.Errorf("unexpected pending changes %+v", changes)
	}

	var report metadata.ChangeReport
	rr = env.do(t, "POST", "/api/v1/metadata/save", nil)
	assertStatus(t, rr, http.StatusOK)
	decodeJSON(t, rr, &report)
	if report.Removed != 1 {
		t.Errorf("unexpected save report %+v", report)
	}
	if env.transport.replaced != 1 {
		t.Errorf("got %d replaces, want 1", env.transport.replaced)
	}
	if metadata.HasRole(env.transport.doc, "user") {
		t.Error("remote document still has role user")
	}

	rr = env.do(t, "GET", "/api/v1/metadata/changes", nil)
	changes = metadata.ChangeReport{}
	decodeJSON(t, rr, &changes)
	if changes.HasChanges {
		t.Errorf("expected no pending changes after save, got %+v", changes)
	}
}

func TestSaveFailureKeepsEdits(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, "DELETE", "/api/v1/roles/admin", nil)
	env.transport.setReplaceErr(&hasura.TransportError{
		Op:     hasura.OpReplace,
		Status: http.StatusBadRequest,
		Body:   `{"path":"$.args","error":"inconsistent object","code":"invalid-configuration"}`,
	})

	rr := env.do(t, "POST", "/api/v1/metadata/save", nil)
	assertStatus(t, rr, http.StatusBadGateway)

	var body errorBody
	decodeJSON(t, rr, &body)
	if body.Error.Context["operation"] != hasura.OpReplace {
		t.Errorf("operation = %v", body.Error.Context["operation"])
	}

	var changes metadata.ChangeReport
	rr = env.do(t, "GET", "/api/v1/metadata/changes", nil)
	decodeJSON(t, rr, &changes)
	if changes.Removed != 3 {
		t.Errorf("edits lost: %+v", changes)
	}
}

func TestSaveBeforeLoad(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/v1/metadata/save", nil)
	assertStatus(t, rr, http.StatusConflict)
}
