package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/rolekeeper/rolekeeper/internal/config"
	"github.com/rolekeeper/rolekeeper/internal/console"
	"github.com/rolekeeper/rolekeeper/internal/metadata"
)

const testMetadata = `{
  "version": 3,
  "sources": [{
    "name": "default",
    "kind": "postgres",
    "tables": [
      {
        "table": {"schema": "public", "name": "users"},
        "select_permissions": [
          {"role": "user", "permission": {"columns": ["id", "name"], "filter": {"id": {"_eq": "X-Hasura-User-Id"}}}},
          {"role": "admin", "permission": {"columns": "*", "filter": {}}}
        ],
        "update_permissions": [
          {"role": "admin", "permission": {"columns": ["name"], "filter": {}, "check": null}}
        ]
      },
      {
        "table": {"schema": "billing", "name": "invoices"},
        "select_permissions": [
          {"role": "admin", "permission": {"columns": [], "filter": {}}, "comment": "finance only"}
        ]
      },
      {
        "table": {"schema": "public", "name": "audit_log"}
      }
    ]
  }]
}`

// stubTransport stands in for the metadata service.
type stubTransport struct {
	mu         sync.Mutex
	doc        *metadata.Document
	fetchErr   error
	replaceErr error
	replaced   int
}

func (s *stubTransport) FetchDocument(context.Context) (*metadata.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.doc.Clone(), nil
}

func (s *stubTransport) ReplaceMetadata(_ context.Context, doc *metadata.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replaceErr != nil {
		return s.replaceErr
	}
	s.doc = doc.Clone()
	s.replaced++
	return nil
}

func (s *stubTransport) Endpoint() string { return "http://engine.test/v1/metadata" }

func (s *stubTransport) setFetchErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchErr = err
}

func (s *stubTransport) setReplaceErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceErr = err
}

// testEnv holds shared state for handler integration tests.
type testEnv struct {
	store     *config.Store
	transport *stubTransport
	session   *console.Session
	router    chi.Router
}

// newTestEnv creates a fresh test environment with an in-memory store, a
// session backed by a stub transport and a Chi router with the console
// routes mounted.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := config.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	doc, err := metadata.Normalize([]byte(testMetadata))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	transport := &stubTransport{doc: doc}
	session := console.NewSession(transport, store, nil)

	metaHandler := NewMetadataHandler(session)
	roleHandler := NewRoleHandler(session)
	activityHandler := NewActivityHandler(store)
	systemHandler := NewSystemHandler(store)

	r := chi.NewRouter()
	r.Get("/openapi.json", NewOpenAPIHandler("test").ServeSpec)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", metaHandler.Status)
		r.Get("/metadata", metaHandler.GetMetadata)
		r.Get("/metadata/export", metaHandler.Export)
		r.Post("/metadata/reload", metaHandler.Reload)
		r.Post("/metadata/save", metaHandler.Save)
		r.Get("/metadata/changes", metaHandler.Changes)
		r.Get("/tables", metaHandler.Tables)
		r.Get("/sources", metaHandler.Sources)
		r.Get("/tree", metaHandler.Tree)

		r.Get("/roles", roleHandler.ListRoles)
		r.Post("/roles", roleHandler.CreateRole)
		r.Get("/roles/{role}", roleHandler.GetRole)
		r.Delete("/roles/{role}", roleHandler.DeleteRole)
		r.Post("/roles/{role}/select", roleHandler.SelectRole)

		r.Get("/activity", activityHandler.ListActivity)

		r.Get("/system/settings", systemHandler.ListSettings)
		r.Put("/system/settings/{key}", systemHandler.PutSetting)
		r.Delete("/system/settings/{key}", systemHandler.DeleteSetting)
	})

	return &testEnv{
		store:     store,
		transport: transport,
		session:   session,
		router:    r,
	}
}

// do executes an HTTP request against the test router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func toJSON(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("toJSON: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

// errorBody is the decoded error envelope.
type errorBody struct {
	Error struct {
		Code    int                    `json:"code"`
		Message string                 `json:"message"`
		Context map[string]interface{} `json:"context"`
	} `json:"error"`
}

func TestOpenAPISpecUsesRequestHost(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/openapi.json", nil)
	req.Host = "console.internal:8090"
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	assertStatus(t, rr, http.StatusOK)

	var spec struct {
		OpenAPI string `json:"openapi"`
		Servers []struct {
			URL string `json:"url"`
		} `json:"servers"`
	}
	decodeJSON(t, rr, &spec)
	if spec.OpenAPI != "3.1.0" {
		t.Errorf("openapi = %q", spec.OpenAPI)
	}
	if len(spec.Servers) != 1 || spec.Servers[0].URL != "http://console.internal:8090" {
		t.Errorf("servers = %+v", spec.Servers)
	}
}
