package console

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rolekeeper/rolekeeper/internal/metadata"
	"github.com/rolekeeper/rolekeeper/internal/model"
)

const testDocument = `{
  "version": 3,
  "sources": [{
    "name": "default",
    "kind": "postgres",
    "tables": [
      {
        "table": {"schema": "public", "name": "users"},
        "select_permissions": [
          {"role": "user", "permission": {"columns": ["id"], "filter": {}}},
          {"role": "admin", "permission": {"columns": "*", "filter": {}}}
        ]
      },
      {
        "table": {"schema": "public", "name": "orders"},
        "insert_permissions": [
          {"role": "user", "permission": {"columns": [], "check": {}}}
        ]
      }
    ]
  }]
}`

type fakeTransport struct {
	mu         sync.Mutex
	doc        *metadata.Document
	fetchErr   error
	replaceErr error
	replaced   int
}

func newFakeTransport(t *testing.T) *fakeTransport {
	t.Helper()
	doc, err := metadata.Normalize([]byte(testDocument))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	return &fakeTransport{doc: doc}
}

func (f *fakeTransport) FetchDocument(context.Context) (*metadata.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.doc.Clone(), nil
}

func (f *fakeTransport) ReplaceMetadata(_ context.Context, doc *metadata.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.doc = doc.Clone()
	f.replaced++
	return nil
}

func (f *fakeTransport) Endpoint() string { return "http://engine.test/v1/metadata" }

type memoryActivity struct {
	entries []model.Activity
}

func (m *memoryActivity) RecordActivity(_ context.Context, a *model.Activity) error {
	m.entries = append(m.entries, *a)
	return nil
}

func (m *memoryActivity) actions() []string {
	var out []string
	for _, e := range m.entries {
		out = append(out, e.Action)
	}
	return out
}

func newTestSession(t *testing.T) (*Session, *fakeTransport, *memoryActivity) {
	t.Helper()
	tr := newFakeTransport(t)
	act := &memoryActivity{}
	s := NewSession(tr, act, nil)
	if _, err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s, tr, act
}

func TestNotLoaded(t *testing.T) {
	s := NewSession(newFakeTransport(t), nil, nil)
	ctx := context.Background()

	if _, err := s.Document(); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Document: got %v", err)
	}
	if _, err := s.Roles(); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Roles: got %v", err)
	}
	if _, err := s.AddRole(ctx, "x", ""); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("AddRole: got %v", err)
	}
	if _, err := s.RemoveRole(ctx, "x"); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("RemoveRole: got %v", err)
	}
	if _, err := s.Save(ctx); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Save: got %v", err)
	}
	if s.Status().Loaded {
		t.Error("expected unloaded status")
	}

	if err := s.EnsureLoaded(ctx); err != nil {
		t.Fatalf("EnsureLoaded: %v", err)
	}
	if !s.Status().Loaded {
		t.Error("expected loaded status")
	}
}

func TestAddRoleWithCopy(t *testing.T) {
	s, _, act := newTestSession(t)
	ctx := context.Background()

	name, err := s.AddRole(ctx, " support ", "user")
	if err != nil {
		t.Fatalf("AddRole: %v", err)
	}
	if name != "support" {
		t.Errorf("got name %q", name)
	}
	if s.Selected() != "support" {
		t.Errorf("new role not selected")
	}
	if s.IsTransient("support") {
		t.Error("cloned role should be materialized")
	}

	doc, _ := s.Document()
	if len(metadata.RoleGrants(doc, "support")) != 2 {
		t.Errorf("expected 2 grants for support")
	}

	changes, _ := s.Changes()
	if changes.Added != 2 || changes.Removed != 0 {
		t.Errorf("unexpected changes: %+v", changes)
	}

	want := []string{model.ActionLoad, model.ActionAddRole}
	if got := act.actions(); len(got) != 2 || got[1] != want[1] {
		t.Errorf("got activity %v, want %v", got, want)
	}
	if act.entries[1].Detail != "copied from user" {
		t.Errorf("got detail %q", act.entries[1].Detail)
	}
}

func TestAddRoleWithoutCopyIsTransient(t *testing.T) {
	s, tr, _ := newTestSession(t)
	ctx := context.Background()

	if _, err := s.AddRole(ctx, "guest", ""); err != nil {
		t.Fatalf("AddRole: %v", err)
	}
	roles, _ := s.Roles()
	if len(roles) != 3 || roles[1] != "guest" {
		t.Errorf("got roles %v", roles)
	}
	if !s.IsTransient("guest") {
		t.Error("expected guest to be transient")
	}

	// Transient roles take part in duplicate detection.
	if _, err := s.AddRole(ctx, "guest", "user"); !errors.Is(err, metadata.ErrRoleExists) {
		t.Errorf("expected ErrRoleExists, got %v", err)
	}

	changes, _ := s.Changes()
	if changes.HasChanges {
		t.Error("transient role must not change the document")
	}

	// Reload drops transient roles.
	if _, err := s.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.IsTransient("guest") {
		t.Error("transient role survived reload")
	}
	if tr.replaced != 0 {
		t.Error("no replace expected")
	}
}

func TestAddRoleValidationLeavesDocument(t *testing.T) {
	s, _, act := newTestSession(t)
	ctx := context.Background()
	before, _ := s.Document()

	for _, name := range []string{"", "   ", "admin"} {
		_, err := s.AddRole(ctx, name, "user")
		var verr *metadata.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("AddRole(%q): expected ValidationError, got %v", name, err)
		}
	}

	after, _ := s.Document()
	if diff := metadata.Diff(before, after); diff.HasChanges {
		t.Errorf("document changed: %+v", diff.Items)
	}
	if len(act.entries) != 1 {
		t.Errorf("validation failures must not be recorded: %v", act.actions())
	}
}

func TestRemoveRole(t *testing.T) {
	s, _, _ := newTestSession(t)
	ctx := context.Background()

	if err := s.Select("user"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	found, err := s.RemoveRole(ctx, "user")
	if err != nil || !found {
		t.Fatalf("RemoveRole: %v, %v", found, err)
	}
	if s.Selected() != "" {
		t.Error("selection not cleared")
	}
	roles, _ := s.Roles()
	if len(roles) != 1 || roles[0] != "admin" {
		t.Errorf("got roles %v", roles)
	}

	found, _ = s.RemoveRole(ctx, "nobody")
	if found {
		t.Error("expected unknown role to report not found")
	}
}

func TestSelectUnknownRole(t *testing.T) {
	s, _, _ := newTestSession(t)
	if err := s.Select("ghost"); !errors.Is(err, ErrUnknownRole) {
		t.Errorf("got %v", err)
	}
	if err := s.Select(""); err != nil {
		t.Errorf("clearing selection: %v", err)
	}
}

func TestSaveReplacesAndReloads(t *testing.T) {
	s, tr, act := newTestSession(t)
	ctx := context.Background()

	if _, err := s.AddRole(ctx, "auditor", "admin"); err != nil {
		t.Fatalf("AddRole: %v", err)
	}
	report, err := s.Save(ctx)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if report.Added != 1 {
		t.Errorf("got report %+v", report)
	}
	if tr.replaced != 1 {
		t.Errorf("got %d replaces", tr.replaced)
	}
	if !metadata.HasRole(tr.doc, "auditor") {
		t.Error("remote document missing the new role")
	}

	changes, _ := s.Changes()
	if changes.HasChanges {
		t.Error("expected no pending changes after save")
	}

	got := act.actions()
	want := []string{model.ActionLoad, model.ActionAddRole, model.ActionSave, model.ActionLoad}
	if len(got) != len(want) {
		t.Fatalf("got activity %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("activity[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFailedSaveKeepsEdits(t *testing.T) {
	s, tr, _ := newTestSession(t)
	ctx := context.Background()

	if _, err := s.RemoveRole(ctx, "admin"); err != nil {
		t.Fatalf("RemoveRole: %v", err)
	}
	tr.replaceErr = errors.New("boom")

	if _, err := s.Save(ctx); err == nil {
		t.Fatal("expected error")
	}
	changes, _ := s.Changes()
	if changes.Removed != 1 {
		t.Errorf("edits lost after failed save: %+v", changes)
	}
}

func TestFailedLoadKeepsDocument(t *testing.T) {
	s, tr, _ := newTestSession(t)
	ctx := context.Background()

	if _, err := s.AddRole(ctx, "ops", "admin"); err != nil {
		t.Fatalf("AddRole: %v", err)
	}
	tr.fetchErr = errors.New("connection refused")

	if _, err := s.Load(ctx); err == nil {
		t.Fatal("expected error")
	}
	roles, _ := s.Roles()
	found := false
	for _, r := range roles {
		if r == "ops" {
			found = true
		}
	}
	if !found {
		t.Error("prior document not retained after failed load")
	}
}

func TestStatus(t *testing.T) {
	s, _, _ := newTestSession(t)
	ctx := context.Background()

	s.AddRole(ctx, "tmp", "")
	s.AddRole(ctx, "copy", "user")

	st := s.Status()
	if !st.Loaded || st.Roles != 3 || st.Pending != 2 {
		t.Errorf("unexpected status %+v", st)
	}
	if len(st.Transient) != 1 || st.Transient[0] != "tmp" {
		t.Errorf("got transient %v", st.Transient)
	}
	if st.Endpoint != "http://engine.test/v1/metadata" {
		t.Errorf("got endpoint %q", st.Endpoint)
	}
}

func TestApplyReplacesEdits(t *testing.T) {
	s, tr, act := newTestSession(t)
	ctx := context.Background()

	if _, err := s.AddRole(ctx, "guest", ""); err != nil {
		t.Fatalf("AddRole: %v", err)
	}

	next := metadata.RemoveRole(tr.doc, "admin")
	report, err := s.Apply(ctx, next, "edited.yaml")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if report.Removed != 1 || report.Added != 0 {
		t.Errorf("unexpected report %+v", report)
	}
	if s.IsTransient("guest") {
		t.Error("apply should drop transient roles")
	}
	changes, _ := s.Changes()
	if changes.Removed != 1 {
		t.Errorf("changes not visible before save: %+v", changes)
	}
	if tr.replaced != 0 {
		t.Error("apply must not write to the remote service")
	}

	last := act.entries[len(act.entries)-1]
	if last.Action != model.ActionApply || last.Detail != "edited.yaml" {
		t.Errorf("unexpected activity %+v", last)
	}
}

func TestApplyBeforeLoad(t *testing.T) {
	s := NewSession(newFakeTransport(t), nil, nil)
	doc, _ := metadata.Normalize([]byte(testDocument))
	if _, err := s.Apply(context.Background(), doc, "x"); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("got %v, want ErrNotLoaded", err)
	}
}
