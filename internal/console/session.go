// Package console holds the editing session shared by the HTTP console, the
// MCP server and the CLI. A session keeps the last fetched document, the
// locally edited copy and the roles added without any permissions yet.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/rolekeeper/rolekeeper/internal/metadata"
	"github.com/rolekeeper/rolekeeper/internal/model"
)

// ErrNotLoaded is returned when an operation needs a document and none has
// been fetched yet.
var ErrNotLoaded = errors.New("metadata not loaded")

// Transport fetches and replaces the metadata document.
type Transport interface {
	FetchDocument(ctx context.Context) (*metadata.Document, error)
	ReplaceMetadata(ctx context.Context, doc *metadata.Document) error
	Endpoint() string
}

// ActivityRecorder is what the session needs from the local store.
type ActivityRecorder interface {
	RecordActivity(ctx context.Context, a *model.Activity) error
}

// Session is one operator's editing session. It is safe for concurrent use;
// the last write to the remote service wins.
type Session struct {
	transport Transport
	activity  ActivityRecorder
	logger    *slog.Logger

	mu        sync.RWMutex
	baseline  *metadata.Document
	current   *metadata.Document
	transient []string
	selected  string
	loadedAt  time.Time
}

// NewSession creates a session. activity may be nil.
func NewSession(transport Transport, activity ActivityRecorder, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{transport: transport, activity: activity, logger: logger}
}

// Status describes the session for health and status views.
type Status struct {
	Loaded    bool      `json:"loaded"`
	Endpoint  string    `json:"endpoint"`
	LoadedAt  time.Time `json:"loaded_at,omitzero"`
	Selected  string    `json:"selected_role,omitempty"`
	Roles     int       `json:"roles"`
	Transient []string  `json:"transient_roles"`
	Pending   int       `json:"pending_changes"`
}

// Load fetches the document and makes it both baseline and current copy.
// Unsaved edits and transient roles are discarded. On failure the prior
// state is kept.
func (s *Session) Load(ctx context.Context) (*metadata.Document, error) {
	doc, err := s.transport.FetchDocument(ctx)
	if err != nil {
		s.logger.Warn("metadata fetch failed", "endpoint", s.transport.Endpoint(), "error", err)
		return nil, err
	}

	s.mu.Lock()
	s.baseline = doc
	s.current = doc.Clone()
	s.transient = nil
	if s.selected != "" && !metadata.HasRole(doc, s.selected) {
		s.selected = ""
	}
	s.loadedAt = time.Now().UTC()
	roles := len(metadata.ListRoles(doc))
	s.mu.Unlock()

	s.logger.Info("metadata loaded", "endpoint", s.transport.Endpoint(), "roles", roles)
	s.record(ctx, model.ActionLoad, "", fmt.Sprintf("%d roles", roles))
	return doc.Clone(), nil
}

// EnsureLoaded loads the document when the session has none yet.
func (s *Session) EnsureLoaded(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.current != nil
	s.mu.RUnlock()
	if loaded {
		return nil
	}
	_, err := s.Load(ctx)
	return err
}

// Save replaces the remote document with the current copy and then reloads
// it. A failed replace leaves the session untouched.
func (s *Session) Save(ctx context.Context) (metadata.ChangeReport, error) {
	s.mu.RLock()
	if s.current == nil {
		s.mu.RUnlock()
		return metadata.ChangeReport{}, ErrNotLoaded
	}
	doc := s.current.Clone()
	report := metadata.Diff(s.baseline, s.current)
	s.mu.RUnlock()

	if err := s.transport.ReplaceMetadata(ctx, doc); err != nil {
		s.logger.Warn("metadata replace failed", "endpoint", s.transport.Endpoint(), "error", err)
		return report, err
	}
	s.logger.Info("metadata replaced", "added", report.Added, "removed", report.Removed, "modified", report.Modified)
	s.record(ctx, model.ActionSave, "", fmt.Sprintf("%d added, %d removed, %d modified", report.Added, report.Removed, report.Modified))

	if _, err := s.Load(ctx); err != nil {
		// The replace went through; keep the saved copy as the new baseline.
		s.mu.Lock()
		s.baseline = doc
		s.mu.Unlock()
		return report, fmt.Errorf("reload after save: %w", err)
	}
	return report, nil
}

// AddRole adds name to the current copy, cloning the permissions of
// copyFrom when it is set. A role added without copyFrom has no
// permissions; it is kept as a transient role until the next Load.
func (s *Session) AddRole(ctx context.Context, name, copyFrom string) (string, error) {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return "", ErrNotLoaded
	}
	existing := append(metadata.ListRoles(s.current), s.transient...)
	name, err := metadata.ValidateRoleName(name, existing)
	if err != nil {
		s.mu.Unlock()
		return name, err
	}

	if copyFrom == "" {
		s.transient = append(s.transient, name)
	} else {
		s.current = metadata.CloneRolePermissions(s.current, copyFrom, name)
		if !metadata.HasRole(s.current, name) {
			s.transient = append(s.transient, name)
		}
	}
	s.selected = name
	s.mu.Unlock()

	detail := "no permissions"
	if copyFrom != "" {
		detail = "copied from " + copyFrom
	}
	s.logger.Info("role added", "role", name, "copy_from", copyFrom)
	s.record(ctx, model.ActionAddRole, name, detail)
	return name, nil
}

// RemoveRole deletes every permission entry for role from the current copy.
// It reports whether the role was known.
func (s *Session) RemoveRole(ctx context.Context, role string) (bool, error) {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return false, ErrNotLoaded
	}
	found := metadata.HasRole(s.current, role)
	if found {
		s.current = metadata.RemoveRole(s.current, role)
	}
	if i := slices.Index(s.transient, role); i >= 0 {
		s.transient = slices.Delete(s.transient, i, i+1)
		found = true
	}
	if s.selected == role {
		s.selected = ""
	}
	s.mu.Unlock()

	if found {
		s.logger.Info("role removed", "role", role)
		s.record(ctx, model.ActionRemoveRole, role, "")
	}
	return found, nil
}

// Apply makes doc the current copy, replacing every local edit. The
// baseline is kept so Changes reports what saving doc would do. source
// names where doc came from for the activity log.
func (s *Session) Apply(ctx context.Context, doc *metadata.Document, source string) (metadata.ChangeReport, error) {
	if doc == nil {
		return metadata.ChangeReport{}, fmt.Errorf("apply: no document")
	}
	s.mu.Lock()
	if s.baseline == nil {
		s.mu.Unlock()
		return metadata.ChangeReport{}, ErrNotLoaded
	}
	s.current = doc.Clone()
	s.transient = nil
	if s.selected != "" && !metadata.HasRole(s.current, s.selected) {
		s.selected = ""
	}
	report := metadata.Diff(s.baseline, s.current)
	s.mu.Unlock()

	s.logger.Info("document applied", "source", source, "added", report.Added, "removed", report.Removed, "modified", report.Modified)
	s.record(ctx, model.ActionApply, "", source)
	return report, nil
}

// Select marks role as the selected role. An empty role clears the
// selection.
func (s *Session) Select(role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNotLoaded
	}
	if role != "" && !metadata.HasRole(s.current, role) && !slices.Contains(s.transient, role) {
		return fmt.Errorf("select role %q: %w", role, ErrUnknownRole)
	}
	s.selected = role
	return nil
}

// ErrUnknownRole is returned when selecting a role that is not present.
var ErrUnknownRole = errors.New("unknown role")

// Selected returns the selected role, if any.
func (s *Session) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// Document returns a copy of the current document.
func (s *Session) Document() (*metadata.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, ErrNotLoaded
	}
	return s.current.Clone(), nil
}

// Roles returns the roles of the current copy followed by the transient
// roles, sorted together.
func (s *Session) Roles() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, ErrNotLoaded
	}
	roles := append(metadata.ListRoles(s.current), s.transient...)
	slices.Sort(roles)
	return slices.Compact(roles), nil
}

// IsTransient reports whether role exists only in this session.
func (s *Session) IsTransient(role string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.transient, role)
}

// Changes compares the current copy with the last fetched document.
func (s *Session) Changes() (metadata.ChangeReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return metadata.ChangeReport{}, ErrNotLoaded
	}
	return metadata.Diff(s.baseline, s.current), nil
}

// Status summarizes the session.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		Loaded:    s.current != nil,
		Endpoint:  s.transport.Endpoint(),
		LoadedAt:  s.loadedAt,
		Selected:  s.selected,
		Transient: append([]string{}, s.transient...),
	}
	if s.current != nil {
		st.Roles = len(metadata.ListRoles(s.current))
		st.Pending = len(metadata.Diff(s.baseline, s.current).Items)
	}
	return st
}

func (s *Session) record(ctx context.Context, action, role, detail string) {
	if s.activity == nil {
		return
	}
	a := &model.Activity{
		Action:   action,
		Role:     role,
		Detail:   detail,
		Endpoint: s.transport.Endpoint(),
	}
	if err := s.activity.RecordActivity(ctx, a); err != nil {
		s.logger.Warn("failed to record activity", "action", action, "error", err)
	}
}
