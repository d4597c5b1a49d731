package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rolekeeper/rolekeeper/internal/console"
	"github.com/rolekeeper/rolekeeper/internal/metadata"
)

// RoleHandler lists, adds and removes roles in the editing session.
type RoleHandler struct {
	session *console.Session
}

// NewRoleHandler creates a new RoleHandler.
func NewRoleHandler(session *console.Session) *RoleHandler {
	return &RoleHandler{session: session}
}

type roleInfo struct {
	Name      string `json:"name"`
	Grants    int    `json:"grants"`
	Transient bool   `json:"transient"`
	Selected  bool   `json:"selected"`
}

type roleDetail struct {
	Name      string                  `json:"name"`
	Transient bool                    `json:"transient"`
	Schemas   []metadata.SchemaGrants `json:"schemas"`
}

type createRoleRequest struct {
	Name     string `json:"name"`
	CopyFrom string `json:"copy_from"`
}

// ListRoles lists every role, including roles added in this session that do
// not hold any permission yet.
// GET /api/v1/roles
func (h *RoleHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := h.session.EnsureLoaded(r.Context()); err != nil {
		writeSessionError(w, err)
		return
	}
	roles, err := h.session.Roles()
	if err != nil {
		writeSessionError(w, err)
		return
	}
	doc, err := h.session.Document()
	if err != nil {
		writeSessionError(w, err)
		return
	}

	counts := make(map[string]int)
	for _, t := range metadata.ListTables(doc) {
		for _, k := range metadata.Kinds() {
			for _, e := range t.Permissions(k) {
				counts[e.Role]++
			}
		}
	}

	selected := h.session.Selected()
	out := make([]roleInfo, len(roles))
	for i, name := range roles {
		out[i] = roleInfo{
			Name:      name,
			Grants:    counts[name],
			Transient: h.session.IsTransient(name),
			Selected:  name == selected,
		}
	}
	writeList(w, out, start)
}

// CreateRole adds a role, optionally cloning another role's permissions.
// POST /api/v1/roles
func (h *RoleHandler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := h.session.EnsureLoaded(r.Context()); err != nil {
		writeSessionError(w, err)
		return
	}

	name, err := h.session.AddRole(r.Context(), req.Name, strings.TrimSpace(req.CopyFrom))
	if err != nil {
		writeSessionError(w, err)
		return
	}

	detail, err := h.detail(name)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, detail)
}

// GetRole returns the permissions held by a role, grouped by schema.
// GET /api/v1/roles/{role}
func (h *RoleHandler) GetRole(w http.ResponseWriter, r *http.Request) {
	role := chi.URLParam(r, "role")
	if err := h.session.EnsureLoaded(r.Context()); err != nil {
		writeSessionError(w, err)
		return
	}

	detail, err := h.detail(role)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	if len(detail.Schemas) == 0 && !detail.Transient {
		writeError(w, http.StatusNotFound, "Role not found: "+role)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// DeleteRole removes every permission entry for a role.
// DELETE /api/v1/roles/{role}
func (h *RoleHandler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	role := chi.URLParam(r, "role")
	if err := h.session.EnsureLoaded(r.Context()); err != nil {
		writeSessionError(w, err)
		return
	}

	found, err := h.session.RemoveRole(r.Context(), role)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "Role not found: "+role)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"role":    role,
		"removed": true,
	})
}

// SelectRole marks a role as selected.
// POST /api/v1/roles/{role}/select
func (h *RoleHandler) SelectRole(w http.ResponseWriter, r *http.Request) {
	role := chi.URLParam(r, "role")
	if err := h.session.EnsureLoaded(r.Context()); err != nil {
		writeSessionError(w, err)
		return
	}
	if err := h.session.Select(role); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Status())
}

func (h *RoleHandler) detail(role string) (roleDetail, error) {
	doc, err := h.session.Document()
	if err != nil {
		return roleDetail{}, err
	}
	schemas := metadata.GroupGrantsBySchema(metadata.RoleGrants(doc, role))
	if schemas == nil {
		schemas = []metadata.SchemaGrants{}
	}
	return roleDetail{
		Name:      role,
		Transient: h.session.IsTransient(role),
		Schemas:   schemas,
	}, nil
}
