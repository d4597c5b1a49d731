package metadata

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// CloneRolePermissions returns a copy of doc in which every permission that
// role from holds is also granted to role to.
//
// Each table and kind is handled on its own: when the list has an entry for
// from, its permission and comment are copied into an entry for to. An
// existing entry for to is replaced in place, otherwise the copy is
// appended. doc is never modified.
func CloneRolePermissions(doc *Document, from, to string) *Document {
	out := doc.Clone()
	if out == nil {
		return nil
	}
	for si := range out.Sources {
		tables := out.Sources[si].Tables
		for ti := range tables {
			for _, k := range allKinds {
				tables[ti].SetPermissions(k, upsertCopy(tables[ti].Permissions(k), from, to))
			}
		}
	}
	return out
}

func upsertCopy(list []PermissionEntry, from, to string) []PermissionEntry {
	src := indexOfRole(list, from)
	if src < 0 {
		return list
	}
	entry := PermissionEntry{
		Role:       to,
		Permission: list[src].Permission.Clone(),
		Comment:    cloneRaw(list[src].Comment),
		Extra:      cloneFields(list[src].Extra),
	}
	if dst := indexOfRole(list, to); dst >= 0 {
		list[dst] = entry
		return list
	}
	return append(list, entry)
}

func indexOfRole(list []PermissionEntry, role string) int {
	return slices.IndexFunc(list, func(e PermissionEntry) bool { return e.Role == role })
}

// RemoveRole returns a copy of doc without any permission entry for role.
// Lists left empty stay in the document as empty lists.
func RemoveRole(doc *Document, role string) *Document {
	out := doc.Clone()
	if out == nil {
		return nil
	}
	for si := range out.Sources {
		tables := out.Sources[si].Tables
		for ti := range tables {
			for _, k := range allKinds {
				list := tables[ti].Permissions(k)
				if list == nil {
					continue
				}
				kept := make([]PermissionEntry, 0, len(list))
				for _, e := range list {
					if e.Role != role {
						kept = append(kept, e)
					}
				}
				tables[ti].SetPermissions(k, kept)
			}
		}
	}
	return out
}

var (
	// ErrRoleNameRequired is returned when a role name is empty or blank.
	ErrRoleNameRequired = errors.New("role name is required")
	// ErrRoleExists is returned when adding a role that already holds
	// permissions.
	ErrRoleExists = errors.New("role already exists")
)

// ValidationError reports a rejected role request. The document is left
// untouched whenever one is returned.
type ValidationError struct {
	Field string
	Role  string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Role != "" {
		return fmt.Sprintf("%s: %v: %q", e.Field, e.Err, e.Role)
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ValidateRoleName trims name and checks it against the roles already
// present in existing.
func ValidateRoleName(name string, existing []string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &ValidationError{Field: "name", Err: ErrRoleNameRequired}
	}
	if slices.Contains(existing, name) {
		return name, &ValidationError{Field: "name", Role: name, Err: ErrRoleExists}
	}
	return name, nil
}

// AddRole validates a new role name and, when copyFrom is set, clones the
// permissions of copyFrom onto it. It returns the resulting document and
// the trimmed role name.
//
// A role without permissions cannot be represented in the document, so
// adding a role without copyFrom returns an unchanged copy of doc.
func AddRole(doc *Document, name, copyFrom string) (*Document, string, error) {
	name, err := ValidateRoleName(name, ListRoles(doc))
	if err != nil {
		return doc, name, err
	}
	if copyFrom == "" {
		return doc.Clone(), name, nil
	}
	return CloneRolePermissions(doc, copyFrom, name), name, nil
}
