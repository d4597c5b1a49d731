package metadata

import "fmt"

// Kind is one of the four permission kinds a table carries.
type Kind string

const (
	KindSelect Kind = "select"
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

var allKinds = []Kind{KindSelect, KindInsert, KindUpdate, KindDelete}

// Kinds returns every permission kind in display order.
func Kinds() []Kind {
	return append([]Kind(nil), allKinds...)
}

// ParseKind converts a kind name such as "select" into a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range allKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown permission kind %q", s)
}

// Field returns the document key holding permissions of this kind.
func (k Kind) Field() string {
	return string(k) + "_permissions"
}

// Label returns the capitalized kind name.
func (k Kind) Label() string {
	switch k {
	case KindSelect:
		return "Select"
	case KindInsert:
		return "Insert"
	case KindUpdate:
		return "Update"
	case KindDelete:
		return "Delete"
	}
	return string(k)
}

// Permissions returns the permission list of the given kind.
func (t *Table) Permissions(k Kind) []PermissionEntry {
	switch k {
	case KindSelect:
		return t.SelectPermissions
	case KindInsert:
		return t.InsertPermissions
	case KindUpdate:
		return t.UpdatePermissions
	case KindDelete:
		return t.DeletePermissions
	}
	return nil
}

// SetPermissions replaces the permission list of the given kind.
func (t *Table) SetPermissions(k Kind, list []PermissionEntry) {
	switch k {
	case KindSelect:
		t.SelectPermissions = list
	case KindInsert:
		t.InsertPermissions = list
	case KindUpdate:
		t.UpdatePermissions = list
	case KindDelete:
		t.DeletePermissions = list
	}
}
