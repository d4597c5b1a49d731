package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ChangeType classifies a pending change to a permission entry.
type ChangeType string

const (
	// ChangeAdded means the edited document grants something the base does not.
	ChangeAdded ChangeType = "added"
	// ChangeRemoved means a grant in the base is gone from the edited document.
	ChangeRemoved ChangeType = "removed"
	// ChangeModified means the grant exists in both but its body or comment differ.
	ChangeModified ChangeType = "modified"
)

// ChangeItem describes one permission entry that differs between two
// documents.
type ChangeItem struct {
	Type        ChangeType `json:"type"`
	Source      string     `json:"source"`
	Table       string     `json:"table"`
	Kind        Kind       `json:"kind"`
	Role        string     `json:"role"`
	Description string     `json:"description"`
}

// ChangeReport summarizes the differences between a fetched document and
// its edited copy.
type ChangeReport struct {
	HasChanges bool         `json:"has_changes"`
	Added      int          `json:"added"`
	Removed    int          `json:"removed"`
	Modified   int          `json:"modified"`
	Roles      []string     `json:"roles"`
	Items      []ChangeItem `json:"items"`
}

type grantKey struct {
	source string
	schema string
	table  string
	kind   Kind
	role   string
}

type grantBody struct {
	Permission Permission      `json:"permission"`
	Comment    json.RawMessage `json:"comment,omitempty"`
}

type indexedGrant struct {
	key  grantKey
	body []byte
}

// Diff compares the permission entries of base and edited. Items list
// additions and modifications in edited order, then removals in base order.
func Diff(base, edited *Document) ChangeReport {
	report := ChangeReport{Items: []ChangeItem{}, Roles: []string{}}

	baseGrants := indexGrants(base)
	editedGrants := indexGrants(edited)

	baseByKey := make(map[grantKey][]byte, len(baseGrants))
	for _, g := range baseGrants {
		baseByKey[g.key] = g.body
	}
	editedByKey := make(map[grantKey]bool, len(editedGrants))

	for _, g := range editedGrants {
		editedByKey[g.key] = true
		old, exists := baseByKey[g.key]
		switch {
		case !exists:
			report.Items = append(report.Items, newChange(ChangeAdded, g.key,
				fmt.Sprintf("Role %q gains %s on %s", g.key.role, g.key.kind, qualified(g.key))))
		case !bytes.Equal(old, g.body):
			report.Items = append(report.Items, newChange(ChangeModified, g.key,
				fmt.Sprintf("Role %q %s permission on %s changed", g.key.role, g.key.kind, qualified(g.key))))
		}
	}

	for _, g := range baseGrants {
		if !editedByKey[g.key] {
			report.Items = append(report.Items, newChange(ChangeRemoved, g.key,
				fmt.Sprintf("Role %q loses %s on %s", g.key.role, g.key.kind, qualified(g.key))))
		}
	}

	seen := make(map[string]bool)
	for _, item := range report.Items {
		switch item.Type {
		case ChangeAdded:
			report.Added++
		case ChangeRemoved:
			report.Removed++
		case ChangeModified:
			report.Modified++
		}
		if !seen[item.Role] {
			seen[item.Role] = true
			report.Roles = append(report.Roles, item.Role)
		}
	}
	report.HasChanges = len(report.Items) > 0
	return report
}

func indexGrants(doc *Document) []indexedGrant {
	var out []indexedGrant
	if doc == nil {
		return out
	}
	for si, src := range doc.Sources {
		name := src.Name
		if name == "" {
			name = fmt.Sprintf("#%d", si)
		}
		for _, t := range src.Tables {
			for _, k := range allKinds {
				for _, e := range t.Permissions(k) {
					body, err := json.Marshal(grantBody{Permission: e.Permission, Comment: e.Comment})
					if err != nil {
						body = nil
					}
					out = append(out, indexedGrant{
						key: grantKey{
							source: name,
							schema: t.Table.Schema,
							table:  t.Table.Name,
							kind:   k,
							role:   e.Role,
						},
						body: body,
					})
				}
			}
		}
	}
	return out
}

func newChange(typ ChangeType, k grantKey, desc string) ChangeItem {
	return ChangeItem{
		Type:        typ,
		Source:      k.source,
		Table:       qualified(k),
		Kind:        k.kind,
		Role:        k.role,
		Description: desc,
	}
}

func qualified(k grantKey) string {
	return k.schema + "." + k.table
}
