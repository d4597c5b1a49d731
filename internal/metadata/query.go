package metadata

import (
	"encoding/json"
	"slices"
	"sort"
)

// ListTables returns every table of every source, in source order and then
// table order. Nothing is filtered or deduplicated.
func ListTables(doc *Document) []Table {
	if doc == nil {
		return nil
	}
	var tables []Table
	for _, src := range doc.Sources {
		tables = append(tables, src.Tables...)
	}
	return tables
}

// ListDataSources returns the document's sources, or an empty slice when the
// document has none.
func ListDataSources(doc *Document) []Source {
	if doc == nil || doc.Sources == nil {
		return []Source{}
	}
	return doc.Sources
}

// ListRoles returns the sorted set of role names that appear in any
// permission list of any table.
func ListRoles(doc *Document) []string {
	seen := make(map[string]struct{})
	for _, t := range ListTables(doc) {
		for _, k := range allKinds {
			for _, e := range t.Permissions(k) {
				seen[e.Role] = struct{}{}
			}
		}
	}
	roles := make([]string, 0, len(seen))
	for r := range seen {
		roles = append(roles, r)
	}
	slices.Sort(roles)
	return roles
}

// HasRole reports whether role holds at least one permission entry.
func HasRole(doc *Document, role string) bool {
	_, found := slices.BinarySearch(ListRoles(doc), role)
	return found
}

// Grant is one permission entry seen from the role's side.
type Grant struct {
	Kind       Kind            `json:"kind"`
	Source     string          `json:"source"`
	Table      TableRef        `json:"table"`
	Permission Permission      `json:"permission"`
	Comment    json.RawMessage `json:"comment,omitempty"`
}

// RoleGrants collects every permission entry held by role, ordered by
// schema and then qualified table name. Grants on the same table keep the
// select, insert, update, delete order.
func RoleGrants(doc *Document, role string) []Grant {
	var grants []Grant
	if doc == nil {
		return grants
	}
	for _, src := range doc.Sources {
		for _, t := range src.Tables {
			for _, k := range allKinds {
				for _, e := range t.Permissions(k) {
					if e.Role != role {
						continue
					}
					grants = append(grants, Grant{
						Kind:       k,
						Source:     src.Name,
						Table:      t.Table,
						Permission: e.Permission,
						Comment:    e.Comment,
					})
				}
			}
		}
	}
	sort.SliceStable(grants, func(i, j int) bool {
		a, b := grants[i].Table, grants[j].Table
		if a.Schema != b.Schema {
			return a.Schema < b.Schema
		}
		return a.String() < b.String()
	})
	return grants
}

// SchemaGrants groups the grants that live in one schema.
type SchemaGrants struct {
	Schema string  `json:"schema"`
	Grants []Grant `json:"grants"`
}

// GroupGrantsBySchema groups grants by table schema, keeping the order in
// which each schema first appears.
func GroupGrantsBySchema(grants []Grant) []SchemaGrants {
	var groups []SchemaGrants
	index := make(map[string]int)
	for _, g := range grants {
		i, ok := index[g.Table.Schema]
		if !ok {
			i = len(groups)
			index[g.Table.Schema] = i
			groups = append(groups, SchemaGrants{Schema: g.Table.Schema})
		}
		groups[i].Grants = append(groups[i].Grants, g)
	}
	return groups
}

// SourceSummary describes one source for the roles overview.
type SourceSummary struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Tables int    `json:"tables"`
}

// Summary gives the counts shown next to the role list.
type Summary struct {
	Version int             `json:"version"`
	Sources []SourceSummary `json:"sources"`
	Tables  int             `json:"tables"`
	Roles   int             `json:"roles"`
}

// Summarize counts sources, tables and roles in doc.
func Summarize(doc *Document) Summary {
	s := Summary{Sources: []SourceSummary{}}
	if doc == nil {
		return s
	}
	s.Version = doc.Version
	for _, src := range ListDataSources(doc) {
		s.Sources = append(s.Sources, SourceSummary{
			Name:   src.Name,
			Kind:   src.Kind,
			Tables: len(src.Tables),
		})
	}
	s.Tables = len(ListTables(doc))
	s.Roles = len(ListRoles(doc))
	return s
}
