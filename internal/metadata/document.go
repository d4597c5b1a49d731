package metadata

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Document is the metadata document exported by the metadata service. Only
// the parts needed to manage role permissions are modelled; everything else
// is carried in Extra and written back unchanged.
type Document struct {
	Version     int             `json:"version"`
	Sources     []Source        `json:"sources,omitzero"`
	Actions     json.RawMessage `json:"actions,omitempty"`
	CustomTypes json.RawMessage `json:"custom_types,omitempty"`
	Extra       *Fields         `json:"-"`
}

// Source is a named backing data connection and the tables tracked on it.
type Source struct {
	Name          string          `json:"name,omitempty"`
	Kind          string          `json:"kind,omitempty"`
	Tables        []Table         `json:"tables,omitzero"`
	Configuration json.RawMessage `json:"configuration,omitempty"`
	Extra         *Fields         `json:"-"`
}

// Table is a tracked table together with its per-role permission lists.
// A nil list means the key is absent from the document; an empty list is
// kept as [] on the wire.
type Table struct {
	Table             TableRef          `json:"table"`
	SelectPermissions []PermissionEntry `json:"select_permissions,omitzero"`
	InsertPermissions []PermissionEntry `json:"insert_permissions,omitzero"`
	UpdatePermissions []PermissionEntry `json:"update_permissions,omitzero"`
	DeletePermissions []PermissionEntry `json:"delete_permissions,omitzero"`
	Configuration     json.RawMessage   `json:"configuration,omitempty"`
	IsEnum            *bool             `json:"is_enum,omitempty"`
	Extra             *Fields           `json:"-"`
}

// TableRef identifies a table within a source. (Schema, Name) is the key.
// Data connector sources name tables with a JSON array path such as
// ["Chinook", "Album"]; such a reference is kept verbatim in raw, with the
// last element as Name and the rest joined by "." as Schema.
type TableRef struct {
	Name   string  `json:"name"`
	Schema string  `json:"schema,omitempty"`
	Extra  *Fields `json:"-"`

	raw json.RawMessage
}

// String returns the qualified "schema.name" form, or the bare name when
// there is no schema.
func (r TableRef) String() string {
	if r.Schema == "" {
		return r.Name
	}
	return r.Schema + "." + r.Name
}

// PermissionEntry grants one role one kind of access to a table. Within a
// permission list roles are unique.
type PermissionEntry struct {
	Role       string          `json:"role"`
	Permission Permission      `json:"permission"`
	Comment    json.RawMessage `json:"comment,omitempty"`
	Extra      *Fields         `json:"-"`
}

// Permission is the body of a permission entry. Which fields are meaningful
// depends on the Kind of the list holding it. Predicates and presets are
// opaque.
type Permission struct {
	Columns                ColumnSet       `json:"columns,omitzero"`
	Filter                 json.RawMessage `json:"filter,omitempty"`
	Check                  json.RawMessage `json:"check,omitempty"`
	Set                    json.RawMessage `json:"set,omitempty"`
	AllowAggregations      *bool           `json:"allow_aggregations,omitempty"`
	Limit                  *json.Number    `json:"limit,omitempty"`
	QueryRootFields        []string        `json:"query_root_fields,omitzero"`
	SubscriptionRootFields []string        `json:"subscription_root_fields,omitzero"`
	BackendOnly            *bool           `json:"backend_only,omitempty"`
	Extra                  *Fields         `json:"-"`
}

// ColumnSet is the "columns" member of a permission: either a list of
// column names or the "*" wildcard.
type ColumnSet struct {
	Names    []string
	Wildcard bool
}

// Columns returns a ColumnSet holding the given names.
func Columns(names ...string) ColumnSet {
	return ColumnSet{Names: append([]string{}, names...)}
}

// AllColumns reports whether the set grants every column. An empty list
// means all columns for select, insert and update.
func (c ColumnSet) AllColumns() bool {
	return c.Wildcard || len(c.Names) == 0
}

// IsZero reports whether the set is absent from the document.
func (c ColumnSet) IsZero() bool {
	return c.Names == nil && !c.Wildcard
}

func (c ColumnSet) MarshalJSON() ([]byte, error) {
	if c.Wildcard {
		return []byte(`"*"`), nil
	}
	if c.Names == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.Names)
}

func (c *ColumnSet) UnmarshalJSON(data []byte) error {
	*c = ColumnSet{}
	if isNull(data) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "*" {
			return fmt.Errorf("columns: unexpected string %q", s)
		}
		c.Wildcard = true
		return nil
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("columns: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	c.Names = names
	return nil
}

func (c ColumnSet) clone() ColumnSet {
	return ColumnSet{Names: slices.Clone(c.Names), Wildcard: c.Wildcard}
}

// ---------------------------------------------------------------------------
// JSON: known members plus ordered passthrough of everything else
// ---------------------------------------------------------------------------

var (
	documentKeys   = []string{"version", "sources", "actions", "custom_types"}
	sourceKeys     = []string{"name", "kind", "tables", "configuration"}
	tableKeys      = []string{"table", "select_permissions", "insert_permissions", "update_permissions", "delete_permissions", "configuration", "is_enum"}
	tableRefKeys   = []string{"name", "schema"}
	entryKeys      = []string{"role", "permission", "comment"}
	permissionKeys = []string{"columns", "filter", "check", "set", "allow_aggregations", "limit", "query_root_fields", "subscription_root_fields", "backend_only"}
)

func (d *Document) UnmarshalJSON(data []byte) error {
	type plain Document
	p, extra, err := decodeObject[plain](data, documentKeys)
	if err != nil {
		return err
	}
	p.Extra = extra
	*d = Document(p)
	return nil
}

func (d Document) MarshalJSON() ([]byte, error) {
	type plain Document
	b, err := json.Marshal(plain(d))
	if err != nil {
		return nil, err
	}
	return withExtra(b, d.Extra)
}

func (s *Source) UnmarshalJSON(data []byte) error {
	type plain Source
	p, extra, err := decodeObject[plain](data, sourceKeys)
	if err != nil {
		return err
	}
	p.Extra = extra
	*s = Source(p)
	return nil
}

func (s Source) MarshalJSON() ([]byte, error) {
	type plain Source
	b, err := json.Marshal(plain(s))
	if err != nil {
		return nil, err
	}
	return withExtra(b, s.Extra)
}

func (t *Table) UnmarshalJSON(data []byte) error {
	type plain Table
	p, extra, err := decodeObject[plain](data, tableKeys)
	if err != nil {
		return err
	}
	p.Extra = extra
	*t = Table(p)
	return nil
}

func (t Table) MarshalJSON() ([]byte, error) {
	type plain Table
	b, err := json.Marshal(plain(t))
	if err != nil {
		return nil, err
	}
	return withExtra(b, t.Extra)
}

func (r *TableRef) UnmarshalJSON(data []byte) error {
	if !isObject(data) {
		*r = pathTableRef(data)
		return nil
	}
	type plain TableRef
	p, extra, err := decodeObject[plain](data, tableRefKeys)
	if err != nil {
		return err
	}
	p.Extra = extra
	*r = TableRef(p)
	return nil
}

// pathTableRef reads a reference that is not an object: an array path or a
// bare name. The value is written back unchanged.
func pathTableRef(data []byte) TableRef {
	ref := TableRef{raw: cloneRaw(data)}
	var path []any
	if err := json.Unmarshal(data, &path); err == nil {
		parts := make([]string, len(path))
		for i, v := range path {
			parts[i] = fmt.Sprint(v)
		}
		if n := len(parts); n > 0 {
			ref.Name = parts[n-1]
			ref.Schema = strings.Join(parts[:n-1], ".")
		}
		return ref
	}
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		ref.Name = name
	}
	return ref
}

func (r TableRef) MarshalJSON() ([]byte, error) {
	if r.raw != nil {
		return r.raw, nil
	}
	type plain TableRef
	b, err := json.Marshal(plain(r))
	if err != nil {
		return nil, err
	}
	return withExtra(b, r.Extra)
}

func (e *PermissionEntry) UnmarshalJSON(data []byte) error {
	type plain PermissionEntry
	p, extra, err := decodeObject[plain](data, entryKeys)
	if err != nil {
		return err
	}
	p.Extra = extra
	*e = PermissionEntry(p)
	return nil
}

func (e PermissionEntry) MarshalJSON() ([]byte, error) {
	type plain PermissionEntry
	b, err := json.Marshal(plain(e))
	if err != nil {
		return nil, err
	}
	return withExtra(b, e.Extra)
}

func (p *Permission) UnmarshalJSON(data []byte) error {
	type plain Permission
	v, extra, err := decodeObject[plain](data, permissionKeys)
	if err != nil {
		return err
	}
	v.Extra = extra
	*p = Permission(v)
	return nil
}

func (p Permission) MarshalJSON() ([]byte, error) {
	type plain Permission
	b, err := json.Marshal(plain(p))
	if err != nil {
		return nil, err
	}
	return withExtra(b, p.Extra)
}

// ---------------------------------------------------------------------------
// Deep copies
// ---------------------------------------------------------------------------

// Clone returns a deep copy of the document. The copy shares no mutable
// state with d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{
		Version:     d.Version,
		Actions:     cloneRaw(d.Actions),
		CustomTypes: cloneRaw(d.CustomTypes),
		Extra:       cloneFields(d.Extra),
	}
	if d.Sources != nil {
		out.Sources = make([]Source, len(d.Sources))
		for i := range d.Sources {
			out.Sources[i] = d.Sources[i].Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the source.
func (s Source) Clone() Source {
	out := Source{
		Name:          s.Name,
		Kind:          s.Kind,
		Configuration: cloneRaw(s.Configuration),
		Extra:         cloneFields(s.Extra),
	}
	if s.Tables != nil {
		out.Tables = make([]Table, len(s.Tables))
		for i := range s.Tables {
			out.Tables[i] = s.Tables[i].Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the table.
func (t Table) Clone() Table {
	return Table{
		Table:             t.Table.Clone(),
		SelectPermissions: cloneEntries(t.SelectPermissions),
		InsertPermissions: cloneEntries(t.InsertPermissions),
		UpdatePermissions: cloneEntries(t.UpdatePermissions),
		DeletePermissions: cloneEntries(t.DeletePermissions),
		Configuration:     cloneRaw(t.Configuration),
		IsEnum:            clonePtr(t.IsEnum),
		Extra:             cloneFields(t.Extra),
	}
}

// Clone returns a deep copy of the table reference.
func (r TableRef) Clone() TableRef {
	return TableRef{Name: r.Name, Schema: r.Schema, Extra: cloneFields(r.Extra), raw: cloneRaw(r.raw)}
}

// Clone returns a deep copy of the entry.
func (e PermissionEntry) Clone() PermissionEntry {
	return PermissionEntry{
		Role:       e.Role,
		Permission: e.Permission.Clone(),
		Comment:    cloneRaw(e.Comment),
		Extra:      cloneFields(e.Extra),
	}
}

// Clone returns a deep copy of the permission body.
func (p Permission) Clone() Permission {
	return Permission{
		Columns:                p.Columns.clone(),
		Filter:                 cloneRaw(p.Filter),
		Check:                  cloneRaw(p.Check),
		Set:                    cloneRaw(p.Set),
		AllowAggregations:      clonePtr(p.AllowAggregations),
		Limit:                  clonePtr(p.Limit),
		QueryRootFields:        slices.Clone(p.QueryRootFields),
		SubscriptionRootFields: slices.Clone(p.SubscriptionRootFields),
		BackendOnly:            clonePtr(p.BackendOnly),
		Extra:                  cloneFields(p.Extra),
	}
}

func cloneEntries(in []PermissionEntry) []PermissionEntry {
	if in == nil {
		return nil
	}
	out := make([]PermissionEntry, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}
