package metadata

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Legacy documents are synthesized into a single source with these values.
const (
	DefaultSourceName  = "default"
	DefaultSourceKind  = "postgres"
	DefaultTableSchema = "public"
	legacyTablesKey    = "tables"
	currentSourcesKey  = "sources"
)

var jsonNull = json.RawMessage("null")

// Normalize decodes an exported metadata payload into a Document.
//
// A payload that already has a "sources" array is decoded as is. A payload
// in the legacy shape, with a top-level "tables" array, is converted into a
// single "default" postgres source. Any other object is passed through with
// its members preserved. Normalize never modifies payload.
func Normalize(payload []byte) (*Document, error) {
	top, err := decodeFields(payload)
	if err != nil {
		return nil, err
	}

	if raw, ok := top.Get(currentSourcesKey); ok && isArray(raw) {
		var doc Document
		if err := json.Unmarshal(payload, &doc); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		return &doc, nil
	}

	if raw, ok := top.Get(legacyTablesKey); ok && isArray(raw) {
		return normalizeLegacy(top, raw)
	}

	return passThrough(top), nil
}

// passThrough keeps an unrecognized payload intact. Only members that decode
// cleanly into the typed fields are lifted out of Extra.
func passThrough(top *Fields) *Document {
	doc := &Document{}
	if raw, ok := top.Get("version"); ok {
		if err := json.Unmarshal(raw, &doc.Version); err == nil {
			top.Delete("version")
		}
	}
	if raw, ok := top.Get("actions"); ok {
		doc.Actions = raw
		top.Delete("actions")
	}
	if raw, ok := top.Get("custom_types"); ok {
		doc.CustomTypes = raw
		top.Delete("custom_types")
	}
	if top.Len() > 0 {
		doc.Extra = top
	}
	return doc
}

func normalizeLegacy(top *Fields, rawTables json.RawMessage) (*Document, error) {
	var legacy []legacyTable
	if err := json.Unmarshal(rawTables, &legacy); err != nil {
		return nil, fmt.Errorf("decode legacy tables: %w", err)
	}

	tables := make([]Table, len(legacy))
	for i := range legacy {
		tables[i] = legacy[i].convert()
	}

	doc := &Document{
		Sources: []Source{{
			Name:          DefaultSourceName,
			Kind:          DefaultSourceKind,
			Tables:        tables,
			Configuration: json.RawMessage("{}"),
		}},
		Actions:     jsonNull,
		CustomTypes: jsonNull,
	}
	if raw, ok := top.Get("version"); ok {
		// A version that is not a number falls back to 0.
		_ = json.Unmarshal(raw, &doc.Version)
	}
	if raw, ok := top.Get("actions"); ok && !isNull(raw) {
		doc.Actions = cloneRaw(raw)
	}
	if raw, ok := top.Get("custom_types"); ok && !isNull(raw) {
		doc.CustomTypes = cloneRaw(raw)
	}

	extra := newFields()
	for pair := top.Oldest(); pair != nil; pair = pair.Next() {
		switch pair.Key {
		case "version", legacyTablesKey, "actions", "custom_types", currentSourcesKey:
			continue
		}
		extra.Set(pair.Key, cloneRaw(pair.Value))
	}
	if extra.Len() > 0 {
		doc.Extra = extra
	}
	return doc, nil
}

type legacyTable struct {
	Table             json.RawMessage `json:"table"`
	SelectPermissions []legacyEntry   `json:"select_permissions"`
	InsertPermissions []legacyEntry   `json:"insert_permissions"`
	UpdatePermissions []legacyEntry   `json:"update_permissions"`
	DeletePermissions []legacyEntry   `json:"delete_permissions"`
	Configuration     json.RawMessage `json:"configuration"`
	IsEnum            *bool           `json:"is_enum"`
}

type legacyEntry struct {
	Role       string          `json:"role"`
	Permission *Permission     `json:"permission"`
	Comment    json.RawMessage `json:"comment"`
}

func (lt legacyTable) convert() Table {
	t := Table{
		Table:         legacyTableRef(lt.Table),
		Configuration: cloneRaw(lt.Configuration),
		IsEnum:        clonePtr(lt.IsEnum),
	}
	t.SelectPermissions = convertEntries(lt.SelectPermissions, KindSelect)
	t.InsertPermissions = convertEntries(lt.InsertPermissions, KindInsert)
	t.UpdatePermissions = convertEntries(lt.UpdatePermissions, KindUpdate)
	t.DeletePermissions = convertEntries(lt.DeletePermissions, KindDelete)
	return t
}

// legacyTableRef accepts both {"schema": ..., "name": ...} and the bare
// table-name string older documents used.
func legacyTableRef(raw json.RawMessage) TableRef {
	ref := TableRef{Schema: DefaultTableSchema}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		ref.Name = name
		return ref
	}
	var obj struct {
		Name   string `json:"name"`
		Schema string `json:"schema"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		ref.Name = obj.Name
		if obj.Schema != "" {
			ref.Schema = obj.Schema
		}
	}
	return ref
}

func convertEntries(in []legacyEntry, kind Kind) []PermissionEntry {
	if in == nil {
		return nil
	}
	out := make([]PermissionEntry, len(in))
	for i, e := range in {
		var src Permission
		if e.Permission != nil {
			src = *e.Permission
		}
		out[i] = PermissionEntry{
			Role:       e.Role,
			Permission: pickFields(src, kind),
			Comment:    cloneRaw(e.Comment),
		}
	}
	return out
}

// pickFields keeps only the permission members relevant to kind.
func pickFields(src Permission, kind Kind) Permission {
	var p Permission
	if kind != KindDelete {
		p.Columns = src.Columns.clone()
		if p.Columns.IsZero() {
			p.Columns = Columns()
		}
	}
	switch kind {
	case KindSelect:
		p.Filter = cloneRaw(src.Filter)
		p.AllowAggregations = clonePtr(src.AllowAggregations)
		p.Limit = clonePtr(src.Limit)
		p.QueryRootFields = slices.Clone(src.QueryRootFields)
		p.SubscriptionRootFields = slices.Clone(src.SubscriptionRootFields)
	case KindInsert:
		p.Check = cloneRaw(src.Check)
		p.Set = cloneRaw(src.Set)
		p.BackendOnly = clonePtr(src.BackendOnly)
	case KindUpdate:
		p.Filter = cloneRaw(src.Filter)
		p.Set = cloneRaw(src.Set)
		p.Check = cloneRaw(src.Check)
	case KindDelete:
		p.Filter = cloneRaw(src.Filter)
		p.BackendOnly = clonePtr(src.BackendOnly)
	}
	return p
}
