package handler

import (
	"net/http"
	"time"

	"github.com/rolekeeper/rolekeeper/internal/console"
	"github.com/rolekeeper/rolekeeper/internal/metadata"
)

// MetadataHandler serves the metadata document and the browse views derived
// from it.
type MetadataHandler struct {
	session *console.Session
}

// NewMetadataHandler creates a new MetadataHandler.
func NewMetadataHandler(session *console.Session) *MetadataHandler {
	return &MetadataHandler{session: session}
}

// document loads the session on first use and returns a copy of the edited
// document. It writes the error response itself and returns nil on failure.
func (h *MetadataHandler) document(w http.ResponseWriter, r *http.Request) *metadata.Document {
	if err := h.session.EnsureLoaded(r.Context()); err != nil {
		writeSessionError(w, err)
		return nil
	}
	doc, err := h.session.Document()
	if err != nil {
		writeSessionError(w, err)
		return nil
	}
	return doc
}

// GetMetadata returns the edited copy of the metadata document.
// GET /api/v1/metadata
func (h *MetadataHandler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	doc := h.document(w, r)
	if doc == nil {
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Export downloads the document as JSON or YAML.
// GET /api/v1/metadata/export?format=json|yaml
func (h *MetadataHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := queryString(r, "format")
	if format != "" && format != "json" && format != "yaml" {
		writeError(w, http.StatusBadRequest, "Unsupported format: "+format,
			map[string]interface{}{"supported": []string{"json", "yaml"}})
		return
	}

	doc := h.document(w, r)
	if doc == nil {
		return
	}

	if format == "yaml" {
		out, err := metadata.EncodeYAML(doc)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to encode metadata: "+err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.Header().Set("Content-Disposition", `attachment; filename="metadata.yaml"`)
		w.WriteHeader(http.StatusOK)
		w.Write(out)
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="metadata.json"`)
	writeJSON(w, http.StatusOK, doc)
}

// Reload fetches the document again, discarding unsaved edits.
// POST /api/v1/metadata/reload
func (h *MetadataHandler) Reload(w http.ResponseWriter, r *http.Request) {
	doc, err := h.session.Load(r.Context())
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metadata.Summarize(doc))
}

// Save writes the edited copy back and reloads it.
// POST /api/v1/metadata/save
func (h *MetadataHandler) Save(w http.ResponseWriter, r *http.Request) {
	report, err := h.session.Save(r.Context())
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Changes previews what Save would write.
// GET /api/v1/metadata/changes
func (h *MetadataHandler) Changes(w http.ResponseWriter, r *http.Request) {
	if err := h.session.EnsureLoaded(r.Context()); err != nil {
		writeSessionError(w, err)
		return
	}
	report, err := h.session.Changes()
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// tableInfo is one row of the table listing.
type tableInfo struct {
	Source      string                `json:"source"`
	Schema      string                `json:"schema"`
	Name        string                `json:"name"`
	Permissions map[metadata.Kind]int `json:"permissions"`
}

// Tables lists every table across sources with permission counts per kind.
// With ?permitted=true tables without any permission are skipped.
// GET /api/v1/tables
func (h *MetadataHandler) Tables(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	doc := h.document(w, r)
	if doc == nil {
		return
	}
	permitted := queryBool(r, "permitted")

	var rows []tableInfo
	for _, src := range metadata.ListDataSources(doc) {
		for i := range src.Tables {
			t := &src.Tables[i]
			row := tableInfo{
				Source:      src.Name,
				Schema:      t.Table.Schema,
				Name:        t.Table.Name,
				Permissions: make(map[metadata.Kind]int),
			}
			total := 0
			for _, k := range metadata.Kinds() {
				n := len(t.Permissions(k))
				row.Permissions[k] = n
				total += n
			}
			if permitted && total == 0 {
				continue
			}
			rows = append(rows, row)
		}
	}
	writeList(w, rows, start)
}

// Sources lists the data sources of the document.
// GET /api/v1/sources
func (h *MetadataHandler) Sources(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	doc := h.document(w, r)
	if doc == nil {
		return
	}
	writeList(w, metadata.Summarize(doc).Sources, start)
}

// Tree returns the source > table > kind > role tree.
// GET /api/v1/tree
func (h *MetadataHandler) Tree(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	doc := h.document(w, r)
	if doc == nil {
		return
	}
	writeList(w, metadata.BuildTree(doc), start)
}

// Status describes the editing session without loading it.
// GET /api/v1/status
func (h *MetadataHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Status())
}
