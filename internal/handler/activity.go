package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rolekeeper/rolekeeper/internal/model"
)

const maxActivityLimit = 1000

// ActivityLister reads the activity log.
type ActivityLister interface {
	ListActivity(ctx context.Context, filter model.ActivityFilter) ([]model.Activity, error)
}

// ActivityHandler serves the console's activity log.
type ActivityHandler struct {
	store ActivityLister
}

// NewActivityHandler creates a new ActivityHandler.
func NewActivityHandler(store ActivityLister) *ActivityHandler {
	return &ActivityHandler{store: store}
}

// ListActivity returns the most recent entries first.
// GET /api/v1/activity?role=&action=&limit=
func (h *ActivityHandler) ListActivity(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	filter := model.ActivityFilter{
		Role:   queryString(r, "role"),
		Action: queryString(r, "action"),
		Limit:  clampInt(queryInt(r, "limit", 100), 1, maxActivityLimit),
	}

	entries, err := h.store.ListActivity(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list activity: "+err.Error())
		return
	}
	writeList(w, entries, start)
}
