package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rolekeeper/rolekeeper/internal/config"
	"github.com/rolekeeper/rolekeeper/internal/model"
)

// SettingsStore is the part of the local store the system handler uses.
type SettingsStore interface {
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
	ListSettings(ctx context.Context) ([]model.Setting, error)
}

// SystemHandler manages rolekeeper's own settings.
type SystemHandler struct {
	store SettingsStore
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(store SettingsStore) *SystemHandler {
	return &SystemHandler{store: store}
}

// secretSetting reports whether the value of key must not be echoed back.
func secretSetting(key string) bool {
	return key == config.SettingHasuraAdminSecret || strings.HasSuffix(key, "secret")
}

func maskSetting(s model.Setting) model.Setting {
	if secretSetting(s.Key) && s.Value != "" {
		s.Value = "********"
	}
	return s
}

// ListSettings returns every stored setting. Secret values are masked.
// GET /api/v1/system/settings
func (h *SystemHandler) ListSettings(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	settings, err := h.store.ListSettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list settings: "+err.Error())
		return
	}
	for i := range settings {
		settings[i] = maskSetting(settings[i])
	}
	writeList(w, settings, start)
}

// PutSetting creates or replaces a setting. Changes to the endpoint and
// credential apply on the next start.
// PUT /api/v1/system/settings/{key}
func (h *SystemHandler) PutSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req struct {
		Value *string `json:"value"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}

	if err := h.store.SetSetting(r.Context(), key, *req.Value); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save setting: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, maskSetting(model.Setting{Key: key, Value: *req.Value}))
}

// DeleteSetting removes a setting.
// DELETE /api/v1/system/settings/{key}
func (h *SystemHandler) DeleteSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.store.DeleteSetting(r.Context(), key); err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Setting not found: "+key)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete setting: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"key": key, "deleted": true})
}
