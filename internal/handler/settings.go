package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/rfpdesk/internal/settings"
)

type settingsStore interface {
	All() map[string]string
	Update(values map[string]string) error
	Save() error
}

// SettingsHandler reads and changes the workflow settings.
type SettingsHandler struct {
	BaseHandler
	settings settingsStore
}

func NewSettingsHandler(logger *slog.Logger, s settingsStore) *SettingsHandler {
	return &SettingsHandler{BaseHandler: BaseHandler{Logger: logger}, settings: s}
}

// Get returns every setting with defaults applied.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if err := h.writeJSON(w, http.StatusOK, h.settings.All(), nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// Update validates and persists the given values. Nothing is applied when
// one of them is invalid.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var values map[string]string
	if err := h.readJSON(w, r, &values); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	if err := h.settings.Update(values); err != nil {
		if errors.Is(err, settings.ErrInvalidValue) {
			h.errorResponse(w, r, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.serverErrorResponse(w, r, err)
		return
	}
	if err := h.settings.Save(); err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}

	h.Logger.Info("settings: updated", "keys", len(values))
	h.Get(w, r)
}
