package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rfpdesk/internal/model"
)

type journalReader interface {
	Recent(ctx context.Context, limit int) ([]model.JournalEntry, error)
}

type JournalHandler struct {
	BaseHandler
	journal journalReader
}

func NewJournalHandler(logger *slog.Logger, j journalReader) *JournalHandler {
	return &JournalHandler{BaseHandler: BaseHandler{Logger: logger}, journal: j}
}

// List returns the most recent job outcomes, newest first.
func (h *JournalHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	entries, err := h.journal.Recent(r.Context(), limit)
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	if err := h.writeJSON(w, http.StatusOK, envelope{"entries": entries}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}
