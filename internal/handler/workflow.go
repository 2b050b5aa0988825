package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rfpdesk/internal/task"
	"github.com/rfpdesk/internal/workflow"
)

const defaultPageCapacity = 20

type controller interface {
	Fetch() (*task.Handle, error)
	Generate() (*task.Handle, error)
	Dispatch() (*task.Handle, error)
	Cancel() error
	SetSelected(id string, selected bool) error
	SelectAll(selected bool)
	Page(index, capacity int) (workflow.Page, error)
	Status() workflow.Status
	PurgeOutput() (*task.Handle, error)
	Subscribe() (<-chan workflow.Event, func())
}

// WorkflowHandler exposes the fetch, generate and dispatch steps.
type WorkflowHandler struct {
	BaseHandler
	ctl controller
}

func NewWorkflowHandler(logger *slog.Logger, ctl controller) *WorkflowHandler {
	return &WorkflowHandler{BaseHandler: BaseHandler{Logger: logger}, ctl: ctl}
}

type selectionRequest struct {
	Selected bool `json:"selected"`
}

type taskResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListRequests returns one page of the collection.
func (h *WorkflowHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 0)
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	capacity, err := queryInt(r, "capacity", defaultPageCapacity)
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	p, err := h.ctl.Page(page, capacity)
	if err != nil {
		h.workflowErrorResponse(w, r, err)
		return
	}
	if err := h.writeJSON(w, http.StatusOK, p, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func (h *WorkflowHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	h.start(w, r, h.ctl.Fetch)
}

func (h *WorkflowHandler) Generate(w http.ResponseWriter, r *http.Request) {
	h.start(w, r, h.ctl.Generate)
}

func (h *WorkflowHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	h.start(w, r, h.ctl.Dispatch)
}

func (h *WorkflowHandler) start(w http.ResponseWriter, r *http.Request, submit func() (*task.Handle, error)) {
	handle, err := submit()
	if err != nil {
		h.workflowErrorResponse(w, r, err)
		return
	}
	body := envelope{"task": taskResponse{ID: handle.ID, Name: handle.Name}}
	if err := h.writeJSON(w, http.StatusAccepted, body, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// SetSelection toggles one record.
func (h *WorkflowHandler) SetSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	if err := h.ctl.SetSelected(chi.URLParam(r, "id"), req.Selected); err != nil {
		h.workflowErrorResponse(w, r, err)
		return
	}
	h.Status(w, r)
}

// SelectAll sets the flag on every record.
func (h *WorkflowHandler) SelectAll(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	h.ctl.SelectAll(req.Selected)
	h.Status(w, r)
}

// Status reports counts, step flags and the active job.
func (h *WorkflowHandler) Status(w http.ResponseWriter, r *http.Request) {
	if err := h.writeJSON(w, http.StatusOK, h.ctl.Status(), nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func (h *WorkflowHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.ctl.Cancel(); err != nil {
		h.workflowErrorResponse(w, r, err)
		return
	}
	if err := h.writeJSON(w, http.StatusAccepted, envelope{"cancel": "requested"}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// Purge starts a job that deletes generated files.
func (h *WorkflowHandler) Purge(w http.ResponseWriter, r *http.Request) {
	h.start(w, r, h.ctl.PurgeOutput)
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &queryError{key: key, value: raw}
	}
	return n, nil
}

type queryError struct {
	key, value string
}

func (e *queryError) Error() string {
	return "query parameter " + e.key + " must be an integer, got " + strconv.Quote(e.value)
}
