package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/rfpdesk/internal/records"
	"github.com/rfpdesk/internal/task"
	"github.com/rfpdesk/internal/workflow"
)

type envelope map[string]any

type BaseHandler struct {
	Logger *slog.Logger
}

func (h *BaseHandler) logError(r *http.Request, err error) {
	h.Logger.Error(err.Error(), "method", r.Method, "uri", r.URL.RequestURI())
}

func (h *BaseHandler) errorResponse(w http.ResponseWriter, r *http.Request, status int, message any) {
	env := envelope{"error": message}

	if err := h.writeJSON(w, status, env, nil); err != nil {
		h.logError(r, err)
		w.WriteHeader(500)
	}
}

func (h *BaseHandler) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	h.logError(r, err)

	message := "the server encountered a problem and could not process your request"
	h.errorResponse(w, r, http.StatusInternalServerError, message)
}

func (h *BaseHandler) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	h.errorResponse(w, r, http.StatusBadRequest, err.Error())
}

// workflowErrorResponse answers a refused workflow command with a status
// derived from the error's category.
func (h *BaseHandler) workflowErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, records.ErrNotFound):
		h.errorResponse(w, r, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, records.ErrInvalidCapacity):
		h.badRequestResponse(w, r, err)
		return
	case errors.Is(err, task.ErrNoActiveTask):
		h.errorResponse(w, r, http.StatusConflict, err.Error())
		return
	}

	category := workflow.Classify(err)
	body := envelope{"error": err.Error(), "category": category}
	status := http.StatusInternalServerError
	switch category {
	case workflow.CategoryBusy:
		status = http.StatusConflict
	case workflow.CategoryPrecondition, workflow.CategoryConfiguration:
		status = http.StatusUnprocessableEntity
	default:
		h.logError(r, err)
	}
	if werr := h.writeJSON(w, status, body, nil); werr != nil {
		h.logError(r, werr)
	}
}

func (h *BaseHandler) writeJSON(w http.ResponseWriter, status int, data any, headers http.Header) error {
	for k, v := range headers {
		for _, value := range v {
			w.Header().Add(k, value)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

func (h *BaseHandler) readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576) // 1MB

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var invalidUnmarshalError *json.InvalidUnmarshalError
		var maxBytesError *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		case errors.As(err, &maxBytesError):
			return fmt.Errorf("body must not be larger than %d bytes", maxBytesError.Limit)
		case errors.As(err, &invalidUnmarshalError):
			panic(err)
		default:
			return err
		}
	}

	// Ensure only a single JSON value is present in the body
	err = dec.Decode(&struct{}{})
	if !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}
