package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/corebank/ledger/internal/ledger"
)

// ErrorResponse is the error body returned by every failing endpoint.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

func sendJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

// sendError writes an ErrorResponse. When validationErr carries
// validator.ValidationErrors, per-field details are included.
func sendError(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	resp := ErrorResponse{Error: message}

	var fieldErrs validator.ValidationErrors
	if errors.As(validationErr, &fieldErrs) {
		resp.Details = make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			resp.Details[fe.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", fe.Tag())
		}
	}

	sendJSON(w, statusCode, resp)
}

// statusForError maps ledger errors to HTTP status codes. Anything
// unrecognized is an internal error.
func statusForError(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrSameAccount),
		errors.Is(err, ledger.ErrAccountHasBalance),
		errors.Is(err, ledger.ErrInvalidAccountType):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrAccountNotFound),
		errors.Is(err, ledger.ErrTransactionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrAccountNotActive):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrAlreadyFinalized):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// sendEngineError reports err to the client, hiding internals behind a
// generic message for unexpected failures.
func (a *API) sendEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		a.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		sendError(w, "Internal server error", status, nil)
		return
	}
	sendError(w, err.Error(), status, nil)
}
