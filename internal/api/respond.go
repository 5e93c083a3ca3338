package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/transfa/finance-service/internal/app"
	"github.com/transfa/finance-service/internal/logger"
	"github.com/transfa/finance-service/internal/store"
	"github.com/transfa/finance-service/internal/validation"
)

const maxBodyBytes = 1 << 20

const (
	msgUnauthorized        = "Unauthorized"
	msgAccountNotFound     = "Account not found"
	msgTransactionNotFound = "Transaction not found"
	msgDuplicateAccount    = "An account with this name already exists"
	msgConstraint          = "Request contains a value that cannot be stored"
	msgInternal            = "Internal server error"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeValidationErrors(w http.ResponseWriter, errs validation.Errors) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": errs})
}

// readBody reads at most maxBodyBytes of the request body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return nil, false
		}
		writeValidationErrors(w, validation.Errors{{Field: "body", Message: "Request body could not be read"}})
		return nil, false
	}
	return body, true
}

// pathID parses a UUID path parameter. Malformed ids cannot name an existing row,
// so callers answer them with 404.
func pathID(raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	return id, err == nil
}

// handleServiceError maps service and store errors onto HTTP responses.
func handleServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		writeValidationErrors(w, verrs)
	case errors.Is(err, app.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
	case errors.Is(err, store.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, msgAccountNotFound)
	case errors.Is(err, store.ErrTransactionNotFound):
		writeError(w, http.StatusNotFound, msgTransactionNotFound)
	case errors.Is(err, store.ErrDuplicateAccountName):
		writeError(w, http.StatusConflict, msgDuplicateAccount)
	case errors.Is(err, store.ErrConstraintViolation):
		writeValidationErrors(w, validation.Errors{{Field: "body", Message: msgConstraint}})
	default:
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("op", op).Msg("request failed")
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}
