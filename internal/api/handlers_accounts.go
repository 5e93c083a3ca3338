package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/transfa/finance-service/internal/validation"
)

// ListAccountsHandler returns the caller's accounts.
func (h *FinanceHandlers) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	accounts, err := h.service.ListAccounts(r.Context(), ownerID)
	if err != nil {
		handleServiceError(w, r, "list_accounts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts})
}

// CreateAccountHandler creates an account for the caller.
func (h *FinanceHandlers) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	input, err := validation.ParseCreateAccount(body)
	if err != nil {
		handleServiceError(w, r, "create_account", err)
		return
	}

	release, ok := h.reserveIdempotencyKey(w, r, "accounts", ownerID)
	if !ok {
		return
	}
	created, err := h.service.CreateAccount(r.Context(), ownerID, input)
	if err != nil {
		release()
		handleServiceError(w, r, "create_account", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"accounts": created})
}

// UpdateAccountHandler applies a partial update to one of the caller's accounts.
func (h *FinanceHandlers) UpdateAccountHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, msgAccountNotFound)
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	input, err := validation.ParseUpdateAccount(body)
	if err != nil {
		handleServiceError(w, r, "update_account", err)
		return
	}
	updated, err := h.service.UpdateAccount(r.Context(), ownerID, id, input)
	if err != nil {
		handleServiceError(w, r, "update_account", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Account updated successfully",
		"data":    updated,
	})
}

// DeleteAccountHandler removes one of the caller's accounts and its transactions.
func (h *FinanceHandlers) DeleteAccountHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, msgAccountNotFound)
		return
	}
	if err := h.service.DeleteAccount(r.Context(), ownerID, id); err != nil {
		handleServiceError(w, r, "delete_account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
