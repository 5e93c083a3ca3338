package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/transfa/finance-service/internal/domain"
	"github.com/transfa/finance-service/internal/validation"
)

// ListTransactionsHandler returns the caller's transactions. An optional
// accountId query parameter narrows the list to one account.
func (h *FinanceHandlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}

	var filter domain.TransactionFilter
	if raw := strings.TrimSpace(r.URL.Query().Get("accountId")); raw != "" {
		accountID, err := uuid.Parse(raw)
		if err != nil {
			writeValidationErrors(w, validation.Errors{{Field: "accountId", Message: "Account ID must be a valid UUID."}})
			return
		}
		filter.AccountID = &accountID
	}

	transactions, err := h.service.ListTransactions(r.Context(), ownerID, filter)
	if err != nil {
		handleServiceError(w, r, "list_transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": transactions})
}

// CreateTransactionHandler records a transaction against one of the caller's accounts.
func (h *FinanceHandlers) CreateTransactionHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	input, err := validation.ParseCreateTransaction(body)
	if err != nil {
		handleServiceError(w, r, "create_transaction", err)
		return
	}

	release, ok := h.reserveIdempotencyKey(w, r, "transactions", ownerID)
	if !ok {
		return
	}
	created, err := h.service.CreateTransaction(r.Context(), ownerID, input)
	if err != nil {
		release()
		handleServiceError(w, r, "create_transaction", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"transaction": created})
}

// UpdateTransactionHandler applies a partial update to one of the caller's transactions.
func (h *FinanceHandlers) UpdateTransactionHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, msgTransactionNotFound)
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	input, err := validation.ParseUpdateTransaction(body)
	if err != nil {
		handleServiceError(w, r, "update_transaction", err)
		return
	}
	updated, err := h.service.UpdateTransaction(r.Context(), ownerID, id, input)
	if err != nil {
		handleServiceError(w, r, "update_transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Transaction updated successfully",
		"data":    updated,
	})
}

// DeleteTransactionHandler removes one of the caller's transactions.
func (h *FinanceHandlers) DeleteTransactionHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, msgTransactionNotFound)
		return
	}
	if err := h.service.DeleteTransaction(r.Context(), ownerID, id); err != nil {
		handleServiceError(w, r, "delete_transaction", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
