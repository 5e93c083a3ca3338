/**
 * @description
 * This package provides a client for the finance-service HTTP API. It
 * encapsulates request building, bearer authentication and the decoding of the
 * service's success and error envelopes.
 */
package financeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TokenFunc returns the bearer token for the current user.
type TokenFunc func(ctx context.Context) (string, error)

// Client is a client for the finance service.
type Client struct {
	baseURL    string
	token      TokenFunc
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a new finance service client. token may be nil for
// unauthenticated calls.
func NewClient(baseURL string, token TokenFunc, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Account mirrors the account resource returned by the service.
type Account struct {
	ID             string    `json:"id"`
	ExternalLinkID *string   `json:"externalLinkId"`
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	OwnerID        string    `json:"ownerId"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Transaction mirrors the transaction resource. Amount is a decimal string with
// two fraction digits and Date is YYYY-MM-DD.
type Transaction struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Amount         string    `json:"amount"`
	Date           string    `json:"date"`
	Type           string    `json:"type"`
	Category       string    `json:"category"`
	ExternalLinkID *string   `json:"externalLinkId"`
	AccountID      string    `json:"accountId"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// CreateAccountRequest is the body of POST /accounts.
type CreateAccountRequest struct {
	Name           string  `json:"name"`
	Type           string  `json:"type"`
	ExternalLinkID *string `json:"externalLinkId,omitempty"`
}

// UpdateAccountRequest is the body of PATCH /accounts/{id}. Nil members are left unchanged.
type UpdateAccountRequest struct {
	Name           *string `json:"name,omitempty"`
	Type           *string `json:"type,omitempty"`
	ExternalLinkID *string `json:"externalLinkId,omitempty"`
}

// CreateTransactionRequest is the body of POST /transactions.
type CreateTransactionRequest struct {
	Name           string  `json:"name"`
	Amount         string  `json:"amount"`
	Date           string  `json:"date"`
	Type           string  `json:"type"`
	Category       string  `json:"category"`
	AccountID      string  `json:"accountId"`
	ExternalLinkID *string `json:"externalLinkId,omitempty"`
}

// UpdateTransactionRequest is the body of PATCH /transactions/{id}.
type UpdateTransactionRequest struct {
	Name           *string `json:"name,omitempty"`
	Amount         *string `json:"amount,omitempty"`
	Date           *string `json:"date,omitempty"`
	Type           *string `json:"type,omitempty"`
	Category       *string `json:"category,omitempty"`
	AccountID      *string `json:"accountId,omitempty"`
	ExternalLinkID *string `json:"externalLinkId,omitempty"`
}

// FieldError is a single validation failure reported by the service.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError is returned for every non-2xx response.
type APIError struct {
	StatusCode  int
	Message     string
	FieldErrors []FieldError
}

func (e *APIError) Error() string {
	if len(e.FieldErrors) > 0 {
		parts := make([]string, 0, len(e.FieldErrors))
		for _, fe := range e.FieldErrors {
			parts = append(parts, fe.Field+": "+fe.Message)
		}
		return fmt.Sprintf("finance service returned %d: %s", e.StatusCode, strings.Join(parts, "; "))
	}
	return fmt.Sprintf("finance service returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the service.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsConflict reports whether err is a 409 from the service.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// ListAccounts returns the caller's accounts in server order.
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	var out struct {
		Accounts []Account `json:"accounts"`
	}
	if err := c.do(ctx, http.MethodGet, "/accounts", nil, &out); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

// CreateAccount creates an account for the caller.
func (c *Client) CreateAccount(ctx context.Context, req CreateAccountRequest) (*Account, error) {
	var out struct {
		Account Account `json:"accounts"`
	}
	if err := c.do(ctx, http.MethodPost, "/accounts", req, &out); err != nil {
		return nil, err
	}
	return &out.Account, nil
}

// UpdateAccount applies a partial update to an account.
func (c *Client) UpdateAccount(ctx context.Context, id string, req UpdateAccountRequest) (*Account, error) {
	var out struct {
		Data Account `json:"data"`
	}
	if err := c.do(ctx, http.MethodPatch, "/accounts/"+url.PathEscape(id), req, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// DeleteAccount deletes an account and its transactions.
func (c *Client) DeleteAccount(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/accounts/"+url.PathEscape(id), nil, nil)
}

// ListTransactions returns the caller's transactions, narrowed to accountID when non-empty.
func (c *Client) ListTransactions(ctx context.Context, accountID string) ([]Transaction, error) {
	path := "/transactions"
	if accountID != "" {
		path += "?" + url.Values{"accountId": {accountID}}.Encode()
	}
	var out struct {
		Transactions []Transaction `json:"transactions"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Transactions, nil
}

// CreateTransaction records a transaction.
func (c *Client) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*Transaction, error) {
	var out struct {
		Transaction Transaction `json:"transaction"`
	}
	if err := c.do(ctx, http.MethodPost, "/transactions", req, &out); err != nil {
		return nil, err
	}
	return &out.Transaction, nil
}

// UpdateTransaction applies a partial update to a transaction.
func (c *Client) UpdateTransaction(ctx context.Context, id string, req UpdateTransactionRequest) (*Transaction, error) {
	var out struct {
		Data Transaction `json:"data"`
	}
	if err := c.do(ctx, http.MethodPatch, "/transactions/"+url.PathEscape(id), req, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// DeleteTransaction deletes a transaction.
func (c *Client) DeleteTransaction(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/transactions/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	if c.baseURL == "" {
		return fmt.Errorf("finance service base url is empty")
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		token, err := c.token(ctx)
		if err != nil {
			return fmt.Errorf("failed to obtain token: %w", err)
		}
		if token = strings.TrimSpace(token); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request to finance service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeAPIError reads the service's error envelope. The "error" member is either
// a message string or a list of field errors.
func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || len(raw) == 0 {
		return apiErr
	}
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.Error) == 0 {
		return apiErr
	}

	var message string
	if err := json.Unmarshal(envelope.Error, &message); err == nil {
		apiErr.Message = message
		return apiErr
	}
	var fields []FieldError
	if err := json.Unmarshal(envelope.Error, &fields); err == nil {
		apiErr.FieldErrors = fields
		apiErr.Message = "validation failed"
	}
	return apiErr
}
