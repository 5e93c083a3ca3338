package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/transfa/finance-service/internal/app"
	"github.com/transfa/finance-service/internal/domain"
	"github.com/transfa/finance-service/internal/logger"
	"github.com/transfa/finance-service/internal/store"
)

func newTestServer(t *testing.T, limiter RateLimiter, perMinute int, reserver IdempotencyReserver) *httptest.Server {
	t.Helper()
	svc := app.NewFinanceService(store.NewMemoryRepository(), nil, "finance.events", zerolog.Nop())
	h := NewFinanceHandlers(svc, reserver)
	srv := httptest.NewServer(NewRouter(h, RouterConfig{
		Auth:                       AuthMiddlewareConfig{AllowHeaderFallback: true},
		RateLimiter:                limiter,
		MutationRateLimitPerMinute: perMinute,
		Logger:                     zerolog.Nop(),
	}))
	t.Cleanup(srv.Close)
	return srv
}

type apiResponse struct {
	status int
	header http.Header
	body   map[string]json.RawMessage
	raw    string
}

func call(t *testing.T, srv *httptest.Server, method, path, user, body string, headers ...string) apiResponse {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Clerk-User-Id", user)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	out := apiResponse{status: resp.StatusCode, header: resp.Header, raw: buf.String()}
	if strings.HasPrefix(strings.TrimSpace(out.raw), "{") {
		_ = json.Unmarshal(buf.Bytes(), &out.body)
	}
	return out
}

func decodeInto(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("decode %s: %v", string(raw), err)
	}
}

type accountView struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Type           string  `json:"type"`
	OwnerID        string  `json:"ownerId"`
	ExternalLinkID *string `json:"externalLinkId"`
}

type transactionView struct {
	ID        string `json:"id"`
	Amount    string `json:"amount"`
	Date      string `json:"date"`
	AccountID string `json:"accountId"`
}

func createAccount(t *testing.T, srv *httptest.Server, user, name string) accountView {
	t.Helper()
	resp := call(t, srv, http.MethodPost, "/accounts", user, `{"name":"`+name+`","type":"Checking"}`)
	if resp.status != http.StatusCreated {
		t.Fatalf("create account: expected 201, got %d: %s", resp.status, resp.raw)
	}
	var a accountView
	decodeInto(t, resp.body["accounts"], &a)
	return a
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil, 0, nil)
	resp := call(t, srv, http.MethodGet, "/health", "", "")
	if resp.status != http.StatusOK || resp.raw != "healthy" {
		t.Fatalf("unexpected health response %d %q", resp.status, resp.raw)
	}
}

func TestAccounts_RequireAuthentication(t *testing.T) {
	srv := newTestServer(t, nil, 0, nil)
	resp := call(t, srv, http.MethodGet, "/accounts", "", "")
	if resp.status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.status)
	}
}

func TestAccounts_OwnerIsolation(t *testing.T) {
	srv := newTestServer(t, nil, 0, nil)

	created := createAccount(t, srv, "user_a", "Chase Bank")
	if created.OwnerID != "user_a" {
		t.Fatalf("expected owner user_a, got %q", created.OwnerID)
	}

	resp := call(t, srv, http.MethodGet, "/accounts", "user_b", "")
	var list []accountView
	decodeInto(t, resp.body["accounts"], &list)
	if len(list) != 0 {
		t.Fatalf("expected user_b to see no accounts, got %d", len(list))
	}

	resp = call(t, srv, http.MethodPatch, "/accounts/"+created.ID, "user_b", `{"name":"Mine now"}`)
	if resp.status != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign update, got %d", resp.status)
	}
	resp = call(t, srv, http.MethodDelete, "/accounts/"+created.ID, "user_b", "")
	if resp.status != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign delete, got %d", resp.status)
	}

	resp = call(t, srv, http.MethodGet, "/accounts", "user_a", "")
	decodeInto(t, resp.body["accounts"], &list)
	if len(list) != 1 || list[0].Name != "Chase Bank" {
		t.Fatalf("expected user_a's account to be untouched, got %+v", list)
	}
}

func TestAccounts_OwnerFieldInBodyIsIgnored(t *testing.T) {
	srv := newTestServer(t, nil, 0, nil)
	resp := call(t, srv, http.MethodPost, "/accounts", "user_a", `{"name":"Savings","type":"Savings","ownerId":"user_b"}`)
	if resp.status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.status)
	}
	var a accountView
	decodeInto(t, resp.body["accounts"], &a)
	if a.OwnerID != "user_a" {
		t.Fatalf("expected owner from identity, got %q", a.OwnerID)
	}
}

func TestAccounts_ValidationAndDuplicates(t *testing.T) {
	srv := newTestServer(t, nil, 0, nil)

	resp := call(t, srv, http.MethodPost, "/accounts", "user_a", `{"name":"","type":"Checking"}`)
	if resp.status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.status)
	}
	var violations []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	}
	decodeInto(t, resp.body["error"], &violations)
	if len(violations) != 1 || violations[0].Field != "name" || violations[0].Message != "Account name is needed" {
		t.Fatalf("unexpected violations: %+v", violations)
	}

	createAccount(t, srv, "user_a", "Chase Bank")
	resp = call(t, srv, http.MethodPost, "/accounts", "user_a", `{"name":"  chase bank ","type":"Checking"}`)
	if resp.status != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", resp.status)
	}
	var msg string
	decodeInto(t, resp.body["error"], &msg)
	if msg != "An account with this name already exists" {
		t.Fatalf("unexpected duplicate message %q", msg)
	}

	resp = call(t, srv, http.MethodPost, "/accounts", "user_b", `{"name":"Chase Bank","type":"Checking"}`)
	if resp.status != http.StatusCreated {
		t.Fatalf("expected another owner to reuse the name, got %d", resp.status)
	}
}

func TestAccounts_UpdateAndDelete(t *testing.T) {
	srv := newTestServer(t, nil, 0, nil)
	a := createAccount(t, srv, "user_a", "Main")

	resp := call(t, srv, http.MethodPatch, "/accounts/"+a.ID, "user_a", `{"type":"Savings"}`)
	if resp.status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.status, resp.raw)
	}
	var message string
	decodeInto(t, resp.body["message"], &message)
	var updated accountView
	decodeInto(t, resp.body["data"], &updated)
	if message != "Account updated successfully" || updated.Type != "Savings" || updated.Name != "Main" {
		t.Fatalf("unexpected update response: %s", resp.raw)
	}

	resp = call(t, srv, http.MethodPatch, "/accounts/"+a.ID, "user_a", `{}`)
	if resp.status != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty update, got %d", resp.status)
	}

	resp = call(t, srv, http.MethodPatch, "/accounts/not-a-uuid", "user_a", `{"type":"x"}`)
	if resp.status != http.StatusNotFound {
		t.Fatalf("expected 404 for malformed id, got %d", resp.status)
	}

	resp = call(t, srv, http.MethodDelete, "/accounts/"+a.ID, "user_a", "")
	if resp.status != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.status)
	}
	resp = call(t, srv, http.MethodDelete, "/accounts/"+a.ID, "user_a", "")
	if resp.status != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", resp.status)
	}
}

func TestTransactions_LifecycleAndCascade(t *testing.T) {
	srv := newTestServer(t, nil, 0, nil)
	a := createAccount(t, srv, "user_a", "Main")

	body := `{"name":"Groceries","amount":"10.005","date":"2024-03-05T18:00:00Z","type":"Expense","category":"Food","accountId":"` + a.ID + `"}`
	resp := call(t, srv, http.MethodPost, "/transactions", "user_a", body)
	if resp.status != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.status, resp.raw)
	}
	var tx transactionView
	decodeInto(t, resp.body["transaction"], &tx)
	if tx.Amount != "10.01" || tx.Date != "2024-03-05" || tx.AccountID != a.ID {
		t.Fatalf("unexpected transaction: %+v", tx)
	}

	resp = call(t, srv, http.MethodPost, "/transactions", "user_b", body)
	if resp.status != http.StatusNotFound {
		t.Fatalf("expected 404 when recording against a foreign account, got %d", resp.status)
	}

	resp = call(t, srv, http.MethodPatch, "/transactions/"+tx.ID, "user_a", `{"amount":25}`)
	if resp.status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.status, resp.raw)
	}
	var updated transactionView
	decodeInto(t, resp.body["data"], &updated)
	if updated.Amount != "25.00" {
		t.Fatalf("expected amount 25.00, got %s", updated.Amount)
	}

	resp = call(t, srv, http.MethodGet, "/transactions?accountId="+a.ID, "user_a", "")
	var list []transactionView
	decodeInto(t, resp.body["transactions"], &list)
	if len(list) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(list))
	}

	resp = call(t, srv, http.MethodGet, "/transactions?accountId=bogus", "user_a", "")
	if resp.status != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed filter, got %d", resp.status)
	}

	resp = call(t, srv, http.MethodDelete, "/accounts/"+a.ID, "user_a", "")
	if resp.status != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.status)
	}
	resp = call(t, srv, http.MethodGet, "/transactions", "user_a", "")
	decodeInto(t, resp.body["transactions"], &list)
	if len(list) != 0 {
		t.Fatalf("expected cascade delete to remove transactions, got %d", len(list))
	}
	if !strings.Contains(resp.raw, `"transactions":[]`) {
		t.Fatalf("expected an empty array, got %s", resp.raw)
	}
}

func TestTransactions_InvalidEnumsListMembers(t *testing.T) {
	srv := newTestServer(t, nil, 0, nil)
	a := createAccount(t, srv, "user_a", "Main")

	body := `{"name":"x","amount":1,"date":"2024-01-01","type":"Transfer","category":"Food","accountId":"` + a.ID + `"}`
	resp := call(t, srv, http.MethodPost, "/transactions", "user_a", body)
	if resp.status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.status)
	}
	if !strings.Contains(resp.raw, "Invalid transaction type. Must be one of: Income, Expense") {
		t.Fatalf("expected enum message, got %s", resp.raw)
	}
}

func TestTransactions_DeleteScopedToOwner(t *testing.T) {
	srv := newTestServer(t, nil, 0, nil)
	a := createAccount(t, srv, "user_a", "Main")
	body := `{"name":"x","amount":1,"date":"2024-01-01","type":"Income","category":"Gifts","accountId":"` + a.ID + `"}`
	resp := call(t, srv, http.MethodPost, "/transactions", "user_a", body)
	var tx transactionView
	decodeInto(t, resp.body["transaction"], &tx)

	if resp := call(t, srv, http.MethodDelete, "/transactions/"+tx.ID, "user_b", ""); resp.status != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign delete, got %d", resp.status)
	}
	if resp := call(t, srv, http.MethodDelete, "/transactions/"+tx.ID, "user_a", ""); resp.status != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.status)
	}
}

type stubLimiter struct {
	count int
}

func (s *stubLimiter) ConsumeRateLimit(context.Context, string, string, int, time.Duration) (int, int, error) {
	s.count++
	return s.count, 42, nil
}

func TestMutationRateLimit(t *testing.T) {
	limiter := &stubLimiter{}
	srv := newTestServer(t, limiter, 1, nil)

	createAccount(t, srv, "user_a", "First")
	resp := call(t, srv, http.MethodPost, "/accounts", "user_a", `{"name":"Second","type":"x"}`)
	if resp.status != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.status)
	}
	if resp.header.Get("Retry-After") != "42" {
		t.Fatalf("expected Retry-After 42, got %q", resp.header.Get("Retry-After"))
	}

	if resp := call(t, srv, http.MethodGet, "/accounts", "user_a", ""); resp.status != http.StatusOK {
		t.Fatalf("expected reads to bypass the limiter, got %d", resp.status)
	}
}

type stubReserver struct {
	seen     map[string]bool
	released []string
}

func (s *stubReserver) Reserve(_ context.Context, scope, ownerID, key string) (func(), error) {
	k := scope + ":" + ownerID + ":" + key
	if s.seen[k] {
		return nil, app.ErrIdempotencyKeyReused
	}
	s.seen[k] = true
	return func() {
		delete(s.seen, k)
		s.released = append(s.released, k)
	}, nil
}

func TestIdempotencyKey(t *testing.T) {
	reserver := &stubReserver{seen: map[string]bool{}}
	srv := newTestServer(t, nil, 0, reserver)

	body := `{"name":"Main","type":"Checking"}`
	resp := call(t, srv, http.MethodPost, "/accounts", "user_a", body, "Idempotency-Key", "abc")
	if resp.status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.status)
	}
	resp = call(t, srv, http.MethodPost, "/accounts", "user_a", body, "Idempotency-Key", "abc")
	if resp.status != http.StatusConflict {
		t.Fatalf("expected 409 for reused key, got %d", resp.status)
	}

	// A failed create frees its key.
	resp = call(t, srv, http.MethodPost, "/accounts", "user_a", body, "Idempotency-Key", "def")
	if resp.status != http.StatusConflict {
		t.Fatalf("expected duplicate-name 409, got %d", resp.status)
	}
	if len(reserver.released) != 1 {
		t.Fatalf("expected the failed request to release its key, got %v", reserver.released)
	}
}

type brokenService struct {
	FinanceService
}

func (brokenService) ListAccounts(context.Context, string) ([]domain.Account, error) {
	return nil, errors.New("connection refused")
}

func TestUnexpectedErrorsAreHidden(t *testing.T) {
	h := NewFinanceHandlers(brokenService{}, nil)
	srv := httptest.NewServer(NewRouter(h, RouterConfig{
		Auth:   AuthMiddlewareConfig{AllowHeaderFallback: true},
		Logger: zerolog.Nop(),
	}))
	defer srv.Close()

	resp := call(t, srv, http.MethodGet, "/accounts", "user_a", "")
	if resp.status != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.status)
	}
	if strings.Contains(resp.raw, "connection refused") {
		t.Fatalf("internal error leaked to the client: %s", resp.raw)
	}
}

func TestBlankAndOversizedValuesAreRejected(t *testing.T) {
	srv := newTestServer(t, nil, 0, nil)
	a := createAccount(t, srv, "user_a", "Main")

	type violation struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	}
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantFields []string
	}{
		{
			name:       "blank account name and type",
			method:     http.MethodPost,
			path:       "/accounts",
			body:       `{"name":"   ","type":""}`,
			wantFields: []string{"name", "type"},
		},
		{
			name:       "blank rename",
			method:     http.MethodPatch,
			path:       "/accounts/" + a.ID,
			body:       `{"name":" "}`,
			wantFields: []string{"name"},
		},
		{
			name:       "blank transaction name",
			method:     http.MethodPost,
			path:       "/transactions",
			body:       `{"name":"  ","amount":5,"date":"2024-01-01","type":"Income","category":"Salary","accountId":"` + a.ID + `"}`,
			wantFields: []string{"name"},
		},
		{
			name:       "amount beyond storage range",
			method:     http.MethodPost,
			path:       "/transactions",
			body:       `{"name":"Lottery","amount":1e20,"date":"2024-01-01","type":"Income","category":"Salary","accountId":"` + a.ID + `"}`,
			wantFields: []string{"amount"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := call(t, srv, tt.method, tt.path, "user_a", tt.body)
			if resp.status != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", resp.status, resp.raw)
			}
			var got []violation
			decodeInto(t, resp.body["error"], &got)
			if len(got) != len(tt.wantFields) {
				t.Fatalf("expected fields %v, got %+v", tt.wantFields, got)
			}
			seen := make(map[string]bool, len(got))
			for _, v := range got {
				seen[v.Field] = v.Message != ""
			}
			for _, field := range tt.wantFields {
				if !seen[field] {
					t.Fatalf("expected fields %v, got %+v", tt.wantFields, got)
				}
			}
		})
	}

	resp := call(t, srv, http.MethodGet, "/transactions", "user_a", "")
	var list []transactionView
	decodeInto(t, resp.body["transactions"], &list)
	if len(list) != 0 {
		t.Fatalf("expected nothing to be stored, got %+v", list)
	}
}

func TestAccounts_EmptyExternalLinkClears(t *testing.T) {
	srv := newTestServer(t, nil, 0, nil)

	resp := call(t, srv, http.MethodPost, "/accounts", "user_a", `{"name":"Linked","type":"Checking","externalLinkId":"plaid-1"}`)
	var a accountView
	decodeInto(t, resp.body["accounts"], &a)
	if a.ExternalLinkID == nil || *a.ExternalLinkID != "plaid-1" {
		t.Fatalf("expected the link to be stored, got %s", resp.raw)
	}

	resp = call(t, srv, http.MethodPatch, "/accounts/"+a.ID, "user_a", `{"type":"Savings"}`)
	var kept accountView
	decodeInto(t, resp.body["data"], &kept)
	if kept.ExternalLinkID == nil {
		t.Fatalf("expected an absent link to be kept, got %s", resp.raw)
	}

	resp = call(t, srv, http.MethodPatch, "/accounts/"+a.ID, "user_a", `{"externalLinkId":""}`)
	if resp.status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.status, resp.raw)
	}
	var cleared accountView
	decodeInto(t, resp.body["data"], &cleared)
	if cleared.ExternalLinkID != nil {
		t.Fatalf("expected the link to be cleared, got %q", *cleared.ExternalLinkID)
	}
}

func TestErrorLogCarriesOneComponentKey(t *testing.T) {
	var buf bytes.Buffer
	h := NewFinanceHandlers(brokenService{}, nil)
	router := NewRouter(h, RouterConfig{
		Auth:   AuthMiddlewareConfig{AllowHeaderFallback: true},
		Logger: logger.Component(logger.NewWithWriter(&buf), "http"),
	})

	req := httptest.NewRequest(http.MethodGet, "/accounts", nil)
	req.Header.Set("X-Clerk-User-Id", "user_a")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	var found bool
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if !strings.Contains(line, `"request failed"`) {
			continue
		}
		found = true
		if n := strings.Count(line, `"component"`); n != 1 {
			t.Fatalf("expected one component key, got %d: %s", n, line)
		}
		if !strings.Contains(line, `"op":"list_accounts"`) {
			t.Fatalf("expected the operation to be logged: %s", line)
		}
	}
	if !found {
		t.Fatalf("expected a request failed line, got %s", buf.String())
	}
}
