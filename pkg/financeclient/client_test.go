package financeclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_SendsBearerTokenAndDecodesEnvelopes(t *testing.T) {
	var gotAuth, gotPath, gotQuery string
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		if r.Body != nil {
			raw, _ := io.ReadAll(r.Body)
			gotBody = nil
			_ = json.Unmarshal(raw, &gotBody)
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/accounts":
			_, _ = w.Write([]byte(`{"accounts":[{"id":"a1","name":"Chase Bank","type":"Checking","ownerId":"u1"}]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/accounts":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"accounts":{"id":"a2","name":"Savings","type":"Savings","ownerId":"u1"}}`))
		case r.Method == http.MethodPatch && r.URL.Path == "/accounts/a2":
			_, _ = w.Write([]byte(`{"message":"Account updated successfully","data":{"id":"a2","name":"Rainy Day","type":"Savings"}}`))
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodGet && r.URL.Path == "/transactions":
			_, _ = w.Write([]byte(`{"transactions":[{"id":"t1","amount":"12.50","date":"2024-03-05","accountId":"a1"}]}`))
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	token := func(context.Context) (string, error) { return "tok", nil }
	c := NewClient(srv.URL+"/", token, WithHTTPClient(srv.Client()))
	ctx := context.Background()

	accounts, err := c.ListAccounts(ctx)
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0].Name != "Chase Bank" {
		t.Fatalf("unexpected accounts: %+v", accounts)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("expected bearer token, got %q", gotAuth)
	}

	created, err := c.CreateAccount(ctx, CreateAccountRequest{Name: "Savings", Type: "Savings"})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if created.ID != "a2" || gotBody["name"] != "Savings" {
		t.Fatalf("unexpected create round trip: %+v body=%v", created, gotBody)
	}
	if _, present := gotBody["externalLinkId"]; present {
		t.Fatalf("expected nil external link to be omitted, got %v", gotBody)
	}

	name := "Rainy Day"
	updated, err := c.UpdateAccount(ctx, "a2", UpdateAccountRequest{Name: &name})
	if err != nil {
		t.Fatalf("UpdateAccount: %v", err)
	}
	if updated.Name != "Rainy Day" {
		t.Fatalf("expected updated name, got %q", updated.Name)
	}
	if _, present := gotBody["type"]; present {
		t.Fatalf("expected partial body, got %v", gotBody)
	}

	if err := c.DeleteAccount(ctx, "a2"); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if gotPath != "/accounts/a2" {
		t.Fatalf("unexpected delete path %q", gotPath)
	}

	txs, err := c.ListTransactions(ctx, "a1")
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if gotQuery != "accountId=a1" || len(txs) != 1 || txs[0].Amount != "12.50" {
		t.Fatalf("unexpected transactions %+v (query %q)", txs, gotQuery)
	}
}

func TestClient_DecodesErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantMsg    string
		wantFields int
	}{
		{name: "message", status: http.StatusConflict, body: `{"error":"An account with this name already exists"}`, wantMsg: "An account with this name already exists"},
		{name: "field errors", status: http.StatusBadRequest, body: `{"error":[{"field":"name","message":"Account name is needed"}]}`, wantMsg: "validation failed", wantFields: 1},
		{name: "plain body", status: http.StatusInternalServerError, body: `oops`, wantMsg: "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, nil).ListAccounts(context.Background())
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %v", err)
			}
			if apiErr.StatusCode != tt.status || apiErr.Message != tt.wantMsg || len(apiErr.FieldErrors) != tt.wantFields {
				t.Fatalf("unexpected error %+v", apiErr)
			}
		})
	}
}

func TestClient_TokenFailureStopsRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewClient(srv.URL, func(context.Context) (string, error) { return "", errors.New("signed out") })
	if _, err := c.ListAccounts(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
	if called {
		t.Fatal("request should not be sent without a token")
	}
}

func TestIsNotFoundAndConflict(t *testing.T) {
	if !IsNotFound(&APIError{StatusCode: http.StatusNotFound}) {
		t.Fatal("expected IsNotFound")
	}
	if IsNotFound(errors.New("x")) {
		t.Fatal("plain errors are not 404s")
	}
	if !IsConflict(&APIError{StatusCode: http.StatusConflict}) {
		t.Fatal("expected IsConflict")
	}
}
