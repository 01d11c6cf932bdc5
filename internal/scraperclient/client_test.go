package scraperclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/iaros/marketwatch/internal/apperr"
)

func TestParseReturnsStructuredFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/scraper/parse" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.ProductType != ProductTypeMonitored {
			t.Fatalf("expected monitored product_type, got %s", req.ProductType)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Response{
			CurrentPrice: 199.90,
			FreeShipping: true,
		})
	}))
	defer server.Close()

	client := New(server.URL, 5*time.Second)
	resp, err := client.Parse(context.Background(), "https://example.com/p", ProductTypeMonitored, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.CurrentPrice != 199.90 || !resp.FreeShipping {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestParseSurfacesServerErrorsAsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(server.URL, 5*time.Second)
	_, err := client.Parse(context.Background(), "https://example.com/p", ProductTypeMonitored, nil)
	if err == nil {
		t.Fatal("expected an error for a 502 response")
	}
}

func TestParseOpensLocalCircuitAfterConsecutiveFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(server.URL, 5*time.Second)

	var lastErr error
	for i := 0; i < 10; i++ {
		_, lastErr = client.Parse(context.Background(), "https://example.com/p", ProductTypeMonitored, nil)
	}

	var appErr *apperr.Error
	if !errors.As(lastErr, &appErr) || appErr.Code() != apperr.TransientRemote {
		t.Fatalf("expected a TransientRemote error once the local circuit opens, got %v", lastErr)
	}
}
