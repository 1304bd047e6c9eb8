package playclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestVerifyProductPurchased(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/purchases/products/highlight_24h/tokens/tok-1") {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization header = %q", got)
		}
		w.Write([]byte(`{"purchaseState": 0, "orderId": "GPA.1234"}`))
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL, PackageName: "com.confessly.app", AuthToken: "secret"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	state, err := client.VerifyProduct(context.Background(), "highlight_24h", "tok-1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if state != StatePurchased {
		t.Fatalf("state = %d, want purchased", state)
	}
}

func TestVerifyProductCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"purchaseState": 1}`))
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL, PackageName: "com.confessly.app"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	state, err := client.VerifyProduct(context.Background(), "paid_confession_10", "tok-2")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if state != StateCanceled {
		t.Fatalf("state = %d, want canceled", state)
	}
}

func TestVerifyProductAuthorityFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "backend unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL, PackageName: "com.confessly.app"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.VerifyProduct(context.Background(), "p", "t"); err == nil {
		t.Fatalf("authority failure should surface as error")
	}
}

func TestVerifyProductMissingState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"orderId": "GPA.1"}`))
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL, PackageName: "com.confessly.app"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.VerifyProduct(context.Background(), "p", "t"); err == nil {
		t.Fatalf("missing purchaseState should be an error")
	}
}

func TestNewRequiresPackageName(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for missing package name")
	}
}
