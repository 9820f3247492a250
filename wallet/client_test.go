package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/lnbits/scrum/domain"
)

func TestPaySendsInvoiceToWallet(t *testing.T) {
	var (
		mu   sync.Mutex
		got  payRequest
		auth string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != paymentsPath {
			http.Error(w, "unexpected route", http.StatusNotFound)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"payment_hash":"abc123","checking_id":"chk"}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "admin-key", time.Second)
	res, err := c.Pay(context.Background(), domain.PaymentRequest{
		WalletID:    "w1",
		Invoice:     "lnbc1",
		MaxSat:      500,
		Description: "Scrum task reward: ship",
		Extra:       map[string]string{"tag": domain.PaymentTag, "task_id": "t1"},
	})
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if res.PaymentHash != "abc123" || res.CheckingID != "chk" {
		t.Fatalf("unexpected result %+v", res)
	}
	mu.Lock()
	defer mu.Unlock()
	if auth != "Bearer admin-key" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if !got.Out || got.WalletID != "w1" || got.Bolt11 != "lnbc1" || got.MaxSat != 500 || got.Extra["tag"] != "scrum" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestPayRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"detail":"Insufficient balance."}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "k", time.Second).Pay(context.Background(), domain.PaymentRequest{Invoice: "lnbc1"})
	if !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("expected ErrPaymentFailed, got %v", err)
	}
	if want := "status 402: Insufficient balance.: wallet payment failed"; err.Error() != want {
		t.Fatalf("unexpected error %q", err)
	}
}

func TestPayMissingHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "", time.Second).Pay(context.Background(), domain.PaymentRequest{})
	if !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("expected ErrPaymentFailed, got %v", err)
	}
}

func TestPayTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	start := time.Now()
	if _, err := New(srv.URL, "", 50*time.Millisecond).Pay(context.Background(), domain.PaymentRequest{}); err == nil {
		t.Fatalf("expected timeout error")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("payment was not bounded by the timeout")
	}
}
