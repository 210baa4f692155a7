package wallet

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func newTestVerifier(handler http.HandlerFunc) (*Verifier, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return &Verifier{
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	}, srv
}

func TestConfirmedIncoming_UtxoCoins(t *testing.T) {
	var gotPath string
	v, srv := newTestVerifier(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"confirmed_received":"1.5","confirmed_sent":"0.5","pending":"0.1"}`))
	})
	defer srv.Close()

	for _, coin := range []string{"btc", "ltc", "doge"} {
		amount, err := v.ConfirmedIncoming(context.Background(), coin, "addr-1")
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", coin, err)
		}
		// Net of outgoing forwards, pending excluded.
		if !amount.Equal(decimal.RequireFromString("1")) {
			t.Fatalf("expected net 1 for %s, got %s", coin, amount.String())
		}
		if gotPath != "/v1/"+coin+"/address/addr-1" {
			t.Fatalf("unexpected path %q for %s", gotPath, coin)
		}
	}
}

func TestConfirmedIncoming_Eth(t *testing.T) {
	v, srv := newTestVerifier(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"balance":"2.25"}`))
	})
	defer srv.Close()

	amount, err := v.ConfirmedIncoming(context.Background(), "ETH", "0xabc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !amount.Equal(decimal.RequireFromString("2.25")) {
		t.Fatalf("expected 2.25, got %s", amount.String())
	}
}

func TestConfirmedIncoming_UnknownCoin(t *testing.T) {
	v, srv := newTestVerifier(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	defer srv.Close()

	if _, err := v.ConfirmedIncoming(context.Background(), "xmr", "addr-1"); !errors.Is(err, ErrVerificationUnavailable) {
		t.Fatalf("expected ErrVerificationUnavailable, got %v", err)
	}
}

func TestConfirmedIncoming_OracleDown(t *testing.T) {
	v, srv := newTestVerifier(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	})
	defer srv.Close()

	if _, err := v.ConfirmedIncoming(context.Background(), "btc", "addr-1"); !errors.Is(err, ErrVerificationUnavailable) {
		t.Fatalf("expected ErrVerificationUnavailable, got %v", err)
	}
}

func TestConfirmedIncoming_MissingAddress(t *testing.T) {
	v := &Verifier{BaseURL: "http://unused", HTTPClient: http.DefaultClient}
	if _, err := v.ConfirmedIncoming(context.Background(), "btc", ""); !errors.Is(err, ErrVerificationUnavailable) {
		t.Fatalf("expected ErrVerificationUnavailable for missing address, got %v", err)
	}
}
