package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coinsub/coinsub/internal/pkg/env"
)

// ErrVerificationUnavailable is returned when the balance oracle cannot be
// reached or answers with garbage. It is distinct from "verified but
// insufficient": an unavailable oracle is never proof of non-payment.
var ErrVerificationUnavailable = errors.New("wallet: balance oracle unavailable")

// Verifier queries the blockchain balance oracle per coin and normalizes the
// heterogeneous response shapes into a single confirmed-incoming figure. The
// raw oracle shapes never leak past this package.
type Verifier struct {
	BaseURL string

	HTTPClient *http.Client
}

// NewVerifierFromEnv builds a verifier against BALANCE_ORACLE_URL.
func NewVerifierFromEnv() *Verifier {
	return &Verifier{
		BaseURL: strings.TrimRight(env.GetEnv("BALANCE_ORACLE_URL", ""), "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// utxoAddressInfo is the shape reported for coins with separate incoming and
// outgoing tallies (btc family).
type utxoAddressInfo struct {
	ConfirmedReceived decimal.Decimal `json:"confirmed_received"`
	ConfirmedSent     decimal.Decimal `json:"confirmed_sent"`
}

// accountAddressInfo is the shape reported for account-model coins whose
// balance is already net (eth).
type accountAddressInfo struct {
	Balance decimal.Decimal `json:"balance"`
}

// ConfirmedIncoming returns the confirmed incoming amount observed for an
// address.
func (v *Verifier) ConfirmedIncoming(ctx context.Context, coin, address string) (decimal.Decimal, error) {
	coin = strings.ToLower(strings.TrimSpace(coin))
	if strings.TrimSpace(address) == "" {
		return decimal.Zero, fmt.Errorf("%w: address is required", ErrVerificationUnavailable)
	}

	body, err := v.fetchAddress(ctx, coin, address)
	if err != nil {
		return decimal.Zero, err
	}

	switch coin {
	case "btc", "ltc", "doge":
		var info utxoAddressInfo
		if err := json.Unmarshal(body, &info); err != nil {
			return decimal.Zero, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
		}
		return info.ConfirmedReceived.Sub(info.ConfirmedSent), nil
	case "eth":
		var info accountAddressInfo
		if err := json.Unmarshal(body, &info); err != nil {
			return decimal.Zero, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
		}
		return info.Balance, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: no oracle query for coin %q", ErrVerificationUnavailable, coin)
	}
}

func (v *Verifier) fetchAddress(ctx context.Context, coin, address string) ([]byte, error) {
	if strings.TrimSpace(v.BaseURL) == "" {
		return nil, fmt.Errorf("%w: BALANCE_ORACLE_URL is not configured", ErrVerificationUnavailable)
	}

	u := v.BaseURL + "/v1/" + url.PathEscape(coin) + "/address/" + url.PathEscape(address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.HTTPClient.Do(req)
	if err != nil {
		// Includes timeouts: a timed-out oracle is unavailable, not a
		// negative result.
		return nil, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrVerificationUnavailable, resp.StatusCode, string(body))
	}
	return body, nil
}
