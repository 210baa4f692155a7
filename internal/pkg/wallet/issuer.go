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

	"github.com/coinsub/coinsub/internal/pkg/env"
)

// ErrIssuance is returned when the forwarding service fails to mint a
// receiving address. The adapter fails loudly rather than proceeding with a
// subscription nobody can pay.
var ErrIssuance = errors.New("wallet: address issuance failed")

// Issuer wraps the payment-address forwarding service. Given a destination
// wallet and a callback URL it mints a one-time receiving address; the
// service later invokes the callback at pending and confirmed depth,
// echoing the correlation parameters back verbatim.
type Issuer struct {
	BaseURL string
	APIKey  string

	HTTPClient *http.Client
}

// NewIssuerFromEnv builds an issuer against WALLET_ISSUER_URL.
func NewIssuerFromEnv() *Issuer {
	return &Issuer{
		BaseURL: strings.TrimRight(env.GetEnv("WALLET_ISSUER_URL", ""), "/"),
		APIKey:  strings.TrimSpace(env.GetEnv("WALLET_ISSUER_API_KEY", "")),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// IssueRequest describes one address issuance.
type IssueRequest struct {
	Coin               string
	DestinationAddress string
	CallbackURL        string
	Confirmations      int
	// Parameters is the opaque correlation bag (subscription id, email,
	// amount, rate) the service must echo back on every callback. It is the
	// only channel binding a callback to its subscription.
	Parameters map[string]string
}

// IssuedAddress is the minted receiving address plus the raw service
// response, retained for audit.
type IssuedAddress struct {
	Address string
	Raw     string
}

// IssueAddress mints a one-time receiving address. The response shape of the
// service is not assumed stable: the address field is validated explicitly
// and its absence is an ErrIssuance, never a silent success.
func (c *Issuer) IssueAddress(ctx context.Context, req IssueRequest) (*IssuedAddress, error) {
	if strings.TrimSpace(c.BaseURL) == "" {
		return nil, fmt.Errorf("%w: WALLET_ISSUER_URL is not configured", ErrIssuance)
	}
	if strings.TrimSpace(req.DestinationAddress) == "" {
		return nil, fmt.Errorf("%w: no destination wallet configured for %s", ErrIssuance, req.Coin)
	}
	if strings.TrimSpace(req.CallbackURL) == "" {
		return nil, fmt.Errorf("%w: callback URL is required", ErrIssuance)
	}

	params, err := json.Marshal(req.Parameters)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIssuance, err)
	}

	u, err := url.Parse(c.BaseURL + "/v1/" + url.PathEscape(req.Coin) + "/receive")
	if err != nil {
		return nil, fmt.Errorf("%w: invalid WALLET_ISSUER_URL: %v", ErrIssuance, err)
	}
	q := u.Query()
	q.Set("address", req.DestinationAddress)
	q.Set("callback", req.CallbackURL)
	q.Set("pending", "1")
	q.Set("confirmations", fmt.Sprintf("%d", req.Confirmations))
	q.Set("json", "1")
	q.Set("parameters", string(params))
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIssuance, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIssuance, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrIssuance, resp.StatusCode, string(body))
	}

	var out struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIssuance, err)
	}
	if strings.TrimSpace(out.Address) == "" {
		return nil, fmt.Errorf("%w: response missing receiving address: %s", ErrIssuance, string(body))
	}

	return &IssuedAddress{
		Address: strings.TrimSpace(out.Address),
		Raw:     string(body),
	}, nil
}
