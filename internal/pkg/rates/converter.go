package rates

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

	"github.com/coinsub/coinsub/internal/pkg/cache"
	"github.com/coinsub/coinsub/internal/pkg/env"
)

// ErrRateUnavailable is returned when the exchange-rate oracle errors or
// reports a non-positive rate. The converter never retries; the caller
// decides whether subscription creation as a whole is retryable.
var ErrRateUnavailable = errors.New("rates: exchange rate unavailable")

const rateCacheTTL = 60 * time.Second

// Quote is a frozen conversion result: the crypto amount owed for a fiat
// amount at the observed rate.
type Quote struct {
	CryptoAmount decimal.Decimal
	Rate         decimal.Decimal
}

// QuoteCache caches oracle rates for a short window. A nil cache disables
// caching; cache errors always fall through to the oracle.
type QuoteCache interface {
	Get(key string) (string, error)
	Set(key string, value interface{}, expiration time.Duration) error
}

// Converter turns fiat amounts into crypto amounts via the exchange-rate
// oracle.
type Converter struct {
	BaseURL      string
	FiatCurrency string

	HTTPClient *http.Client
	Cache      QuoteCache
}

// NewConverterFromEnv builds a converter against RATE_ORACLE_URL with the
// shared redis cache.
func NewConverterFromEnv() *Converter {
	return &Converter{
		BaseURL:      strings.TrimRight(env.GetEnv("RATE_ORACLE_URL", ""), "/"),
		FiatCurrency: "usd",
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		Cache: redisQuoteCache{},
	}
}

// Convert computes cryptoAmount = fiatAmount / rate for the given coin.
func (c *Converter) Convert(ctx context.Context, fiatAmount decimal.Decimal, coin string) (Quote, error) {
	if !fiatAmount.IsPositive() {
		return Quote{}, fmt.Errorf("rates: fiat amount must be positive, got %s", fiatAmount.String())
	}
	coin = strings.ToLower(strings.TrimSpace(coin))
	if coin == "" {
		return Quote{}, fmt.Errorf("rates: coin is required")
	}

	rate, err := c.rate(ctx, coin)
	if err != nil {
		return Quote{}, err
	}
	if !rate.IsPositive() {
		return Quote{}, fmt.Errorf("%w: oracle returned rate %s for %s/%s", ErrRateUnavailable, rate.String(), coin, c.FiatCurrency)
	}

	return Quote{
		CryptoAmount: fiatAmount.DivRound(rate, 18),
		Rate:         rate,
	}, nil
}

func (c *Converter) rate(ctx context.Context, coin string) (decimal.Decimal, error) {
	cacheKey := fmt.Sprintf("rate:%s:%s", coin, c.FiatCurrency)
	if c.Cache != nil {
		if cached, err := c.Cache.Get(cacheKey); err == nil {
			if rate, err := decimal.NewFromString(cached); err == nil {
				return rate, nil
			}
		}
	}

	u, err := url.Parse(c.BaseURL + "/v1/ticker")
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid RATE_ORACLE_URL: %v", ErrRateUnavailable, err)
	}
	q := u.Query()
	q.Set("coin", coin)
	q.Set("fiat", c.FiatCurrency)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decimal.Zero, fmt.Errorf("%w: status=%d body=%s", ErrRateUnavailable, resp.StatusCode, string(body))
	}

	var out struct {
		Rate decimal.Decimal `json:"rate"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}

	if c.Cache != nil {
		_ = c.Cache.Set(cacheKey, out.Rate.String(), rateCacheTTL)
	}
	return out.Rate, nil
}

// redisQuoteCache adapts the shared cache package to QuoteCache.
type redisQuoteCache struct{}

func (redisQuoteCache) Get(key string) (string, error) {
	return cache.Get(key)
}

func (redisQuoteCache) Set(key string, value interface{}, expiration time.Duration) error {
	return cache.Set(key, value, expiration)
}
