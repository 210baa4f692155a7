package billing

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/coinsub/coinsub/app/models"
)

// Plan prices in USD. The fiat currency is fixed; only the crypto side is
// converted at creation time.
var planPrices = map[string]decimal.Decimal{
	models.SubscriptionPlanMonthly: decimal.NewFromInt(5),
	models.SubscriptionPlanYearly:  decimal.NewFromInt(50),
}

var supportedCoins = map[string]struct{}{
	"btc":  {},
	"ltc":  {},
	"doge": {},
	"eth":  {},
}

func normalizePlan(plan string) string {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case models.SubscriptionPlanMonthly:
		return models.SubscriptionPlanMonthly
	case models.SubscriptionPlanYearly:
		return models.SubscriptionPlanYearly
	default:
		return ""
	}
}

func normalizeCoin(coin string) string {
	c := strings.ToLower(strings.TrimSpace(coin))
	if _, ok := supportedCoins[c]; !ok {
		return ""
	}
	return c
}

// PlanPrice returns the fiat price for a plan.
func PlanPrice(plan string) (decimal.Decimal, bool) {
	p, ok := planPrices[normalizePlan(plan)]
	return p, ok
}

// IsSupportedCoin reports whether payments in the given coin are accepted.
func IsSupportedCoin(coin string) bool {
	return normalizeCoin(coin) != ""
}
