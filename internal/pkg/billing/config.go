package billing

import (
	"strconv"
	"strings"

	"github.com/coinsub/coinsub/internal/pkg/env"
)

// ConfigFromEnv assembles the lifecycle configuration from the environment.
// The callback URL defaults to the public payment-callback route; the
// destination wallets are read per supported coin.
func ConfigFromEnv() Config {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	callbackURL := strings.TrimSpace(env.GetEnv("PAYMENT_CALLBACK_URL", ""))
	if callbackURL == "" && base != "" {
		callbackURL = base + "/api/v1/payments/callback"
	}

	confirmations, err := strconv.Atoi(env.GetEnv("CALLBACK_CONFIRMATIONS", "3"))
	if err != nil || confirmations <= 0 {
		confirmations = 3
	}

	wallets := make(map[string]string)
	for coin := range supportedCoins {
		key := "DESTINATION_WALLET_" + strings.ToUpper(coin)
		if addr := strings.TrimSpace(env.GetEnv(key, "")); addr != "" {
			wallets[coin] = addr
		}
	}

	return Config{
		DestinationWallets: wallets,
		CallbackURL:        callbackURL,
		Confirmations:      confirmations,
	}
}
