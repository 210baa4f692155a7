package billing

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/coinsub/coinsub/internal/pkg/rates"
	"github.com/coinsub/coinsub/internal/pkg/wallet"
)

// Notification is the normalized shape of a forwarding-service callback,
// decoded at the HTTP boundary. Correlation fields come from the parameters
// bag the issuance service echoes back verbatim.
type Notification struct {
	Pending        bool
	Coin           string
	AddressIn      string
	TxidIn         string
	TxidOut        string
	Value          decimal.Decimal
	ValueForwarded decimal.Decimal
	Fee            decimal.Decimal
	Confirmations  int

	SubscriptionID string
	Email          string

	// RawJSON is the untouched callback body, retained for audit.
	RawJSON string
}

// RateConverter converts a fiat amount into a crypto amount at the current
// oracle rate.
type RateConverter interface {
	Convert(ctx context.Context, fiatAmount decimal.Decimal, coin string) (rates.Quote, error)
}

// AddressIssuer mints a one-time receiving address bound to a subscription
// through the correlation parameters.
type AddressIssuer interface {
	IssueAddress(ctx context.Context, req wallet.IssueRequest) (*wallet.IssuedAddress, error)
}

// BalanceVerifier reports the confirmed incoming amount for an address as
// observed by an independent blockchain oracle.
type BalanceVerifier interface {
	ConfirmedIncoming(ctx context.Context, coin, address string) (decimal.Decimal, error)
}

// Mailer sends fire-and-forget notification mails. Failures are logged by
// callers and must never abort the surrounding operation.
type Mailer interface {
	Send(to, subject, body string) error
}

// Config carries the per-process settings the lifecycle manager needs to
// issue addresses.
type Config struct {
	// DestinationWallets maps a coin to the cold wallet the forwarding
	// service settles into.
	DestinationWallets map[string]string
	// CallbackURL is invoked by the issuance service on pending and
	// confirmed events.
	CallbackURL string
	// Confirmations is the confirmation depth requested from the issuance
	// service for the confirmed callback.
	Confirmations int
}
