package billing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/coinsub/coinsub/app/models"
	"github.com/coinsub/coinsub/internal/pkg/rates"
	"github.com/coinsub/coinsub/internal/pkg/wallet"
)

// fakeRepo is an in-memory Repository. It returns copies the way the DB
// layer does, so stale-pointer bugs in the service would show up in tests.
type fakeRepo struct {
	subs     map[string]models.Subscription
	payments map[string]models.Payment

	nextPaymentID uint
	saveSubErr    error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		subs:     make(map[string]models.Subscription),
		payments: make(map[string]models.Payment),
	}
}

func paymentKey(subscriptionID, txidIn string) string {
	return subscriptionID + "|" + txidIn
}

func (f *fakeRepo) Transaction(fn func(Repository) error) error {
	return fn(f)
}

func (f *fakeRepo) CreateSubscription(sub *models.Subscription) error {
	f.subs[sub.ID] = *sub
	return nil
}

func (f *fakeRepo) GetSubscription(id string) (*models.Subscription, error) {
	sub, ok := f.subs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &sub, nil
}

func (f *fakeRepo) GetSubscriptionByEmail(email string) (*models.Subscription, error) {
	var latest *models.Subscription
	for id := range f.subs {
		sub := f.subs[id]
		if sub.Email != email {
			continue
		}
		if latest == nil || sub.CreatedAt.After(latest.CreatedAt) {
			latest = &sub
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return latest, nil
}

func (f *fakeRepo) SaveSubscription(sub *models.Subscription) error {
	if f.saveSubErr != nil {
		return f.saveSubErr
	}
	f.subs[sub.ID] = *sub
	return nil
}

func (f *fakeRepo) ListRemindable(from, to time.Time) ([]models.Subscription, error) {
	var out []models.Subscription
	for id := range f.subs {
		sub := f.subs[id]
		if sub.Status != models.SubscriptionStatusActive || sub.ReminderSentAt != nil {
			continue
		}
		if sub.ExpiresAt.Before(from) || sub.ExpiresAt.After(to) {
			continue
		}
		out = append(out, sub)
	}
	return out, nil
}

func (f *fakeRepo) ListExpired(now time.Time) ([]models.Subscription, error) {
	var out []models.Subscription
	for id := range f.subs {
		sub := f.subs[id]
		if sub.Status == models.SubscriptionStatusActive && sub.ExpiresAt.Before(now) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetPayment(subscriptionID, txidIn string) (*models.Payment, error) {
	p, ok := f.payments[paymentKey(subscriptionID, txidIn)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (f *fakeRepo) CreatePaymentIfNotExists(p *models.Payment) (bool, *models.Payment, error) {
	key := paymentKey(p.SubscriptionID, p.TxidIn)
	if stored, ok := f.payments[key]; ok {
		return false, &stored, nil
	}
	f.nextPaymentID++
	p.ID = f.nextPaymentID
	f.payments[key] = *p
	stored := *p
	return true, &stored, nil
}

func (f *fakeRepo) SavePayment(p *models.Payment) error {
	f.payments[paymentKey(p.SubscriptionID, p.TxidIn)] = *p
	return nil
}

type fakeRates struct {
	rate decimal.Decimal
	err  error
}

func (f *fakeRates) Convert(_ context.Context, fiatAmount decimal.Decimal, _ string) (rates.Quote, error) {
	if f.err != nil {
		return rates.Quote{}, f.err
	}
	return rates.Quote{
		CryptoAmount: fiatAmount.DivRound(f.rate, 18),
		Rate:         f.rate,
	}, nil
}

type fakeIssuer struct {
	address string
	err     error

	lastRequest wallet.IssueRequest
}

func (f *fakeIssuer) IssueAddress(_ context.Context, req wallet.IssueRequest) (*wallet.IssuedAddress, error) {
	f.lastRequest = req
	if f.err != nil {
		return nil, f.err
	}
	return &wallet.IssuedAddress{Address: f.address, Raw: `{"address":"` + f.address + `"}`}, nil
}

type sentMail struct {
	to      string
	subject string
}

type fakeMailer struct {
	sent    []sentMail
	failFor map[string]error
}

func (f *fakeMailer) Send(to, subject, _ string) error {
	if err, ok := f.failFor[to]; ok {
		return err
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject})
	return nil
}

type fakeVerifier struct {
	amount decimal.Decimal
	err    error

	calls int
}

func (f *fakeVerifier) ConfirmedIncoming(_ context.Context, _, _ string) (decimal.Decimal, error) {
	f.calls++
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return f.amount, nil
}

var errOracleDown = errors.New("oracle down")

func newTestService(repo Repository, mailer Mailer, issuer AddressIssuer) *Service {
	svc := NewService(repo, &fakeRates{rate: decimal.NewFromInt(50000)}, issuer, mailer, Config{
		DestinationWallets: map[string]string{
			"btc": "bc1-cold-wallet",
			"eth": "0xcoldwallet",
		},
		CallbackURL:   "https://coinsub.example/api/v1/payments/callback",
		Confirmations: 3,
	})
	return svc
}
