package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/coinsub/coinsub/app/models"
	"github.com/coinsub/coinsub/internal/pkg/wallet"
)

// Service owns the subscription state machine: creation, activation,
// renewal, reminders and expiration. All mutations of a subscription go
// through here, either directly or via the callback reconciler.
type Service struct {
	repo   Repository
	rates  RateConverter
	issuer AddressIssuer
	mailer Mailer
	cfg    Config

	now func() time.Time
}

// NewService creates a lifecycle service from injected collaborators.
func NewService(repo Repository, rates RateConverter, issuer AddressIssuer, mailer Mailer, cfg Config) *Service {
	if cfg.Confirmations <= 0 {
		cfg.Confirmations = 3
	}
	return &Service{
		repo:   repo,
		rates:  rates,
		issuer: issuer,
		mailer: mailer,
		cfg:    cfg,
		now:    time.Now,
	}
}

// withRepo returns a copy of the service bound to a transaction-scoped
// repository. Used by the reconciler to run transitions inside the same
// transaction as the payment write.
func (s *Service) withRepo(repo Repository) *Service {
	c := *s
	c.repo = repo
	return &c
}

// CreateSubscription validates plan and coin, freezes the conversion rate
// and crypto amount, persists the subscription in `pending` and then mints a
// receiving address for it.
//
// If address issuance fails after the row is persisted, the row is kept in
// `pending` and the error is returned: a half-issued subscription is
// recoverable out-of-band, a lost one is not.
func (s *Service) CreateSubscription(ctx context.Context, email, plan, coin string) (*models.Subscription, error) {
	if email == "" {
		return nil, errors.New("billing: email is required")
	}
	p := normalizePlan(plan)
	if p == "" {
		return nil, ErrInvalidPlan
	}
	c := normalizeCoin(coin)
	if c == "" {
		return nil, ErrInvalidCoin
	}

	fiatAmount := planPrices[p]
	quote, err := s.rates.Convert(ctx, fiatAmount, c)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sub := &models.Subscription{
		ID:              uuid.NewString(),
		Email:           email,
		Plan:            p,
		FiatAmount:      fiatAmount,
		FiatCurrency:    "USD",
		Coin:            c,
		CryptoAmount:    quote.CryptoAmount,
		ConversionRate:  quote.Rate,
		BillingInterval: models.PlanInterval(p),
		Status:          models.SubscriptionStatusPending,
		StartAt:         now,
		ExpiresAt:       models.AddInterval(now, models.PlanInterval(p)),
	}
	if err := s.repo.CreateSubscription(sub); err != nil {
		return nil, err
	}

	issued, err := s.issuer.IssueAddress(ctx, wallet.IssueRequest{
		Coin:               c,
		DestinationAddress: s.cfg.DestinationWallets[c],
		CallbackURL:        s.cfg.CallbackURL,
		Confirmations:      s.cfg.Confirmations,
		Parameters: map[string]string{
			"subscription_id": sub.ID,
			"email":           sub.Email,
			"crypto_amount":   sub.CryptoAmount.String(),
			"conversion_rate": sub.ConversionRate.String(),
		},
	})
	if err != nil {
		log.Errorf("address issuance failed for subscription %s (%s): %v", sub.ID, c, err)
		return sub, fmt.Errorf("issue address for subscription %s: %w", sub.ID, err)
	}

	sub.Address = issued.Address
	if err := s.repo.SaveSubscription(sub); err != nil {
		return sub, err
	}
	return sub, nil
}

// GetSubscription loads a subscription by id.
func (s *Service) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	_ = ctx
	return s.repo.GetSubscription(id)
}

// GetSubscriptionByEmail loads the most recent subscription for an email.
func (s *Service) GetSubscriptionByEmail(ctx context.Context, email string) (*models.Subscription, error) {
	_ = ctx
	return s.repo.GetSubscriptionByEmail(email)
}

// MarkPendingPayment transitions pending -> pending_payment. Calling it on a
// subscription that already moved past `pending` is a no-op, not an error:
// pending callbacks are delivered at least once.
func (s *Service) MarkPendingPayment(ctx context.Context, id string) error {
	_ = ctx
	sub, err := s.repo.GetSubscription(id)
	if err != nil {
		return err
	}
	if sub.Status != models.SubscriptionStatusPending {
		return nil
	}
	sub.Status = models.SubscriptionStatusPendingPayment
	return s.repo.SaveSubscription(sub)
}

// ActivateOrRenew activates a subscription after a confirmed payment, or
// extends an already-active one. Terminal subscriptions are reactivated.
//
// For an active subscription the new expiration is
// max(currentExpiration, paidAt) + interval, so it never regresses. For a
// first activation or a reactivation the pre-payment expiration is only a
// provisional quote and the paid period starts at paidAt. Idempotence across
// duplicate confirmed callbacks is guaranteed by the payment dedup key, not
// re-derived here.
func (s *Service) ActivateOrRenew(ctx context.Context, id string, paidAt time.Time) error {
	_ = ctx
	sub, err := s.repo.GetSubscription(id)
	if err != nil {
		return err
	}

	base := paidAt
	if sub.Status == models.SubscriptionStatusActive && sub.ExpiresAt.After(paidAt) {
		base = sub.ExpiresAt
	}
	sub.Status = models.SubscriptionStatusActive
	sub.ExpiresAt = models.AddInterval(base, sub.BillingInterval)
	sub.LastPaymentAt = &paidAt
	sub.ReminderSentAt = nil
	return s.repo.SaveSubscription(sub)
}

// Cancel terminalizes a subscription administratively.
func (s *Service) Cancel(ctx context.Context, id string) error {
	_ = ctx
	sub, err := s.repo.GetSubscription(id)
	if err != nil {
		return err
	}
	if sub.Status == models.SubscriptionStatusCanceled {
		return nil
	}
	sub.Status = models.SubscriptionStatusCanceled
	return s.repo.SaveSubscription(sub)
}

// SweepReminders mails active subscriptions expiring within the horizon that
// were not reminded yet. One notifier failure must not abort the sweep:
// failed sends are logged and retried on the next run because the reminder
// flag is only set after a successful send.
func (s *Service) SweepReminders(ctx context.Context, now time.Time, horizonDays int) error {
	_ = ctx
	if horizonDays <= 0 {
		horizonDays = 7
	}
	subs, err := s.repo.ListRemindable(now, now.AddDate(0, 0, horizonDays))
	if err != nil {
		return err
	}

	for i := range subs {
		sub := subs[i]
		body := fmt.Sprintf(
			"Your %s subscription expires on %s. Renew by sending %s %s to %s.",
			sub.Plan, sub.ExpiresAt.Format("2006-01-02"), sub.CryptoAmount.String(), sub.Coin, sub.Address,
		)
		if err := s.mailer.Send(sub.Email, "Your subscription is about to expire", body); err != nil {
			log.Errorf("reminder mail failed for subscription %s: %v", sub.ID, err)
			continue
		}
		t := now
		sub.ReminderSentAt = &t
		if err := s.repo.SaveSubscription(&sub); err != nil {
			log.Errorf("marking reminder sent failed for subscription %s: %v", sub.ID, err)
		}
	}
	return nil
}

// SweepExpirations terminalizes active subscriptions whose expiration has
// passed and sends an expiration notice per subscription. Each subscription
// is handled independently; the notice is fire-and-forget.
func (s *Service) SweepExpirations(ctx context.Context, now time.Time) error {
	_ = ctx
	subs, err := s.repo.ListExpired(now)
	if err != nil {
		return err
	}

	for i := range subs {
		sub := subs[i]
		sub.Status = models.SubscriptionStatusExpired
		if err := s.repo.SaveSubscription(&sub); err != nil {
			log.Errorf("expiring subscription %s failed: %v", sub.ID, err)
			continue
		}
		body := fmt.Sprintf("Your %s subscription expired on %s.", sub.Plan, sub.ExpiresAt.Format("2006-01-02"))
		if err := s.mailer.Send(sub.Email, "Your subscription has expired", body); err != nil {
			log.Errorf("expiration mail failed for subscription %s: %v", sub.ID, err)
		}
	}
	return nil
}
