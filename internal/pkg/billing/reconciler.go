package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/coinsub/coinsub/app/models"
)

// Reconciler absorbs forwarding-service callbacks. Delivery is at-least-once
// and unordered: duplicates, confirmed-before-pending and concurrent racing
// deliveries for the same transfer must all collapse into one Payment row
// and at most one activation.
type Reconciler struct {
	svc      *Service
	verifier BalanceVerifier
}

// NewReconciler creates a reconciler driving the given lifecycle service.
func NewReconciler(svc *Service, verifier BalanceVerifier) *Reconciler {
	return &Reconciler{svc: svc, verifier: verifier}
}

// Process reconciles one notification. A returned error means the local
// transaction was abandoned; the HTTP boundary logs it and acknowledges the
// callback anyway, leaving retry to the remote side.
func (r *Reconciler) Process(ctx context.Context, n Notification) error {
	if n.SubscriptionID == "" || n.Email == "" {
		return ErrMalformedCallback
	}
	if n.TxidIn == "" {
		return fmt.Errorf("%w: missing inbound txid", ErrMalformedCallback)
	}

	sub, err := r.svc.repo.GetSubscription(n.SubscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownSubscription, n.SubscriptionID)
		}
		return err
	}

	if n.Pending {
		return r.processPending(ctx, sub, n)
	}
	return r.processConfirmed(ctx, sub, n)
}

// verifyAmount cross-checks the claimed amount against the balance oracle.
// An unavailable oracle degrades to trusting the notification rather than
// blocking settlement; the degraded source is recorded for later re-audit.
func (r *Reconciler) verifyAmount(ctx context.Context, n Notification, address string) (decimal.Decimal, string) {
	amount, err := r.verifier.ConfirmedIncoming(ctx, n.Coin, address)
	if err != nil {
		log.Warnf("balance oracle unavailable for %s address %s (subscription=%s txid=%s), trusting claimed amount: %v",
			n.Coin, address, n.SubscriptionID, n.TxidIn, err)
		return n.Value, models.VerificationSourceFallback
	}
	return amount, models.VerificationSourceOracle
}

func (r *Reconciler) processPending(ctx context.Context, sub *models.Subscription, n Notification) error {
	verified, source := r.verifyAmount(ctx, n, sub.Address)

	return r.svc.repo.Transaction(func(tx Repository) error {
		created, _, err := tx.CreatePaymentIfNotExists(&models.Payment{
			SubscriptionID:     sub.ID,
			TxidIn:             n.TxidIn,
			Coin:               n.Coin,
			ClaimedAmount:      n.Value,
			VerifiedAmount:     verified,
			Confirmations:      n.Confirmations,
			Status:             models.PaymentStatusPending,
			VerificationSource: source,
			RawPayloadJSON:     n.RawJSON,
		})
		if err != nil {
			return err
		}
		if !created {
			// Duplicate pending delivery, or confirmed already arrived.
			log.Infof("duplicate pending callback for subscription=%s txid=%s", sub.ID, n.TxidIn)
			return nil
		}
		return r.svc.withRepo(tx).MarkPendingPayment(ctx, sub.ID)
	})
}

func (r *Reconciler) processConfirmed(ctx context.Context, sub *models.Subscription, n Notification) error {
	verified, source := r.verifyAmount(ctx, n, sub.Address)
	paidAt := r.svc.now()

	return r.svc.repo.Transaction(func(tx Repository) error {
		existing, err := tx.GetPayment(sub.ID, n.TxidIn)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if existing == nil {
			// Confirmed arrived without a prior pending: create the
			// completed payment directly and activate.
			created, stored, err := tx.CreatePaymentIfNotExists(&models.Payment{
				SubscriptionID:     sub.ID,
				TxidIn:             n.TxidIn,
				TxidOut:            n.TxidOut,
				Coin:               n.Coin,
				ClaimedAmount:      n.Value,
				VerifiedAmount:     verified,
				ForwardedAmount:    n.ValueForwarded,
				Fee:                n.Fee,
				Confirmations:      n.Confirmations,
				Status:             models.PaymentStatusCompleted,
				VerificationSource: source,
				RawPayloadJSON:     n.RawJSON,
			})
			if err != nil {
				return err
			}
			if created {
				return r.svc.withRepo(tx).ActivateOrRenew(ctx, sub.ID, paidAt)
			}
			// Lost the insert race against a concurrent delivery; fall
			// through and complete whatever won.
			existing = stored
		}

		if existing.Status == models.PaymentStatusCompleted {
			log.Infof("duplicate confirmed callback for subscription=%s txid=%s", sub.ID, n.TxidIn)
			return nil
		}

		if !existing.ClaimedAmount.Equal(n.Value) {
			// A confirmed amount differing from the pending claim is kept
			// alongside the original and flagged for manual review.
			log.Warnf("confirmed amount mismatch for subscription=%s txid=%s: pending claimed %s, confirmed %s",
				sub.ID, n.TxidIn, existing.ClaimedAmount.String(), n.Value.String())
			existing.AmountMismatch = true
		}
		existing.TxidOut = n.TxidOut
		existing.VerifiedAmount = verified
		existing.ForwardedAmount = n.ValueForwarded
		existing.Fee = n.Fee
		existing.Confirmations = n.Confirmations
		existing.Status = models.PaymentStatusCompleted
		existing.VerificationSource = source
		existing.RawPayloadJSON = n.RawJSON
		if err := tx.SavePayment(existing); err != nil {
			return err
		}
		return r.svc.withRepo(tx).ActivateOrRenew(ctx, sub.ID, paidAt)
	})
}
