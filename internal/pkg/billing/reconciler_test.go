package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coinsub/coinsub/app/models"
)

func newTestReconciler(repo Repository, verifier BalanceVerifier) (*Reconciler, *Service) {
	svc := newTestService(repo, &fakeMailer{}, &fakeIssuer{address: "x"})
	return NewReconciler(svc, verifier), svc
}

func seedSubscription(repo *fakeRepo, id string) models.Subscription {
	sub := models.Subscription{
		ID:              id,
		Email:           "alice@example.com",
		Plan:            models.SubscriptionPlanMonthly,
		Coin:            "btc",
		CryptoAmount:    decimal.RequireFromString("0.0001"),
		BillingInterval: models.BillingIntervalMonth,
		Status:          models.SubscriptionStatusPending,
		Address:         "1PaymentAddr",
		ExpiresAt:       time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}
	repo.subs[id] = sub
	return sub
}

func notification(subID string, pending bool, value string) Notification {
	return Notification{
		Pending:        pending,
		Coin:           "btc",
		AddressIn:      "1PaymentAddr",
		TxidIn:         "tx-in-1",
		TxidOut:        "tx-out-1",
		Value:          decimal.RequireFromString(value),
		ValueForwarded: decimal.RequireFromString(value),
		Fee:            decimal.RequireFromString("0.000001"),
		Confirmations:  3,
		SubscriptionID: subID,
		Email:          "alice@example.com",
		RawJSON:        `{"txid_in":"tx-in-1"}`,
	}
}

func TestProcess_MalformedCallback(t *testing.T) {
	repo := newFakeRepo()
	rec, _ := newTestReconciler(repo, &fakeVerifier{amount: decimal.Zero})

	n := notification("sub-1", true, "0.0001")
	n.SubscriptionID = ""
	if err := rec.Process(context.Background(), n); !errors.Is(err, ErrMalformedCallback) {
		t.Fatalf("expected ErrMalformedCallback for missing subscription id, got %v", err)
	}

	n = notification("sub-1", true, "0.0001")
	n.TxidIn = ""
	if err := rec.Process(context.Background(), n); !errors.Is(err, ErrMalformedCallback) {
		t.Fatalf("expected ErrMalformedCallback for missing txid, got %v", err)
	}
}

func TestProcess_UnknownSubscription(t *testing.T) {
	repo := newFakeRepo()
	rec, _ := newTestReconciler(repo, &fakeVerifier{amount: decimal.Zero})

	err := rec.Process(context.Background(), notification("nope", true, "0.0001"))
	if !errors.Is(err, ErrUnknownSubscription) {
		t.Fatalf("expected ErrUnknownSubscription, got %v", err)
	}
}

func TestProcess_PendingThenConfirmed(t *testing.T) {
	repo := newFakeRepo()
	verifier := &fakeVerifier{amount: decimal.RequireFromString("0.0001")}
	rec, svc := newTestReconciler(repo, verifier)

	paidAt := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return paidAt }

	seedSubscription(repo, "sub-1")

	if err := rec.Process(context.Background(), notification("sub-1", true, "0.0001")); err != nil {
		t.Fatalf("pending callback failed: %v", err)
	}

	p, err := repo.GetPayment("sub-1", "tx-in-1")
	if err != nil {
		t.Fatalf("expected pending payment row: %v", err)
	}
	if p.Status != models.PaymentStatusPending || p.VerificationSource != models.VerificationSourceOracle {
		t.Fatalf("unexpected payment after pending: status=%q source=%q", p.Status, p.VerificationSource)
	}
	if got := repo.subs["sub-1"].Status; got != models.SubscriptionStatusPendingPayment {
		t.Fatalf("expected pending_payment, got %q", got)
	}

	if err := rec.Process(context.Background(), notification("sub-1", false, "0.0001")); err != nil {
		t.Fatalf("confirmed callback failed: %v", err)
	}

	p, err = repo.GetPayment("sub-1", "tx-in-1")
	if err != nil {
		t.Fatalf("expected completed payment row: %v", err)
	}
	if p.Status != models.PaymentStatusCompleted {
		t.Fatalf("expected completed, got %q", p.Status)
	}
	if p.AmountMismatch {
		t.Fatalf("expected no mismatch for identical amounts")
	}
	if p.TxidOut != "tx-out-1" {
		t.Fatalf("expected forwarding txid recorded, got %q", p.TxidOut)
	}
	if len(repo.payments) != 1 {
		t.Fatalf("expected a single payment row, got %d", len(repo.payments))
	}

	sub := repo.subs["sub-1"]
	if sub.Status != models.SubscriptionStatusActive {
		t.Fatalf("expected active, got %q", sub.Status)
	}
	if !sub.ExpiresAt.Equal(paidAt.AddDate(0, 1, 0)) {
		t.Fatalf("expected expiry one month past payment, got %s", sub.ExpiresAt)
	}
	if sub.LastPaymentAt == nil || !sub.LastPaymentAt.Equal(paidAt) {
		t.Fatalf("expected last payment recorded, got %v", sub.LastPaymentAt)
	}
}

func TestProcess_DuplicateConfirmedIsIdempotent(t *testing.T) {
	repo := newFakeRepo()
	rec, svc := newTestReconciler(repo, &fakeVerifier{amount: decimal.RequireFromString("0.0001")})

	firstPaidAt := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return firstPaidAt }

	seedSubscription(repo, "sub-1")

	if err := rec.Process(context.Background(), notification("sub-1", false, "0.0001")); err != nil {
		t.Fatalf("first confirmed callback failed: %v", err)
	}
	expiryAfterFirst := repo.subs["sub-1"].ExpiresAt

	// Redelivery an hour later must not extend the subscription again.
	svc.now = func() time.Time { return firstPaidAt.Add(time.Hour) }
	if err := rec.Process(context.Background(), notification("sub-1", false, "0.0001")); err != nil {
		t.Fatalf("duplicate confirmed callback failed: %v", err)
	}

	if got := repo.subs["sub-1"].ExpiresAt; !got.Equal(expiryAfterFirst) {
		t.Fatalf("duplicate confirmed extended the subscription: %s vs %s", got, expiryAfterFirst)
	}
	if len(repo.payments) != 1 {
		t.Fatalf("expected a single payment row, got %d", len(repo.payments))
	}
}

func TestProcess_ConfirmedBeforePending(t *testing.T) {
	repo := newFakeRepo()
	rec, svc := newTestReconciler(repo, &fakeVerifier{amount: decimal.RequireFromString("0.0001")})

	paidAt := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return paidAt }

	seedSubscription(repo, "sub-1")

	if err := rec.Process(context.Background(), notification("sub-1", false, "0.0001")); err != nil {
		t.Fatalf("confirmed callback failed: %v", err)
	}
	if got := repo.subs["sub-1"].Status; got != models.SubscriptionStatusActive {
		t.Fatalf("expected active after confirmed-without-pending, got %q", got)
	}

	// The straggling pending callback arrives afterwards.
	if err := rec.Process(context.Background(), notification("sub-1", true, "0.0001")); err != nil {
		t.Fatalf("late pending callback failed: %v", err)
	}

	p, err := repo.GetPayment("sub-1", "tx-in-1")
	if err != nil {
		t.Fatalf("expected payment row: %v", err)
	}
	if p.Status != models.PaymentStatusCompleted {
		t.Fatalf("late pending regressed payment to %q", p.Status)
	}
	if got := repo.subs["sub-1"].Status; got != models.SubscriptionStatusActive {
		t.Fatalf("late pending regressed subscription to %q", got)
	}
}

func TestProcess_OracleUnavailableFallsBack(t *testing.T) {
	repo := newFakeRepo()
	rec, _ := newTestReconciler(repo, &fakeVerifier{err: errOracleDown})

	seedSubscription(repo, "sub-1")

	if err := rec.Process(context.Background(), notification("sub-1", false, "0.0001")); err != nil {
		t.Fatalf("confirmed callback failed: %v", err)
	}

	p, err := repo.GetPayment("sub-1", "tx-in-1")
	if err != nil {
		t.Fatalf("expected payment row: %v", err)
	}
	if p.VerificationSource != models.VerificationSourceFallback {
		t.Fatalf("expected fallback source, got %q", p.VerificationSource)
	}
	if !p.VerifiedAmount.Equal(decimal.RequireFromString("0.0001")) {
		t.Fatalf("expected claimed amount trusted, got %s", p.VerifiedAmount.String())
	}
	// An unavailable oracle degrades verification, it does not block settlement.
	if got := repo.subs["sub-1"].Status; got != models.SubscriptionStatusActive {
		t.Fatalf("expected activation despite oracle outage, got %q", got)
	}
}

func TestProcess_ConfirmedAmountMismatchIsFlagged(t *testing.T) {
	repo := newFakeRepo()
	rec, _ := newTestReconciler(repo, &fakeVerifier{amount: decimal.RequireFromString("0.00009")})

	seedSubscription(repo, "sub-1")

	if err := rec.Process(context.Background(), notification("sub-1", true, "0.0001")); err != nil {
		t.Fatalf("pending callback failed: %v", err)
	}
	if err := rec.Process(context.Background(), notification("sub-1", false, "0.00009")); err != nil {
		t.Fatalf("confirmed callback failed: %v", err)
	}

	p, err := repo.GetPayment("sub-1", "tx-in-1")
	if err != nil {
		t.Fatalf("expected payment row: %v", err)
	}
	if !p.AmountMismatch {
		t.Fatalf("expected mismatch flag for differing pending/confirmed amounts")
	}
	if !p.ClaimedAmount.Equal(decimal.RequireFromString("0.0001")) {
		t.Fatalf("expected original claimed amount kept, got %s", p.ClaimedAmount.String())
	}
	if p.Status != models.PaymentStatusCompleted {
		t.Fatalf("expected completion despite mismatch, got %q", p.Status)
	}
}

func TestProcess_SecondTransferRenews(t *testing.T) {
	repo := newFakeRepo()
	rec, svc := newTestReconciler(repo, &fakeVerifier{amount: decimal.RequireFromString("0.0001")})

	firstPaidAt := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return firstPaidAt }

	seedSubscription(repo, "sub-1")

	if err := rec.Process(context.Background(), notification("sub-1", false, "0.0001")); err != nil {
		t.Fatalf("first confirmed callback failed: %v", err)
	}
	firstExpiry := repo.subs["sub-1"].ExpiresAt

	// A renewal payment with a fresh txid extends from the current expiry.
	secondPaidAt := firstPaidAt.AddDate(0, 0, 20)
	svc.now = func() time.Time { return secondPaidAt }
	renewal := notification("sub-1", false, "0.0001")
	renewal.TxidIn = "tx-in-2"
	renewal.TxidOut = "tx-out-2"
	if err := rec.Process(context.Background(), renewal); err != nil {
		t.Fatalf("renewal callback failed: %v", err)
	}

	if len(repo.payments) != 2 {
		t.Fatalf("expected two payment rows, got %d", len(repo.payments))
	}
	if got := repo.subs["sub-1"].ExpiresAt; !got.Equal(firstExpiry.AddDate(0, 1, 0)) {
		t.Fatalf("expected renewal stacked on current expiry, got %s", got)
	}
}
