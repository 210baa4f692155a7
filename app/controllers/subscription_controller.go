package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/coinsub/coinsub/app/models"
	"github.com/coinsub/coinsub/app/repository"
	"github.com/coinsub/coinsub/internal/pkg/billing"
	"github.com/coinsub/coinsub/internal/pkg/rates"
	"github.com/coinsub/coinsub/internal/pkg/wallet"
)

var (
	billingService    *billing.Service
	balanceVerifier   billing.BalanceVerifier
	repositoryFactory *repository.Factory
)

// InitializeSubscriptionController wires the subscription endpoints with
// explicitly constructed dependencies. Called once at startup.
func InitializeSubscriptionController(svc *billing.Service, verifier billing.BalanceVerifier, factory *repository.Factory) {
	billingService = svc
	balanceVerifier = verifier
	repositoryFactory = factory
}

type createSubscriptionRequest struct {
	Email string `json:"email" validate:"required,email"`
	Plan  string `json:"plan" validate:"required,oneof=monthly yearly"`
	Coin  string `json:"coin" validate:"required"`
}

// HandleCreateSubscription creates a subscription and returns the receiving
// address the client must pay to.
func HandleCreateSubscription(c *fiber.Ctx) error {
	var req createSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "request body must be valid JSON")
	}
	if err := validate.Struct(req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sub, err := billingService.CreateSubscription(ctx, strings.TrimSpace(req.Email), req.Plan, req.Coin)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrInvalidPlan), errors.Is(err, billing.ErrInvalidCoin):
			return jsonError(c, fiber.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, rates.ErrRateUnavailable):
			return jsonError(c, fiber.StatusBadGateway, "rate_unavailable", "exchange rate oracle is unavailable, try again later")
		case errors.Is(err, wallet.ErrIssuance):
			// The row is persisted in `pending` without an address so the
			// issuance can be recovered out-of-band.
			log.Errorf("subscription created without address: %v", err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error":           "address_issuance_failed",
				"message":         "payment address could not be issued, contact support",
				"subscription_id": sub.ID,
			})
		default:
			log.Errorf("subscription creation failed: %v", err)
			return jsonError(c, fiber.StatusInternalServerError, "internal_error", "subscription could not be created")
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"subscription_id": sub.ID,
		"crypto_amount":   sub.CryptoAmount,
		"coin":            sub.Coin,
		"address":         sub.Address,
		"fiat_amount":     sub.FiatAmount,
		"fiat_currency":   sub.FiatCurrency,
		"expires_at":      sub.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// HandleSubscriptionStatus reports the subscription state for an id or
// email, with an on-demand oracle check against the stored receiving
// address as a confirmation path independent from the callback flow.
func HandleSubscriptionStatus(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Query("subscription_id"))
	email := strings.TrimSpace(c.Query("email"))
	if id == "" && email == "" {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "subscription_id or email is required")
	}

	repo := repositoryFactory.GetSubscriptionRepository()
	var (
		sub *models.Subscription
		err error
	)
	if id != "" {
		sub, err = repo.GetByID(id)
	} else {
		sub, err = repo.GetLatestByEmail(email)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(fiber.Map{"has_subscription": false, "payment_verified": false})
		}
		log.Errorf("subscription status lookup failed: %v", err)
		return c.JSON(fiber.Map{"has_subscription": false, "payment_verified": false})
	}

	verified := false
	if sub.Address != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		incoming, verr := balanceVerifier.ConfirmedIncoming(ctx, sub.Coin, sub.Address)
		if verr != nil {
			// Degrade to "not confirmed yet" rather than erroring out.
			log.Warnf("on-demand balance check unavailable for subscription %s: %v", sub.ID, verr)
		} else {
			verified = incoming.GreaterThanOrEqual(sub.CryptoAmount)
		}
	}

	payments, err := repositoryFactory.GetPaymentRepository().ListBySubscription(sub.ID)
	if err != nil {
		log.Errorf("payment history lookup failed for subscription %s: %v", sub.ID, err)
		payments = nil
	}

	return c.JSON(fiber.Map{
		"has_subscription": true,
		"payment_verified": verified,
		"subscription": fiber.Map{
			"id":               sub.ID,
			"email":            sub.Email,
			"plan":             sub.Plan,
			"coin":             sub.Coin,
			"crypto_amount":    sub.CryptoAmount,
			"fiat_amount":      sub.FiatAmount,
			"fiat_currency":    sub.FiatCurrency,
			"conversion_rate":  sub.ConversionRate,
			"status":           sub.Status,
			"address":          sub.Address,
			"start_at":         sub.StartAt.UTC().Format(time.RFC3339),
			"expires_at":       sub.ExpiresAt.UTC().Format(time.RFC3339),
			"last_payment_at":  formatTimePtr(sub.LastPaymentAt),
			"reminder_sent_at": formatTimePtr(sub.ReminderSentAt),
		},
		"payments": payments,
	})
}
