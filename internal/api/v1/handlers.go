package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to controllers to keep behavior consistent
	"github.com/coinsub/coinsub/app/controllers"
)

// APIServer implements the v1 API surface
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// RegisterHandlers attaches the v1 routes to the given router group.
func RegisterHandlers(r fiber.Router, s *APIServer) {
	r.Get("/ping", s.GetPing)
	r.Post("/subscriptions", s.PostSubscription)
	r.Get("/subscriptions/status", s.GetSubscriptionStatus)
	r.Post("/payments/callback", s.PostPaymentCallback)
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ping": "pong",
	})
}

// PostSubscription creates a crypto-paid subscription.
func (s *APIServer) PostSubscription(c *fiber.Ctx) error {
	return controllers.HandleCreateSubscription(c)
}

// GetSubscriptionStatus reports subscription state by id or email.
func (s *APIServer) GetSubscriptionStatus(c *fiber.Ctx) error {
	return controllers.HandleSubscriptionStatus(c)
}

// PostPaymentCallback absorbs forwarding-service notifications.
func (s *APIServer) PostPaymentCallback(c *fiber.Ctx) error {
	return controllers.HandlePaymentCallback(c)
}
