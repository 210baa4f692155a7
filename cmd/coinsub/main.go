package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/coinsub/coinsub/app/controllers"
	"github.com/coinsub/coinsub/app/repository"
	"github.com/coinsub/coinsub/internal/pkg/billing"
	"github.com/coinsub/coinsub/internal/pkg/cache"
	"github.com/coinsub/coinsub/internal/pkg/database"
	"github.com/coinsub/coinsub/internal/pkg/env"
	"github.com/coinsub/coinsub/internal/pkg/mail"
	"github.com/coinsub/coinsub/internal/pkg/rates"
	"github.com/coinsub/coinsub/internal/pkg/router"
	"github.com/coinsub/coinsub/internal/pkg/wallet"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	// Construct the store/oracle/issuer handles once at startup and inject
	// them; no component reaches for ambient clients.
	db := database.GetDB()
	converter := rates.NewConverterFromEnv()
	issuer := wallet.NewIssuerFromEnv()
	verifier := wallet.NewVerifierFromEnv()

	svc := billing.NewService(billing.NewRepository(db), converter, issuer, mail.SMTPMailer{}, billing.ConfigFromEnv())
	reconciler := billing.NewReconciler(svc, verifier)

	controllers.InitializeSubscriptionController(svc, verifier, repository.NewFactory(db))
	controllers.InitializeCallbackController(reconciler)

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName: "CoinSub",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
