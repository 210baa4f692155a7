package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/coinsub/coinsub/internal/pkg/billing"
	"github.com/coinsub/coinsub/internal/pkg/database"
	"github.com/coinsub/coinsub/internal/pkg/env"
	"github.com/coinsub/coinsub/internal/pkg/mail"
	"github.com/coinsub/coinsub/internal/pkg/rates"
	"github.com/coinsub/coinsub/internal/pkg/wallet"
)

// One-shot sweep runner. An external scheduler (cron, systemd timer) decides
// the cadence; the service itself holds no timer.
func main() {
	reminders := flag.Bool("reminders", true, "send expiration reminders")
	expirations := flag.Bool("expirations", true, "expire overdue subscriptions")
	horizonDays := flag.Int("horizon", 7, "reminder horizon in days")
	flag.Parse()

	env.SetupEnvFile()
	database.SetupDatabase()

	svc := billing.NewService(
		billing.NewRepository(database.GetDB()),
		rates.NewConverterFromEnv(),
		wallet.NewIssuerFromEnv(),
		mail.SMTPMailer{},
		billing.ConfigFromEnv(),
	)

	ctx := context.Background()
	now := time.Now()

	if *reminders {
		if err := svc.SweepReminders(ctx, now, *horizonDays); err != nil {
			log.Fatalf("reminder sweep failed: %v", err)
		}
		log.Println("reminder sweep completed")
	}
	if *expirations {
		if err := svc.SweepExpirations(ctx, now); err != nil {
			log.Fatalf("expiration sweep failed: %v", err)
		}
		log.Println("expiration sweep completed")
	}
}
