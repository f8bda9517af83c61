package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/dbelyaev/authcore/internal/logging"
	"github.com/dbelyaev/authcore/internal/server"
	"github.com/dbelyaev/authcore/internal/server/config"
	"github.com/dbelyaev/authcore/internal/server/gateways"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("config error: %v", err)
		os.Exit(1)
	}

	// Dev gateways: codes go to the log, the phone provider accepts the
	// configured static code. Production builds swap in real integrations.
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	provider, err := gateways.NewStaticOtpProvider(cfg.DevOtpCode, logger)
	if err != nil {
		log.Printf("otp provider error: %v", err)
		os.Exit(1)
	}
	deps := server.Dependencies{
		Notifier: gateways.NewLogNotifier(logger),
		Provider: provider,
		Verifier: gateways.NewStaticVerifier(logger),
	}

	app, err := server.NewApp(ctx, cfg, deps)
	if err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}
}
