// Command beacon-demo is a minimal fiber server wired to the client via
// its environment-driven auto-wiring contract.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	beacon "github.com/beaconhq/beacon-go"
	beaconfiber "github.com/beaconhq/beacon-go/contrib/fiber"
	"github.com/beaconhq/beacon-go/internal/config"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	env := config.LoadFromEnv()
	if !env.Ready() {
		log.Fatal().Msgf("%s_API_KEY and %s_ENDPOINT must both be set", config.EnvPrefix, config.EnvPrefix)
	}

	client, err := beacon.NewClient(beacon.Config{
		APIKey:             env.APIKey,
		Endpoint:           env.Endpoint,
		CollectQueryString: true,
		Debug:              os.Getenv("BEACON_DEBUG") != "",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct beacon client")
	}

	app := fiber.New()
	app.Use(beaconfiber.Middleware(client))
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	go func() {
		if err := app.Listen(":8080"); err != nil {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	if err := app.Shutdown(); err != nil {
		log.Error().Err(err).Msg("fiber shutdown failed")
	}
	if err := client.Shutdown(); err != nil {
		log.Error().Err(err).Msg("beacon client shutdown failed")
	}
}
