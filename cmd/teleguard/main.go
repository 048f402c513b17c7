// Package main HTTP API и планировщик сверки подписчиков группы.
package main

import (
	"log/slog"

	"github.com/magabrotheeeer/teleguard/internal/app/teleguard"
	"github.com/magabrotheeeer/teleguard/internal/config"
	"github.com/magabrotheeeer/teleguard/internal/lib/logger"
)

func main() {
	cfg := config.MustLoad()
	log := logger.Setup(cfg.Env)

	log.Info("starting teleguard", slog.String("env", cfg.Env))

	teleguard.New(cfg, log).Run()

	log.Info("teleguard stopped gracefully")
}
