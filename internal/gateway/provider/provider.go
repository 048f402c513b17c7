// Package provider выбирает адаптер шлюза по конфигурации и подключает его.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/teleguard/internal/config"
	"github.com/magabrotheeeer/teleguard/internal/gateway"
	"github.com/magabrotheeeer/teleguard/internal/gateway/httpgw"
	"github.com/magabrotheeeer/teleguard/internal/gateway/telegram"
	"github.com/magabrotheeeer/teleguard/internal/lib/sl"
	"github.com/magabrotheeeer/teleguard/internal/metrics"
)

const (
	KindTelegram = "telegram"
	KindHTTP     = "http"
)

// ErrDisabled шлюз не настроен
var ErrDisabled = errors.New("gateway is disabled")

// Factory создаёт адаптер
type Factory func(cfg config.Gateway, log *slog.Logger, m *metrics.Metrics) (gateway.Gateway, error)

// New создаёт адаптер нужного вида. Пустой вид возвращает ErrDisabled.
func New(cfg config.Gateway, log *slog.Logger, m *metrics.Metrics) (gateway.Gateway, error) {
	const op = "provider.New"
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "":
		return nil, ErrDisabled
	case KindTelegram:
		c, err := telegram.New(cfg, log, m)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return c, nil
	case KindHTTP:
		c, err := httpgw.New(cfg, log, m)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("%s: unknown gateway kind %q", op, cfg.Kind)
}

// Init создаёт адаптер с повторами и подключает его в handle.
// До успешного подключения handle остаётся неинициализированным.
func Init(ctx context.Context, handle *gateway.Handle, cfg config.Gateway, log *slog.Logger, m *metrics.Metrics, factory Factory) error {
	const op = "provider.Init"
	if factory == nil {
		factory = New
	}
	retries := cfg.InitRetries
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		gw, err := factory(cfg, log, m)
		if err == nil {
			handle.Set(gw)
			log.Info("gateway initialized", slog.String("kind", cfg.Kind), slog.Int("attempt", attempt))
			return nil
		}
		if errors.Is(err, ErrDisabled) {
			log.Warn("gateway is disabled, group operations will be skipped")
			return err
		}
		lastErr = err
		log.Warn("failed to initialize gateway", slog.Int("attempt", attempt), sl.Err(err))

		if attempt == retries {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(cfg.InitRetryDelay):
		}
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}
