// Package notifier воркер, который разбирает очередь реактивации и рассылает приглашения в группу.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/streadway/amqp"
	"golang.org/x/sync/errgroup"

	"github.com/magabrotheeeer/teleguard/internal/config"
	"github.com/magabrotheeeer/teleguard/internal/gateway"
	"github.com/magabrotheeeer/teleguard/internal/gateway/provider"
	"github.com/magabrotheeeer/teleguard/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/teleguard/internal/lib/sl"
	"github.com/magabrotheeeer/teleguard/internal/metrics"
	reactivation "github.com/magabrotheeeer/teleguard/internal/services/reactivation"
)

type App struct {
	cfg       *config.Config
	conn      *amqp.Connection
	ch        *amqp.Channel
	handle    *gateway.Handle
	deliverer *reactivation.Deliverer
	metrics   *metrics.Metrics
	server    *http.Server
	logger    *slog.Logger
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "notifier.New"
	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.Retries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	queues := rabbitmq.ReactivationQueues(cfg.Queue, cfg.RoutingKey)
	ch, err := rabbitmq.SetupChannel(conn, cfg.Exchange, cfg.Concurrency, queues)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.MustNew(reg)
	handle := gateway.NewHandle()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &App{
		cfg:       cfg,
		conn:      conn,
		ch:        ch,
		handle:    handle,
		deliverer: reactivation.NewDeliverer(handle, logger, m),
		metrics:   m,
		server: &http.Server{
			Addr:              cfg.Notifier.MetricsAddress,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}, nil
}

// Run подключает шлюз и только потом начинает разбирать очередь,
// иначе все сообщения уходили бы обратно в очередь по кругу.
func (a *App) Run(ctx context.Context) error {
	const op = "notifier.Run"
	defer a.close()

	if err := provider.Init(ctx, a.handle, a.cfg.Gateway, a.logger, a.metrics, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("metrics server starting", slog.String("address", a.server.Addr))
		if err := a.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		done, err := rabbitmq.ConsumerMessage(gctx, a.ch, a.cfg.Queue, a.cfg.Concurrency, a.logger, a.deliverer.HandleMessage)
		if err != nil {
			return err
		}
		a.logger.Info("consuming reactivation events", slog.String("queue", a.cfg.Queue))
		select {
		case <-done:
			if gctx.Err() == nil {
				return errors.New("delivery channel closed by broker")
			}
		case <-gctx.Done():
			<-done
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	a.logger.Info("notifier shutting down gracefully")
	return nil
}

func (a *App) close() {
	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
}
