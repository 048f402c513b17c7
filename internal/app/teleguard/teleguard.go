package teleguard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/streadway/amqp"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"golang.org/x/sync/errgroup"

	"github.com/magabrotheeeer/teleguard/internal/cache"
	"github.com/magabrotheeeer/teleguard/internal/config"
	"github.com/magabrotheeeer/teleguard/internal/gateway"
	"github.com/magabrotheeeer/teleguard/internal/gateway/provider"
	grpcserver "github.com/magabrotheeeer/teleguard/internal/grpc/server"
	"github.com/magabrotheeeer/teleguard/internal/lib/clock"
	"github.com/magabrotheeeer/teleguard/internal/lib/jwt"
	"github.com/magabrotheeeer/teleguard/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/teleguard/internal/lib/sl"
	"github.com/magabrotheeeer/teleguard/internal/metrics"
	"github.com/magabrotheeeer/teleguard/internal/migrations"
	authservice "github.com/magabrotheeeer/teleguard/internal/services/auth"
	groupsync "github.com/magabrotheeeer/teleguard/internal/services/groupsync"
	notification "github.com/magabrotheeeer/teleguard/internal/services/notification"
	reactivation "github.com/magabrotheeeer/teleguard/internal/services/reactivation"
	scheduler "github.com/magabrotheeeer/teleguard/internal/services/scheduler"
	subscriber "github.com/magabrotheeeer/teleguard/internal/services/subscriber"
	"github.com/magabrotheeeer/teleguard/internal/storage/repository"
)

const shutdownTimeout = 15 * time.Second

// New собирает приложение. Запуск и остановка через fx.App.Run.
func New(cfg *config.Config, logger *slog.Logger) *fx.App {
	return fx.New(
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
		Module(cfg, logger),
	)
}

// Module граф зависимостей API-сервера
func Module(cfg *config.Config, logger *slog.Logger) fx.Option {
	return fx.Options(
		fx.Supply(cfg, logger),
		fx.Provide(
			func() prometheus.Registerer { return prometheus.DefaultRegisterer },
			func() prometheus.Gatherer { return prometheus.DefaultGatherer },
			func() clock.Clock { return clock.System{} },
			metrics.MustNew,
			gateway.NewHandle,
			newStorage,
			newCache,
			newRouter,
			newSubscriberService,
			newSchedulerService,
			newSyncService,
			newAuthService,
			newServices,
			NewHTTPServer,
			grpcserver.NewHealthServer,
		),
		fx.Invoke(run),
	)
}

func newStorage(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (*repository.Storage, error) {
	const op = "teleguard.newStorage"
	st, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := migrations.Run(st.DB.DB, cfg.MigrationsPath); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	logger.Info("storage is ready")
	lc.Append(fx.StopHook(st.Close))
	return st, nil
}

// newCache подключает Redis; без адреса работает без кэша, журнала и блокировки
func newCache(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (*cache.Cache, error) {
	if cfg.AddressRedis == "" {
		logger.Warn("redis address is empty, running without cache and sweep lock")
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.RedisConnection.DialTimeout+time.Second)
	defer cancel()
	c, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(c.Close))
	return c, nil
}

// newRouter выбирает доставку приглашений: через очередь, если она включена, иначе сразу через шлюз
func newRouter(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger, handle *gateway.Handle, m *metrics.Metrics) (reactivation.Router, error) {
	const op = "teleguard.newRouter"
	if !cfg.QueueInvites {
		return reactivation.NewDeliverer(handle, logger, m), nil
	}
	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.Retries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ch, err := rabbitmq.SetupChannel(conn, cfg.Exchange, 0, rabbitmq.ReactivationQueues(cfg.Queue, cfg.RoutingKey))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	lc.Append(fx.StopHook(func() error {
		return closeAMQP(ch, conn)
	}))
	logger.Info("reactivation invites are queued", slog.String("exchange", cfg.Exchange))
	return reactivation.NewPublisher(ch, cfg.Exchange, cfg.RoutingKey, logger, m), nil
}

func closeAMQP(ch *amqp.Channel, conn *amqp.Connection) error {
	return errors.Join(ch.Close(), conn.Close())
}

func newSubscriberService(st *repository.Storage, c *cache.Cache, handle *gateway.Handle, clk clock.Clock, logger *slog.Logger) *subscriber.SubscriberService {
	var sc subscriber.Cache
	if c != nil {
		sc = c
	}
	return subscriber.NewSubscriberService(st, sc, handle, clk, logger)
}

func newSchedulerService(cfg *config.Config, st *repository.Storage, c *cache.Cache, handle *gateway.Handle, router reactivation.Router, clk clock.Clock, logger *slog.Logger, m *metrics.Metrics) *scheduler.SchedulerService {
	svc := scheduler.NewSchedulerService(st, handle, notification.NewNotifier(handle, logger), clk, logger, scheduler.Options{
		Interval:     cfg.Scheduler.Interval(),
		StartupDelay: cfg.Scheduler.StartupDelay,
		LockTTL:      cfg.Scheduler.LockTTL,
	}).WithRouter(router).WithMetrics(m)
	if c != nil {
		svc.WithLocker(c).WithCache(c)
		if cfg.DedupeReminders {
			svc.WithLedger(c)
		}
	}
	return svc
}

func newSyncService(cfg *config.Config, st *repository.Storage, c *cache.Cache, handle *gateway.Handle, clk clock.Clock, logger *slog.Logger) *groupsync.SyncService {
	svc := groupsync.New(st, handle, clk, logger, cfg.Sync.DefaultDurationDays)
	if c != nil {
		svc.WithCache(c)
	}
	return svc
}

func newAuthService(cfg *config.Config, st *repository.Storage) *authservice.AuthService {
	return authservice.NewAuthService(st, jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL), cfg.APIKey)
}

type servicesIn struct {
	fx.In

	Subscribers *subscriber.SubscriberService
	Scheduler   *scheduler.SchedulerService
	Sync        *groupsync.SyncService
	Auth        *authservice.AuthService
	Router      reactivation.Router
	Gateway     *gateway.Handle
	Gatherer    prometheus.Gatherer
}

func newServices(in servicesIn) Services {
	return Services{
		Subscribers: in.Subscribers,
		Scheduler:   in.Scheduler,
		Sync:        in.Sync,
		Auth:        in.Auth,
		Router:      in.Router,
		Gateway:     in.Gateway,
		Gatherer:    in.Gatherer,
	}
}

type runIn struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Config     *config.Config
	Logger     *slog.Logger
	HTTP       *http.Server
	Health     *grpcserver.HealthServer
	Scheduler  *scheduler.SchedulerService
	Gateway    *gateway.Handle
	Metrics    *metrics.Metrics
}

// run запускает серверы, подключение шлюза и планировщик.
// Падение любого сервера останавливает всё приложение.
func run(in runIn) {
	var (
		cancel context.CancelFunc
		group  *errgroup.Group
	)
	log := in.Logger

	in.Lifecycle.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			const op = "teleguard.run"
			lis, err := net.Listen("tcp", in.Config.AddressGRPC)
			if err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}

			var runCtx context.Context
			runCtx, cancel = context.WithCancel(context.Background())
			g, gctx := errgroup.WithContext(runCtx)
			group = g

			g.Go(func() error {
				log.Info("HTTP server starting", slog.String("address", in.HTTP.Addr))
				if err := in.HTTP.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				return in.Health.Serve(lis)
			})
			g.Go(func() error {
				if err := provider.Init(gctx, in.Gateway, in.Config.Gateway, log, in.Metrics, nil); err != nil {
					log.Error("gateway is not available, sweeps will retain everyone", sl.Err(err))
					return nil
				}
				in.Health.SetSchedulerReady(true)
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				ctx, done := context.WithTimeout(context.Background(), shutdownTimeout)
				defer done()
				log.Info("shutting down servers gracefully")
				in.Health.Stop()
				return in.HTTP.Shutdown(ctx)
			})
			go func() {
				<-gctx.Done()
				if runCtx.Err() == nil {
					log.Error("server stopped unexpectedly, shutting down")
					_ = in.Shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()

			in.Scheduler.Start(runCtx)
			return nil
		},
		OnStop: func(_ context.Context) error {
			in.Scheduler.Stop()
			cancel()
			return group.Wait()
		},
	})
}
