// Package teleguard собирает API-сервер панели: HTTP, gRPC health, шлюз группы и планировщик сверки.
package teleguard

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/magabrotheeeer/teleguard/internal/config"
	"github.com/magabrotheeeer/teleguard/internal/gateway"
	"github.com/magabrotheeeer/teleguard/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/teleguard/internal/http/handlers/health"
	schedulerrun "github.com/magabrotheeeer/teleguard/internal/http/handlers/scheduler/run"
	"github.com/magabrotheeeer/teleguard/internal/http/handlers/subscriber/create"
	"github.com/magabrotheeeer/teleguard/internal/http/handlers/subscriber/extend"
	"github.com/magabrotheeeer/teleguard/internal/http/handlers/subscriber/list"
	"github.com/magabrotheeeer/teleguard/internal/http/handlers/subscriber/read"
	"github.com/magabrotheeeer/teleguard/internal/http/handlers/subscriber/reduce"
	"github.com/magabrotheeeer/teleguard/internal/http/handlers/subscriber/remove"
	"github.com/magabrotheeeer/teleguard/internal/http/handlers/subscriber/stats"
	"github.com/magabrotheeeer/teleguard/internal/http/handlers/subscriber/update"
	"github.com/magabrotheeeer/teleguard/internal/http/handlers/syncgroup"
	"github.com/magabrotheeeer/teleguard/internal/http/middlewarectx"
	authservice "github.com/magabrotheeeer/teleguard/internal/services/auth"
	groupsync "github.com/magabrotheeeer/teleguard/internal/services/groupsync"
	reactivation "github.com/magabrotheeeer/teleguard/internal/services/reactivation"
	scheduler "github.com/magabrotheeeer/teleguard/internal/services/scheduler"
	subscriber "github.com/magabrotheeeer/teleguard/internal/services/subscriber"
)

// Services всё, что нужно маршрутам
type Services struct {
	Subscribers *subscriber.SubscriberService
	Scheduler   *scheduler.SchedulerService
	Sync        *groupsync.SyncService
	Auth        *authservice.AuthService
	Router      reactivation.Router
	Gateway     *gateway.Handle
	Gatherer    prometheus.Gatherer
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config, svc Services) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)

	r.Get("/health", health.New(logger, svc.Gateway).ServeHTTP)
	r.Handle("/metrics", promhttp.HandlerFor(svc.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/auth/login", login.New(logger, svc.Auth, cfg.TokenTTL, cfg.Env != "local").ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.Auth(svc.Auth, logger))
			r.Use(middlewarectx.RateLimit(cfg.HTTPServer.RateLimit, cfg.HTTPServer.RateBurst, logger))

			r.Get("/subscribers/stats", stats.New(logger, svc.Subscribers).ServeHTTP)
			r.Get("/subscribers", list.New(logger, svc.Subscribers).ServeHTTP)
			r.Post("/subscribers", create.New(logger, svc.Subscribers).ServeHTTP)
			r.Get("/subscribers/{telegram_id}", read.New(logger, svc.Subscribers).ServeHTTP)
			r.Put("/subscribers/{telegram_id}", update.New(logger, svc.Subscribers).ServeHTTP)
			r.Delete("/subscribers/{telegram_id}", remove.New(logger, svc.Subscribers).ServeHTTP)
			r.Post("/subscribers/{telegram_id}/extend", extend.New(logger, svc.Subscribers, svc.Router).ServeHTTP)
			r.Post("/subscribers/{telegram_id}/reduce", reduce.New(logger, svc.Subscribers).ServeHTTP)

			r.Post("/sync/group", syncgroup.New(logger, svc.Sync, groupsync.ModeFromNow).ServeHTTP)
			r.Post("/sync/group-with-date", syncgroup.New(logger, svc.Sync, groupsync.ModeFromJoinDate).ServeHTTP)

			r.Post("/scheduler/run", schedulerrun.New(logger, svc.Scheduler).ServeHTTP)
		})
	})
}

// NewHTTPServer создаёт сервер с маршрутами панели
func NewHTTPServer(cfg *config.Config, logger *slog.Logger, svc Services) *http.Server {
	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg, svc)

	return &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
