// Package run реализует HTTP-обработчик ручного запуска сверки.
package run

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/teleguard/internal/http/response"
	"github.com/magabrotheeeer/teleguard/internal/lib/sl"
	scheduler "github.com/magabrotheeeer/teleguard/internal/services/scheduler"
)

type Service interface {
	RunOnce(ctx context.Context) (*scheduler.Report, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.scheduler.run"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	// прогон доводится до конца, даже если клиент отключился
	rep, err := h.service.RunOnce(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, scheduler.ErrRunInProgress), errors.Is(err, scheduler.ErrLockHeld):
		log.Warn("sweep skipped", sl.Err(err))
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, response.Error("sweep is already running"))
		return
	case err != nil:
		log.Error("sweep failed", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("sweep failed"))
		return
	}

	log.Info("manual sweep finished", slog.String("run_id", rep.RunID))
	render.JSON(w, r, response.StatusOKWithData(rep))
}
