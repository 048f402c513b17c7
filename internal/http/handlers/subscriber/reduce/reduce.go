// Package reduce реализует HTTP-обработчик сокращения доступа.
package reduce

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/teleguard/internal/http/response"
	"github.com/magabrotheeeer/teleguard/internal/lib/sl"
	"github.com/magabrotheeeer/teleguard/internal/models"
)

// Request сколько дней снять; длительность не опускается ниже нуля
type Request struct {
	DaysToReduce int `json:"days_to_reduce" validate:"min=1"`
}

type Service interface {
	Reduce(ctx context.Context, telegramID string, days int) (*models.Subscriber, error)
}

type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscriber.reduce"

	telegramID := chi.URLParam(r, "telegram_id")
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		sl.TelegramID(telegramID),
	)

	var req Request
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode request"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	sub, err := h.service.Reduce(r.Context(), telegramID, req.DaysToReduce)
	if err != nil {
		log.Error("failed to reduce subscription", sl.Err(err))
		response.Fail(w, r, err, "could not reduce subscription")
		return
	}

	log.Info("subscription reduced", slog.Int("days", req.DaysToReduce))
	render.JSON(w, r, response.StatusOKWithData(sub))
}
