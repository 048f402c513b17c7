// Package read реализует HTTP-обработчик получения подписчика по telegram id.
package read

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/teleguard/internal/http/response"
	"github.com/magabrotheeeer/teleguard/internal/lib/sl"
	"github.com/magabrotheeeer/teleguard/internal/models"
)

// Service описывает чтение подписчика.
type Service interface {
	Get(ctx context.Context, telegramID string) (*models.Subscriber, error)
}

// Handler обрабатывает GET /subscribers/{telegram_id}.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscriber.read"

	telegramID := chi.URLParam(r, "telegram_id")
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		sl.TelegramID(telegramID),
	)

	if telegramID == "" {
		log.Error("telegram id is missing in url")
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("telegram id is required"))
		return
	}

	sub, err := h.service.Get(r.Context(), telegramID)
	if err != nil {
		log.Error("failed to read subscriber", sl.Err(err))
		response.Fail(w, r, err, "could not read subscriber")
		return
	}

	render.JSON(w, r, response.StatusOKWithData(sub))
}
