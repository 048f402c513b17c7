// Package remove реализует HTTP-обработчик удаления подписчика.
// Запись удаляется даже если убрать участника из группы не удалось,
// результат шлюза возвращается в ответе.
package remove

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/teleguard/internal/http/response"
	"github.com/magabrotheeeer/teleguard/internal/lib/sl"
	subscriber "github.com/magabrotheeeer/teleguard/internal/services/subscriber"
)

type Service interface {
	Delete(ctx context.Context, telegramID string) (*subscriber.DeleteResult, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscriber.remove"

	telegramID := chi.URLParam(r, "telegram_id")
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		sl.TelegramID(telegramID),
	)

	res, err := h.service.Delete(r.Context(), telegramID)
	if err != nil {
		log.Error("failed to delete subscriber", sl.Err(err))
		response.Fail(w, r, err, "could not delete subscriber")
		return
	}

	log.Info("subscriber deleted", slog.Bool("removed_from_group", res.GatewayRemoved))
	data := map[string]any{
		"telegram_id":        telegramID,
		"removed_from_group": res.GatewayRemoved,
		"gateway_result":     res.GatewayResult.String(),
	}
	if res.GatewayError != "" {
		data["gateway_error"] = res.GatewayError
	}
	render.JSON(w, r, response.StatusOKWithData(data))
}
