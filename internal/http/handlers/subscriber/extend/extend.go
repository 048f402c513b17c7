// Package extend реализует HTTP-обработчик продления доступа.
//
// Если продление вернуло неактивного подписчика в активные, обработчик
// передаёт событие реактивации маршрутизатору: приглашение уходит сразу
// через шлюз или ставится в очередь. Ошибка доставки не отменяет продление.
package extend

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
	reactivation "github.com/magabrotheeeer/teleguard/internal/services/reactivation"
)

// Request количество дней; отрицательное значение сокращает доступ
type Request struct {
	AdditionalDays int `json:"additional_days" validate:"ne=0"`
}

type Service interface {
	Extend(ctx context.Context, telegramID string, deltaDays int) (*models.Subscriber, *models.ReactivationEvent, error)
}

type Handler struct {
	log      *slog.Logger
	service  Service
	router   reactivation.Router
	validate *validator.Validate
}

// New создает новый экземпляр Handler. При nil router событие реактивации только логируется.
func New(log *slog.Logger, service Service, router reactivation.Router) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		router:   router,
		validate: validator.New(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscriber.extend"

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

	sub, ev, err := h.service.Extend(r.Context(), telegramID, req.AdditionalDays)
	if err != nil {
		log.Error("failed to extend subscription", sl.Err(err))
		response.Fail(w, r, err, "could not extend subscription")
		return
	}

	data := map[string]any{
		"subscriber":  sub,
		"reactivated": ev != nil,
	}
	if ev != nil {
		data["reactivation"] = h.route(r.Context(), log, *ev)
	}

	log.Info("subscription extended", slog.Int("days", req.AdditionalDays), slog.Bool("reactivated", ev != nil))
	render.JSON(w, r, response.StatusOKWithData(data))
}

func (h *Handler) route(ctx context.Context, log *slog.Logger, ev models.ReactivationEvent) reactivation.Outcome {
	if h.router == nil {
		log.Warn("no reactivation router configured, invite not sent")
		return reactivation.Outcome{Error: "reactivation delivery is disabled"}
	}
	out, err := h.router.Route(ctx, ev)
	if err != nil {
		log.Warn("failed to deliver reactivation invite", sl.Err(err))
		if out.Error == "" {
			out.Error = err.Error()
		}
	}
	return out
}
