// Package update реализует HTTP-обработчик частичного обновления подписчика.
//
// Отсутствующие в теле поля не меняются. Если одновременно переданы
// registration_date или payment_duration_days и expiration_date,
// сохраняется явно переданная дата окончания.
package update

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/teleguard/internal/http/response"
	"github.com/magabrotheeeer/teleguard/internal/lib/sl"
	"github.com/magabrotheeeer/teleguard/internal/models"
)

// Request поля, которые можно изменить
type Request struct {
	FirstName           *string    `json:"first_name,omitempty" validate:"omitempty,min=1,max=255"`
	LastName            *string    `json:"last_name,omitempty"`
	Username            *string    `json:"username,omitempty"`
	Notes               *string    `json:"notes,omitempty"`
	IsActive            *bool      `json:"is_active,omitempty"`
	RegistrationDate    *time.Time `json:"registration_date,omitempty"`
	PaymentDurationDays *int       `json:"payment_duration_days,omitempty" validate:"omitempty,gte=0"`
	ExpirationDate      *time.Time `json:"expiration_date,omitempty"`
}

func (r Request) patch() models.SubscriberPatch {
	return models.SubscriberPatch{
		FirstName:           r.FirstName,
		LastName:            r.LastName,
		Username:            r.Username,
		Notes:               r.Notes,
		IsActive:            r.IsActive,
		RegistrationDate:    r.RegistrationDate,
		PaymentDurationDays: r.PaymentDurationDays,
		ExpirationDate:      r.ExpirationDate,
	}
}

type Service interface {
	Update(ctx context.Context, telegramID string, patch models.SubscriberPatch) (*models.Subscriber, error)
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
	const op = "handlers.subscriber.update"

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

	sub, err := h.service.Update(r.Context(), telegramID, req.patch())
	if err != nil {
		log.Error("failed to update subscriber", sl.Err(err))
		response.Fail(w, r, err, "could not update subscriber")
		return
	}

	log.Info("subscriber updated")
	render.JSON(w, r, response.StatusOKWithData(sub))
}
