// Package create реализует HTTP-обработчик регистрации подписчика.
package create

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/teleguard/internal/http/response"
	"github.com/magabrotheeeer/teleguard/internal/lib/sl"
	"github.com/magabrotheeeer/teleguard/internal/models"
	subscriber "github.com/magabrotheeeer/teleguard/internal/services/subscriber"
)

// Request данные нового подписчика.
// Без registration_date отсчёт идёт от текущего момента,
// явный expiration_date побеждает расчёт.
type Request struct {
	TelegramID          string     `json:"telegram_id" validate:"required,max=64"`
	FirstName           string     `json:"first_name" validate:"required,max=255"`
	LastName            *string    `json:"last_name,omitempty"`
	Username            *string    `json:"username,omitempty"`
	Notes               *string    `json:"notes,omitempty"`
	RegistrationDate    *time.Time `json:"registration_date,omitempty"`
	PaymentDurationDays int        `json:"payment_duration_days" validate:"gte=0"`
	ExpirationDate      *time.Time `json:"expiration_date,omitempty"`
	IsActive            *bool      `json:"is_active,omitempty"`
}

// Service описывает создание подписчика.
type Service interface {
	Create(ctx context.Context, req subscriber.CreateRequest) (*models.Subscriber, error)
}

// Handler обрабатывает POST /subscribers.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscriber.create"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode request"))
		return
	}
	log.Debug("request body decoded", slog.Any("request", req))

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	sub, err := h.service.Create(r.Context(), subscriber.CreateRequest{
		TelegramID:       req.TelegramID,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		Username:         req.Username,
		Notes:            req.Notes,
		RegistrationDate: req.RegistrationDate,
		DurationDays:     req.PaymentDurationDays,
		ExpirationDate:   req.ExpirationDate,
		IsActive:         req.IsActive,
	})
	if err != nil {
		log.Error("failed to create subscriber", sl.Err(err))
		response.Fail(w, r, err, "could not create subscriber")
		return
	}

	log.Info("subscriber created", sl.TelegramID(sub.TelegramID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.StatusOKWithData(sub))
}
