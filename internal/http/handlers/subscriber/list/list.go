// Package list реализует HTTP-обработчик списка подписчиков с фильтрами active и expired.
package list

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/teleguard/internal/http/response"
	"github.com/magabrotheeeer/teleguard/internal/lib/sl"
	"github.com/magabrotheeeer/teleguard/internal/models"
)

// Service описывает выборку подписчиков.
type Service interface {
	List(ctx context.Context, filter models.ListFilter) ([]*models.Subscriber, error)
}

// Handler обрабатывает GET /subscribers?active=&expired=.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscriber.list"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	filter, err := parseFilter(r)
	if err != nil {
		log.Error("invalid filter", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error(err.Error()))
		return
	}

	subs, err := h.service.List(r.Context(), filter)
	if err != nil {
		log.Error("failed to list subscribers", sl.Err(err))
		response.Fail(w, r, err, "could not list subscribers")
		return
	}
	if subs == nil {
		subs = []*models.Subscriber{}
	}

	log.Debug("subscribers listed", slog.Int("count", len(subs)))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"count":       len(subs),
		"subscribers": subs,
	}))
}

func parseFilter(r *http.Request) (models.ListFilter, error) {
	var f models.ListFilter
	var err error
	if f.Active, err = boolParam(r, "active"); err != nil {
		return f, err
	}
	if f.Expired, err = boolParam(r, "expired"); err != nil {
		return f, err
	}
	return f, nil
}

func boolParam(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("query parameter %s must be true or false", name)
	}
	return &v, nil
}
