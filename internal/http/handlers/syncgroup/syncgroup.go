// Package syncgroup реализует HTTP-обработчики сверки подписчиков с участниками группы.
//
// Без тела запроса участники берутся из шлюза, если адаптер умеет их перечислять.
// Иначе список передаётся в поле members.
package syncgroup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/teleguard/internal/gateway"
	"github.com/magabrotheeeer/teleguard/internal/http/response"
	"github.com/magabrotheeeer/teleguard/internal/lib/sl"
	groupsync "github.com/magabrotheeeer/teleguard/internal/services/groupsync"
)

// Request необязательный список участников
type Request struct {
	Members []gateway.Member `json:"members,omitempty"`
}

type Service interface {
	Sync(ctx context.Context, mode groupsync.Mode, members []gateway.Member) (groupsync.Result, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
	mode    groupsync.Mode
}

// New создает обработчик для режима mode.
func New(log *slog.Logger, service Service, mode groupsync.Mode) *Handler {
	return &Handler{log: log, service: service, mode: mode}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.syncgroup"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("mode", h.mode.String()),
	)

	var req Request
	if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode request"))
		return
	}

	var members []gateway.Member
	if req.Members != nil {
		members = req.Members
	}

	res, err := h.service.Sync(r.Context(), h.mode, members)
	if err != nil {
		log.Error("group sync failed", sl.Err(err))
		response.Fail(w, r, err, "could not sync group")
		return
	}

	log.Info("group synced",
		slog.Int("total", res.Total),
		slog.Int("created", res.Created),
		slog.Int("updated", res.Updated),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed),
	)
	render.JSON(w, r, response.StatusOKWithData(res))
}
