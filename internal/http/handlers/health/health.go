// Package health отдаёт состояние процесса и готовность шлюза группы.
package health

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/teleguard/internal/http/response"
)

// Readiness сообщает, подключён ли шлюз
type Readiness interface {
	Ready() bool
}

type Handler struct {
	log     *slog.Logger
	gateway Readiness
}

func New(log *slog.Logger, gateway Readiness) *Handler {
	return &Handler{
		log:     log,
		gateway: gateway,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ready := h.gateway != nil && h.gateway.Ready()
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"status":        "ok",
		"gateway_ready": ready,
	}))
}
