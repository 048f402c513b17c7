// Package middlewarectx содержит HTTP middleware панели: проверку доступа и ограничение частоты запросов.
//
// Auth принимает JWT из cookie authToken или заголовка Authorization: Bearer,
// либо статический ключ из X-API-Key. В случае успеха кладёт имя администратора в контекст.
package middlewarectx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/teleguard/internal/http/response"
	"github.com/magabrotheeeer/teleguard/internal/lib/sl"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

// Admin ключ для имени администратора в контексте
const Admin Key = "admin"

const (
	// CookieName cookie, в которую login кладёт токен
	CookieName = "authToken"
	// APIKeyHeader заголовок со статическим ключом
	APIKeyHeader = "X-API-Key"
	// APIKeyPrincipal имя, под которым в контексте виден вход по ключу
	APIKeyPrincipal = "api-key"
)

var errNoCredentials = errors.New("missing credentials")

// Authenticator проверяет токены и ключи доступа.
type Authenticator interface {
	ValidateToken(ctx context.Context, token string) (string, error)
	CheckAPIKey(key string) bool
}

// Auth возвращает middleware, пропускающий только запросы с валидным ключом или токеном.
func Auth(auth Authenticator, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.Auth"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			principal, err := authenticate(r, auth)
			if err != nil {
				log.Warn("unauthorized request", sl.Err(err), slog.String("path", r.URL.Path))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("unauthorized"))
				return
			}
			ctx := context.WithValue(r.Context(), Admin, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(r *http.Request, auth Authenticator) (string, error) {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		if !auth.CheckAPIKey(key) {
			return "", errors.New("invalid api key")
		}
		return APIKeyPrincipal, nil
	}
	token := bearer(r)
	if token == "" {
		if c, err := r.Cookie(CookieName); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		return "", errNoCredentials
	}
	return auth.ValidateToken(r.Context(), token)
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

// AdminFromContext имя администратора, положенное Auth
func AdminFromContext(ctx context.Context) string {
	name, _ := ctx.Value(Admin).(string)
	return name
}
