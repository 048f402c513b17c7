// Package services содержит логику входа администраторов панели и проверки их токенов.
package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/magabrotheeeer/teleguard/internal/lib/jwt"
	"github.com/magabrotheeeer/teleguard/internal/lib/password"
	"github.com/magabrotheeeer/teleguard/internal/models"
)

// ErrInvalidCredentials неверный логин или пароль
var ErrInvalidCredentials = errors.New("invalid credentials")

// AdminRepository описывает контракт для работы с администраторами в базе данных.
type AdminRepository interface {
	// CreateAdmin сохраняет администратора и возвращает его ID.
	CreateAdmin(ctx context.Context, username, passwordHash string) (int64, error)

	// GetAdmin возвращает администратора по логину или models.ErrNotFound.
	GetAdmin(ctx context.Context, username string) (*models.Admin, error)
}

// AuthService отвечает за создание администраторов, вход и валидацию JWT.
type AuthService struct {
	admins   AdminRepository
	jwtMaker jwt.Maker
	apiKey   string
}

// NewAuthService создает новый экземпляр AuthService. Пустой apiKey отключает вход по ключу.
func NewAuthService(admins AdminRepository, jwtMaker jwt.Maker, apiKey string) *AuthService {
	return &AuthService{
		admins:   admins,
		jwtMaker: jwtMaker,
		apiKey:   apiKey,
	}
}

// CreateAdmin создает администратора с хэшированием пароля.
func (s *AuthService) CreateAdmin(ctx context.Context, username, rawPassword string) (int64, error) {
	const op = "services.auth.CreateAdmin"
	username = strings.TrimSpace(username)
	if username == "" {
		return 0, fmt.Errorf("%s: empty username: %w", op, models.ErrInvalidArgument)
	}
	hashed, err := password.GetHash(rawPassword)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %w", op, models.ErrInvalidArgument, err)
	}
	id, err := s.admins.CreateAdmin(ctx, username, hashed)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// Login проверяет пароль администратора и выпускает JWT.
func (s *AuthService) Login(ctx context.Context, username, rawPassword string) (string, error) {
	const op = "services.auth.Login"
	admin, err := s.admins.GetAdmin(ctx, username)
	if errors.Is(err, models.ErrNotFound) {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err := password.CompareHash(admin.PasswordHash, rawPassword); err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	token, err := s.jwtMaker.GenerateToken(admin.Username, jwt.RoleAdmin)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return token, nil
}

// ValidateToken проверяет JWT и возвращает логин администратора.
func (s *AuthService) ValidateToken(_ context.Context, token string) (string, error) {
	const op = "services.auth.ValidateToken"
	claims, err := s.jwtMaker.ParseToken(token)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if claims.Role != jwt.RoleAdmin {
		return "", fmt.Errorf("%s: role %q is not allowed", op, claims.Role)
	}
	return claims.Username, nil
}

// CheckAPIKey сравнивает ключ с настроенным за постоянное время
func (s *AuthService) CheckAPIKey(key string) bool {
	if s.apiKey == "" || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s.apiKey), []byte(key)) == 1
}
