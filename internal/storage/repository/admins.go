package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/teleguard/internal/models"
)

// CreateAdmin сохраняет администратора и возвращает его ID.
func (s *Storage) CreateAdmin(ctx context.Context, username, passwordHash string) (int64, error) {
	const op = "storage.CreateAdmin"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	var newID int64
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO admins (username, password_hash) VALUES ($1, $2) RETURNING id`,
		username, passwordHash).Scan(&newID)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%s: %w", op, models.ErrDuplicateIdentity)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// GetAdmin возвращает администратора по логину.
func (s *Storage) GetAdmin(ctx context.Context, username string) (*models.Admin, error) {
	const op = "storage.GetAdmin"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	var a models.Admin
	err := s.DB.GetContext(ctx, &a, `SELECT id, username, password_hash, created_at FROM admins WHERE username = $1`, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &a, nil
}
