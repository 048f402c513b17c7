package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/magabrotheeeer/teleguard/internal/models"
)

const subscriberColumns = `id, telegram_id, first_name, last_name, username, registration_date,
	payment_duration_days, expiration_date, is_active, notes, version, created_at, updated_at`

// Create вставляет подписчика и возвращает сохранённую запись с id и версией.
func (s *Storage) Create(ctx context.Context, sub *models.Subscriber) (*models.Subscriber, error) {
	const op = "storage.Create"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `INSERT INTO subscribers (telegram_id, first_name, last_name, username, registration_date,
			      payment_duration_days, expiration_date, is_active, notes)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			  RETURNING ` + subscriberColumns
	var out models.Subscriber
	err := s.DB.GetContext(ctx, &out, query,
		sub.TelegramID, sub.FirstName, sub.LastName, sub.Username, sub.RegistrationDate,
		sub.PaymentDurationDays, sub.ExpirationDate, sub.IsActive, sub.Notes)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrDuplicateIdentity)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &out, nil
}

// GetByTelegramID возвращает подписчика по идентификатору в Telegram.
func (s *Storage) GetByTelegramID(ctx context.Context, telegramID string) (*models.Subscriber, error) {
	const op = "storage.GetByTelegramID"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	var out models.Subscriber
	err := s.DB.GetContext(ctx, &out, `SELECT `+subscriberColumns+` FROM subscribers WHERE telegram_id = $1`, telegramID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &out, nil
}

// Update сохраняет изменения, если версия записи совпадает с sub.Version.
// Возвращает запись с новой версией.
func (s *Storage) Update(ctx context.Context, sub *models.Subscriber) (*models.Subscriber, error) {
	const op = "storage.Update"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `UPDATE subscribers
			  SET first_name = $1, last_name = $2, username = $3, registration_date = $4,
			      payment_duration_days = $5, expiration_date = $6, is_active = $7, notes = $8,
			      version = version + 1, updated_at = NOW()
			  WHERE telegram_id = $9 AND version = $10
			  RETURNING ` + subscriberColumns
	var out models.Subscriber
	err := s.DB.GetContext(ctx, &out, query,
		sub.FirstName, sub.LastName, sub.Username, sub.RegistrationDate,
		sub.PaymentDurationDays, sub.ExpirationDate, sub.IsActive, sub.Notes,
		sub.TelegramID, sub.Version)
	if err == nil {
		return &out, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var exists bool
	if err := s.DB.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM subscribers WHERE telegram_id = $1)`, sub.TelegramID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return nil, fmt.Errorf("%s: %w", op, models.ErrVersionConflict)
}

// Delete удаляет подписчика.
func (s *Storage) Delete(ctx context.Context, telegramID string) error {
	const op = "storage.Delete"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM subscribers WHERE telegram_id = $1`, telegramID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return nil
}

// List возвращает подписчиков по фильтру, новые первыми.
func (s *Storage) List(ctx context.Context, filter models.ListFilter, now time.Time) ([]*models.Subscriber, error) {
	const op = "storage.List"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.Active != nil {
		args = append(args, *filter.Active)
		where = append(where, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if filter.Expired != nil {
		args = append(args, now)
		if *filter.Expired {
			where = append(where, fmt.Sprintf("expiration_date <= $%d", len(args)))
		} else {
			where = append(where, fmt.Sprintf("expiration_date > $%d", len(args)))
		}
	}

	query := `SELECT ` + subscriberColumns + ` FROM subscribers`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	var out []*models.Subscriber
	if err := s.DB.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// Stats считает сводку по подписчикам на момент now.
func (s *Storage) Stats(ctx context.Context, now time.Time) (models.Stats, error) {
	const op = "storage.Stats"
	if err := checkCtx(ctx, op); err != nil {
		return models.Stats{}, err
	}

	query := `SELECT
				COUNT(*) AS total,
				COUNT(*) FILTER (WHERE is_active AND expiration_date > $1) AS active,
				COUNT(*) FILTER (WHERE NOT is_active) AS inactive,
				COUNT(*) FILTER (WHERE expiration_date <= $1) AS expired
			  FROM subscribers`
	var stats models.Stats
	if err := s.DB.GetContext(ctx, &stats, query, now); err != nil {
		return models.Stats{}, fmt.Errorf("%s: %w", op, err)
	}
	return stats, nil
}

// FindActiveAndExpired активные подписчики, чей доступ истёк к now.
func (s *Storage) FindActiveAndExpired(ctx context.Context, now time.Time) ([]*models.Subscriber, error) {
	const op = "storage.FindActiveAndExpired"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	var out []*models.Subscriber
	err := s.DB.SelectContext(ctx, &out, `SELECT `+subscriberColumns+` FROM subscribers
		WHERE is_active AND expiration_date <= $1
		ORDER BY expiration_date, id`, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// FindActiveExpiringInWindow активные подписчики с окончанием в [start, end).
func (s *Storage) FindActiveExpiringInWindow(ctx context.Context, start, end time.Time) ([]*models.Subscriber, error) {
	const op = "storage.FindActiveExpiringInWindow"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	var out []*models.Subscriber
	err := s.DB.SelectContext(ctx, &out, `SELECT `+subscriberColumns+` FROM subscribers
		WHERE is_active AND expiration_date >= $1 AND expiration_date < $2
		ORDER BY expiration_date, id`, start, end)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}
