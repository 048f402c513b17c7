// Package services содержит операции жизненного цикла подписчика:
// создание, продление, сокращение, правку и удаление, с кешированием.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/teleguard/internal/gateway"
	"github.com/magabrotheeeer/teleguard/internal/lib/clock"
	"github.com/magabrotheeeer/teleguard/internal/lib/sl"
	"github.com/magabrotheeeer/teleguard/internal/models"
)

// conflictRetries сколько раз перечитываем запись при конфликте версий
const conflictRetries = 3

const cacheTTL = time.Hour

// SubscriberRepository определяет методы для работы с подписчиками в хранилище.
type SubscriberRepository interface {
	Create(ctx context.Context, sub *models.Subscriber) (*models.Subscriber, error)
	GetByTelegramID(ctx context.Context, telegramID string) (*models.Subscriber, error)
	// Update сохраняет запись, если её версия не изменилась.
	Update(ctx context.Context, sub *models.Subscriber) (*models.Subscriber, error)
	Delete(ctx context.Context, telegramID string) error
	List(ctx context.Context, filter models.ListFilter, now time.Time) ([]*models.Subscriber, error)
	Stats(ctx context.Context, now time.Time) (models.Stats, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// MemberRemover удаление участника из группы
type MemberRemover interface {
	RemoveMember(ctx context.Context, telegramID string) (gateway.RemoveResult, error)
}

// SubscriberService реализует операции над подписчиками.
type SubscriberService struct {
	repo  SubscriberRepository
	cache Cache
	gw    MemberRemover
	clock clock.Clock
	log   *slog.Logger
}

// NewSubscriberService создает новый экземпляр SubscriberService. cache может быть nil.
func NewSubscriberService(repo SubscriberRepository, cache Cache, gw MemberRemover, clk clock.Clock, log *slog.Logger) *SubscriberService {
	if cache == nil {
		cache = noCache{}
	}
	return &SubscriberService{
		repo:  repo,
		cache: cache,
		gw:    gw,
		clock: clk,
		log:   log,
	}
}

// CreateRequest данные нового подписчика
type CreateRequest struct {
	TelegramID       string
	FirstName        string
	LastName         *string
	Username         *string
	Notes            *string
	RegistrationDate *time.Time // по умолчанию текущее время
	DurationDays     int
	ExpirationDate   *time.Time // явная дата побеждает расчёт
	IsActive         *bool      // по умолчанию: не истёк ли доступ
}

// DeleteResult итог удаления: запись удаляется всегда, шлюз best-effort
type DeleteResult struct {
	Subscriber     *models.Subscriber
	GatewayResult  gateway.RemoveResult
	GatewayRemoved bool
	GatewayError   string
}

// Create регистрирует подписчика.
func (s *SubscriberService) Create(ctx context.Context, req CreateRequest) (*models.Subscriber, error) {
	const op = "subscriber.Create"

	telegramID := strings.TrimSpace(req.TelegramID)
	firstName := strings.TrimSpace(req.FirstName)
	if telegramID == "" || firstName == "" {
		return nil, fmt.Errorf("%s: telegram id and first name are required: %w", op, models.ErrInvalidArgument)
	}
	if req.DurationDays < 0 {
		return nil, fmt.Errorf("%s: duration must not be negative: %w", op, models.ErrInvalidArgument)
	}

	now := s.clock.Now()
	reg := now
	if req.RegistrationDate != nil {
		reg = *req.RegistrationDate
	}
	sub := models.NewSubscriber(telegramID, firstName, reg, req.DurationDays)
	sub.LastName = req.LastName
	sub.Username = req.Username
	sub.Notes = req.Notes
	if req.ExpirationDate != nil {
		sub.OverrideExpiration(*req.ExpirationDate)
	}
	sub.IsActive = !sub.IsExpired(now)
	if req.IsActive != nil {
		sub.IsActive = *req.IsActive
	}

	created, err := s.repo.Create(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("created new subscriber", sl.TelegramID(created.TelegramID),
		slog.Int("duration_days", created.PaymentDurationDays), slog.Time("expiration", created.ExpirationDate))
	s.remember(ctx, created)
	return created, nil
}

// Get возвращает подписчика, используя кеш или репозиторий.
func (s *SubscriberService) Get(ctx context.Context, telegramID string) (*models.Subscriber, error) {
	const op = "subscriber.Get"
	key := models.CacheKey(telegramID)

	var cached models.Subscriber
	found, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.log.Warn("failed to read from cache", slog.String("key", key), sl.Err(err))
	}
	if found {
		return &cached, nil
	}

	sub, err := s.repo.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.remember(ctx, sub)
	return sub, nil
}

// List возвращает подписчиков по фильтру.
func (s *SubscriberService) List(ctx context.Context, filter models.ListFilter) ([]*models.Subscriber, error) {
	const op = "subscriber.List"
	subs, err := s.repo.List(ctx, filter, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return subs, nil
}

// Stats сводка по подписчикам на текущий момент.
func (s *SubscriberService) Stats(ctx context.Context) (models.Stats, error) {
	const op = "subscriber.Stats"
	st, err := s.repo.Stats(ctx, s.clock.Now())
	if err != nil {
		return models.Stats{}, fmt.Errorf("%s: %w", op, err)
	}
	return st, nil
}

// Extend меняет длительность на deltaDays (может быть отрицательной, но не нулём).
// Если неактивный подписчик снова получил будущую дату окончания, он становится
// активным и возвращается ReactivationEvent. Шлюз здесь не вызывается.
func (s *SubscriberService) Extend(ctx context.Context, telegramID string, deltaDays int) (*models.Subscriber, *models.ReactivationEvent, error) {
	const op = "subscriber.Extend"
	if deltaDays == 0 {
		return nil, nil, fmt.Errorf("%s: delta must not be zero: %w", op, models.ErrInvalidArgument)
	}

	var event *models.ReactivationEvent
	sub, err := s.mutate(ctx, op, telegramID, func(sub *models.Subscriber, now time.Time) error {
		event = nil
		wasInactive := !sub.IsActive
		sub.SetDuration(sub.PaymentDurationDays + deltaDays)
		if wasInactive && sub.ExpirationDate.After(now) {
			sub.IsActive = true
			event = &models.ReactivationEvent{
				TelegramID:     sub.TelegramID,
				FirstName:      sub.DisplayName(),
				DaysAdded:      deltaDays,
				ExpirationDate: sub.ExpirationDate,
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.log.Info("extended subscriber", sl.TelegramID(telegramID), slog.Int("delta_days", deltaDays),
		slog.Time("expiration", sub.ExpirationDate), slog.Bool("reactivated", event != nil))
	return sub, event, nil
}

// Reduce сокращает длительность на days (>= 1). Активность не меняется.
func (s *SubscriberService) Reduce(ctx context.Context, telegramID string, days int) (*models.Subscriber, error) {
	const op = "subscriber.Reduce"
	if days <= 0 {
		return nil, fmt.Errorf("%s: days must be positive: %w", op, models.ErrInvalidArgument)
	}

	sub, err := s.mutate(ctx, op, telegramID, func(sub *models.Subscriber, _ time.Time) error {
		sub.SetDuration(sub.PaymentDurationDays - days)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("reduced subscriber", sl.TelegramID(telegramID), slog.Int("days", days),
		slog.Time("expiration", sub.ExpirationDate))
	return sub, nil
}

// Update применяет частичное обновление. Явная дата окончания в патче
// побеждает пересчёт, даже если дата регистрации или длительность тоже менялись.
func (s *SubscriberService) Update(ctx context.Context, telegramID string, patch models.SubscriberPatch) (*models.Subscriber, error) {
	const op = "subscriber.Update"
	if patch.PaymentDurationDays != nil && *patch.PaymentDurationDays < 0 {
		return nil, fmt.Errorf("%s: duration must not be negative: %w", op, models.ErrInvalidArgument)
	}
	if patch.FirstName != nil && strings.TrimSpace(*patch.FirstName) == "" {
		return nil, fmt.Errorf("%s: first name must not be empty: %w", op, models.ErrInvalidArgument)
	}

	sub, err := s.mutate(ctx, op, telegramID, func(sub *models.Subscriber, _ time.Time) error {
		applyPatch(sub, patch)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("updated subscriber", sl.TelegramID(telegramID))
	return sub, nil
}

func applyPatch(sub *models.Subscriber, p models.SubscriberPatch) {
	if p.FirstName != nil {
		sub.FirstName = strings.TrimSpace(*p.FirstName)
	}
	if p.LastName != nil {
		sub.LastName = p.LastName
	}
	if p.Username != nil {
		sub.Username = p.Username
	}
	if p.Notes != nil {
		sub.Notes = p.Notes
	}
	if p.IsActive != nil {
		sub.IsActive = *p.IsActive
	}
	if p.RegistrationDate != nil {
		sub.SetRegistrationDate(*p.RegistrationDate)
	}
	if p.PaymentDurationDays != nil {
		sub.SetDuration(*p.PaymentDurationDays)
	}
	if p.ExpirationDate != nil {
		sub.OverrideExpiration(*p.ExpirationDate)
	}
}

// Delete удаляет подписчика. Сначала пытается удалить его из группы,
// запись удаляется независимо от результата шлюза.
func (s *SubscriberService) Delete(ctx context.Context, telegramID string) (*DeleteResult, error) {
	const op = "subscriber.Delete"
	log := s.log.With(sl.Op(op), sl.TelegramID(telegramID))

	sub, err := s.repo.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	res := &DeleteResult{Subscriber: sub, GatewayResult: gateway.RemoveError}
	if s.gw != nil {
		result, gwErr := s.gw.RemoveMember(ctx, telegramID)
		res.GatewayResult = result
		res.GatewayRemoved = result.Removed()
		switch {
		case errors.Is(gwErr, gateway.ErrUninitialized):
			res.GatewayError = gwErr.Error()
			log.Warn("gateway is not initialized, deleting record only")
		case gwErr != nil:
			res.GatewayError = gwErr.Error()
			log.Warn("failed to remove member from group", slog.String("result", result.String()), sl.Err(gwErr))
		case !result.Removed():
			res.GatewayError = result.String()
			log.Warn("member was not removed from group", slog.String("result", result.String()))
		}
	}

	if err := s.repo.Delete(ctx, telegramID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.forget(ctx, telegramID)

	log.Info("deleted subscriber", slog.Bool("removed_from_group", res.GatewayRemoved))
	return res, nil
}

// mutate читает запись, применяет fn и сохраняет с проверкой версии.
// При конфликте версий читает заново и повторяет.
func (s *SubscriberService) mutate(ctx context.Context, op, telegramID string, fn func(sub *models.Subscriber, now time.Time) error) (*models.Subscriber, error) {
	var lastErr error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		sub, err := s.repo.GetByTelegramID(ctx, telegramID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := fn(sub, s.clock.Now()); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		saved, err := s.repo.Update(ctx, sub)
		if err == nil {
			s.forget(ctx, telegramID)
			return saved, nil
		}
		if !errors.Is(err, models.ErrVersionConflict) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		lastErr = err
		s.log.Debug("version conflict, retrying", sl.Op(op), sl.TelegramID(telegramID), slog.Int("attempt", attempt+1))
	}
	return nil, fmt.Errorf("%s: %w", op, lastErr)
}

func (s *SubscriberService) remember(ctx context.Context, sub *models.Subscriber) {
	key := models.CacheKey(sub.TelegramID)
	if err := s.cache.Set(ctx, key, sub, cacheTTL); err != nil {
		s.log.Warn("failed to cache subscriber", slog.String("key", key), sl.Err(err))
	}
}

func (s *SubscriberService) forget(ctx context.Context, telegramID string) {
	key := models.CacheKey(telegramID)
	if err := s.cache.Invalidate(ctx, key); err != nil {
		s.log.Warn("failed to remove from cache", slog.String("key", key), sl.Err(err))
	}
}

type noCache struct{}

func (noCache) Get(context.Context, string, any) (bool, error)       { return false, nil }
func (noCache) Set(context.Context, string, any, time.Duration) error { return nil }
func (noCache) Invalidate(context.Context, string) error              { return nil }
