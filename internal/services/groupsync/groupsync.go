// Package services сверяет список участников группы с базой подписчиков.
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
	"github.com/magabrotheeeer/teleguard/internal/lib/expiry"
	"github.com/magabrotheeeer/teleguard/internal/lib/sl"
	"github.com/magabrotheeeer/teleguard/internal/models"
)

const (
	// DefaultDurationDays срок доступа новому участнику
	DefaultDurationDays = 30
	defaultFirstName    = "Участник"
)

// Mode как считать срок для новых участников
type Mode int

const (
	// ModeFromNow срок отсчитывается от момента сверки
	ModeFromNow Mode = iota
	// ModeFromJoinDate срок отсчитывается от даты вступления в группу
	ModeFromJoinDate
)

func (m Mode) String() string {
	if m == ModeFromJoinDate {
		return "join_date"
	}
	return "now"
}

type SubscriberRepository interface {
	Create(ctx context.Context, sub *models.Subscriber) (*models.Subscriber, error)
	GetByTelegramID(ctx context.Context, telegramID string) (*models.Subscriber, error)
	Update(ctx context.Context, sub *models.Subscriber) (*models.Subscriber, error)
}

// Result итог сверки
type Result struct {
	Total   int `json:"total"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Invalidator сброс записи в кэше чтения подписчиков
type Invalidator interface {
	Invalidate(ctx context.Context, key string) error
}

type SyncService struct {
	repo         SubscriberRepository
	cache        Invalidator
	source       gateway.MemberLister
	clock        clock.Clock
	log          *slog.Logger
	durationDays int
}

// New создает новый экземпляр SyncService. source может быть nil,
// тогда участники должны передаваться явно.
func New(repo SubscriberRepository, source gateway.MemberLister, clk clock.Clock, log *slog.Logger, durationDays int) *SyncService {
	if durationDays <= 0 {
		durationDays = DefaultDurationDays
	}
	return &SyncService{
		repo:         repo,
		source:       source,
		clock:        clk,
		log:          log,
		durationDays: durationDays,
	}
}

// WithCache сбрасывает кэш подписчика после обновления имён.
func (s *SyncService) WithCache(c Invalidator) *SyncService {
	s.cache = c
	return s
}

// Sync заводит новых участников и обновляет имена существующих.
// Если members nil, список берётся у шлюза. Ошибки по отдельным
// участникам считаются в Failed и не прерывают сверку.
func (s *SyncService) Sync(ctx context.Context, mode Mode, members []gateway.Member) (Result, error) {
	const op = "groupsync.Sync"
	log := s.log.With(sl.Op(op), slog.String("mode", mode.String()))

	if members == nil {
		if s.source == nil {
			return Result{}, fmt.Errorf("%s: %w", op, gateway.ErrUnsupported)
		}
		listed, err := s.source.ListMembers(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", op, err)
		}
		members = listed
	}

	res := Result{Total: len(members)}
	now := s.clock.Now()
	for _, m := range members {
		if skip(m, mode) {
			res.Skipped++
			continue
		}
		created, err := s.upsert(ctx, m, mode, now)
		if err != nil {
			res.Failed++
			log.Warn("failed to sync member", sl.TelegramID(m.TelegramID), sl.Err(err))
			continue
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}

	log.Info("group sync finished",
		slog.Int("total", res.Total),
		slog.Int("created", res.Created),
		slog.Int("updated", res.Updated),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed))
	return res, nil
}

func skip(m gateway.Member, mode Mode) bool {
	if m.IsBot || m.IsDeleted || strings.TrimSpace(m.TelegramID) == "" {
		return true
	}
	return mode == ModeFromJoinDate && m.IsPrivileged
}

// upsert возвращает true, если подписчик создан
func (s *SyncService) upsert(ctx context.Context, m gateway.Member, mode Mode, now time.Time) (bool, error) {
	existing, err := s.repo.GetByTelegramID(ctx, m.TelegramID)
	switch {
	case err == nil:
		return false, s.updateNames(ctx, existing, m)
	case !errors.Is(err, models.ErrNotFound):
		return false, err
	}

	sub := s.newSubscriber(m, mode, now)
	if _, err := s.repo.Create(ctx, sub); err != nil {
		// участник появился между чтением и вставкой
		if errors.Is(err, models.ErrDuplicateIdentity) {
			existing, getErr := s.repo.GetByTelegramID(ctx, m.TelegramID)
			if getErr != nil {
				return false, getErr
			}
			return false, s.updateNames(ctx, existing, m)
		}
		return false, err
	}
	s.log.Debug("member registered", sl.TelegramID(sub.TelegramID),
		slog.Time("expiration", sub.ExpirationDate), slog.Bool("active", sub.IsActive))
	return true, nil
}

func (s *SyncService) newSubscriber(m gateway.Member, mode Mode, now time.Time) *models.Subscriber {
	if mode == ModeFromNow {
		sub := models.NewSubscriber(m.TelegramID, firstName(m), now, s.durationDays)
		sub.LastName, sub.Username = m.LastName, m.Username
		sub.IsActive = true
		return sub
	}

	joined := now
	if m.JoinedAt != nil {
		joined = *m.JoinedAt
	}
	remaining := s.durationDays - expiry.DaysSince(joined, now)
	sub := models.NewSubscriber(m.TelegramID, firstName(m), joined, remaining)
	sub.LastName, sub.Username = m.LastName, m.Username
	// срок считается от даты вступления, а не от оставшихся дней
	sub.OverrideExpiration(expiry.Expiration(joined, s.durationDays))
	sub.IsActive = remaining > 0
	return sub
}

// updateNames меняет только имена, даты не трогает. Один повтор при конфликте версий.
func (s *SyncService) updateNames(ctx context.Context, sub *models.Subscriber, m gateway.Member) error {
	for attempt := 0; ; attempt++ {
		sub.FirstName = firstName(m)
		sub.LastName = m.LastName
		sub.Username = m.Username
		_, err := s.repo.Update(ctx, sub)
		if err == nil {
			s.forget(ctx, sub.TelegramID)
			return nil
		}
		if attempt > 0 || !errors.Is(err, models.ErrVersionConflict) {
			return err
		}
		if sub, err = s.repo.GetByTelegramID(ctx, m.TelegramID); err != nil {
			return err
		}
	}
}

func (s *SyncService) forget(ctx context.Context, telegramID string) {
	if s.cache == nil {
		return
	}
	key := models.CacheKey(telegramID)
	if err := s.cache.Invalidate(ctx, key); err != nil {
		s.log.Warn("failed to remove from cache", slog.String("key", key), sl.Err(err))
	}
}

func firstName(m gateway.Member) string {
	if name := strings.TrimSpace(m.FirstName); name != "" {
		return name
	}
	return defaultFirstName
}
