// Package services реализует периодическую сверку подписчиков с группой:
// удаление истёкших и напоминания о скором окончании.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/teleguard/internal/gateway"
	"github.com/magabrotheeeer/teleguard/internal/lib/clock"
	"github.com/magabrotheeeer/teleguard/internal/lib/expiry"
	"github.com/magabrotheeeer/teleguard/internal/lib/sl"
	"github.com/magabrotheeeer/teleguard/internal/metrics"
	"github.com/magabrotheeeer/teleguard/internal/models"
	notification "github.com/magabrotheeeer/teleguard/internal/services/notification"
	reactivation "github.com/magabrotheeeer/teleguard/internal/services/reactivation"
)

const (
	DefaultInterval     = 6 * time.Hour
	DefaultStartupDelay = 5 * time.Second
	DefaultLockTTL      = 30 * time.Minute

	// LockKey ключ распределённой блокировки сверки
	LockKey = "teleguard:sweep:lock"
)

var (
	// ErrRunInProgress сверка уже идёт в этом процессе
	ErrRunInProgress = errors.New("reconciliation run already in progress")
	// ErrLockHeld сверку выполняет другой экземпляр
	ErrLockHeld = errors.New("reconciliation lock is held by another instance")
)

// SubscriberRepository методы хранилища, нужные сверке.
type SubscriberRepository interface {
	FindActiveAndExpired(ctx context.Context, now time.Time) ([]*models.Subscriber, error)
	FindActiveExpiringInWindow(ctx context.Context, start, end time.Time) ([]*models.Subscriber, error)
	GetByTelegramID(ctx context.Context, telegramID string) (*models.Subscriber, error)
	Update(ctx context.Context, sub *models.Subscriber) (*models.Subscriber, error)
}

type MemberRemover interface {
	RemoveMember(ctx context.Context, telegramID string) (gateway.RemoveResult, error)
}

type Notifier interface {
	Notify(ctx context.Context, sub *models.Subscriber, b notification.Bucket) bool
}

// ReminderLedger отметки об отправленных напоминаниях
type ReminderLedger interface {
	MarkReminded(ctx context.Context, telegramID string, bucket int, expiration time.Time) (bool, error)
	UnmarkReminded(ctx context.Context, telegramID string, bucket int, expiration time.Time) error
}

// Invalidator сброс записи в кэше чтения подписчиков
type Invalidator interface {
	Invalidate(ctx context.Context, key string) error
}

// Locker распределённая блокировка между экземплярами
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Refresh(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) error
}

// Options параметры расписания
type Options struct {
	Interval     time.Duration
	StartupDelay time.Duration
	LockTTL      time.Duration
}

// EvictionReport итоги первого прохода
type EvictionReport struct {
	Selected  int `json:"selected"`
	Notified  int `json:"notified"`
	Evicted   int `json:"evicted"`
	Retained  int `json:"retained"`
	Failed    int `json:"failed"`
	Reinvited int `json:"reinvited"`
}

// ReminderReport итоги второго прохода
type ReminderReport struct {
	Selected int `json:"selected"`
	Sent     int `json:"sent"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// Report итог одного прогона сверки
type Report struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	Duration   time.Duration  `json:"duration_ns"`
	Evictions  EvictionReport `json:"evictions"`
	Reminders  ReminderReport `json:"reminders"`
	PassErrors []string       `json:"pass_errors,omitempty"`
}

// SchedulerService периодическая сверка подписчиков.
type SchedulerService struct {
	repo     SubscriberRepository
	gw       MemberRemover
	notifier Notifier
	clock    clock.Clock
	log      *slog.Logger
	opts     Options

	ledger  ReminderLedger
	locker  Locker
	cache   Invalidator
	router  reactivation.Router
	metrics *metrics.Metrics

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSchedulerService создает новый экземпляр SchedulerService.
// Нулевые поля opts заменяются значениями по умолчанию.
func NewSchedulerService(repo SubscriberRepository, gw MemberRemover, notifier Notifier, clk clock.Clock, log *slog.Logger, opts Options) *SchedulerService {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.StartupDelay < 0 {
		opts.StartupDelay = DefaultStartupDelay
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	return &SchedulerService{
		repo:     repo,
		gw:       gw,
		notifier: notifier,
		clock:    clk,
		log:      log,
		opts:     opts,
	}
}

// WithLedger включает защиту от повторных напоминаний.
func (s *SchedulerService) WithLedger(l ReminderLedger) *SchedulerService {
	s.ledger = l
	return s
}

// WithLocker включает блокировку между экземплярами.
func (s *SchedulerService) WithLocker(l Locker) *SchedulerService {
	s.locker = l
	return s
}

// WithCache сбрасывает кэш подписчика после каждой записи сверки.
func (s *SchedulerService) WithCache(c Invalidator) *SchedulerService {
	s.cache = c
	return s
}

// WithRouter задаёт доставку приглашений для подписчиков, продлённых во время удаления.
func (s *SchedulerService) WithRouter(r reactivation.Router) *SchedulerService {
	s.router = r
	return s
}

func (s *SchedulerService) WithMetrics(m *metrics.Metrics) *SchedulerService {
	s.metrics = m
	return s
}

// Start запускает расписание: первый прогон через StartupDelay, дальше каждые Interval.
// Повторный вызов без Stop ничего не делает.
func (s *SchedulerService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)

	s.log.Info("scheduler started",
		slog.Duration("startup_delay", s.opts.StartupDelay),
		slog.Duration("interval", s.opts.Interval))
}

// Stop останавливает расписание и ждёт выхода из цикла.
// Идущий прогон получает отменённый контекст.
func (s *SchedulerService) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info("scheduler stopped")
}

func (s *SchedulerService) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(s.opts.StartupDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	s.scheduledRun(ctx)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scheduledRun(ctx)
		}
	}
}

func (s *SchedulerService) scheduledRun(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		if errors.Is(err, ErrRunInProgress) || errors.Is(err, ErrLockHeld) {
			s.log.Info("skipping scheduled run", sl.Err(err))
			return
		}
		s.log.Error("scheduled run failed", sl.Err(err))
	}
}

// RunOnce выполняет один прогон: сначала удаление истёкших, затем напоминания.
// Ошибки отдельных подписчиков не прерывают прогон и попадают в Report.
func (s *SchedulerService) RunOnce(ctx context.Context) (rep *Report, err error) {
	const op = "scheduler.RunOnce"

	if !s.running.CompareAndSwap(false, true) {
		s.metrics.IncSweepSkipped("in_progress")
		return nil, fmt.Errorf("%s: %w", op, ErrRunInProgress)
	}
	defer s.running.Store(false)

	if s.locker != nil {
		token, ok, lockErr := s.locker.TryLock(ctx, LockKey, s.opts.LockTTL)
		switch {
		case lockErr != nil:
			s.log.Warn("failed to acquire sweep lock, running without it", sl.Err(lockErr))
		case !ok:
			s.metrics.IncSweepSkipped("lock_held")
			return nil, fmt.Errorf("%s: %w", op, ErrLockHeld)
		default:
			stopRefresh := s.keepLock(ctx, token)
			defer func() {
				stopRefresh()
				// блокировку снимаем даже если ctx уже отменён
				unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				if err := s.locker.Unlock(unlockCtx, LockKey, token); err != nil {
					s.log.Warn("failed to release sweep lock", sl.Err(err))
				}
			}()
		}
	}

	now := s.clock.Now()
	rep = &Report{RunID: uuid.NewString(), StartedAt: now}
	log := s.log.With(slog.String("run_id", rep.RunID))
	started := time.Now()

	defer func() {
		rep.Duration = time.Since(started)
		if r := recover(); r != nil {
			log.Error("reconciliation run panicked", slog.Any("panic", r))
			err = fmt.Errorf("%s: panic: %v", op, r)
			s.metrics.ObserveSweep("panic", rep.Duration)
			return
		}
		result := "ok"
		if len(rep.PassErrors) > 0 {
			result = "partial"
		}
		s.metrics.ObserveSweep(result, rep.Duration)
		log.Info("reconciliation run finished",
			slog.Int("expired", rep.Evictions.Selected),
			slog.Int("evicted", rep.Evictions.Evicted),
			slog.Int("retained", rep.Evictions.Retained),
			slog.Int("reminded", rep.Reminders.Sent),
			slog.Duration("duration", rep.Duration))
	}()

	log.Info("reconciliation run started", slog.Time("now", now))
	s.evictExpired(ctx, log, now, rep)
	s.sendReminders(ctx, log, now, rep)
	return rep, nil
}

// keepLock продлевает блокировку каждую треть LockTTL, пока идёт прогон.
// Возвращённая функция останавливает продление и дожидается его завершения.
func (s *SchedulerService) keepLock(ctx context.Context, token string) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.opts.LockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := s.locker.Refresh(ctx, LockKey, token, s.opts.LockTTL)
				switch {
				case err != nil:
					s.log.Warn("failed to refresh sweep lock", sl.Err(err))
				case !ok:
					s.log.Warn("sweep lock was lost, another instance may start a run")
					return
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// evictExpired первый проход: уведомить, удалить из группы и только после
// успешного удаления снять активность.
func (s *SchedulerService) evictExpired(ctx context.Context, log *slog.Logger, now time.Time, rep *Report) {
	subs, err := s.repo.FindActiveAndExpired(ctx, now)
	if err != nil {
		log.Error("failed to find expired subscribers", sl.Err(err))
		rep.PassErrors = append(rep.PassErrors, err.Error())
		return
	}
	rep.Evictions.Selected = len(subs)
	if len(subs) == 0 {
		log.Info("no expired subscribers found")
		return
	}

	for _, sub := range subs {
		if ctx.Err() != nil {
			log.Warn("run cancelled during eviction pass", sl.Err(ctx.Err()))
			return
		}
		s.evictOne(ctx, log.With(sl.TelegramID(sub.TelegramID)), sub, now, &rep.Evictions)
	}
}

func (s *SchedulerService) evictOne(ctx context.Context, log *slog.Logger, sub *models.Subscriber, now time.Time, rep *EvictionReport) {
	if s.notifier.Notify(ctx, sub, notification.BucketExpired) {
		rep.Notified++
	}

	result, err := s.gw.RemoveMember(ctx, sub.TelegramID)
	s.metrics.IncEviction(result.String())
	if !result.Removed() {
		rep.Retained++
		log.Warn("member not removed, keeping subscriber active", slog.String("result", result.String()), sl.Err(err))
		return
	}

	reinvited, err := s.deactivate(ctx, sub, now)
	if err != nil {
		rep.Failed++
		log.Error("failed to mark subscriber inactive", sl.Err(err))
		return
	}
	if reinvited {
		rep.Reinvited++
		return
	}
	rep.Evicted++
	log.Info("subscriber evicted", slog.String("result", result.String()))
}

// deactivate сохраняет неактивность. При конфликте версий перечитывает запись:
// если её продлили, пока шло удаление, подписчик остаётся активным и получает приглашение.
func (s *SchedulerService) deactivate(ctx context.Context, sub *models.Subscriber, now time.Time) (bool, error) {
	const op = "scheduler.deactivate"

	sub.IsActive = false
	_, err := s.repo.Update(ctx, sub)
	if err == nil {
		s.forget(ctx, sub.TelegramID)
		return false, nil
	}
	if !errors.Is(err, models.ErrVersionConflict) {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	fresh, err := s.repo.GetByTelegramID(ctx, sub.TelegramID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if !fresh.IsActive {
		return false, nil
	}
	if fresh.IsExpired(now) {
		fresh.IsActive = false
		if _, err := s.repo.Update(ctx, fresh); err != nil {
			return false, fmt.Errorf("%s: %w", op, err)
		}
		s.forget(ctx, fresh.TelegramID)
		return false, nil
	}

	s.log.Info("subscriber extended during eviction, sending invite", sl.TelegramID(fresh.TelegramID))
	if s.router != nil {
		ev := models.ReactivationEvent{
			TelegramID:     fresh.TelegramID,
			FirstName:      fresh.DisplayName(),
			DaysAdded:      fresh.DaysRemaining(now),
			ExpirationDate: fresh.ExpirationDate,
		}
		if _, err := s.router.Route(ctx, ev); err != nil {
			s.log.Warn("failed to route invite", sl.TelegramID(fresh.TelegramID), sl.Err(err))
		}
	}
	return true, nil
}

func (s *SchedulerService) forget(ctx context.Context, telegramID string) {
	if s.cache == nil {
		return
	}
	key := models.CacheKey(telegramID)
	if err := s.cache.Invalidate(ctx, key); err != nil {
		s.log.Warn("failed to remove from cache", slog.String("key", key), sl.Err(err))
	}
}

// sendReminders второй проход: напоминания для окон через 3 и через 1 день.
func (s *SchedulerService) sendReminders(ctx context.Context, log *slog.Logger, now time.Time, rep *Report) {
	for _, bucket := range notification.ReminderBuckets {
		start, end := expiry.Window(now, int(bucket))
		subs, err := s.repo.FindActiveExpiringInWindow(ctx, start, end)
		if err != nil {
			log.Error("failed to find expiring subscribers", slog.Int("bucket", int(bucket)), sl.Err(err))
			rep.PassErrors = append(rep.PassErrors, err.Error())
			continue
		}
		rep.Reminders.Selected += len(subs)

		for _, sub := range subs {
			if ctx.Err() != nil {
				log.Warn("run cancelled during reminder pass", sl.Err(ctx.Err()))
				return
			}
			s.remind(ctx, log, sub, bucket, &rep.Reminders)
		}
	}
}

func (s *SchedulerService) remind(ctx context.Context, log *slog.Logger, sub *models.Subscriber, bucket notification.Bucket, rep *ReminderReport) {
	label := strconv.Itoa(int(bucket))

	marked := false
	if s.ledger != nil {
		first, err := s.ledger.MarkReminded(ctx, sub.TelegramID, int(bucket), sub.ExpirationDate)
		switch {
		case err != nil:
			log.Warn("reminder ledger unavailable, sending anyway", sl.TelegramID(sub.TelegramID), sl.Err(err))
		case !first:
			rep.Skipped++
			s.metrics.IncReminder(label, "skipped")
			return
		default:
			marked = true
		}
	}

	if s.notifier.Notify(ctx, sub, bucket) {
		rep.Sent++
		s.metrics.IncReminder(label, "sent")
		return
	}

	rep.Failed++
	s.metrics.IncReminder(label, "failed")
	if marked {
		if err := s.ledger.UnmarkReminded(ctx, sub.TelegramID, int(bucket), sub.ExpirationDate); err != nil {
			log.Warn("failed to clear reminder mark", sl.TelegramID(sub.TelegramID), sl.Err(err))
		}
	}
}
