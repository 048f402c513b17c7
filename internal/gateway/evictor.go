package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/teleguard/internal/lib/sl"
)

// Значения по умолчанию для протокола удаления
const (
	DefaultRestrictionWait = 2 * time.Second
	DefaultRestrictionTTL  = 60 * time.Second
)

// MemberStatus состояние участника в группе
type MemberStatus int

const (
	StatusMember MemberStatus = iota
	StatusAbsent
	StatusPrivileged
)

// Restrictor низкоуровневые операции платформы, из которых собирается удаление.
// Restrict удаляет участника и запрещает вход до until, Lift снимает запрет.
type Restrictor interface {
	Lookup(ctx context.Context, telegramID string) (MemberStatus, error)
	Restrict(ctx context.Context, telegramID string, until time.Time) error
	Lift(ctx context.Context, telegramID string) error
}

// Evictor удаляет участника в два шага: ограничение, пауза, снятие ограничения.
// После удаления участник может вернуться по новой пригласительной ссылке.
type Evictor struct {
	r    Restrictor
	wait time.Duration
	ttl  time.Duration
	log  *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEvictor создаёт Evictor. Нулевые wait и ttl заменяются значениями по умолчанию.
func NewEvictor(r Restrictor, wait, ttl time.Duration, log *slog.Logger) *Evictor {
	if wait <= 0 {
		wait = DefaultRestrictionWait
	}
	if ttl <= 0 {
		ttl = DefaultRestrictionTTL
	}
	return &Evictor{
		r:     r,
		wait:  wait,
		ttl:   ttl,
		log:   log,
		now:   time.Now,
		sleep: sleepCtx,
	}
}

// Remove выполняет протокол удаления и классифицирует результат
func (e *Evictor) Remove(ctx context.Context, telegramID string) (RemoveResult, error) {
	const op = "gateway.Evictor.Remove"
	log := e.log.With(slog.String("op", op), slog.String("telegram_id", telegramID))

	status, err := e.r.Lookup(ctx, telegramID)
	if err != nil {
		if res, ok := classify(err); ok {
			return res, nil
		}
		return RemoveError, fmt.Errorf("%s: lookup: %w", op, err)
	}
	switch status {
	case StatusAbsent:
		log.Debug("member is already absent")
		return RemoveAlreadyAbsent, nil
	case StatusPrivileged:
		return RemovePermissionDenied, fmt.Errorf("%s: %w", op, ErrPermissionDenied)
	}

	if err := e.r.Restrict(ctx, telegramID, e.now().Add(e.ttl)); err != nil {
		if res, ok := classify(err); ok {
			if res == RemovePermissionDenied {
				return res, fmt.Errorf("%s: %w", op, err)
			}
			return res, nil
		}
		return RemoveError, fmt.Errorf("%s: restrict: %w", op, err)
	}

	if err := e.sleep(ctx, e.wait); err != nil {
		log.Warn("wait interrupted, restriction will expire on its own", sl.Err(err))
		return RemoveSuccess, nil
	}

	if err := e.r.Lift(ctx, telegramID); err != nil {
		log.Warn("failed to lift restriction, it will expire on its own", sl.Err(err))
	}
	return RemoveSuccess, nil
}

func classify(err error) (RemoveResult, bool) {
	switch {
	case errors.Is(err, ErrMemberAbsent):
		return RemoveAlreadyAbsent, true
	case errors.Is(err, ErrPermissionDenied):
		return RemovePermissionDenied, true
	}
	return RemoveError, false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
