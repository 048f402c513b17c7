// Package memory хранилище подписчиков в памяти процесса.
// Используется в тестах и при запуске без PostgreSQL.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/magabrotheeeer/teleguard/internal/models"
)

// Store потокобезопасное хранилище; наружу отдаются только копии записей
type Store struct {
	mu          sync.RWMutex
	subscribers map[string]*models.Subscriber
	admins      map[string]*models.Admin
	nextID      int64
	now         func() time.Time
}

// New создаёт пустое хранилище
func New() *Store {
	return &Store{
		subscribers: make(map[string]*models.Subscriber),
		admins:      make(map[string]*models.Admin),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func clone(s *models.Subscriber) *models.Subscriber {
	c := *s
	return &c
}

func (m *Store) Create(ctx context.Context, sub *models.Subscriber) (*models.Subscriber, error) {
	const op = "memory.Create"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if sub.PaymentDurationDays < 0 {
		return nil, fmt.Errorf("%s: %w", op, models.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.subscribers[sub.TelegramID]; ok {
		return nil, fmt.Errorf("%s: %w", op, models.ErrDuplicateIdentity)
	}
	m.nextID++
	now := m.now()
	stored := clone(sub)
	stored.ID = m.nextID
	stored.Version = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.subscribers[sub.TelegramID] = stored
	return clone(stored), nil
}

func (m *Store) GetByTelegramID(ctx context.Context, telegramID string) (*models.Subscriber, error) {
	const op = "memory.GetByTelegramID"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.subscribers[telegramID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return clone(s), nil
}

func (m *Store) Update(ctx context.Context, sub *models.Subscriber) (*models.Subscriber, error) {
	const op = "memory.Update"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if sub.PaymentDurationDays < 0 {
		return nil, fmt.Errorf("%s: %w", op, models.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.subscribers[sub.TelegramID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	if cur.Version != sub.Version {
		return nil, fmt.Errorf("%s: %w", op, models.ErrVersionConflict)
	}
	stored := clone(sub)
	stored.ID = cur.ID
	stored.CreatedAt = cur.CreatedAt
	stored.Version = cur.Version + 1
	stored.UpdatedAt = m.now()
	m.subscribers[sub.TelegramID] = stored
	return clone(stored), nil
}

func (m *Store) Delete(ctx context.Context, telegramID string) error {
	const op = "memory.Delete"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.subscribers[telegramID]; !ok {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	delete(m.subscribers, telegramID)
	return nil
}

func (m *Store) List(ctx context.Context, filter models.ListFilter, now time.Time) ([]*models.Subscriber, error) {
	return m.collect(ctx, "memory.List", func(s *models.Subscriber) bool {
		if filter.Active != nil && s.IsActive != *filter.Active {
			return false
		}
		if filter.Expired != nil && s.IsExpired(now) != *filter.Expired {
			return false
		}
		return true
	}, func(a, b *models.Subscriber) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

func (m *Store) Stats(ctx context.Context, now time.Time) (models.Stats, error) {
	const op = "memory.Stats"
	if err := ctx.Err(); err != nil {
		return models.Stats{}, fmt.Errorf("%s: %w", op, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var st models.Stats
	for _, s := range m.subscribers {
		st.Total++
		expired := s.IsExpired(now)
		if s.IsActive && !expired {
			st.Active++
		}
		if !s.IsActive {
			st.Inactive++
		}
		if expired {
			st.Expired++
		}
	}
	return st, nil
}

func (m *Store) FindActiveAndExpired(ctx context.Context, now time.Time) ([]*models.Subscriber, error) {
	return m.collect(ctx, "memory.FindActiveAndExpired", func(s *models.Subscriber) bool {
		return s.IsActive && s.IsExpired(now)
	}, byExpiration)
}

func (m *Store) FindActiveExpiringInWindow(ctx context.Context, start, end time.Time) ([]*models.Subscriber, error) {
	return m.collect(ctx, "memory.FindActiveExpiringInWindow", func(s *models.Subscriber) bool {
		return s.IsActive && !s.ExpirationDate.Before(start) && s.ExpirationDate.Before(end)
	}, byExpiration)
}

func (m *Store) CreateAdmin(ctx context.Context, username, passwordHash string) (int64, error) {
	const op = "memory.CreateAdmin"
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.admins[username]; ok {
		return 0, fmt.Errorf("%s: %w", op, models.ErrDuplicateIdentity)
	}
	m.nextID++
	m.admins[username] = &models.Admin{ID: m.nextID, Username: username, PasswordHash: passwordHash, CreatedAt: m.now()}
	return m.nextID, nil
}

func (m *Store) GetAdmin(ctx context.Context, username string) (*models.Admin, error) {
	const op = "memory.GetAdmin"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.admins[username]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	c := *a
	return &c, nil
}

func (m *Store) collect(ctx context.Context, op string, keep func(*models.Subscriber) bool, less func(a, b *models.Subscriber) bool) ([]*models.Subscriber, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Subscriber
	for _, s := range m.subscribers {
		if keep(s) {
			out = append(out, clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out, nil
}

func byExpiration(a, b *models.Subscriber) bool {
	if !a.ExpirationDate.Equal(b.ExpirationDate) {
		return a.ExpirationDate.Before(b.ExpirationDate)
	}
	return a.ID < b.ID
}
