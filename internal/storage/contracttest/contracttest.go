// Package contracttest общий набор проверок для реализаций хранилища подписчиков.
// Каждая реализация вызывает Run из своего _test.go.
package contracttest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/teleguard/internal/models"
)

// Store операции хранилища, которые проверяет набор
type Store interface {
	Create(ctx context.Context, sub *models.Subscriber) (*models.Subscriber, error)
	GetByTelegramID(ctx context.Context, telegramID string) (*models.Subscriber, error)
	Update(ctx context.Context, sub *models.Subscriber) (*models.Subscriber, error)
	Delete(ctx context.Context, telegramID string) error
	List(ctx context.Context, filter models.ListFilter, now time.Time) ([]*models.Subscriber, error)
	Stats(ctx context.Context, now time.Time) (models.Stats, error)
	FindActiveAndExpired(ctx context.Context, now time.Time) ([]*models.Subscriber, error)
	FindActiveExpiringInWindow(ctx context.Context, start, end time.Time) ([]*models.Subscriber, error)
	CreateAdmin(ctx context.Context, username, passwordHash string) (int64, error)
	GetAdmin(ctx context.Context, username string) (*models.Admin, error)
}

// Run прогоняет все проверки; newStore должен возвращать пустое хранилище
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("create and get", func(t *testing.T) {
		testCreateAndGet(t, newStore(t), now)
	})
	t.Run("duplicate identity", func(t *testing.T) {
		testDuplicate(t, newStore(t), now)
	})
	t.Run("update bumps version", func(t *testing.T) {
		testUpdateVersion(t, newStore(t), now)
	})
	t.Run("stale version conflicts", func(t *testing.T) {
		testVersionConflict(t, newStore(t), now)
	})
	t.Run("missing records", func(t *testing.T) {
		testNotFound(t, newStore(t), now)
	})
	t.Run("delete", func(t *testing.T) {
		testDelete(t, newStore(t), now)
	})
	t.Run("sweep queries", func(t *testing.T) {
		testSweepQueries(t, newStore(t), now)
	})
	t.Run("list filters and stats", func(t *testing.T) {
		testListAndStats(t, newStore(t), now)
	})
	t.Run("admins", func(t *testing.T) {
		testAdmins(t, newStore(t))
	})
}

func seed(t *testing.T, st Store, id string, reg time.Time, days int, active bool) *models.Subscriber {
	t.Helper()
	sub := models.NewSubscriber(id, "user"+id, reg, days)
	sub.IsActive = active
	out, err := st.Create(context.Background(), sub)
	require.NoError(t, err)
	return out
}

func testCreateAndGet(t *testing.T, st Store, now time.Time) {
	ctx := context.Background()
	handle := "ann_k"
	sub := models.NewSubscriber("100", "Ann", now, 30)
	sub.Username = &handle
	sub.IsActive = true

	created, err := st.Create(ctx, sub)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, int64(1), created.Version)

	got, err := st.GetByTelegramID(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.FirstName)
	require.NotNil(t, got.Username)
	assert.Equal(t, "ann_k", *got.Username)
	assert.Nil(t, got.LastName)
	assert.Equal(t, 30, got.PaymentDurationDays)
	assert.True(t, got.ExpirationDate.Equal(now.AddDate(0, 0, 30)))
	assert.True(t, got.RegistrationDate.Equal(now))
	assert.True(t, got.IsActive)
}

func testDuplicate(t *testing.T, st Store, now time.Time) {
	seed(t, st, "1", now, 1, true)

	_, err := st.Create(context.Background(), models.NewSubscriber("1", "Other", now, 5))
	assert.ErrorIs(t, err, models.ErrDuplicateIdentity)
}

func testUpdateVersion(t *testing.T, st Store, now time.Time) {
	ctx := context.Background()
	sub := seed(t, st, "1", now, 10, true)

	sub.SetDuration(20)
	sub.IsActive = false
	updated, err := st.Update(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, sub.Version+1, updated.Version)

	got, err := st.GetByTelegramID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 20, got.PaymentDurationDays)
	assert.False(t, got.IsActive)
	assert.Equal(t, updated.Version, got.Version)
}

func testVersionConflict(t *testing.T, st Store, now time.Time) {
	ctx := context.Background()
	first := seed(t, st, "1", now, 10, true)
	second := *first

	first.SetDuration(15)
	_, err := st.Update(ctx, first)
	require.NoError(t, err)

	second.IsActive = false
	_, err = st.Update(ctx, &second)
	assert.ErrorIs(t, err, models.ErrVersionConflict)

	got, err := st.GetByTelegramID(ctx, "1")
	require.NoError(t, err)
	assert.True(t, got.IsActive, "stale write must not be applied")
	assert.Equal(t, 15, got.PaymentDurationDays)
}

func testNotFound(t *testing.T, st Store, now time.Time) {
	ctx := context.Background()

	_, err := st.GetByTelegramID(ctx, "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)

	sub := models.NewSubscriber("nope", "Ghost", now, 1)
	sub.Version = 1
	_, err = st.Update(ctx, sub)
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.ErrorIs(t, st.Delete(ctx, "nope"), models.ErrNotFound)
}

func testDelete(t *testing.T, st Store, now time.Time) {
	ctx := context.Background()
	seed(t, st, "1", now, 1, true)

	require.NoError(t, st.Delete(ctx, "1"))
	_, err := st.GetByTelegramID(ctx, "1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func ids(subs []*models.Subscriber) []string {
	out := make([]string, 0, len(subs))
	for _, s := range subs {
		out = append(out, s.TelegramID)
	}
	return out
}

func testSweepQueries(t *testing.T, st Store, now time.Time) {
	ctx := context.Background()
	seed(t, st, "expired-active", now.AddDate(0, 0, -10), 5, true)
	seed(t, st, "expired-exactly-now", now.AddDate(0, 0, -5), 5, true)
	seed(t, st, "expired-inactive", now.AddDate(0, 0, -10), 5, false)
	seed(t, st, "in-3-days", now.Add(time.Hour), 3, true)
	seed(t, st, "in-1-day", now.Add(2*time.Hour), 1, true)
	seed(t, st, "in-3-days-inactive", now.Add(time.Hour), 3, false)
	seed(t, st, "far-future", now, 30, true)

	expired, err := st.FindActiveAndExpired(ctx, now)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"expired-active", "expired-exactly-now"}, ids(expired))

	start3, end3 := now.AddDate(0, 0, 3), now.AddDate(0, 0, 4)
	in3, err := st.FindActiveExpiringInWindow(ctx, start3, end3)
	require.NoError(t, err)
	assert.Equal(t, []string{"in-3-days"}, ids(in3))

	start1, end1 := now.AddDate(0, 0, 1), now.AddDate(0, 0, 2)
	in1, err := st.FindActiveExpiringInWindow(ctx, start1, end1)
	require.NoError(t, err)
	assert.Equal(t, []string{"in-1-day"}, ids(in1))

	edge, err := st.FindActiveExpiringInWindow(ctx, now.AddDate(0, 0, 4).Add(time.Hour), now.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Empty(t, edge, "window end is exclusive")
}

func testListAndStats(t *testing.T, st Store, now time.Time) {
	ctx := context.Background()
	seed(t, st, "a", now, 10, true)
	seed(t, st, "b", now.AddDate(0, 0, -20), 10, true)
	seed(t, st, "c", now.AddDate(0, 0, -20), 10, false)
	seed(t, st, "d", now, 10, false)

	all, err := st.List(ctx, models.ListFilter{}, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c", "b", "a"}, ids(all), "newest first")

	yes, no := true, false
	active, err := st.List(ctx, models.ListFilter{Active: &yes}, now)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids(active))

	expired, err := st.List(ctx, models.ListFilter{Expired: &yes}, now)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b", "c"}, ids(expired))

	inactiveFresh, err := st.List(ctx, models.ListFilter{Active: &no, Expired: &no}, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, ids(inactiveFresh))

	stats, err := st.Stats(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, models.Stats{Total: 4, Active: 1, Inactive: 2, Expired: 2}, stats)
}

func testAdmins(t *testing.T, st Store) {
	ctx := context.Background()

	id, err := st.CreateAdmin(ctx, "root", "hash")
	require.NoError(t, err)
	assert.NotZero(t, id)

	_, err = st.CreateAdmin(ctx, "root", "other")
	assert.ErrorIs(t, err, models.ErrDuplicateIdentity)

	a, err := st.GetAdmin(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, "hash", a.PasswordHash)

	_, err = st.GetAdmin(ctx, "nobody")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
