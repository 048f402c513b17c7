package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/teleguard/internal/gateway"
	"github.com/magabrotheeeer/teleguard/internal/lib/clock"
	"github.com/magabrotheeeer/teleguard/internal/models"
	"github.com/magabrotheeeer/teleguard/internal/storage/memory"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) Create(ctx context.Context, sub *models.Subscriber) (*models.Subscriber, error) {
	args := m.Called(ctx, sub)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscriber), args.Error(1)
}
func (m *RepoMock) GetByTelegramID(ctx context.Context, telegramID string) (*models.Subscriber, error) {
	args := m.Called(ctx, telegramID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// копия, как у настоящего хранилища
	s := *args.Get(0).(*models.Subscriber)
	return &s, args.Error(1)
}
func (m *RepoMock) Update(ctx context.Context, sub *models.Subscriber) (*models.Subscriber, error) {
	args := m.Called(ctx, sub)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscriber), args.Error(1)
}
func (m *RepoMock) Delete(ctx context.Context, telegramID string) error {
	return m.Called(ctx, telegramID).Error(0)
}
func (m *RepoMock) List(ctx context.Context, filter models.ListFilter, now time.Time) ([]*models.Subscriber, error) {
	args := m.Called(ctx, filter, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Subscriber), args.Error(1)
}
func (m *RepoMock) Stats(ctx context.Context, now time.Time) (models.Stats, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(models.Stats), args.Error(1)
}

type CacheMock struct{ mock.Mock }

func (m *CacheMock) Get(ctx context.Context, key string, result any) (bool, error) {
	args := m.Called(ctx, key, result)
	return args.Bool(0), args.Error(1)
}
func (m *CacheMock) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	return m.Called(ctx, key, value, expiration).Error(0)
}
func (m *CacheMock) Invalidate(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

type RemoverMock struct{ mock.Mock }

func (m *RemoverMock) RemoveMember(ctx context.Context, telegramID string) (gateway.RemoveResult, error) {
	args := m.Called(ctx, telegramID)
	return args.Get(0).(gateway.RemoveResult), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	if testing.Verbose() {
		return slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newMemoryService(t *testing.T) (*SubscriberService, *memory.Store, *clock.Fixed) {
	t.Helper()
	store := memory.New()
	clk := clock.NewFixed(testNow)
	return NewSubscriberService(store, nil, nil, clk, newNoopLogger()), store, clk
}

func TestCreate(t *testing.T) {
	past := testNow.AddDate(0, 0, -40)
	explicit := testNow.AddDate(0, 0, 100)
	inactive := false

	tests := []struct {
		name       string
		req        CreateRequest
		wantErr    error
		wantExp    time.Time
		wantActive bool
	}{
		{
			name:       "defaults registration to now",
			req:        CreateRequest{TelegramID: "1", FirstName: "Ann", DurationDays: 30},
			wantExp:    testNow.AddDate(0, 0, 30),
			wantActive: true,
		},
		{
			name:       "past registration is already expired and inactive",
			req:        CreateRequest{TelegramID: "2", FirstName: "Bob", DurationDays: 30, RegistrationDate: &past},
			wantExp:    past.AddDate(0, 0, 30),
			wantActive: false,
		},
		{
			name:       "explicit expiration overrides derivation",
			req:        CreateRequest{TelegramID: "3", FirstName: "Cid", DurationDays: 1, ExpirationDate: &explicit},
			wantExp:    explicit,
			wantActive: true,
		},
		{
			name:       "explicit inactive flag",
			req:        CreateRequest{TelegramID: "4", FirstName: "Dan", DurationDays: 5, IsActive: &inactive},
			wantExp:    testNow.AddDate(0, 0, 5),
			wantActive: false,
		},
		{
			name:    "negative duration",
			req:     CreateRequest{TelegramID: "5", FirstName: "Eve", DurationDays: -1},
			wantErr: models.ErrInvalidArgument,
		},
		{
			name:    "empty telegram id",
			req:     CreateRequest{TelegramID: "  ", FirstName: "Eve", DurationDays: 1},
			wantErr: models.ErrInvalidArgument,
		},
		{
			name:    "empty first name",
			req:     CreateRequest{TelegramID: "6", DurationDays: 1},
			wantErr: models.ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newMemoryService(t)
			sub, err := svc.Create(context.Background(), tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, sub.ExpirationDate.Equal(tt.wantExp), "expiration %v, want %v", sub.ExpirationDate, tt.wantExp)
			assert.Equal(t, tt.wantActive, sub.IsActive)
			assert.Equal(t, int64(1), sub.Version)
		})
	}
}

func TestCreate_Duplicate(t *testing.T) {
	svc, _, _ := newMemoryService(t)
	_, err := svc.Create(context.Background(), CreateRequest{TelegramID: "1", FirstName: "Ann", DurationDays: 1})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateRequest{TelegramID: "1", FirstName: "Ann", DurationDays: 1})
	assert.ErrorIs(t, err, models.ErrDuplicateIdentity)
}

func TestExtend(t *testing.T) {
	ctx := context.Background()

	t.Run("active subscriber gets more days without event", func(t *testing.T) {
		svc, _, _ := newMemoryService(t)
		_, err := svc.Create(ctx, CreateRequest{TelegramID: "1", FirstName: "Ann", DurationDays: 10})
		require.NoError(t, err)

		sub, ev, err := svc.Extend(ctx, "1", 5)
		require.NoError(t, err)
		assert.Nil(t, ev)
		assert.Equal(t, 15, sub.PaymentDurationDays)
		assert.True(t, sub.ExpirationDate.Equal(testNow.AddDate(0, 0, 15)))
		assert.Equal(t, int64(2), sub.Version)
	})

	t.Run("inactive subscriber with future expiration is reactivated", func(t *testing.T) {
		svc, _, _ := newMemoryService(t)
		reg := testNow.AddDate(0, 0, -40)
		_, err := svc.Create(ctx, CreateRequest{TelegramID: "1", FirstName: "Ann", DurationDays: 30, RegistrationDate: &reg})
		require.NoError(t, err)

		sub, ev, err := svc.Extend(ctx, "1", 30)
		require.NoError(t, err)
		require.NotNil(t, ev)
		assert.True(t, sub.IsActive)
		assert.Equal(t, "1", ev.TelegramID)
		assert.Equal(t, "Ann", ev.FirstName)
		assert.Equal(t, 30, ev.DaysAdded)
		assert.True(t, ev.ExpirationDate.Equal(reg.AddDate(0, 0, 60)))
	})

	t.Run("inactive subscriber still expired stays inactive", func(t *testing.T) {
		svc, _, _ := newMemoryService(t)
		reg := testNow.AddDate(0, 0, -40)
		_, err := svc.Create(ctx, CreateRequest{TelegramID: "1", FirstName: "Ann", DurationDays: 30, RegistrationDate: &reg})
		require.NoError(t, err)

		sub, ev, err := svc.Extend(ctx, "1", 5)
		require.NoError(t, err)
		assert.Nil(t, ev)
		assert.False(t, sub.IsActive)
	})

	t.Run("negative delta clamps at zero", func(t *testing.T) {
		svc, _, _ := newMemoryService(t)
		_, err := svc.Create(ctx, CreateRequest{TelegramID: "1", FirstName: "Ann", DurationDays: 3})
		require.NoError(t, err)

		sub, ev, err := svc.Extend(ctx, "1", -10)
		require.NoError(t, err)
		assert.Nil(t, ev)
		assert.Equal(t, 0, sub.PaymentDurationDays)
		assert.True(t, sub.ExpirationDate.Equal(testNow))
		assert.True(t, sub.IsActive, "activity is left to the scheduler")
	})

	t.Run("round trip restores duration and expiration", func(t *testing.T) {
		svc, _, _ := newMemoryService(t)
		reg := testNow.AddDate(0, 0, -3).Add(7 * time.Hour)
		created, err := svc.Create(ctx, CreateRequest{TelegramID: "1", FirstName: "Ann", DurationDays: 20, RegistrationDate: &reg})
		require.NoError(t, err)

		for _, n := range []int{1, 7, 365} {
			_, ev, err := svc.Extend(ctx, "1", n)
			require.NoError(t, err)
			assert.Nil(t, ev)

			back, ev, err := svc.Extend(ctx, "1", -n)
			require.NoError(t, err)
			assert.Nil(t, ev)
			assert.Equal(t, created.PaymentDurationDays, back.PaymentDurationDays, "n=%d", n)
			assert.True(t, back.ExpirationDate.Equal(created.ExpirationDate), "n=%d: got %s", n, back.ExpirationDate)
			assert.True(t, back.RegistrationDate.Equal(reg))
		}
	})

	t.Run("zero delta is rejected", func(t *testing.T) {
		svc, _, _ := newMemoryService(t)
		_, _, err := svc.Extend(ctx, "1", 0)
		assert.ErrorIs(t, err, models.ErrInvalidArgument)
	})

	t.Run("unknown subscriber", func(t *testing.T) {
		svc, _, _ := newMemoryService(t)
		_, _, err := svc.Extend(ctx, "nope", 3)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestReduce(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		initial  int
		inactive bool
		days     int
		wantDays int
		wantErr  error
	}{
		{name: "partial", initial: 30, days: 10, wantDays: 20},
		{name: "clamps at zero", initial: 5, days: 10, wantDays: 0},
		{name: "inactive with future expiration stays inactive", initial: 30, inactive: true, days: 10, wantDays: 20},
		{name: "zero days rejected", initial: 5, days: 0, wantErr: models.ErrInvalidArgument},
		{name: "negative days rejected", initial: 5, days: -2, wantErr: models.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, st, _ := newMemoryService(t)
			active := !tt.inactive
			_, err := svc.Create(ctx, CreateRequest{TelegramID: "1", FirstName: "Ann", DurationDays: tt.initial, IsActive: &active})
			require.NoError(t, err)

			sub, err := svc.Reduce(ctx, "1", tt.days)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDays, sub.PaymentDurationDays)
			assert.True(t, sub.ExpirationDate.Equal(testNow.AddDate(0, 0, tt.wantDays)))
			assert.Equal(t, active, sub.IsActive, "reduce never changes activity")

			stored, err := st.GetByTelegramID(ctx, "1")
			require.NoError(t, err)
			assert.Equal(t, active, stored.IsActive)
		})
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	newReg := testNow.AddDate(0, 0, -5)
	explicit := testNow.AddDate(1, 0, 0)
	days := 10
	neg := -1
	name := "Annie"
	blank := " "

	t.Run("registration and duration recompute expiration", func(t *testing.T) {
		svc, _, _ := newMemoryService(t)
		_, err := svc.Create(ctx, CreateRequest{TelegramID: "1", FirstName: "Ann", DurationDays: 30})
		require.NoError(t, err)

		sub, err := svc.Update(ctx, "1", models.SubscriberPatch{RegistrationDate: &newReg, PaymentDurationDays: &days, FirstName: &name})
		require.NoError(t, err)
		assert.True(t, sub.ExpirationDate.Equal(newReg.AddDate(0, 0, 10)))
		assert.Equal(t, "Annie", sub.FirstName)
	})

	t.Run("explicit expiration wins", func(t *testing.T) {
		svc, _, _ := newMemoryService(t)
		_, err := svc.Create(ctx, CreateRequest{TelegramID: "1", FirstName: "Ann", DurationDays: 30})
		require.NoError(t, err)

		sub, err := svc.Update(ctx, "1", models.SubscriberPatch{PaymentDurationDays: &days, ExpirationDate: &explicit})
		require.NoError(t, err)
		assert.True(t, sub.ExpirationDate.Equal(explicit))
		assert.Equal(t, 10, sub.PaymentDurationDays)
	})

	t.Run("invalid patch", func(t *testing.T) {
		svc, _, _ := newMemoryService(t)
		_, err := svc.Update(ctx, "1", models.SubscriberPatch{PaymentDurationDays: &neg})
		assert.ErrorIs(t, err, models.ErrInvalidArgument)
		_, err = svc.Update(ctx, "1", models.SubscriberPatch{FirstName: &blank})
		assert.ErrorIs(t, err, models.ErrInvalidArgument)
	})
}

func TestMutate_RetriesOnVersionConflict(t *testing.T) {
	ctx := context.Background()
	repo := new(RepoMock)
	cache := new(CacheMock)
	stored := models.NewSubscriber("1", "Ann", testNow, 10)
	stored.IsActive = true
	stored.Version = 3

	repo.On("GetByTelegramID", mock.Anything, "1").Return(stored, nil)
	repo.On("Update", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("storage.Update: %w", models.ErrVersionConflict)).Once()
	repo.On("Update", mock.Anything, mock.Anything).Return(stored, nil).Once()
	cache.On("Invalidate", mock.Anything, "subscriber:1").Return(nil)

	svc := NewSubscriberService(repo, cache, nil, clock.NewFixed(testNow), newNoopLogger())
	_, err := svc.Reduce(ctx, "1", 1)
	require.NoError(t, err)

	repo.AssertNumberOfCalls(t, "GetByTelegramID", 2)
	repo.AssertNumberOfCalls(t, "Update", 2)
	cache.AssertExpectations(t)
}

func TestMutate_GivesUpAfterRetries(t *testing.T) {
	repo := new(RepoMock)
	stored := models.NewSubscriber("1", "Ann", testNow, 10)

	repo.On("GetByTelegramID", mock.Anything, "1").Return(stored, nil)
	repo.On("Update", mock.Anything, mock.Anything).Return(nil, models.ErrVersionConflict)

	svc := NewSubscriberService(repo, nil, nil, clock.NewFixed(testNow), newNoopLogger())
	_, _, err := svc.Extend(context.Background(), "1", 1)
	assert.ErrorIs(t, err, models.ErrVersionConflict)
	repo.AssertNumberOfCalls(t, "Update", conflictRetries)
}

func TestGet_Cache(t *testing.T) {
	ctx := context.Background()
	sub := models.NewSubscriber("1", "Ann", testNow, 10)

	tests := []struct {
		name       string
		setupMocks func(repo *RepoMock, cache *CacheMock)
		wantErr    error
	}{
		{
			name: "cache hit skips repository",
			setupMocks: func(repo *RepoMock, cache *CacheMock) {
				cache.On("Get", mock.Anything, "subscriber:1", mock.Anything).Return(true, nil)
			},
		},
		{
			name: "cache miss reads repository and stores",
			setupMocks: func(repo *RepoMock, cache *CacheMock) {
				cache.On("Get", mock.Anything, "subscriber:1", mock.Anything).Return(false, nil)
				repo.On("GetByTelegramID", mock.Anything, "1").Return(sub, nil)
				cache.On("Set", mock.Anything, "subscriber:1", mock.Anything, time.Hour).Return(nil)
			},
		},
		{
			name: "cache error falls back to repository",
			setupMocks: func(repo *RepoMock, cache *CacheMock) {
				cache.On("Get", mock.Anything, "subscriber:1", mock.Anything).Return(false, errors.New("redis down"))
				repo.On("GetByTelegramID", mock.Anything, "1").Return(sub, nil)
				cache.On("Set", mock.Anything, "subscriber:1", mock.Anything, time.Hour).Return(errors.New("redis down"))
			},
		},
		{
			name: "not found",
			setupMocks: func(repo *RepoMock, cache *CacheMock) {
				cache.On("Get", mock.Anything, "subscriber:1", mock.Anything).Return(false, nil)
				repo.On("GetByTelegramID", mock.Anything, "1").Return(nil, models.ErrNotFound)
			},
			wantErr: models.ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			cache := new(CacheMock)
			tt.setupMocks(repo, cache)

			svc := NewSubscriberService(repo, cache, nil, clock.NewFixed(testNow), newNoopLogger())
			_, err := svc.Get(ctx, "1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			repo.AssertExpectations(t)
			cache.AssertExpectations(t)
		})
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		result      gateway.RemoveResult
		gwErr       error
		wantRemoved bool
		wantGwError bool
	}{
		{name: "removed from group", result: gateway.RemoveSuccess, wantRemoved: true},
		{name: "already absent", result: gateway.RemoveAlreadyAbsent, wantRemoved: true},
		{name: "permission denied", result: gateway.RemovePermissionDenied, gwErr: gateway.ErrPermissionDenied, wantGwError: true},
		{name: "gateway not ready", result: gateway.RemoveError, gwErr: gateway.ErrUninitialized, wantGwError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			gw := new(RemoverMock)
			gw.On("RemoveMember", mock.Anything, "1").Return(tt.result, tt.gwErr)
			svc := NewSubscriberService(store, nil, gw, clock.NewFixed(testNow), newNoopLogger())

			_, err := svc.Create(ctx, CreateRequest{TelegramID: "1", FirstName: "Ann", DurationDays: 1})
			require.NoError(t, err)

			res, err := svc.Delete(ctx, "1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantRemoved, res.GatewayRemoved)
			assert.Equal(t, tt.result, res.GatewayResult)
			assert.Equal(t, tt.wantGwError, res.GatewayError != "")
			assert.Equal(t, "1", res.Subscriber.TelegramID)

			_, err = store.GetByTelegramID(ctx, "1")
			assert.ErrorIs(t, err, models.ErrNotFound, "record is deleted regardless of gateway outcome")
			gw.AssertExpectations(t)
		})
	}
}

func TestDelete_NotFoundSkipsGateway(t *testing.T) {
	gw := new(RemoverMock)
	svc := NewSubscriberService(memory.New(), nil, gw, clock.NewFixed(testNow), newNoopLogger())

	_, err := svc.Delete(context.Background(), "ghost")
	assert.ErrorIs(t, err, models.ErrNotFound)
	gw.AssertNotCalled(t, "RemoveMember", mock.Anything, mock.Anything)
}

func TestListAndStats(t *testing.T) {
	ctx := context.Background()
	svc, _, clk := newMemoryService(t)
	_, err := svc.Create(ctx, CreateRequest{TelegramID: "1", FirstName: "Ann", DurationDays: 1})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateRequest{TelegramID: "2", FirstName: "Bob", DurationDays: 10})
	require.NoError(t, err)

	clk.Advance(48 * time.Hour)

	yes := true
	expired, err := svc.List(ctx, models.ListFilter{Expired: &yes})
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "1", expired[0].TelegramID)

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Stats{Total: 2, Active: 1, Inactive: 0, Expired: 1}, st)
}
