package syncgroup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/teleguard/internal/gateway"
	groupsync "github.com/magabrotheeeer/teleguard/internal/services/groupsync"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Sync(ctx context.Context, mode groupsync.Mode, members []gateway.Member) (groupsync.Result, error) {
	args := m.Called(ctx, mode, members)
	return args.Get(0).(groupsync.Result), args.Error(1)
}

func TestSyncHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		mode           groupsync.Mode
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "без тела участники берутся из шлюза",
			mode: groupsync.ModeFromNow,
			body: "",
			setupMock: func(m *MockService) {
				m.On("Sync", mock.Anything, groupsync.ModeFromNow, []gateway.Member(nil)).
					Return(groupsync.Result{Total: 3, Created: 2, Skipped: 1}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"created":2`,
		},
		{
			name: "список участников в теле",
			mode: groupsync.ModeFromJoinDate,
			body: `{"members":[{"telegram_id":"1","first_name":"Ann","joined_at":"2024-05-01T00:00:00Z"}]}`,
			setupMock: func(m *MockService) {
				m.On("Sync", mock.Anything, groupsync.ModeFromJoinDate, mock.MatchedBy(func(ms []gateway.Member) bool {
					return len(ms) == 1 && ms[0].TelegramID == "1" && ms[0].JoinedAt != nil
				})).Return(groupsync.Result{Total: 1, Created: 1}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"total":1`,
		},
		{
			name:           "некорректный JSON",
			mode:           groupsync.ModeFromNow,
			body:           `{"members":`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `failed to decode request`,
		},
		{
			name: "шлюз не умеет перечислять участников",
			mode: groupsync.ModeFromNow,
			body: "",
			setupMock: func(m *MockService) {
				m.On("Sync", mock.Anything, groupsync.ModeFromNow, []gateway.Member(nil)).
					Return(groupsync.Result{}, fmt.Errorf("groupsync.Sync: %w", gateway.ErrUnsupported)).Once()
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `operation is not supported by gateway`,
		},
		{
			name: "шлюз ещё не подключён",
			mode: groupsync.ModeFromNow,
			body: "",
			setupMock: func(m *MockService) {
				m.On("Sync", mock.Anything, groupsync.ModeFromNow, []gateway.Member(nil)).
					Return(groupsync.Result{}, fmt.Errorf("groupsync.Sync: %w", gateway.ErrUninitialized)).Once()
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   `gateway is not initialized`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)
			handler := New(logger, svc, tt.mode)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/group", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}
