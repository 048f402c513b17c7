package list

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/teleguard/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) List(ctx context.Context, filter models.ListFilter) ([]*models.Subscriber, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Subscriber), args.Error(1)
}

func filterIs(active, expired *bool) func(models.ListFilter) bool {
	same := func(a, b *bool) bool {
		if a == nil || b == nil {
			return a == nil && b == nil
		}
		return *a == *b
	}
	return func(f models.ListFilter) bool {
		return same(f.Active, active) && same(f.Expired, expired)
	}
}

func TestListHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	yes, no := true, false
	sub := models.NewSubscriber("100", "Ann", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), 30)

	tests := []struct {
		name           string
		query          string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:  "без фильтров",
			query: "",
			setupMock: func(m *MockService) {
				m.On("List", mock.Anything, mock.MatchedBy(filterIs(nil, nil))).
					Return([]*models.Subscriber{sub}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"count":1`,
		},
		{
			name:  "активные и неистёкшие",
			query: "?active=true&expired=false",
			setupMock: func(m *MockService) {
				m.On("List", mock.Anything, mock.MatchedBy(filterIs(&yes, &no))).
					Return([]*models.Subscriber{}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"subscribers":[]`,
		},
		{
			name:  "пустой результат не null",
			query: "?expired=true",
			setupMock: func(m *MockService) {
				m.On("List", mock.Anything, mock.MatchedBy(filterIs(nil, &yes))).Return(nil, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"subscribers":[]`,
		},
		{
			name:           "некорректный фильтр",
			query:          "?active=maybe",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `query parameter active must be true or false`,
		},
		{
			name:  "ошибка хранилища",
			query: "",
			setupMock: func(m *MockService) {
				m.On("List", mock.Anything, mock.Anything).Return(nil, errors.New("db error")).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `could not list subscribers`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)
			handler := New(logger, svc)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/subscribers"+tt.query, nil)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}
