package remove

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/teleguard/internal/gateway"
	"github.com/magabrotheeeer/teleguard/internal/models"
	subscriber "github.com/magabrotheeeer/teleguard/internal/services/subscriber"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Delete(ctx context.Context, telegramID string) (*subscriber.DeleteResult, error) {
	args := m.Called(ctx, telegramID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscriber.DeleteResult), args.Error(1)
}

func TestRemoveHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "удалён из группы и из базы",
			setupMock: func(m *MockService) {
				m.On("Delete", mock.Anything, "100").Return(&subscriber.DeleteResult{
					GatewayResult:  gateway.RemoveSuccess,
					GatewayRemoved: true,
				}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"telegram_id":"100","removed_from_group":true,"gateway_result":"success"}}`,
		},
		{
			name: "шлюз не справился, запись удалена",
			setupMock: func(m *MockService) {
				m.On("Delete", mock.Anything, "100").Return(&subscriber.DeleteResult{
					GatewayResult: gateway.RemoveError,
					GatewayError:  "gateway unavailable",
				}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"telegram_id":"100","removed_from_group":false,"gateway_result":"error","gateway_error":"gateway unavailable"}}`,
		},
		{
			name: "не найден",
			setupMock: func(m *MockService) {
				m.On("Delete", mock.Anything, "100").Return(nil, fmt.Errorf("subscriber.Delete: %w", models.ErrNotFound)).Once()
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"status":"Error","error":"not found"}`,
		},
		{
			name: "ошибка хранилища",
			setupMock: func(m *MockService) {
				m.On("Delete", mock.Anything, "100").Return(nil, errors.New("db error")).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"status":"Error","error":"could not delete subscriber"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)
			handler := New(logger, svc)

			req := httptest.NewRequest(http.MethodDelete, "/api/v1/subscribers/100", nil)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("telegram_id", "100")
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			svc.AssertExpectations(t)
		})
	}
}
