package login

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/teleguard/internal/http/middlewarectx"
	services "github.com/magabrotheeeer/teleguard/internal/services/auth"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Login(ctx context.Context, username, password string) (string, error) {
	args := m.Called(ctx, username, password)
	return args.String(0), args.Error(1)
}

func TestLoginHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
		wantCookie     bool
	}{
		{
			name: "успешный вход",
			body: `{"username":"root","password":"password123"}`,
			setupMock: func(m *MockService) {
				m.On("Login", mock.Anything, "root", "password123").Return("jwt-token", nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"token":"jwt-token"`,
			wantCookie:     true,
		},
		{
			name:           "некорректный JSON",
			body:           `{`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `"error":"invalid request body"`,
		},
		{
			name:           "пустой пароль",
			body:           `{"username":"root"}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `field Password is a required field`,
		},
		{
			name: "неверный пароль",
			body: `{"username":"root","password":"nope"}`,
			setupMock: func(m *MockService) {
				m.On("Login", mock.Anything, "root", "nope").
					Return("", fmt.Errorf("services.auth.Login: %w", services.ErrInvalidCredentials)).Once()
			},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `"error":"invalid credentials"`,
		},
		{
			name: "ошибка хранилища",
			body: `{"username":"root","password":"password123"}`,
			setupMock: func(m *MockService) {
				m.On("Login", mock.Anything, "root", "password123").Return("", errors.New("db down")).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `"error":"internal error"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)
			handler := New(logger, svc, time.Hour, false)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)

			cookies := w.Result().Cookies()
			if tt.wantCookie {
				require.Len(t, cookies, 1)
				assert.Equal(t, middlewarectx.CookieName, cookies[0].Name)
				assert.Equal(t, "jwt-token", cookies[0].Value)
				assert.True(t, cookies[0].HttpOnly)
				assert.Equal(t, 3600, cookies[0].MaxAge)
			} else {
				assert.Empty(t, cookies)
			}
			svc.AssertExpectations(t)
		})
	}
}
