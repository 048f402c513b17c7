package provider

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/teleguard/internal/config"
	"github.com/magabrotheeeer/teleguard/internal/gateway"
	"github.com/magabrotheeeer/teleguard/internal/gateway/httpgw"
	"github.com/magabrotheeeer/teleguard/internal/metrics"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew(t *testing.T) {
	_, err := New(config.Gateway{}, newNoopLogger(), nil)
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = New(config.Gateway{Kind: "smoke-signals"}, newNoopLogger(), nil)
	assert.Error(t, err)

	_, err = New(config.Gateway{Kind: KindTelegram}, newNoopLogger(), nil)
	assert.Error(t, err, "token and group are required")

	gw, err := New(config.Gateway{Kind: "HTTP", SidecarURL: "http://localhost:9"}, newNoopLogger(), nil)
	require.NoError(t, err)
	assert.IsType(t, &httpgw.Client{}, gw)
}

type nopGateway struct{}

func (nopGateway) RemoveMember(context.Context, string) (gateway.RemoveResult, error) {
	return gateway.RemoveSuccess, nil
}
func (nopGateway) SendMessage(context.Context, string, string) error { return nil }
func (nopGateway) GenerateInviteLink(context.Context) (string, error) {
	return "link", nil
}

func TestInit_RetriesUntilReady(t *testing.T) {
	handle := gateway.NewHandle()
	attempts := 0
	factory := func(config.Gateway, *slog.Logger, *metrics.Metrics) (gateway.Gateway, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("telegram is down")
		}
		return nopGateway{}, nil
	}

	err := Init(context.Background(), handle, config.Gateway{InitRetries: 5, InitRetryDelay: time.Millisecond}, newNoopLogger(), nil, factory)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.True(t, handle.Ready())
}

func TestInit_GivesUp(t *testing.T) {
	handle := gateway.NewHandle()
	factory := func(config.Gateway, *slog.Logger, *metrics.Metrics) (gateway.Gateway, error) {
		return nil, errors.New("bad token")
	}

	err := Init(context.Background(), handle, config.Gateway{InitRetries: 2, InitRetryDelay: time.Millisecond}, newNoopLogger(), nil, factory)
	assert.ErrorContains(t, err, "bad token")
	assert.False(t, handle.Ready())

	_, err = handle.RemoveMember(context.Background(), "1")
	assert.ErrorIs(t, err, gateway.ErrUninitialized)
}

func TestInit_Disabled(t *testing.T) {
	handle := gateway.NewHandle()
	err := Init(context.Background(), handle, config.Gateway{InitRetries: 3}, newNoopLogger(), nil, nil)
	assert.ErrorIs(t, err, ErrDisabled)
	assert.False(t, handle.Ready())
}

func TestInit_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	factory := func(config.Gateway, *slog.Logger, *metrics.Metrics) (gateway.Gateway, error) {
		return nil, errors.New("down")
	}
	err := Init(ctx, gateway.NewHandle(), config.Gateway{InitRetries: 3, InitRetryDelay: time.Hour}, newNoopLogger(), nil, factory)
	assert.ErrorIs(t, err, context.Canceled)
}
