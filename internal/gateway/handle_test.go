package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubGateway struct {
	removed []string
	members []Member
}

func (s *stubGateway) RemoveMember(_ context.Context, id string) (RemoveResult, error) {
	s.removed = append(s.removed, id)
	return RemoveSuccess, nil
}

func (s *stubGateway) SendMessage(context.Context, string, string) error { return nil }

func (s *stubGateway) GenerateInviteLink(context.Context) (string, error) {
	return "https://t.me/+invite", nil
}

type listingGateway struct{ stubGateway }

func (l *listingGateway) ListMembers(context.Context) ([]Member, error) {
	return l.members, nil
}

func TestHandle_Uninitialized(t *testing.T) {
	ctx := context.Background()
	h := NewHandle()

	assert.False(t, h.Ready())

	res, err := h.RemoveMember(ctx, "1")
	assert.Equal(t, RemoveError, res)
	assert.ErrorIs(t, err, ErrUninitialized)
	assert.ErrorIs(t, h.SendMessage(ctx, "1", "hi"), ErrUninitialized)
	_, err = h.GenerateInviteLink(ctx)
	assert.ErrorIs(t, err, ErrUninitialized)
	_, err = h.ListMembers(ctx)
	assert.ErrorIs(t, err, ErrUninitialized)
}

func TestHandle_Delegates(t *testing.T) {
	ctx := context.Background()
	gw := &stubGateway{}
	h := NewHandle()
	h.Set(gw)

	assert.True(t, h.Ready())
	res, err := h.RemoveMember(ctx, "7")
	assert.NoError(t, err)
	assert.Equal(t, RemoveSuccess, res)
	assert.Equal(t, []string{"7"}, gw.removed)

	link, err := h.GenerateInviteLink(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "https://t.me/+invite", link)

	_, err = h.ListMembers(ctx)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestHandle_ListMembers(t *testing.T) {
	gw := &listingGateway{stubGateway{members: []Member{{TelegramID: "1"}}}}
	h := NewHandle()
	h.Set(gw)

	members, err := h.ListMembers(context.Background())
	assert.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestRemoveResult(t *testing.T) {
	assert.True(t, RemoveSuccess.Removed())
	assert.True(t, RemoveAlreadyAbsent.Removed())
	assert.False(t, RemovePermissionDenied.Removed())
	assert.False(t, RemoveError.Removed())
	assert.Equal(t, "already_absent", RemoveAlreadyAbsent.String())
}
