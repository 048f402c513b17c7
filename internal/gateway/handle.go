package gateway

import (
	"context"
	"sync"
)

// Handle внедряемая ссылка на шлюз с явным неинициализированным состоянием.
// Шлюз подключается асинхронно при старте, до этого все операции
// возвращают ErrUninitialized.
type Handle struct {
	mu sync.RWMutex
	gw Gateway
}

// NewHandle создаёт пустой Handle
func NewHandle() *Handle {
	return &Handle{}
}

// Set подключает готовый шлюз
func (h *Handle) Set(gw Gateway) {
	h.mu.Lock()
	h.gw = gw
	h.mu.Unlock()
}

// Ready подключён ли шлюз
func (h *Handle) Ready() bool {
	return h.get() != nil
}

func (h *Handle) get() Gateway {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.gw
}

func (h *Handle) RemoveMember(ctx context.Context, telegramID string) (RemoveResult, error) {
	gw := h.get()
	if gw == nil {
		return RemoveError, ErrUninitialized
	}
	return gw.RemoveMember(ctx, telegramID)
}

func (h *Handle) SendMessage(ctx context.Context, telegramID, text string) error {
	gw := h.get()
	if gw == nil {
		return ErrUninitialized
	}
	return gw.SendMessage(ctx, telegramID, text)
}

func (h *Handle) GenerateInviteLink(ctx context.Context) (string, error) {
	gw := h.get()
	if gw == nil {
		return "", ErrUninitialized
	}
	return gw.GenerateInviteLink(ctx)
}

// ListMembers делегирует адаптеру, если он умеет перечислять участников
func (h *Handle) ListMembers(ctx context.Context) ([]Member, error) {
	gw := h.get()
	if gw == nil {
		return nil, ErrUninitialized
	}
	lister, ok := gw.(MemberLister)
	if !ok {
		return nil, ErrUnsupported
	}
	return lister.ListMembers(ctx)
}
