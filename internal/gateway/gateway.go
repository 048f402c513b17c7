// Package gateway описывает контракт доступа к закрытой группе:
// удаление участника, личные сообщения и пригласительные ссылки.
// Конкретные адаптеры лежат в подпакетах telegram и httpgw.
package gateway

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUninitialized шлюз ещё не подключён
	ErrUninitialized = errors.New("gateway is not initialized")
	// ErrUnavailable платформа недоступна или не выдала ответ
	ErrUnavailable = errors.New("gateway unavailable")
	// ErrMemberAbsent участника нет в группе
	ErrMemberAbsent = errors.New("member is not in the group")
	// ErrPermissionDenied у бота нет прав на операцию
	ErrPermissionDenied = errors.New("permission denied")
	// ErrUnsupported адаптер не умеет выполнять операцию
	ErrUnsupported = errors.New("operation is not supported by gateway")
)

// RemoveResult итог попытки удалить участника из группы
type RemoveResult int

const (
	RemoveError RemoveResult = iota
	RemoveSuccess
	RemoveAlreadyAbsent
	RemovePermissionDenied
)

func (r RemoveResult) String() string {
	switch r {
	case RemoveSuccess:
		return "success"
	case RemoveAlreadyAbsent:
		return "already_absent"
	case RemovePermissionDenied:
		return "permission_denied"
	default:
		return "error"
	}
}

// Removed true, если участника в группе больше нет
func (r RemoveResult) Removed() bool {
	return r == RemoveSuccess || r == RemoveAlreadyAbsent
}

// Gateway операции над группой, которыми пользуются сервисы
type Gateway interface {
	// RemoveMember удаляет участника, не блокируя ему повторный вход по ссылке.
	RemoveMember(ctx context.Context, telegramID string) (RemoveResult, error)
	// SendMessage отправляет личное сообщение.
	SendMessage(ctx context.Context, telegramID, text string) error
	// GenerateInviteLink выдаёт пригласительную ссылку в группу.
	GenerateInviteLink(ctx context.Context) (string, error)
}

// Member участник группы, как его видит платформа
type Member struct {
	TelegramID   string     `json:"telegram_id"`
	FirstName    string     `json:"first_name"`
	LastName     *string    `json:"last_name,omitempty"`
	Username     *string    `json:"username,omitempty"`
	IsBot        bool       `json:"is_bot"`
	IsDeleted    bool       `json:"is_deleted"`
	IsPrivileged bool       `json:"is_privileged"` // администратор или создатель
	JoinedAt     *time.Time `json:"joined_at,omitempty"`
}

// MemberLister необязательная возможность адаптера перечислить участников группы
type MemberLister interface {
	ListMembers(ctx context.Context) ([]Member, error)
}
