// Package telegram адаптер шлюза поверх Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/teleguard/internal/config"
	"github.com/magabrotheeeer/teleguard/internal/gateway"
	"github.com/magabrotheeeer/teleguard/internal/metrics"
)

// API методы Bot API, которыми пользуется адаптер
type API interface {
	GetChatMember(config tgbotapi.ChatConfigWithUser) (tgbotapi.ChatMember, error)
	KickChatMember(config tgbotapi.KickChatMemberConfig) (tgbotapi.APIResponse, error)
	UnbanChatMember(config tgbotapi.ChatMemberConfig) (tgbotapi.APIResponse, error)
	GetInviteLink(config tgbotapi.ChatConfig) (string, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client шлюз к группе через бота-администратора
type Client struct {
	api     API
	groupID int64
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker
	evictor *gateway.Evictor
	log     *slog.Logger
	metrics *metrics.Metrics
}

// New подключается к Bot API по токену
func New(cfg config.Gateway, log *slog.Logger, m *metrics.Metrics) (*Client, error) {
	const op = "telegram.New"
	if cfg.BotToken == "" || cfg.GroupID == 0 {
		return nil, fmt.Errorf("%s: bot token and group id are required", op)
	}
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	log.Info("telegram bot authorized", slog.String("bot", api.Self.UserName), slog.Int64("group_id", cfg.GroupID))
	return NewWithAPI(api, cfg, log, m), nil
}

// NewWithAPI собирает клиент поверх готового API
func NewWithAPI(api API, cfg config.Gateway, log *slog.Logger, m *metrics.Metrics) *Client {
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	c := &Client{
		api:     api,
		groupID: cfg.GroupID,
		limiter: rate.NewLimiter(limit, burst),
		cb:      gateway.NewBreaker("telegram", cfg.Breaker, log),
		log:     log.With(slog.String("gateway", "telegram")),
		metrics: m,
	}
	c.evictor = gateway.NewEvictor(c, cfg.RestrictionWait, cfg.RestrictionTTL, c.log)
	return c
}

// RemoveMember удаляет участника в два шага через Evictor.
func (c *Client) RemoveMember(ctx context.Context, telegramID string) (gateway.RemoveResult, error) {
	res, err := c.evictor.Remove(ctx, telegramID)
	c.metrics.IncGatewayCall("remove_member", res.String())
	return res, err
}

// SendMessage отправляет личное сообщение.
func (c *Client) SendMessage(ctx context.Context, telegramID, text string) error {
	const op = "telegram.SendMessage"
	chatID, err := strconv.ParseInt(telegramID, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: invalid telegram id %q: %w", op, telegramID, err)
	}
	_, err = call(ctx, c, "send_message", func() (tgbotapi.Message, error) {
		return c.api.Send(tgbotapi.NewMessage(chatID, text))
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GenerateInviteLink выдаёт основную пригласительную ссылку группы.
func (c *Client) GenerateInviteLink(ctx context.Context) (string, error) {
	const op = "telegram.GenerateInviteLink"
	link, err := call(ctx, c, "invite_link", func() (string, error) {
		return c.api.GetInviteLink(tgbotapi.ChatConfig{ChatID: c.groupID})
	})
	if err != nil {
		// отказ платформы (нет прав на ссылки) повторять бесполезно
		if !gateway.IsRejected(err) && !errors.Is(err, gateway.ErrUnavailable) {
			err = fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if link == "" {
		return "", fmt.Errorf("%s: %w: empty invite link", op, gateway.ErrUnavailable)
	}
	return link, nil
}

// Lookup реализует gateway.Restrictor
func (c *Client) Lookup(ctx context.Context, telegramID string) (gateway.MemberStatus, error) {
	userID, err := userID(telegramID)
	if err != nil {
		return gateway.StatusAbsent, err
	}
	member, err := call(ctx, c, "get_member", func() (tgbotapi.ChatMember, error) {
		return c.api.GetChatMember(tgbotapi.ChatConfigWithUser{ChatID: c.groupID, UserID: userID})
	})
	if err != nil {
		return gateway.StatusAbsent, err
	}
	switch {
	case member.IsCreator() || member.IsAdministrator():
		return gateway.StatusPrivileged, nil
	case member.HasLeft() || member.WasKicked():
		return gateway.StatusAbsent, nil
	}
	return gateway.StatusMember, nil
}

// Restrict исключает участника из группы до until
func (c *Client) Restrict(ctx context.Context, telegramID string, until time.Time) error {
	userID, err := userID(telegramID)
	if err != nil {
		return err
	}
	_, err = call(ctx, c, "kick_member", func() (tgbotapi.APIResponse, error) {
		return c.api.KickChatMember(tgbotapi.KickChatMemberConfig{
			ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: c.groupID, UserID: userID},
			UntilDate:        until.Unix(),
		})
	})
	return err
}

// Lift снимает запрет, чтобы участник мог вернуться по ссылке
func (c *Client) Lift(ctx context.Context, telegramID string) error {
	userID, err := userID(telegramID)
	if err != nil {
		return err
	}
	_, err = call(ctx, c, "unban_member", func() (tgbotapi.APIResponse, error) {
		return c.api.UnbanChatMember(tgbotapi.ChatMemberConfig{ChatID: c.groupID, UserID: userID})
	})
	return err
}

// call ждёт лимитер и выполняет запрос через breaker
func call[T any](ctx context.Context, c *Client, operation string, fn func() (T, error)) (T, error) {
	var zero T
	if err := c.limiter.Wait(ctx); err != nil {
		return zero, err
	}
	v, err := gateway.Execute(c.cb, func() (T, error) {
		v, err := fn()
		if err != nil {
			return v, classify(err)
		}
		return v, nil
	})
	switch {
	case err == nil:
		c.metrics.IncGatewayCall(operation, "ok")
	case errors.Is(err, gateway.ErrUnavailable):
		c.metrics.IncGatewayCall(operation, "unavailable")
	default:
		c.metrics.IncGatewayCall(operation, "rejected")
	}
	return v, err
}

// classify раскладывает ответы Bot API по ошибкам шлюза.
// Bot API сообщает причину только текстом описания.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "user not found", "participant_id_invalid", "user_not_participant", "member not found"):
		return &gateway.Rejected{Err: fmt.Errorf("%w: %v", gateway.ErrMemberAbsent, err)}
	case containsAny(msg, "not enough rights", "chat_admin_required", "can't remove chat owner",
		"user is an administrator", "need administrator rights", "have no rights"):
		return &gateway.Rejected{Err: fmt.Errorf("%w: %v", gateway.ErrPermissionDenied, err)}
	case containsAny(msg, "too many requests", "retry after"):
		return err
	case strings.Contains(msg, "bad request") || strings.Contains(msg, "forbidden"):
		return &gateway.Rejected{Err: err}
	}
	return err
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func userID(telegramID string) (int, error) {
	id, err := strconv.Atoi(telegramID)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram id %q: %w", telegramID, gateway.ErrMemberAbsent)
	}
	return id, nil
}
