// Package httpgw адаптер шлюза к REST-сервису, который держит сессию
// аккаунта Telegram и умеет перечислять участников группы.
package httpgw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/magabrotheeeer/teleguard/internal/config"
	"github.com/magabrotheeeer/teleguard/internal/gateway"
	"github.com/magabrotheeeer/teleguard/internal/metrics"
)

const (
	statusMember     = "member"
	statusAbsent     = "absent"
	statusPrivileged = "privileged"
)

type memberStatusResponse struct {
	Status string `json:"status"`
}

type restrictRequest struct {
	Until time.Time `json:"until"`
}

type messageRequest struct {
	TelegramID string `json:"telegram_id"`
	Text       string `json:"text"`
}

type inviteLinkResponse struct {
	Link string `json:"link"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client шлюз к REST-сервису
type Client struct {
	http    *resty.Client
	cb      *gobreaker.CircuitBreaker
	baseURL string
	evictor *gateway.Evictor
	log     *slog.Logger
	metrics *metrics.Metrics
}

// New создаёт клиент. Запросы идут на cfg.SidecarURL.
func New(cfg config.Gateway, log *slog.Logger, m *metrics.Metrics) (*Client, error) {
	const op = "httpgw.New"
	if cfg.SidecarURL == "" {
		return nil, fmt.Errorf("%s: sidecar url is required", op)
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		http: resty.New().
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		cb:      gateway.NewBreaker("httpgw", cfg.Breaker, log),
		baseURL: strings.TrimRight(cfg.SidecarURL, "/"),
		log:     log.With(slog.String("gateway", "http")),
		metrics: m,
	}
	c.evictor = gateway.NewEvictor(c, cfg.RestrictionWait, cfg.RestrictionTTL, c.log)
	return c, nil
}

func (c *Client) RemoveMember(ctx context.Context, telegramID string) (gateway.RemoveResult, error) {
	res, err := c.evictor.Remove(ctx, telegramID)
	c.metrics.IncGatewayCall("remove_member", res.String())
	return res, err
}

func (c *Client) SendMessage(ctx context.Context, telegramID, text string) error {
	const op = "httpgw.SendMessage"
	if _, err := c.do(ctx, "send_message", http.MethodPost, "/messages", messageRequest{TelegramID: telegramID, Text: text}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c *Client) GenerateInviteLink(ctx context.Context) (string, error) {
	const op = "httpgw.GenerateInviteLink"
	body, err := c.do(ctx, "invite_link", http.MethodPost, "/invite-links", nil)
	if err != nil {
		// отказ платформы (нет прав на ссылки) повторять бесполезно
		if !gateway.IsRejected(err) && !errors.Is(err, gateway.ErrUnavailable) {
			err = fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	var resp inviteLinkResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Link == "" {
		return "", fmt.Errorf("%s: %w: invalid invite link response", op, gateway.ErrUnavailable)
	}
	return resp.Link, nil
}

// ListMembers реализует gateway.MemberLister
func (c *Client) ListMembers(ctx context.Context) ([]gateway.Member, error) {
	const op = "httpgw.ListMembers"
	body, err := c.do(ctx, "list_members", http.MethodGet, "/members", nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var members []gateway.Member
	if err := json.Unmarshal(body, &members); err != nil {
		return nil, fmt.Errorf("%s: decode members: %w", op, err)
	}
	return members, nil
}

func (c *Client) Lookup(ctx context.Context, telegramID string) (gateway.MemberStatus, error) {
	body, err := c.do(ctx, "get_member", http.MethodGet, "/members/"+url.PathEscape(telegramID), nil)
	if err != nil {
		return gateway.StatusAbsent, err
	}
	var resp memberStatusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return gateway.StatusAbsent, fmt.Errorf("decode member status: %w", err)
	}
	switch resp.Status {
	case statusAbsent:
		return gateway.StatusAbsent, nil
	case statusPrivileged:
		return gateway.StatusPrivileged, nil
	case statusMember:
		return gateway.StatusMember, nil
	}
	return gateway.StatusAbsent, fmt.Errorf("unknown member status %q", resp.Status)
}

func (c *Client) Restrict(ctx context.Context, telegramID string, until time.Time) error {
	_, err := c.do(ctx, "kick_member", http.MethodPost, "/members/"+url.PathEscape(telegramID)+"/restrict", restrictRequest{Until: until})
	return err
}

func (c *Client) Lift(ctx context.Context, telegramID string) error {
	_, err := c.do(ctx, "unban_member", http.MethodPost, "/members/"+url.PathEscape(telegramID)+"/lift", nil)
	return err
}

// do выполняет запрос через breaker. 5xx и сетевые ошибки учитываются breaker'ом,
// 4xx возвращаются как отказ платформы.
func (c *Client) do(ctx context.Context, operation, method, path string, body any) ([]byte, error) {
	start := time.Now()
	out, err := gateway.Execute(c.cb, func() ([]byte, error) {
		req := c.http.R().SetContext(ctx)
		if body != nil {
			req.SetBody(body)
		}
		resp, err := req.Execute(method, c.baseURL+path)
		if err != nil {
			return nil, err
		}

		status := resp.StatusCode()
		switch {
		case status >= 500:
			return nil, fmt.Errorf("sidecar %s %s: status %d: %s", method, path, status, apiMessage(resp.Body()))
		case status == http.StatusNotFound:
			return nil, &gateway.Rejected{Err: fmt.Errorf("%w: %s", gateway.ErrMemberAbsent, apiMessage(resp.Body()))}
		case status == http.StatusForbidden:
			return nil, &gateway.Rejected{Err: fmt.Errorf("%w: %s", gateway.ErrPermissionDenied, apiMessage(resp.Body()))}
		case status >= 400:
			return nil, &gateway.Rejected{Err: fmt.Errorf("sidecar %s %s: status %d: %s", method, path, status, apiMessage(resp.Body()))}
		}
		return resp.Body(), nil
	})

	outcome := "ok"
	switch {
	case errors.Is(err, gateway.ErrUnavailable):
		outcome = "unavailable"
	case err != nil:
		outcome = "rejected"
	}
	c.metrics.IncGatewayCall(operation, outcome)
	c.log.Debug("sidecar call", slog.String("operation", operation), slog.String("outcome", outcome),
		slog.Int64("latency_ms", time.Since(start).Milliseconds()))
	return out, err
}

func apiMessage(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return string(body)
}
