// Package services доставляет приглашение в группу подписчику,
// которого продление вернуло в активные.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/teleguard/internal/gateway"
	"github.com/magabrotheeeer/teleguard/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/teleguard/internal/lib/sl"
	"github.com/magabrotheeeer/teleguard/internal/metrics"
	"github.com/magabrotheeeer/teleguard/internal/models"
	notification "github.com/magabrotheeeer/teleguard/internal/services/notification"
)

// handleTimeout ограничение на обработку одного сообщения из очереди
const handleTimeout = 30 * time.Second

// Outcome итог доставки приглашения
type Outcome struct {
	Sent   bool   `json:"sent"`
	Queued bool   `json:"queued"`
	Link   string `json:"invite_link,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Router решает, как доставить приглашение
type Router interface {
	Route(ctx context.Context, ev models.ReactivationEvent) (Outcome, error)
}

// InviteGateway операции шлюза, нужные для приглашения
type InviteGateway interface {
	GenerateInviteLink(ctx context.Context) (string, error)
	SendMessage(ctx context.Context, telegramID, text string) error
}

// Deliverer доставляет приглашение сразу через шлюз.
type Deliverer struct {
	gw      InviteGateway
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewDeliverer создает новый экземпляр Deliverer.
func NewDeliverer(gw InviteGateway, log *slog.Logger, m *metrics.Metrics) *Deliverer {
	return &Deliverer{
		gw:      gw,
		log:     log,
		metrics: m,
	}
}

// Route получает ссылку и отправляет её подписчику. Ошибка возвращается
// только когда ссылку получить не удалось; неудачная отправка попадает в Outcome.
func (d *Deliverer) Route(ctx context.Context, ev models.ReactivationEvent) (Outcome, error) {
	const op = "reactivation.Route"
	log := d.log.With(sl.Op(op), sl.TelegramID(ev.TelegramID))

	link, err := d.gw.GenerateInviteLink(ctx)
	if err != nil {
		log.Warn("failed to generate invite link", sl.Err(err))
		if gateway.IsRejected(err) {
			d.metrics.IncReactivation("link_rejected")
		} else {
			d.metrics.IncReactivation("link_unavailable")
		}
		return Outcome{Error: err.Error()}, fmt.Errorf("%s: %w", op, err)
	}

	text := notification.InviteMessage(ev.FirstName, ev.DaysAdded, link)
	if err := d.gw.SendMessage(ctx, ev.TelegramID, text); err != nil {
		log.Warn("failed to send invite", sl.Err(err))
		d.metrics.IncReactivation("send_failed")
		return Outcome{Link: link, Error: err.Error()}, nil
	}

	log.Info("invite sent", slog.Time("expiration", ev.ExpirationDate))
	d.metrics.IncReactivation("sent")
	return Outcome{Sent: true, Link: link}, nil
}

// HandleMessage обработчик очереди приглашений. Битое сообщение и отказ платформы
// отбрасываются, недоступность шлюза возвращает ошибку, чтобы сообщение вернулось в очередь.
func (d *Deliverer) HandleMessage(body []byte) error {
	var ev models.ReactivationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		d.log.Error("failed to unmarshal reactivation event, dropping", sl.Err(err))
		return nil
	}
	if ev.TelegramID == "" {
		d.log.Error("reactivation event without telegram id, dropping")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	_, err := d.Route(ctx, ev)
	if err != nil && (errors.Is(err, gateway.ErrUnavailable) || errors.Is(err, gateway.ErrUninitialized)) {
		return err
	}
	if err != nil {
		d.log.Error("dropping reactivation event", sl.TelegramID(ev.TelegramID), sl.Err(err))
	}
	return nil
}

// Publisher кладёт событие в очередь, приглашение отправит воркер.
type Publisher struct {
	ch         rabbitmq.Channel
	exchange   string
	routingKey string
	log        *slog.Logger
	metrics    *metrics.Metrics
}

// NewPublisher создает новый экземпляр Publisher.
func NewPublisher(ch rabbitmq.Channel, exchange, routingKey string, log *slog.Logger, m *metrics.Metrics) *Publisher {
	return &Publisher{
		ch:         ch,
		exchange:   exchange,
		routingKey: routingKey,
		log:        log,
		metrics:    m,
	}
}

// Route публикует событие.
func (p *Publisher) Route(_ context.Context, ev models.ReactivationEvent) (Outcome, error) {
	const op = "reactivation.Publish"
	if err := rabbitmq.PublishMessage(p.ch, p.exchange, p.routingKey, ev); err != nil {
		p.log.Error("failed to publish reactivation event", sl.TelegramID(ev.TelegramID), sl.Err(err))
		p.metrics.IncReactivation("publish_failed")
		return Outcome{Error: err.Error()}, fmt.Errorf("%s: %w", op, err)
	}
	p.log.Info("reactivation event queued", sl.TelegramID(ev.TelegramID))
	p.metrics.IncReactivation("queued")
	return Outcome{Queued: true}, nil
}
