// Package services содержит политику уведомлений подписчиков:
// тексты напоминаний по корзинам и отправку через шлюз.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/teleguard/internal/lib/sl"
	"github.com/magabrotheeeer/teleguard/internal/models"
)

// Bucket число оставшихся дней, для которого есть отдельное сообщение
type Bucket int

const (
	BucketExpired   Bucket = 0
	BucketOneDay    Bucket = 1
	BucketThreeDays Bucket = 3
)

// ReminderBuckets корзины напоминаний в порядке обработки
var ReminderBuckets = []Bucket{BucketThreeDays, BucketOneDay}

// Message текст уведомления для корзины. false, если корзина неизвестна.
func Message(b Bucket, displayName string) (string, bool) {
	switch b {
	case BucketThreeDays:
		return fmt.Sprintf("⚠️ %s, ваша подписка истекает через 3 дня. Пожалуйста, продлите оплату.", displayName), true
	case BucketOneDay:
		return fmt.Sprintf("🚨 %s, ваша подписка истекает завтра. Продлите её как можно скорее.", displayName), true
	case BucketExpired:
		return fmt.Sprintf("❌ %s, ваша подписка истекла. Вы будете удалены из группы.", displayName), true
	}
	return "", false
}

// InviteMessage текст с пригласительной ссылкой после продления
func InviteMessage(displayName string, daysAdded int, link string) string {
	return fmt.Sprintf("🎉 %s, ваша подписка продлена на %d дн.\n\n"+
		"✅ Вернуться в группу можно по ссылке:\n%s\n\n"+
		"📅 Новая дата окончания уже учтена.", displayName, daysAdded, link)
}

// Sender отправка личного сообщения
type Sender interface {
	SendMessage(ctx context.Context, telegramID, text string) error
}

// Notifier отправляет уведомления без повторов; ошибки только логируются
type Notifier struct {
	sender Sender
	log    *slog.Logger
}

// NewNotifier создает новый экземпляр Notifier.
func NewNotifier(sender Sender, log *slog.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		log:    log,
	}
}

// Notify отправляет сообщение корзины b. Возвращает true, если отправка удалась.
func (n *Notifier) Notify(ctx context.Context, sub *models.Subscriber, b Bucket) bool {
	const op = "notification.Notify"
	log := n.log.With(sl.Op(op), sl.TelegramID(sub.TelegramID), slog.Int("bucket", int(b)))

	text, ok := Message(b, sub.DisplayName())
	if !ok {
		log.Warn("no message for bucket")
		return false
	}
	if err := n.sender.SendMessage(ctx, sub.TelegramID, text); err != nil {
		log.Warn("failed to send notification", sl.Err(err))
		return false
	}
	log.Debug("notification sent")
	return true
}
