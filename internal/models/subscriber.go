// Package models содержит доменные структуры подписчика закрытой группы
// и вспомогательные типы, которыми обмениваются сервисы, хранилище и HTTP-слой.
package models

import (
	"time"

	"github.com/magabrotheeeer/teleguard/internal/lib/expiry"
)

// Subscriber участник группы с оплаченным доступом.
// ExpirationDate выводится из RegistrationDate и PaymentDurationDays,
// кроме случая, когда её явно перезаписали через OverrideExpiration.
// IsActive меняется независимо: подписчик может оставаться активным
// после истечения, пока его не обработает планировщик.
type Subscriber struct {
	ID                  int64     `db:"id" json:"id"`
	TelegramID          string    `db:"telegram_id" json:"telegram_id"`
	FirstName           string    `db:"first_name" json:"first_name"`
	LastName            *string   `db:"last_name" json:"last_name,omitempty"`
	Username            *string   `db:"username" json:"username,omitempty"`
	RegistrationDate    time.Time `db:"registration_date" json:"registration_date"`
	PaymentDurationDays int       `db:"payment_duration_days" json:"payment_duration_days"`
	ExpirationDate      time.Time `db:"expiration_date" json:"expiration_date"`
	IsActive            bool      `db:"is_active" json:"is_active"`
	Notes               *string   `db:"notes" json:"notes,omitempty"`
	Version             int64     `db:"version" json:"version"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// NewSubscriber создаёт подписчика с выведенной датой окончания.
// Отрицательная длительность приводится к нулю.
func NewSubscriber(telegramID, firstName string, registration time.Time, durationDays int) *Subscriber {
	s := &Subscriber{
		TelegramID:       telegramID,
		FirstName:        firstName,
		RegistrationDate: registration,
	}
	s.SetDuration(durationDays)
	return s
}

// SetDuration меняет длительность (не меньше нуля) и пересчитывает дату окончания
func (s *Subscriber) SetDuration(days int) {
	if days < 0 {
		days = 0
	}
	s.PaymentDurationDays = days
	s.derive()
}

// SetRegistrationDate меняет точку отсчёта и пересчитывает дату окончания
func (s *Subscriber) SetRegistrationDate(t time.Time) {
	s.RegistrationDate = t
	s.derive()
}

// OverrideExpiration записывает дату окончания напрямую, без пересчёта
func (s *Subscriber) OverrideExpiration(t time.Time) {
	s.ExpirationDate = t
}

// DaysRemaining оставшиеся дни доступа относительно now
func (s *Subscriber) DaysRemaining(now time.Time) int {
	return expiry.DaysRemaining(s.ExpirationDate, now)
}

// IsExpired истёк ли доступ на момент now
func (s *Subscriber) IsExpired(now time.Time) bool {
	return expiry.IsExpired(s.ExpirationDate, now)
}

// DisplayName имя для сообщений подписчику
func (s *Subscriber) DisplayName() string {
	if s.FirstName != "" {
		return s.FirstName
	}
	if s.Username != nil && *s.Username != "" {
		return *s.Username
	}
	return s.TelegramID
}

// CacheKey ключ подписчика в кэше чтения. Любая запись подписчика в хранилище
// должна сбрасывать этот ключ.
func CacheKey(telegramID string) string {
	return "subscriber:" + telegramID
}

func (s *Subscriber) derive() {
	s.ExpirationDate = expiry.Expiration(s.RegistrationDate, s.PaymentDurationDays)
}

// SubscriberPatch частичное обновление подписчика, nil означает "не менять".
// Если задан ExpirationDate, он побеждает пересчёт от даты регистрации и длительности.
type SubscriberPatch struct {
	FirstName           *string
	LastName            *string
	Username            *string
	Notes               *string
	IsActive            *bool
	RegistrationDate    *time.Time
	PaymentDurationDays *int
	ExpirationDate      *time.Time
}

// ReactivationEvent возвращается продлением, которое вернуло неактивного подписчика в активные.
// Вызывающая сторона решает, как доставить ему приглашение.
type ReactivationEvent struct {
	TelegramID     string    `json:"telegram_id"`
	FirstName      string    `json:"first_name"`
	DaysAdded      int       `json:"days_added"`
	ExpirationDate time.Time `json:"expiration_date"`
}
