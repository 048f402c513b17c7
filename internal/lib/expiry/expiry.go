// Package expiry содержит чистые функции расчёта даты окончания доступа.
package expiry

import (
	"time"
)

// Day длительность одних суток, используемая для подсчёта оставшихся дней
const Day = 24 * time.Hour

// Expiration возвращает дату окончания: регистрация плюс durationDays календарных дней.
// Время суток сохраняется.
func Expiration(registration time.Time, durationDays int) time.Time {
	return registration.AddDate(0, 0, durationDays)
}

// DaysRemaining считает оставшиеся дни с округлением вверх, не меньше нуля
func DaysRemaining(expiration, now time.Time) int {
	diff := expiration.Sub(now)
	if diff <= 0 {
		return 0
	}
	days := int(diff / Day)
	if diff%Day != 0 {
		days++
	}
	return days
}

// IsExpired true, если дата окончания не позже now
func IsExpired(expiration, now time.Time) bool {
	return !expiration.After(now)
}

// DaysSince число полных суток между from и now, не меньше нуля
func DaysSince(from, now time.Time) int {
	diff := now.Sub(from)
	if diff <= 0 {
		return 0
	}
	return int(diff / Day)
}

// Window возвращает окно [now+daysAhead дней, +24ч) для напоминаний
func Window(now time.Time, daysAhead int) (start, end time.Time) {
	start = now.AddDate(0, 0, daysAhead)
	return start, start.Add(Day)
}
