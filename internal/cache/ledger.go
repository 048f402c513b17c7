package cache

import (
	"context"
	"fmt"
	"time"
)

// ReminderTTL сколько хранится отметка об отправленном напоминании.
// Окно напоминания длится сутки, запас покрывает соседние прогоны.
const ReminderTTL = 48 * time.Hour

// ReminderKey ключ отметки; дата окончания входит в ключ, поэтому
// после продления подписчик снова получит напоминание
func ReminderKey(telegramID string, bucket int, expiration time.Time) string {
	return fmt.Sprintf("teleguard:reminder:%s:%d:%d", telegramID, bucket, expiration.Unix())
}

// MarkReminded ставит отметку атомарно через SETNX.
// true, если отметки не было и напоминание нужно отправить.
func (c *Cache) MarkReminded(ctx context.Context, telegramID string, bucket int, expiration time.Time) (bool, error) {
	const op = "cache.MarkReminded"
	ok, err := c.Db.SetNX(ctx, ReminderKey(telegramID, bucket, expiration), 1, ReminderTTL).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return ok, nil
}

// UnmarkReminded снимает отметку, если отправка не удалась
func (c *Cache) UnmarkReminded(ctx context.Context, telegramID string, bucket int, expiration time.Time) error {
	return c.Invalidate(ctx, ReminderKey(telegramID, bucket, expiration))
}
