// Package sl содержит вспомогательные функции для структурированных полей slog.
package sl

import "log/slog"

// Err возвращает slog.Attr с ключом "error" и текстом ошибки.
//
// Пример:
//
//	log.Error("failed to do something", sl.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Op поле с именем операции, тем же, что в const op
func Op(op string) slog.Attr {
	return slog.String("op", op)
}

// TelegramID поле с идентификатором подписчика
func TelegramID(id string) slog.Attr {
	return slog.String("telegram_id", id)
}
