// Package sl содержит небольшие помощники для структурированного
// логирования через slog.
package sl

import "log/slog"

// Err возвращает атрибут с ключом "error" и текстом ошибки,
// чтобы ошибки во всех сервисах логировались единообразно.
//
// Пример:
//
//	log.Error("failed to send otp email", sl.Err(err))
func Err(err error) slog.Attr {
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}
