package models

import "time"

// Назначения одноразовых кодов.
const (
	OTPPurposeVerification = "email_verification"
	OTPPurposeReset        = "password_reset"
	OTPPurpose2FA          = "two_factor"
)

// TokenPair представляет выданную пару access/refresh токенов.
// Пара создаётся при входе и целиком заменяет предыдущие пары пользователя.
// Поле OTP зеркалирует живой одноразовый код владельца, чтобы внешний поиск
// кода по токену и по пользователю возвращал одно и то же значение.
type TokenPair struct {
	ID                    int
	UserUID               string
	Email                 string
	AccessToken           string
	AccessTokenExpiresAt  time.Time
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
	OTP                   string     // Зеркало живого одноразового кода
	OTPExpiresAt          *time.Time // Срок действия зеркалируемого кода
	Revoked               bool       // Отозванный токен никогда не аутентифицирует запрос
	CreatedAt             time.Time
}

// PasswordResetSession одноразовый мост между проверкой OTP и сменой пароля.
// Истекает ровно через 15 минут после создания и удаляется сразу после
// использования.
type PasswordResetSession struct {
	Token     string // Случайный непредсказуемый токен (uuid)
	UserUID   string
	CreatedAt time.Time
}
