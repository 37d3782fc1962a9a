// Package models содержит доменные структуры приложения: учётные записи,
// профили, токены, сессии сброса пароля, тарифные планы и подписки.
// Структуры используются в бизнес-логике и при работе с хранилищем.
package models

import "time"

// Роли пользователей.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User представляет учётную запись пользователя.
// Email является логином и уникален. Поля кода подтверждения и кода сброса
// пароля хранят живой одноразовый код и срок его действия; после успешной
// проверки код очищается, чтобы исключить повторное использование.
type User struct {
	UID                       string     // Уникальный идентификатор пользователя
	Email                     string     // Электронная почта (логин, уникальная)
	PasswordHash              string     // Хэш пароля пользователя
	Role                      string     // Роль пользователя, admin или user
	FullName                  string     // Отображаемое имя
	Gender                    string     // Пол: male, female, other или пусто
	IsEmailVerified           bool       // Подтверждена ли почта
	IsActive                  bool       // Активна ли учётная запись
	Is2FAEnabled              bool       // Включена ли двухфакторная аутентификация
	VerificationCode          string     // Живой код подтверждения почты / 2FA
	VerificationCodeExpiresAt *time.Time // Срок действия кода подтверждения
	ResetCode                 string     // Живой код сброса пароля
	ResetCodeExpiresAt        *time.Time // Срок действия кода сброса
	CreatedAt                 time.Time
}

// Profile дополняет учётную запись служебными данными.
// Создаётся в одной транзакции с пользователем; employee id выдается
// один раз и больше не меняется.
type Profile struct {
	UserUID    string // Владелец профиля
	EmployeeID string // Уникальный служебный идентификатор, формат EMP + 8 hex
	Phone      string
	AvatarURL  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
