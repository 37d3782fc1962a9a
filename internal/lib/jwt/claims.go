// Package jwt реализует генерацию и парсинг JWT токенов с пользовательскими claim полями.
//
// Maker определяет интерфейс для создания и проверки access и refresh токенов.
// MakerImpl — конкретная реализация с использованием секретного ключа.
package jwt

import (
	"time"
)

// Maker описывает интерфейс для генерации и парсинга JWT токенов.
type Maker interface {
	// GenerateToken создаёт токен с заданным временем жизни.
	GenerateToken(email, role, userUID string, ttl time.Duration) (string, error)
	// ParseToken возвращает *CustomClaims с email, role и uid пользователя.
	ParseToken(tokenStr string) (*CustomClaims, error)
}

// MakerImpl реализует интерфейс Maker с использованием секретного ключа.
type MakerImpl struct {
	secretKey string // Секретный ключ для подписи токенов.
}

// NewJWTMaker создаёт новый экземпляр MakerImpl на основе секретного ключа.
func NewJWTMaker(secretKey string) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
	}
}
