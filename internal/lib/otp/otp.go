// Package otp генерирует одноразовые числовые коды.
package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// CodeLength длина одноразового кода.
const CodeLength = 6

// GenerateCode возвращает равномерно случайный шестизначный числовой код.
// Ведущие нули допустимы, поэтому код форматируется с дополнением нулями.
func GenerateCode() (string, error) {
	const op = "otp.GenerateCode"
	max := big.NewInt(1000000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
