// Package password хеширует и проверяет пароли администраторов.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MinLength минимальная длина пароля администратора
const MinLength = 8

// bcrypt учитывает только первые 72 байта
const maxLength = 72

var (
	// ErrTooShort пароль короче MinLength
	ErrTooShort = errors.New("password is too short")
	// ErrTooLong пароль длиннее 72 байт
	ErrTooLong = errors.New("password is too long")
)

// Validate проверяет длину пароля
func Validate(password string) error {
	switch {
	case len(password) < MinLength:
		return ErrTooShort
	case len(password) > maxLength:
		return ErrTooLong
	}
	return nil
}

// GetHash проверяет пароль и возвращает его bcrypt‑хэш.
func GetHash(password string) (string, error) {
	const op = "password.GetHash"
	if err := Validate(password); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(hashedPassword), nil
}

// CompareHash возвращает nil, если пароль соответствует хэшу.
func CompareHash(originalHash, externalPassword string) error {
	const op = "password.CompareHash"
	if err := bcrypt.CompareHashAndPassword([]byte(originalHash), []byte(externalPassword)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
