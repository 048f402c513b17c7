// Package jwt выпускает и проверяет токены администраторов панели.
package jwt

import (
	"time"
)

// RoleAdmin роль, которую получает вошедший администратор
const RoleAdmin = "admin"

// Issuer значение iss в выпущенных токенах
const Issuer = "teleguard"

// Maker описывает выпуск и разбор токенов.
type Maker interface {
	GenerateToken(username, role string) (string, error)
	ParseToken(tokenStr string) (*CustomClaims, error)
}

// MakerImpl подписывает токены HS256 секретным ключом.
type MakerImpl struct {
	secretKey string        // Секретный ключ для подписи токенов.
	tokenTTL  time.Duration // Время жизни токена.
	now       func() time.Time
}

// NewJWTMaker создаёт новый экземпляр MakerImpl на основе секретного ключа и TTL.
func NewJWTMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		tokenTTL:  ttl,
		now:       time.Now,
	}
}

// TTL время жизни выпускаемых токенов
func (j *MakerImpl) TTL() time.Duration {
	return j.tokenTTL
}
