package models

import "time"

// Admin учётная запись администратора панели.
type Admin struct {
	ID           int64     `db:"id"`
	Username     string    `db:"username"`     // Логин (уникальный)
	PasswordHash string    `db:"password_hash"` // bcrypt-хэш пароля
	CreatedAt    time.Time `db:"created_at"`
}
