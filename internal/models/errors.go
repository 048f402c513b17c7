package models

import "errors"

var (
	// ErrInvalidArgument некорректные входные данные
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDuplicateIdentity подписчик с таким telegram id уже существует
	ErrDuplicateIdentity = errors.New("subscriber already exists")
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict запись изменили параллельно, версия устарела
	ErrVersionConflict = errors.New("version conflict")
)
