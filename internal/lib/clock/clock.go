// Package clock абстрагирует текущее время, чтобы сервисы можно было тестировать.
package clock

import (
	"sync"
	"time"
)

// Clock источник текущего времени
type Clock interface {
	Now() time.Time
}

// System возвращает реальное время в UTC
type System struct{}

// Now реализует Clock
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Fixed часы для тестов, время меняется только вручную
type Fixed struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixed создаёт часы, остановленные на t
func NewFixed(t time.Time) *Fixed {
	return &Fixed{t: t}
}

// Now реализует Clock
func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

// Set переставляет часы
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.t = t
	f.mu.Unlock()
}

// Advance сдвигает часы на d
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}
