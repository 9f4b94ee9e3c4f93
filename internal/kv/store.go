package kv

import (
	"context"
	"errors"
)

// Keys owned by the client core. The cart key has a single writer: cart.Store.
const (
	KeyCart          = "cart"
	KeyToken         = "token"
	KeyUser          = "user"
	KeyNotifications = "notificationsEnabled"
	KeyTheme         = "theme"
	KeyLanguage      = "language"
)

var (
	ErrQuotaExceeded = errors.New("kv: quota exceeded")
	ErrNoSchema      = errors.New("kv: schema not initialized")
)

type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}
