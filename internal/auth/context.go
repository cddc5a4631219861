package auth

import (
	"context"

	"forge-market/internal/model"
)

type contextKey struct{}

// Identity 每个请求携带的调用者身份，取代任何进程级“当前用户”状态。
type Identity struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Role      model.UserRole
}

// WithIdentity 将身份写入上下文。
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext 读取上下文中的身份。
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}
