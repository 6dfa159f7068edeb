package auth

import "context"

type contextKey struct{}

// AuthContext identifies the caller of a request. Group roles are not
// cached here; they are checked per operation.
type AuthContext struct {
	AccountID int64
	TokenID   string
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func AccountID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.AccountID
}
