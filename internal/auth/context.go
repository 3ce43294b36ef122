package auth

import "context"

type ctxKey string

const claimsKey ctxKey = "deviceClaims"

func WithClaims(ctx context.Context, c DeviceClaims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

func FromContext(ctx context.Context) DeviceClaims {
	if v, ok := ctx.Value(claimsKey).(DeviceClaims); ok {
		return v
	}
	return DeviceClaims{}
}
