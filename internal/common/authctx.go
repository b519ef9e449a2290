package common

import "context"

type ctxKey string

const (
	userIDKey      ctxKey = "auth/user-id"
	accessTokenKey ctxKey = "auth/access-token"
	sessionIDKey   ctxKey = "session/id"
	userEmailKey   ctxKey = "auth/email"
	userNameKey    ctxKey = "auth/name"
)

// WithUserID stores the authenticated user identifier on the provided context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID extracts the authenticated user identifier from the context if present.
func UserID(ctx context.Context) (string, bool) {
	v := ctx.Value(userIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// WithAccessToken keeps the caller's bearer token so it can be forwarded to the order API.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey, token)
}

// AccessToken returns the bearer token stored by the auth middleware.
func AccessToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(accessTokenKey).(string)
	return token, ok && token != ""
}

// WithSessionID stores the shopper session identifier.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionID extracts the shopper session identifier.
func SessionID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok && id != ""
}

// WithUserEmail stores the authenticated user's email when the token carries one.
func WithUserEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, userEmailKey, email)
}

// UserEmail returns the email stored by the auth middleware.
func UserEmail(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(userEmailKey).(string)
	return email, ok && email != ""
}

// WithUserName stores the display name from the token's name claim.
func WithUserName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, userNameKey, name)
}

// UserName returns the display name stored by the auth middleware.
func UserName(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(userNameKey).(string)
	return name, ok && name != ""
}
