package shared

import "context"

type ctxKey int

const sessionKey ctxKey = iota

// ContextWithSession binds the request session into ctx. The session
// middleware installs it; the gate and the auth handlers read it back.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// SessionFromContext returns the bound session, or nil outside the session
// middleware.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionKey).(*Session)
	return sess
}
