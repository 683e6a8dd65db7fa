package api

import "context"

// contextKey is a private type for request-scoped context values.
type contextKey int

const contextKeyRequestID contextKey = iota

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, id)
}

// requestID returns the request ID set by the middleware, or "" if the
// request never passed through it.
func requestID(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}
