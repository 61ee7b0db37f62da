package audit

import "context"

type (
	ctxKeyTraceID  struct{}
	ctxKeyClientIP struct{}
)

// WithTraceID attaches a request trace ID to ctx.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyTraceID{}, id)
}

// TraceID extracts the trace ID set by WithTraceID.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTraceID{}).(string); ok {
		return v
	}
	return ""
}

// WithClientIP records the address of the client that caused the request.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyClientIP{}, ip)
}

// ClientIP returns the address set by WithClientIP.
func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(ctxKeyClientIP{}).(string)
	return ip
}
