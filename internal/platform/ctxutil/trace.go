package ctxutil

import "context"

type scopeKey struct{}

// RequestScope identifies the request and the editor client that sent it.
type RequestScope struct {
	TraceID   string
	RequestID string
	ClientID  string
}

func WithScope(ctx context.Context, s *RequestScope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

func Scope(ctx context.Context) *RequestScope {
	if s, ok := ctx.Value(scopeKey{}).(*RequestScope); ok {
		return s
	}
	return nil
}

// LogFields returns the non-empty scope ids as logger key-values.
func LogFields(ctx context.Context) []interface{} {
	s := Scope(ctx)
	if s == nil {
		return nil
	}
	var out []interface{}
	for _, kv := range [][2]string{
		{"trace_id", s.TraceID},
		{"request_id", s.RequestID},
		{"client_id", s.ClientID},
	} {
		if kv[1] != "" {
			out = append(out, kv[0], kv[1])
		}
	}
	return out
}
