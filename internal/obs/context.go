package obs

import (
	"context"
	"sync"
)

type requestMetaKey struct{}

// requestMeta is shared by every middleware layer of one request. Handlers
// attach ledger identifiers to it so the access log line can name the sale
// or payment a request touched.
type requestMeta struct {
	mu     sync.Mutex
	route  string
	fields map[string]string
}

// WithRequestMeta installs an empty request record on ctx. Calling it on a
// context that already carries one returns ctx unchanged.
func WithRequestMeta(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if metaFrom(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, requestMetaKey{}, &requestMeta{})
}

func metaFrom(ctx context.Context) *requestMeta {
	if ctx == nil {
		return nil
	}
	meta, _ := ctx.Value(requestMetaKey{}).(*requestMeta)
	return meta
}

// SetRoute pins the route label used by metrics and logs, overriding the
// pattern chi matched.
func SetRoute(ctx context.Context, pattern string) {
	if meta := metaFrom(ctx); meta != nil {
		meta.mu.Lock()
		meta.route = pattern
		meta.mu.Unlock()
	}
}

// RouteFromContext returns the pinned route label, if any.
func RouteFromContext(ctx context.Context) string {
	meta := metaFrom(ctx)
	if meta == nil {
		return ""
	}
	meta.mu.Lock()
	defer meta.mu.Unlock()
	return meta.route
}

// Annotate records key=value on the current request. It is a no-op outside
// RequestMetaMiddleware. Empty values are ignored.
func Annotate(ctx context.Context, key, value string) {
	meta := metaFrom(ctx)
	if meta == nil || key == "" || value == "" {
		return
	}
	meta.mu.Lock()
	if meta.fields == nil {
		meta.fields = make(map[string]string, 2)
	}
	meta.fields[key] = value
	meta.mu.Unlock()
}

// Annotations returns a copy of the fields recorded with Annotate.
func Annotations(ctx context.Context) map[string]string {
	meta := metaFrom(ctx)
	if meta == nil {
		return nil
	}
	meta.mu.Lock()
	defer meta.mu.Unlock()
	if len(meta.fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(meta.fields))
	for k, v := range meta.fields {
		out[k] = v
	}
	return out
}
