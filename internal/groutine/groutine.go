package groutine

import (
	"context"
	"runtime/pprof"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts a goroutine labeled with name (visible in pprof goroutine dumps).
// Extra labels are key/value pairs, e.g. "session", id.
//
//	groutine.Go(ctx, "pty-pump", func(ctx context.Context) {
//	    // work
//	}, "session", id)
//
// If parentCtx is nil, context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context), labels ...string) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	kv := append([]string{"goroutine_name", name}, labels...)
	if len(kv)%2 != 0 {
		kv = kv[:len(kv)-1]
	}

	go pprof.Do(parentCtx, pprof.Labels(kv...), func(ctx context.Context) {
		ctx = context.WithValue(ctx, goroutineNameKey, name)
		fn(ctx)
	})
}

// GetName retrieves the goroutine name from the context.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(goroutineNameKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
