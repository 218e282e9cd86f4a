package domain

import "context"

// ProgressFunc is told how many source rows an entity type just consumed.
// Lanes may call it concurrently.
type ProgressFunc func(entity string, rows int)

type progressKey struct{}

func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	if fn == nil {
		return ctx
	}
	return context.WithValue(ctx, progressKey{}, fn)
}

// ProgressFromContext never returns nil.
func ProgressFromContext(ctx context.Context) ProgressFunc {
	if fn, ok := ctx.Value(progressKey{}).(ProgressFunc); ok {
		return fn
	}
	return func(string, int) {}
}
