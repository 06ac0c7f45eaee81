// Package visibility carries the read-visibility flags of a call chain.
//
// The flags travel in a context.Context, so a cascade running with
// IsDeleting set never leaks into an unrelated request on another goroutine.
package visibility

import "context"

type key int

const (
	showAllKey key = iota
	deletingKey
)

// WithShowAll returns a context in which soft-deleted rows stay visible to
// joins and to-one relation lookups.
func WithShowAll(ctx context.Context) context.Context {
	return context.WithValue(ctx, showAllKey, true)
}

// WithDeleting returns a context marking a cascade walk in progress.
func WithDeleting(ctx context.Context) context.Context {
	return context.WithValue(ctx, deletingKey, true)
}

// ShowAll reports whether ctx was derived from WithShowAll.
func ShowAll(ctx context.Context) bool {
	v, _ := ctx.Value(showAllKey).(bool)
	return v
}

// IsDeleting reports whether ctx was derived from WithDeleting.
func IsDeleting(ctx context.Context) bool {
	v, _ := ctx.Value(deletingKey).(bool)
	return v
}

// Flags is a snapshot of both flags, mostly useful for logging.
type Flags struct {
	ShowAll    bool
	IsDeleting bool
}

// FromContext reads both flags from ctx.
func FromContext(ctx context.Context) Flags {
	return Flags{ShowAll: ShowAll(ctx), IsDeleting: IsDeleting(ctx)}
}
