package ctxutil

import (
	"context"
	"time"
)

// private keys to avoid collisions with other packages
type key int

const (
	keyActorID key = iota
	keyOpName
)

// WithActorID carries the admin user performing a manual action.
func WithActorID(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, keyActorID, actorID)
}

func ActorID(ctx context.Context) (int64, bool) {
	v := ctx.Value(keyActorID)
	if v == nil {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// WithOp tags the operation name for logs.
func WithOp(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, keyOpName, name)
}

func Op(ctx context.Context) (string, bool) {
	v := ctx.Value(keyOpName)
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

var DefaultDBTimeout = 5 * time.Second

// WithDBTimeout is the standard timeout for single DB operations. If the
// parent deadline is closer than the default, the remainder is used.
func WithDBTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if dl, ok := parent.Deadline(); ok {
		remain := time.Until(dl)
		if remain < DefaultDBTimeout {
			return context.WithTimeout(parent, remain)
		}
	}
	return context.WithTimeout(parent, DefaultDBTimeout)
}
