package logging

import (
	"context"

	"go.viam.com/utils"
)

// debugKey is the context key under which a directive's debug key travels.
type debugKey struct{}

// EnableDebugMode tags ctx with a debug key so CDebug* calls log regardless of level. An empty
// key is replaced with a random six letter one.
func EnableDebugMode(ctx context.Context, key string) context.Context {
	if key == "" {
		key = utils.RandomAlphaString(6)
	}
	return context.WithValue(ctx, debugKey{}, key)
}

// IsDebugMode reports whether ctx carries a debug key.
func IsDebugMode(ctx context.Context) bool {
	return DebugKey(ctx) != ""
}

// DebugKey returns the key set by EnableDebugMode, or "".
func DebugKey(ctx context.Context) string {
	key, _ := ctx.Value(debugKey{}).(string)
	return key
}
