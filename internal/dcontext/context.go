// Package dcontext provides the context plumbing used throughout pkgrepo:
// a background context carrying a structured logger, small typed context
// values (version, instance id), and helpers for detaching
// a context from its parent's cancellation.
package dcontext

import (
	"context"
)

// Background returns a non-nil, empty context, as context.Background, except
// it supports values, as above.
func Background() context.Context {
	return context.Background()
}

// WithValues returns a context with the values provided by the map added.
func WithValues(ctx context.Context, values map[any]any) context.Context {
	for key, value := range values {
		ctx = context.WithValue(ctx, key, value)
	}

	return ctx
}

// stringValueKey allows assigning a string to a context key and allows
// retrieving it back out as a string.
type stringValueKey string

func (k stringValueKey) String() string { return "dcontext.stringValueKey(" + string(k) + ")" }

// GetStringValue returns a string value from the context. The empty string
// is returned if the value is not found or is not a string.
func GetStringValue(ctx context.Context, key any) (value string) {
	if valuer, ok := ctx.Value(key).(string); ok {
		value = valuer
	}
	return value
}

type versionKey struct{}

func (versionKey) String() string { return "version" }

// WithVersion stores the application version in the context. The new
// context inherits all values from the parent ctx but overrides the
// Value method to return the version.
func WithVersion(ctx context.Context, version string) context.Context {
	ctx = context.WithValue(ctx, versionKey{}, version)
	// "version" key is used to pick up the version from the logger.
	return WithLogger(ctx, GetLogger(ctx, versionKey{}))
}

// GetVersion returns the application version from the context. An empty
// string is returned if not set.
func GetVersion(ctx context.Context) string {
	return GetStringValue(ctx, versionKey{})
}

type instanceIDKey struct{}

func (instanceIDKey) String() string { return "instance.id" }

// WithInstanceID stores the instance identifier in the context.
func WithInstanceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, instanceIDKey{}, id)
}

// GetInstanceID returns the instance identifier from the context, if set.
func GetInstanceID(ctx context.Context) string {
	return GetStringValue(ctx, instanceIDKey{})
}
