package contextkeys

import "context"

// Key is the type of all context keys defined here. It is exported so other
// packages can range over keys without colliding with foreign string keys.
type Key string

// String makes Key satisfy the Stringer interface to assist with debugging.
func (k Key) String() string {
	return "leadflow context key " + string(k)
}

const (
	RequestIDKey = Key("requestID")
	ProjectIDKey = Key("projectID")
	LeadIDKey    = Key("leadID")
	ComponentKey = Key("component")
	OperationKey = Key("operation")
)

// With returns a copy of ctx carrying value under key.
func With(ctx context.Context, key Key, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

// StringValue reads a string stored under key, or "".
func StringValue(ctx context.Context, key Key) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}
