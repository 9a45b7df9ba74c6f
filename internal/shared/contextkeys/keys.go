package contextkeys

// contextKey is an unexported type to prevent collisions with context keys defined in
// other packages.
type contextKey string

// String makes contextKey satisfy the Stringer interface to assist with debugging.
func (c contextKey) String() string {
	return "keepsake context key " + string(c)
}

const (
	// RequestIDKey carries the per-request id assigned by the HTTP layer.
	RequestIDKey = contextKey("requestID")
	// CollectionKey carries the collection a request or subscription operates on.
	CollectionKey = contextKey("collection")
	// ComponentKey names the component that produced a log line.
	ComponentKey = contextKey("component")
	// SessionKey carries the explicit session value (see internal/session).
	SessionKey = contextKey("session")
)
