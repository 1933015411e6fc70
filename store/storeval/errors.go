package storeval

import "errors"

// ErrNotSerializable is returned by Stringify when a value cannot be
// rendered as text — the SerializationFailure error kind from the spec.
var ErrNotSerializable = errors.New("value is not serializable")
