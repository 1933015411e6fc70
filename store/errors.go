package store

import "errors"

// Error kinds. DriverUnsupported has no sentinel: per spec it is never
// raised, only ever a silent no-op (mutators) or empty/null return
// (readers). NotFound is likewise not an error — it is represented by a
// false "found" return.
var (
	// ErrInvalidKey marks a traversal sequence or otherwise malformed key.
	ErrInvalidKey = errors.New("store: invalid key")
	// ErrMissingConfig marks a driver constructed without a required option.
	ErrMissingConfig = errors.New("store: missing required configuration")
	// ErrSerialization marks a value that cannot be rendered as text.
	ErrSerialization = errors.New("store: value cannot be serialized")
	// ErrBackendFailure marks an I/O, network, or remote-service failure.
	// Single-key operations surface it; listKeys and clear swallow it
	// per-mount so a partial result remains usable.
	ErrBackendFailure = errors.New("store: backend failure")
	// ErrAuthDenied is raised only at the HTTP surface by the authorization
	// hook.
	ErrAuthDenied = errors.New("store: authorization denied")
	// ErrMountExists marks an attempt to mount onto an already-mounted base.
	ErrMountExists = errors.New("store: mount already exists")
	// ErrRootUnmount marks an attempt to unmount the root ("") base.
	ErrRootUnmount = errors.New("store: cannot unmount the root")
)
