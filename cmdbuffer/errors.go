package cmdbuffer

import "errors"

var (
	// ErrInvalidScope is returned when a begin/end operation is issued in
	// a scope that does not permit it.
	ErrInvalidScope = errors.New("cmdbuffer: operation not legal in the current scope")

	// ErrNotComposed is returned by BeginFrame when the manager has not
	// reached a composed state yet.
	ErrNotComposed = errors.New("cmdbuffer: manager is not composed")

	// ErrNoBackend is returned by operations that require a backend when
	// none has been configured.
	ErrNoBackend = errors.New("cmdbuffer: no gpu.Backend configured")

	// ErrVRNotSupported is returned by BeginVRFrame/EndVRFrame when the
	// configured backend does not implement gpu.VRBackend.
	ErrVRNotSupported = errors.New("cmdbuffer: backend does not implement gpu.VRBackend")

	// ErrRingLengthTooSmall is returned by NewManager when ringLength < 2,
	// violating the minimum ring length of N (>= 2).
	ErrRingLengthTooSmall = errors.New("cmdbuffer: ring length must be at least 2")
)
