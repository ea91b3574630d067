package gpu

import "errors"

// ErrFenceWaitTimeout is returned by ClientWaitFence when the timeout
// elapses before the fence signals.
var ErrFenceWaitTimeout = errors.New("gpu: client-side fence wait timed out")
