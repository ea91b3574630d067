// Package cmdbuffer implements the command-buffer manager: a kernel
// module that bridges a high-level per-frame recording API to the
// gpu.Backend submission contract, ring-buffering N frames in flight and
// tracking the begin/end scope machine.
package cmdbuffer
