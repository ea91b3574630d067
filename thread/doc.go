// Package thread hosts the per-OS-thread cooperative update loop and the
// cross-thread async message queue. A Host owns exactly one goroutine
// pinned to a single logical "thread" in the kernel's sense: every module
// attached under a Host's root must only ever touch its state from that
// goroutine, and all communication from other goroutines goes through
// PushAsync, never direct field access.
package thread
