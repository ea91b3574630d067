// Package kernel implements the module composition and message-dispatch
// substrate described by the engine's module kernel: stable type identity
// (TypeID/TypeIdList), the per-module message dispatcher, and the module
// lifecycle state machine with parent/child/manager relationships.
//
// Everything above the kernel — thread hosting (package thread), the
// command-buffer manager (package cmdbuffer) and the GPU backend surface
// (package gpu) — is built on these primitives but does not belong to it.
package kernel
