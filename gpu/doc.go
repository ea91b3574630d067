// Package gpu declares the backend surface the command-buffer manager
// (package cmdbuffer) submits work through. It defines interfaces only:
// concrete GPU backend drivers (Vulkan/OpenGL/compute/software) are
// explicitly out of scope and are never implemented here.
package gpu
