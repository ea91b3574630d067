package cmdbuffer

// Scope is the four-value recording-level state machine:
// None/Frame/Command/RenderPass.
type Scope int

const (
	ScopeNone Scope = iota
	ScopeFrame
	ScopeCommand
	ScopeRenderPass
)

func (s Scope) String() string {
	switch s {
	case ScopeNone:
		return "None"
	case ScopeFrame:
		return "Frame"
	case ScopeCommand:
		return "Command"
	case ScopeRenderPass:
		return "RenderPass"
	default:
		return "Unknown"
	}
}
