package health

import (
	"context"
	"fmt"
	"time"

	"github.com/forgekernel/kernel/cmdbuffer"
	"github.com/forgekernel/kernel/thread"
)

// QueueDepthChecker reports CheckTypeLiveness-level health for a thread
// Host's async queue: a depth at or above warnAt is StatusWarning, at or
// above critAt is StatusCritical.
type QueueDepthChecker struct {
	host           *thread.Host
	warnAt, critAt int
}

// NewQueueDepthChecker wraps host, flagging its async queue depth.
func NewQueueDepthChecker(host *thread.Host, warnAt, critAt int) *QueueDepthChecker {
	return &QueueDepthChecker{host: host, warnAt: warnAt, critAt: critAt}
}

func (c *QueueDepthChecker) Check(ctx context.Context) (*CheckResult, error) {
	depth := c.host.QueueDepth()
	status := StatusHealthy
	switch {
	case depth >= c.critAt:
		status = StatusCritical
	case depth >= c.warnAt:
		status = StatusWarning
	}
	return &CheckResult{
		Name:      c.Name(),
		Status:    status,
		Timestamp: time.Now(),
		Message:   fmt.Sprintf("queue depth %d", depth),
		Details:   map[string]interface{}{"depth": depth},
	}, nil
}

func (c *QueueDepthChecker) Name() string { return "thread." + c.host.Name() + ".queue_depth" }
func (c *QueueDepthChecker) Description() string {
	return "async queue depth for thread host " + c.host.Name()
}
func (c *QueueDepthChecker) Type() CheckType { return CheckTypeLiveness }

// CmdBufferRingChecker reports CheckTypeReadiness health for a
// cmdbuffer.Manager: critical if the manager has not yet completed a
// single BeginFrame (frame index still zero) after the grace period, since
// that means it never composed or the device was never created.
type CmdBufferRingChecker struct {
	manager *cmdbuffer.Manager
	started time.Time
	grace   time.Duration
}

// NewCmdBufferRingChecker wraps manager, becoming ready once it has begun
// at least one frame within grace of construction.
func NewCmdBufferRingChecker(manager *cmdbuffer.Manager, grace time.Duration) *CmdBufferRingChecker {
	return &CmdBufferRingChecker{manager: manager, started: time.Now(), grace: grace}
}

func (c *CmdBufferRingChecker) Check(ctx context.Context) (*CheckResult, error) {
	_, frameIdx, ringIdx, scope := c.manager.GetCurrentState()
	status := StatusHealthy
	msg := fmt.Sprintf("frame=%d ring=%d/%d scope=%s", frameIdx, ringIdx, c.manager.RingLength(), scope)
	if frameIdx == 0 && time.Since(c.started) > c.grace {
		status = StatusCritical
		msg = "no frame submitted within grace period: " + msg
	}
	return &CheckResult{
		Name:      c.Name(),
		Status:    status,
		Timestamp: time.Now(),
		Message:   msg,
		Details: map[string]interface{}{
			"frame_index": frameIdx,
			"ring_index":  ringIdx,
			"ring_length": c.manager.RingLength(),
			"scope":       scope.String(),
		},
	}, nil
}

func (c *CmdBufferRingChecker) Name() string        { return c.manager.Name() + ".frame_ring" }
func (c *CmdBufferRingChecker) Description() string { return "command-buffer frame ring progress" }
func (c *CmdBufferRingChecker) Type() CheckType     { return CheckTypeReadiness }
