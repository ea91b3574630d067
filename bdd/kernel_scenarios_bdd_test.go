// Package bdd exercises the engine's end-to-end lifecycle scenarios as
// Gherkin features run with cucumber/godog, following the standard
// InitializeScenario/TestSuite pattern.
package bdd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cucumber/godog"

	"github.com/forgekernel/kernel/cmdbuffer"
	"github.com/forgekernel/kernel/gpu"
	"github.com/forgekernel/kernel/kernel"
	"github.com/forgekernel/kernel/thread"
)

var errSiblingDepMissing = errors.New("dependent: sibling \"dep\" is not attached")

type pingMsg struct{}

// scenarioModule is the generic kernel.Instance used by every scenario
// below that does not need bespoke link behavior.
type scenarioModule struct {
	*kernel.Base

	mu      sync.Mutex
	updates int
}

func newScenarioModule(name string, threadID kernel.ThreadID, rank int, surface kernel.TypeIdList) *scenarioModule {
	m := &scenarioModule{}
	m.Base = kernel.NewBase(m, kernel.BaseConfig{
		ClassID:        kernel.TypeIDOf[scenarioModule](),
		ClassRank:      rank,
		Name:           name,
		ThreadID:       threadID,
		MaxParents:     4,
		MessageSurface: surface,
	})
	return m
}

func (m *scenarioModule) OnUpdate(ctx context.Context, dt float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	return nil
}

func (m *scenarioModule) Updates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}

// dependentModule fails OnLink until its container has a sibling named
// "dep" attached, exercising scenario 5 (link failure recovery).
type dependentModule struct {
	*kernel.Base
	container *scenarioModule
}

func newDependentModule(name string, threadID kernel.ThreadID, container *scenarioModule) *dependentModule {
	m := &dependentModule{container: container}
	surface := kernel.TypeListOf(kernel.TypeIDOf[pingMsg]())
	m.Base = kernel.NewBase(m, kernel.BaseConfig{
		ClassID:        kernel.TypeIDOf[dependentModule](),
		ClassRank:      1,
		Name:           name,
		ThreadID:       threadID,
		MaxParents:     4,
		MessageSurface: surface,
	})
	return m
}

func (m *dependentModule) OnLink(ctx context.Context) error {
	if m.container.FindModule("dep") == nil {
		return errSiblingDepMissing
	}
	return nil
}

// spawnIdleHost starts a Host whose entry goroutine just waits for
// cancellation; callers drive it explicitly via Tick.
func spawnIdleHost(ctx context.Context, name string) *thread.Host {
	return thread.Spawn(ctx, thread.HostConfig{Name: name}, func(ctx context.Context, h *thread.Host) {
		<-ctx.Done()
	})
}

// spawnDrainingHost starts a Host whose entry loop repeatedly drains its
// queue until ctx is cancelled, standing in for a real cooperative Update
// loop so pushed async tasks (e.g. cross-thread attaches) actually run.
func spawnDrainingHost(ctx context.Context, name string) *thread.Host {
	return thread.Spawn(ctx, thread.HostConfig{Name: name}, func(ctx context.Context, h *thread.Host) {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = h.Tick(ctx, 0)
			}
		}
	})
}

// bddContext holds every scenario's working state; it is reset before
// each scenario by InitializeScenario's Before hook.
type bddContext struct {
	ctx    context.Context
	cancel context.CancelFunc
	hosts  []*thread.Host

	// scenario 1 — minimal compose
	host1   *thread.Host
	child1  *scenarioModule
	lastErr error

	// scenario 2 — cross-thread attach
	hostA, hostB    *thread.Host
	parent2, child2 *scenarioModule
	attachErr       error

	// scenario 3 — frame rotation
	backend *gpu.FakeBackend
	manager *cmdbuffer.Manager
	firedMu sync.Mutex
	fired   map[int]bool

	// frame whose BeginFrame fired each callback, the frame being recorded,
	// and the owned buffer recorded in each frame, in recording order
	firedAt        map[int]int
	recordingFrame int
	recorded       []gpu.CommandBuffer

	// scenario 4 — force flush
	queue         *thread.Queue
	forcedFlushes int
	observed      []int

	// scenario 5 — link failure recovery
	container                                              *scenarioModule
	dependent                                              *dependentModule
	subLenBeforeFirst, subLenAfterFirst, subLenAfterSecond int

	// scenario 6 — immutable after compose
	sealed    *scenarioModule
	candidate *scenarioModule
}

func (b *bddContext) reset() {
	if b.cancel != nil {
		b.cancel()
	}
	for _, h := range b.hosts {
		_ = h.Join(context.Background())
	}

	ctx, cancel := context.WithCancel(context.Background())
	*b = bddContext{ctx: ctx, cancel: cancel, fired: make(map[int]bool)}
}

func (b *bddContext) track(h *thread.Host) *thread.Host {
	b.hosts = append(b.hosts, h)
	return h
}

// --- Scenario 1: minimal compose ---

func (b *bddContext) aThreadHostWithOneChildModule() error {
	b.host1 = b.track(spawnIdleHost(b.ctx, "minimal"))
	b.child1 = newScenarioModule("child", b.host1.ID(), 10, kernel.TypeListOf())
	b.host1.SetRoot(b.child1)
	return nil
}

func (b *bddContext) iSendLinkToTheChild() error {
	b.lastErr = b.child1.Link(b.ctx)
	return nil
}

func (b *bddContext) theChildsStateIs(want string) error {
	return assertState(b.child1.State(), want)
}

func (b *bddContext) iSendComposeToTheChildWithImmutable(immutable string) error {
	b.lastErr = b.child1.Compose(b.ctx, immutable == "true")
	return nil
}

func (b *bddContext) iTickTheHostWithADeltaTimeOfSeconds(dt float64) error {
	return b.host1.Tick(b.ctx, dt)
}

func (b *bddContext) theChildHasReceivedExactlyUpdate(n int) error {
	if got := b.child1.Updates(); got != n {
		return fmt.Errorf("expected %d updates, got %d", n, got)
	}
	return nil
}

func (b *bddContext) iSendDeleteToTheChild() error {
	b.lastErr = b.child1.Delete(b.ctx)
	return nil
}

func (b *bddContext) noChildrenRemainAttachedToTheHost() error {
	if b.child1.ChildCount() != 0 {
		return fmt.Errorf("expected no children, got %d", b.child1.ChildCount())
	}
	return nil
}

// --- Scenario 2: cross-thread attach ---

func (b *bddContext) aParentModuleOnThread(label string) error {
	b.hostA = b.track(spawnDrainingHost(b.ctx, label))
	b.parent2 = newScenarioModule("parent", b.hostA.ID(), 100, kernel.TypeListOf())
	return nil
}

func (b *bddContext) aChildModuleOnThread(label string) error {
	b.hostB = b.track(spawnDrainingHost(b.ctx, label))
	b.child2 = newScenarioModule("child", b.hostB.ID(), 10, kernel.TypeListOf())
	return nil
}

func (b *bddContext) iAttachTheChildToTheParentAcrossThreadsWithWait() error {
	b.attachErr = thread.AttachAcrossThreads(b.ctx, b.hostA.ID(), b.hostB.ID(), "child", b.parent2.Base, b.child2.Base, true)
	return nil
}

func (b *bddContext) theAttachCallSucceeds() error {
	if b.attachErr != nil {
		return fmt.Errorf("attach failed: %w", b.attachErr)
	}
	return nil
}

func (b *bddContext) theParentsChildrenContainTheChild() error {
	if b.parent2.FindModuleByID(b.child2.ID()) == nil {
		return errors.New("parent does not list the child")
	}
	return nil
}

func (b *bddContext) theChildsParentsContainTheParent() error {
	for _, p := range b.child2.Parents() {
		if p.ID() == b.parent2.ID() {
			return nil
		}
	}
	return errors.New("child does not list the parent")
}

// --- Scenario 3: frame rotation ---

func (b *bddContext) aCommandBufferManagerWithRingLength(n int) error {
	b.backend = gpu.NewFakeBackend()
	mgr, err := cmdbuffer.NewManager(cmdbuffer.ManagerConfig{
		Name:       "cmdbuf",
		ClassRank:  1,
		RingLength: n,
		Backend:    b.backend,
	})
	if err != nil {
		return err
	}
	b.manager = mgr
	if err := b.manager.Link(b.ctx); err != nil {
		return err
	}
	return b.manager.Compose(b.ctx, false)
}

func (b *bddContext) iRecordFramesEachWithOneOwnedCommandBufferAndATaggedCompletionCallback(n int) error {
	for k := 1; k <= n; k++ {
		b.recordingFrame = k
		fb, _, _, err := b.manager.BeginFrame(b.ctx)
		if err != nil {
			return fmt.Errorf("BeginFrame frame %d: %w", k, err)
		}
		cb, err := b.manager.Begin(b.ctx)
		if err != nil {
			return err
		}
		b.recorded = append(b.recorded, cb)
		if err := b.manager.End(b.ctx); err != nil {
			return err
		}
		frame := k
		b.manager.SubscribeOnFrameCompleted(func() {
			b.firedMu.Lock()
			b.fired[frame] = true
			if b.firedAt == nil {
				b.firedAt = make(map[int]int)
			}
			b.firedAt[frame] = b.recordingFrame
			b.firedMu.Unlock()
		})
		if err := b.manager.EndFrame(b.ctx, fb); err != nil {
			return fmt.Errorf("EndFrame frame %d: %w", k, err)
		}
	}
	return nil
}

func (b *bddContext) hasFired(frame int) bool {
	b.firedMu.Lock()
	defer b.firedMu.Unlock()
	return b.fired[frame]
}

func (b *bddContext) theCompletionCallbackForFrameHasFiredByTheEndOfFrame(frame, byFrame int) error {
	if !b.hasFired(frame) {
		return fmt.Errorf("callback for frame %d never fired", frame)
	}
	b.firedMu.Lock()
	at := b.firedAt[frame]
	b.firedMu.Unlock()
	if at > byFrame {
		return fmt.Errorf("callback for frame %d fired during frame %d, after the end of frame %d", frame, at, byFrame)
	}
	return nil
}

func (b *bddContext) theCompletionCallbackForFrameHasNotFired(frame int) error {
	if b.hasFired(frame) {
		return fmt.Errorf("callback for frame %d fired too early", frame)
	}
	return nil
}

func (b *bddContext) theSubmissionOrderEqualsTheRecordingOrder() error {
	subs := b.backend.Submissions()
	if len(subs) != 5 {
		return fmt.Errorf("expected 5 submissions, got %d", len(subs))
	}
	for i, s := range subs {
		if len(s.Buffers) != 1 {
			return fmt.Errorf("submission %d: expected 1 buffer, got %d", i, len(s.Buffers))
		}
		if i >= len(b.recorded) || s.Buffers[0] != b.recorded[i] {
			return fmt.Errorf("submission %d: buffers recorded out of order (got buffer %d)", i, s.Buffers[0])
		}
	}
	return nil
}

// --- Scenario 4: force flush ---

func (b *bddContext) aThreadHostWithAQueueHighWaterMarkOf(mark int) error {
	b.queue = thread.NewQueue(mark)
	b.queue.SetForcedFlushHook(func(depth int) { b.forcedFlushes++ })
	return nil
}

func (b *bddContext) aNonOwnerThreadPosts2000AsyncMessagesToIt() error {
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			idx := i
			_, _, err := b.queue.Push(1, func(ctx context.Context) {
				mu.Lock()
				b.observed = append(b.observed, idx)
				mu.Unlock()
			})
			if err != nil {
				b.lastErr = err
			}
		}
	}()
	wg.Wait()
	return nil
}

func (b *bddContext) theHostDrainsItsQueue() error {
	for _, fn := range b.queue.Drain() {
		fn(b.ctx)
	}
	return nil
}

func (b *bddContext) everyMessageWasObservedExactlyOnceInSourceOrder() error {
	if len(b.observed) != 2000 {
		return fmt.Errorf("expected 2000 observations, got %d", len(b.observed))
	}
	if !sort.IntsAreSorted(b.observed) {
		return errors.New("messages observed out of source order")
	}
	seen := make(map[int]bool, 2000)
	for _, v := range b.observed {
		if seen[v] {
			return fmt.Errorf("message %d observed more than once", v)
		}
		seen[v] = true
	}
	return nil
}

func (b *bddContext) atLeastOneForcedFlushEventWasLogged() error {
	if b.forcedFlushes < 1 {
		return errors.New("expected at least one forced flush")
	}
	return nil
}

func (b *bddContext) noQueueOverflowWasReportedToTheCaller() error {
	if b.lastErr != nil {
		return fmt.Errorf("unexpected error from Push: %w", b.lastErr)
	}
	return nil
}

// --- Scenario 5: link failure recovery ---

func (b *bddContext) aModuleWhoseLinkDependsOnASiblingThatIsNotYetAttached() error {
	b.container = newScenarioModule("container", 0, 100, kernel.TypeListOf())
	b.dependent = newDependentModule("needs-dep", 0, b.container)
	if err := b.container.Attach(b.ctx, "needs-dep", b.dependent.Base); err != nil {
		return err
	}
	if err := kernel.Subscribe(b.dependent.Inbox(), b.dependent.MessageSurface(), b.dependent.Base, func(pingMsg) error { return nil }, nil); err != nil {
		return err
	}
	b.subLenBeforeFirst = b.dependent.Inbox().Len()
	return nil
}

func (b *bddContext) iSendLinkToTheModule() error {
	b.lastErr = b.dependent.Link(b.ctx)
	b.subLenAfterFirst = b.dependent.Inbox().Len()
	return nil
}

func (b *bddContext) theModulesStateIs(want string) error {
	return assertState(b.dependent.State(), want)
}

func (b *bddContext) iAttachTheMissingDependency() error {
	dep := newScenarioModule("dep", 0, 10, kernel.TypeListOf())
	return b.container.Attach(b.ctx, "dep", dep.Base)
}

func (b *bddContext) iSendLinkToTheModuleAgain() error {
	b.lastErr = b.dependent.Link(b.ctx)
	b.subLenAfterSecond = b.dependent.Inbox().Len()
	return nil
}

func (b *bddContext) theModulesSubscriptionMapIsUnchangedBetweenTheTwoLinkAttempts() error {
	if b.subLenBeforeFirst != b.subLenAfterFirst || b.subLenAfterFirst != b.subLenAfterSecond {
		return fmt.Errorf("subscription count drifted: %d -> %d -> %d",
			b.subLenBeforeFirst, b.subLenAfterFirst, b.subLenAfterSecond)
	}
	return nil
}

// --- Scenario 6: immutable after compose ---

func (b *bddContext) aModuleLinkedAndComposedWithImmutableTrue() error {
	b.sealed = newScenarioModule("sealed", 0, 100, kernel.TypeListOf())
	if err := b.sealed.Link(b.ctx); err != nil {
		return err
	}
	return b.sealed.Compose(b.ctx, true)
}

func (b *bddContext) iAttemptToAttachANewChildToIt() error {
	b.candidate = newScenarioModule("candidate", 0, 10, kernel.TypeListOf())
	b.lastErr = b.sealed.Attach(b.ctx, "candidate", b.candidate.Base)
	return nil
}

func (b *bddContext) theAttachFailsWith(kind string) error {
	switch kind {
	case "InvalidState":
		if !errors.Is(b.lastErr, kernel.ErrInvalidState) {
			return fmt.Errorf("expected ErrInvalidState, got %v", b.lastErr)
		}
		return nil
	default:
		return fmt.Errorf("unknown error kind %q", kind)
	}
}

func (b *bddContext) theSealedModulesStateIsStill(want string) error {
	return assertState(b.sealed.State(), want)
}

func (b *bddContext) theModuleHasNoChildren() error {
	if b.sealed.ChildCount() != 0 {
		return fmt.Errorf("expected no children, got %d", b.sealed.ChildCount())
	}
	return nil
}

func assertState(got kernel.State, want string) error {
	if got.String() != want {
		return fmt.Errorf("expected state %s, got %s", want, got.String())
	}
	return nil
}

// InitializeScenario registers every step definition used by the six
// features under features/.
func InitializeScenario(sc *godog.ScenarioContext) {
	bctx := &bddContext{fired: make(map[int]bool)}

	sc.Before(func(ctx context.Context, s *godog.Scenario) (context.Context, error) {
		bctx.reset()
		return ctx, nil
	})
	sc.After(func(ctx context.Context, s *godog.Scenario, err error) (context.Context, error) {
		if bctx.cancel != nil {
			bctx.cancel()
		}
		return ctx, nil
	})

	// Scenario 1
	sc.Step(`^a thread host with one child module that declares an empty message surface$`, bctx.aThreadHostWithOneChildModule)
	sc.Step(`^I send Link to the child$`, bctx.iSendLinkToTheChild)
	sc.Step(`^the child's state is (\w+)$`, bctx.theChildsStateIs)
	sc.Step(`^I send Compose to the child with immutable (true|false)$`, bctx.iSendComposeToTheChildWithImmutable)
	sc.Step(`^I tick the host with a delta time of ([\d.]+) seconds$`, bctx.iTickTheHostWithADeltaTimeOfSeconds)
	sc.Step(`^the child has received exactly (\d+) updates?$`, bctx.theChildHasReceivedExactlyUpdate)
	sc.Step(`^I send Delete to the child$`, bctx.iSendDeleteToTheChild)
	sc.Step(`^no children remain attached to the host$`, bctx.noChildrenRemainAttachedToTheHost)

	// Scenario 2
	sc.Step(`^a parent module on thread "(\w+)"$`, bctx.aParentModuleOnThread)
	sc.Step(`^a child module on thread "(\w+)"$`, bctx.aChildModuleOnThread)
	sc.Step(`^I attach the child to the parent across threads with wait$`, bctx.iAttachTheChildToTheParentAcrossThreadsWithWait)
	sc.Step(`^the attach call succeeds$`, bctx.theAttachCallSucceeds)
	sc.Step(`^the parent's children contain the child$`, bctx.theParentsChildrenContainTheChild)
	sc.Step(`^the child's parents contain the parent$`, bctx.theChildsParentsContainTheParent)

	// Scenario 3
	sc.Step(`^a command-buffer manager with ring length (\d+)$`, bctx.aCommandBufferManagerWithRingLength)
	sc.Step(`^I record (\d+) frames, each with one owned command buffer and a tagged completion callback$`, bctx.iRecordFramesEachWithOneOwnedCommandBufferAndATaggedCompletionCallback)
	sc.Step(`^the completion callback for frame (\d+) has fired by the end of frame (\d+)$`, bctx.theCompletionCallbackForFrameHasFiredByTheEndOfFrame)
	sc.Step(`^the completion callback for frame (\d+) has not fired$`, bctx.theCompletionCallbackForFrameHasNotFired)
	sc.Step(`^the submission order equals the recording order$`, bctx.theSubmissionOrderEqualsTheRecordingOrder)

	// Scenario 4
	sc.Step(`^a thread host with a queue high-water mark of (\d+)$`, bctx.aThreadHostWithAQueueHighWaterMarkOf)
	sc.Step(`^a non-owner thread posts 2000 async messages to it$`, bctx.aNonOwnerThreadPosts2000AsyncMessagesToIt)
	sc.Step(`^the host drains its queue$`, bctx.theHostDrainsItsQueue)
	sc.Step(`^every message was observed exactly once in source order$`, bctx.everyMessageWasObservedExactlyOnceInSourceOrder)
	sc.Step(`^at least one forced-flush event was logged$`, bctx.atLeastOneForcedFlushEventWasLogged)
	sc.Step(`^no queue overflow was reported to the caller$`, bctx.noQueueOverflowWasReportedToTheCaller)

	// Scenario 5
	sc.Step(`^a module whose Link depends on a sibling that is not yet attached$`, bctx.aModuleWhoseLinkDependsOnASiblingThatIsNotYetAttached)
	sc.Step(`^I send Link to the module$`, bctx.iSendLinkToTheModule)
	sc.Step(`^the module's state is (\w+)$`, bctx.theModulesStateIs)
	sc.Step(`^I attach the missing dependency$`, bctx.iAttachTheMissingDependency)
	sc.Step(`^I send Link to the module again$`, bctx.iSendLinkToTheModuleAgain)
	sc.Step(`^the module's subscription map is unchanged between the two link attempts$`, bctx.theModulesSubscriptionMapIsUnchangedBetweenTheTwoLinkAttempts)

	// Scenario 6
	sc.Step(`^a module linked and composed with immutable true$`, bctx.aModuleLinkedAndComposedWithImmutableTrue)
	sc.Step(`^I attempt to attach a new child to it$`, bctx.iAttemptToAttachANewChildToIt)
	sc.Step(`^the attach fails with (\w+)$`, bctx.theAttachFailsWith)
	sc.Step(`^the module's state is still (\w+)$`, bctx.theSealedModulesStateIsStill)
	sc.Step(`^the module has no children$`, bctx.theModuleHasNoChildren)
}

// TestEndToEndScenarios runs every feature in features/ through godog.
func TestEndToEndScenarios(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
