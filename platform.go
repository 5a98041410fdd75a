// Package platform is the root facade: it wires the worker engine, the
// local and wire routers, the timing engine and daemon, the core-mask
// map, and the input-polling registry into one Start/Stop lifecycle,
// and is the entry point cmd/platform-node drives. Bring-up runs global
// init once, local init per core, then an active-sync barrier before
// the main dispatch loops; teardown runs the same steps in reverse.
// One pinned goroutine per physical core carries the per-core work.
package platform

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/forkcore/platform/internal/bootstrap"
	"github.com/forkcore/platform/internal/coremap"
	"github.com/forkcore/platform/internal/dispatch"
	"github.com/forkcore/platform/internal/errorsx"
	"github.com/forkcore/platform/internal/input"
	"github.com/forkcore/platform/internal/logging"
	"github.com/forkcore/platform/internal/message"
	"github.com/forkcore/platform/internal/pcore"
	"github.com/forkcore/platform/internal/router"
	"github.com/forkcore/platform/internal/timing"
	"github.com/forkcore/platform/internal/workers"
	"github.com/forkcore/platform/internal/worktable"
)

// Config describes one node's platform instance.
type Config struct {
	// NodeID is this node's identifier (0-3).
	NodeID uint16
	// Cores is how many physical cores to pin dispatcher loops to. Zero
	// means claim every core bootstrap.ClaimAllCores reports.
	Cores int

	// EnableWire turns on the Ethernet-based inter-node transport. When
	// false, messages addressed to another node are dropped with a
	// logged warning (internal/router.Router's nil-wire behaviour).
	EnableWire bool
	// NetIf is the network interface the wire transport binds to.
	NetIf string
	// SocketEntries sizes the wire transport's submission/completion
	// ring; zero uses FrameIO's own default.
	SocketEntries uint32

	// DefaultPoolConfig and MessagingPoolConfig record the parsed
	// --default-pool-config/--messaging-pool-config values for
	// diagnostics; internal/shmem's RuntimeShared pool always uses its
	// own fixed 4k/16k/64k bucket ladder regardless of what is
	// configured here.
	DefaultPoolConfig   bootstrap.PoolConfig
	MessagingPoolConfig bootstrap.PoolConfig

	// AppLibList is a colon-separated list of application library
	// paths, typically read from bootstrap.AppLibListEnv by the CLI
	// layer before NewPlatform is called.
	AppLibList string

	// Observer receives every tracked event. A nil Observer defaults to
	// one backed by the Platform's own Metrics.
	Observer Observer
}

// Platform is a single running node: one worker engine, one timing
// engine and daemon, one local+wire router, and one pinned dispatcher
// loop per configured core.
type Platform struct {
	cfg  Config
	node uint16

	metrics  *Metrics
	observer Observer

	engine       *workers.Engine
	timingEngine *timing.Engine
	timingDaemon *timing.Daemon
	coreMap      *coremap.Map
	inputReg     *input.Registry
	router       *router.Router
	wire         *router.WireRouter

	loops    []*dispatch.Loop
	loopWG   sync.WaitGroup
	exitFlag atomic.Bool

	wireStop chan struct{}
	wireWG   sync.WaitGroup

	appLibs    []*bootstrap.AppLib
	stopSigint func()

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewPlatform validates cfg and wires every subsystem together, without
// starting any goroutines yet - that happens in Start.
func NewPlatform(cfg Config) (*Platform, error) {
	if cfg.NodeID > pcore.MaxNodeID {
		return nil, errorsx.NewError("NewPlatform", errorsx.KindProgrammingViolation, fmt.Sprintf("node id %d exceeds maximum %d", cfg.NodeID, pcore.MaxNodeID))
	}
	if cfg.NetIf == "" {
		cfg.NetIf = "eth0"
	}

	cores := cfg.Cores
	if cores <= 0 {
		cores = bootstrap.ClaimAllCores()
	}

	metrics := NewMetrics()
	observer := cfg.Observer
	if observer == nil {
		observer = NewMetricsObserver(metrics)
	}

	p := &Platform{
		cfg:      cfg,
		node:     cfg.NodeID,
		metrics:  metrics,
		observer: observer,
		coreMap:  coremap.New(),
		inputReg: input.NewRegistry(),
	}

	p.engine = workers.NewEngine(cfg.NodeID, engineObserverAdapter{p})
	p.timingEngine = timing.NewEngine()

	if cfg.EnableWire {
		frameIO, err := router.NewFrameIO(router.SocketConfig{Iface: cfg.NetIf, Entries: cfg.SocketEntries})
		if err != nil {
			return nil, errorsx.WrapError("NewPlatform", err)
		}
		p.wire = router.NewWireRouter(cfg.NodeID, frameIO, p.deliverFromWire)
		p.wireStop = make(chan struct{})
	}

	var wireSender router.WireSender
	if p.wire != nil {
		wireSender = p.wire
	}
	p.router = router.New(cfg.NodeID, p.engine.Table(), wireSender, routerObserverAdapter{p})
	p.engine.InstallSendHook(func(msg *message.Message, sender, receiver pcore.WorkerID) {
		p.router.SendFrom(msg, sender, receiver)
	})
	p.timingDaemon = timing.NewDaemon(p.timingEngine, p.router, timingObserverAdapter{p})

	p.loops = make([]*dispatch.Loop, cores)
	for i := 0; i < cores; i++ {
		p.loops[i] = dispatch.New(i, &p.exitFlag, p.inputReg)
	}
	p.engine.InstallExecutor(newCoreExecutor(p.coreMap, p.loops))

	return p, nil
}

// Node returns this platform's node identifier.
func (p *Platform) Node() uint16 { return p.node }

// Metrics returns a point-in-time snapshot of operational counters.
func (p *Platform) Metrics() MetricsSnapshot { return p.metrics.Snapshot() }

// ResolveCoreGroup maps a core mask to its scheduling-group handle.
func (p *Platform) ResolveCoreGroup(mask uint64) coremap.Handle { return p.coreMap.Resolve(mask) }

// RegisterInputPoller adds cb to the set invoked once per dispatch
// chunk on every core, while input polling is enabled (Start through
// Stop).
func (p *Platform) RegisterInputPoller(cb input.Callback) { p.inputReg.Register(cb) }

// DeployWorker deploys a new worker, delegating to the worker engine.
func (p *Platform) DeployWorker(cfg workers.Config) (pcore.WorkerID, error) {
	return p.engine.DeployWorker(cfg)
}

// TerminateWorker tears down a running worker by id.
func (p *Platform) TerminateWorker(id pcore.WorkerID) error {
	return p.engine.TerminateWorker(id)
}

// FindLocalWorker looks up a deployed worker's id by name.
func (p *Platform) FindLocalWorker(name string) (pcore.WorkerID, error) {
	return p.engine.FindLocalWorker(name)
}

// SendMessage routes msg to receiver as a platform-internal send (no
// worker sender stamped), the same path internal/timing's daemon uses
// to deliver timeout messages.
func (p *Platform) SendMessage(msg *message.Message, receiver pcore.WorkerID) {
	p.router.Send(msg, receiver)
}

// CreateTimer reserves a new timer identifier.
func (p *Platform) CreateTimer(name string) (pcore.TimerID, error) {
	return p.timingEngine.CreateTimer(name)
}

// ArmTimer arms id to fire after expires, rearming every period
// thereafter (period == 0 for one-shot), delivering msg to receiver on
// each firing.
func (p *Platform) ArmTimer(id pcore.TimerID, expires, period time.Duration, msg *message.Message, receiver pcore.WorkerID) (pcore.TimerID, error) {
	tid, err := p.timingEngine.ArmTimer(id, expires, period, msg, receiver)
	if err == nil {
		p.observer.ObserveTimerArmed()
	}
	return tid, err
}

// DisarmTimer cancels id, reconciling an already-fired race through the
// timer's skip-event counter.
func (p *Platform) DisarmTimer(id pcore.TimerID) (pcore.TimerID, error) {
	return p.timingEngine.DisarmTimer(id)
}

// DestroyTimer releases id's context, deferring release if the daemon
// still has outstanding events to drain for it.
func (p *Platform) DestroyTimer(id pcore.TimerID) error {
	err := p.timingEngine.DestroyTimer(id)
	if err == nil {
		p.metrics.TimersDestroyed.Add(1)
	}
	return err
}

// deliverFromWire is the WireRouter's deliver callback: it hands an
// inbound, already-validated message straight to the local worker
// table, bypassing Router.SendFrom's receiver/node revalidation since
// internal/router.DecodeFrame has already established this message is
// addressed to this node.
func (p *Platform) deliverFromWire(msg *message.Message) {
	p.metrics.MessagesReceived.Add(1)
	receiver := pcore.WorkerID(msg.Header.Receiver)
	switch p.engine.Table().Deliver(receiver, msg) {
	case worktable.Delivered:
		p.observer.ObserveMessageRouted()
	case worktable.Buffered:
		p.observer.ObserveMessageBuffered()
	default:
		logging.Warn("platform: dropping inbound message for unavailable receiver", "receiver", receiver)
		message.DestroyMessage(msg)
		p.observer.ObserveMessageDropped()
	}
}

// Start runs every application library's global init once, then spawns
// one pinned goroutine per configured core: each pins itself, runs
// local init, waits at the active-sync barrier for every other core to
// finish local init, then enters its main dispatch loop.
func (p *Platform) Start() error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return errorsx.Fatal("Start", "platform already started")
	}
	p.started = true
	p.mu.Unlock()

	logging.Info("platform: starting", "node", p.node, "cores", len(p.loops))

	p.appLibs = bootstrap.LoadAppLibs(p.cfg.AppLibList)

	for _, lib := range p.appLibs {
		if lib.GlobalInit == nil {
			continue
		}
		if status := lib.GlobalInit(); status != 0 {
			return errorsx.Fatal("Start", fmt.Sprintf("application %s global init failed with status %d", lib.Path, status))
		}
	}

	go p.timingDaemon.Run()
	if p.wire != nil {
		p.wireWG.Add(1)
		go func() {
			defer p.wireWG.Done()
			p.wire.Pump(p.wireStop)
		}()
	}
	p.inputReg.Enable()

	var initCounter atomic.Int64
	cores := int64(len(p.loops))
	p.loopWG.Add(len(p.loops))
	for _, l := range p.loops {
		l := l
		go func() {
			defer p.loopWG.Done()
			defer func() {
				if r := recover(); r != nil {
					logging.FatalBanner(0, fmt.Sprintf("dispatcher core %d: %v", l.Core(), r))
					if err := bootstrap.AppendRecoveryAction(fmt.Sprintf("# dispatcher core %d died: %v", l.Core(), r)); err != nil {
						logging.Warn("platform: failed to append recovery action", "error", err)
					}
					panic(r)
				}
			}()
			l.Pin()

			for _, lib := range p.appLibs {
				if lib.LocalInit != nil {
					lib.LocalInit(l.Core())
				}
			}

			l.ActiveSync(&initCounter, cores)
			l.Run()
			l.Drain()
		}()
	}

	p.stopSigint = bootstrap.ListenForSigint(&p.exitFlag)

	logging.Info("platform: started")
	return nil
}

// Stop requests shutdown, waits for every dispatcher loop to return,
// tears down every worker, runs every application library's local and
// global exit, retires every timer, and closes the wire transport.
// Idempotent - a second call is a no-op.
func (p *Platform) Stop() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.mu.Unlock()

	logging.Info("platform: stopping")

	if p.stopSigint != nil {
		p.stopSigint()
	}

	p.exitFlag.Store(true)
	p.loopWG.Wait()
	for _, l := range p.loops {
		l.FlushWork()
	}
	p.inputReg.Disable()

	p.engine.DisableDeployment()
	for _, id := range p.engine.ActiveWorkerIDs() {
		if err := p.engine.TerminateWorker(id); err != nil {
			logging.Warn("platform: failed to terminate worker during shutdown", "worker", id, "error", err)
		}
	}
	waitForWorkersIdle(p.engine, 5*time.Second)

	for _, l := range p.loops {
		for _, lib := range p.appLibs {
			if lib.LocalExit != nil {
				lib.LocalExit(l.Core())
			}
		}
	}
	for _, lib := range p.appLibs {
		if lib.GlobalExit != nil {
			lib.GlobalExit()
		}
	}

	for i := 0; i < p.timingEngine.Table().Count(); i++ {
		p.timingEngine.RetireTimer(pcore.TimerID(i))
	}
	p.timingDaemon.Stop()

	if p.wire != nil {
		close(p.wireStop)
		p.wireWG.Wait()
		if err := p.wire.Close(); err != nil {
			logging.Warn("platform: failed to close wire transport", "error", err)
		}
	}

	p.metrics.Stop()
	if err := bootstrap.ClearRecoveryFile(); err != nil {
		logging.Warn("platform: failed to clear recovery file", "error", err)
	}

	logging.Info("platform: stopped")
	return nil
}

// waitForWorkersIdle polls e.Idle since TerminateWorker tears down
// asynchronously (engine.go's stopWorker runs on its own goroutine);
// there is no completion signal to block on directly.
func waitForWorkersIdle(e *workers.Engine, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for !e.Idle() {
		if time.Now().After(deadline) {
			logging.Warn("platform: timed out waiting for workers to finish terminating")
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// engineObserverAdapter narrows the root Observer down to
// internal/workers.Observer.
type engineObserverAdapter struct{ p *Platform }

func (a engineObserverAdapter) ObserveWorkerDeployed()   { a.p.observer.ObserveWorkerDeployed() }
func (a engineObserverAdapter) ObserveWorkerTerminated() { a.p.observer.ObserveWorkerTerminated() }
func (a engineObserverAdapter) ObserveWorkerRejected()   { a.p.observer.ObserveWorkerRejected() }
func (a engineObserverAdapter) ObserveMessageDropped()   { a.p.observer.ObserveMessageDropped() }
func (a engineObserverAdapter) ObserveMessageFlushed()   { a.p.observer.ObserveMessageFlushed() }

// routerObserverAdapter narrows the root Observer down to
// internal/router.Observer.
type routerObserverAdapter struct{ p *Platform }

func (a routerObserverAdapter) MessageDelivered(pcore.WorkerID) { a.p.observer.ObserveMessageRouted() }
func (a routerObserverAdapter) MessageBuffered(pcore.WorkerID)  { a.p.observer.ObserveMessageBuffered() }
func (a routerObserverAdapter) MessageDropped(pcore.WorkerID, string) {
	a.p.observer.ObserveMessageDropped()
}

// timingObserverAdapter narrows the root Observer down to
// internal/timing.Observer.
type timingObserverAdapter struct{ p *Platform }

func (a timingObserverAdapter) ObserveTimerFired()   { a.p.observer.ObserveTimerFired() }
func (a timingObserverAdapter) ObserveTimerSkipped() { a.p.observer.ObserveTimerSkipped() }

// coreExecutor schedules handler bodies onto the pinned per-core
// dispatch loops. Each distinct core mask resolves once through the
// core-group map; the group's handle keys a cached eligible-core list
// reused for every subsequent dispatch against that mask.
type coreExecutor struct {
	coreMap *coremap.Map
	loops   []*dispatch.Loop

	mu     sync.Mutex
	groups map[coremap.Handle][]int
	rr     map[coremap.Handle]int
}

func newCoreExecutor(m *coremap.Map, loops []*dispatch.Loop) *coreExecutor {
	return &coreExecutor{
		coreMap: m,
		loops:   loops,
		groups:  make(map[coremap.Handle][]int),
		rr:      make(map[coremap.Handle]int),
	}
}

// Run implements workers.Executor: pick the group's next eligible core
// round-robin and queue fn on its pinned loop. fn runs inline on the
// caller when the mask names no configured core, or when the chosen
// core's work queue is full (liveness over strict affinity).
func (c *coreExecutor) Run(coreMask uint64, fn func(core int)) {
	group := c.coreMap.Resolve(coreMask)

	c.mu.Lock()
	cores, ok := c.groups[group]
	if !ok {
		for i := 0; i < len(c.loops) && i < 64; i++ {
			if coreMask&(1<<uint(i)) != 0 {
				cores = append(cores, i)
			}
		}
		c.groups[group] = cores
	}
	var core int
	if len(cores) > 0 {
		core = cores[c.rr[group]%len(cores)]
		c.rr[group]++
	}
	c.mu.Unlock()

	if len(cores) == 0 {
		logging.Warn("platform: core mask names no configured core, running handler unpinned", "coreMask", coreMask)
		fn(0)
		return
	}
	if !c.loops[core].Submit(func() { fn(core) }) {
		fn(core)
	}
}

var (
	_ workers.Observer = engineObserverAdapter{}
	_ router.Observer  = routerObserverAdapter{}
	_ timing.Observer  = timingObserverAdapter{}
	_ workers.Executor = (*coreExecutor)(nil)
)
