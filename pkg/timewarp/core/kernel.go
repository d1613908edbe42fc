package core

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/lattice-sim/timewarp/pkg/timewarp/definition"
	"github.com/lattice-sim/timewarp/pkg/timewarp/types"
)

// poweroff mirrors teacher's protocol.go shutdown guard: a
// close-once channel protected by a mutex so Shutdown is idempotent
// and safe to call from any goroutine.
type poweroff struct {
	mu       sync.Mutex
	shutdown bool
	ch       chan struct{}
}

func newPoweroff() poweroff { return poweroff{ch: make(chan struct{})} }

func (p *poweroff) trigger() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.shutdown {
		p.shutdown = true
		close(p.ch)
	}
}

// Simulation is the Time Warp kernel manager: the counterpart to
// teacher's Unity, orchestrating the worker pool, the schedule ladder,
// local and distributed GVT, termination, and fossil collection for
// one node's share of the LP population.
type Simulation struct {
	config *Configuration
	log    types.Logger

	lpsMu sync.RWMutex
	lps   map[types.LPID]*lpRuntime

	ladder *Ladder

	bridge      *Bridge
	localGVT    LocalGVTCollector
	mattern     *MatternGVT
	termination *TerminationDetector
	metrics     *Metrics

	gvt atomic.Uint32

	invoker Invoker
	off     poweroff
	wg      sync.WaitGroup
}

// NewSimulation constructs a Simulation over the given Transport (use
// NewLoopbackBridge().Register(cfg.Self) for a single-process run).
func NewSimulation(cfg *Configuration, transport Transport) *Simulation {
	if cfg.Partitioner == nil {
		cfg.Partitioner = AllLocal
	}
	if cfg.Logger == nil {
		cfg.Logger = definition.NewDefaultLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NopMetrics()
	}

	var collector LocalGVTCollector
	if cfg.GVTMode == GVTSync {
		collector = NewSyncLocalGVT(cfg.Workers)
	} else {
		collector = NewAsyncLocalGVT(cfg.Workers)
	}

	sim := &Simulation{
		config:      cfg,
		log:         cfg.Logger,
		lps:         make(map[types.LPID]*lpRuntime),
		ladder:      NewLadder(),
		bridge:      NewBridge(transport, cfg.Logger),
		localGVT:    collector,
		mattern:     NewMatternGVT(cfg.Self, cfg.Next, cfg.Initiator, cfg.Logger),
		termination: NewTerminationDetector(cfg.Self, cfg.Next, cfg.Initiator),
		metrics:     cfg.Metrics,
		invoker:     NewInvoker(),
		off:         newPoweroff(),
	}
	sim.wireBridge()
	return sim
}

// RegisterLP admits model into the simulation. Names must be unique
// across the node's registered LPs, per the LP contract in section 6;
// a collision is a ModelContract error.
func (s *Simulation) RegisterLP(model types.LogicalProcess) error {
	s.lpsMu.Lock()
	defer s.lpsMu.Unlock()

	id := model.ID()
	if _, exists := s.lps[id]; exists {
		return types.NewKernelError(types.ModelContract, id, nil, "duplicate LP id registered")
	}

	rt := newLPRuntime(model, s.log, s.config.StatePeriod)
	rt.input.SetStragglerHook(func(types.LPID, types.Event) {
		s.metrics.StragglersSeen.Inc()
	})
	rt.states.SeedInitial(model.State(), rt.rngs)
	s.lps[id] = rt
	return nil
}

func (s *Simulation) lookupLP(id types.LPID) (*lpRuntime, bool) {
	s.lpsMu.RLock()
	defer s.lpsMu.RUnlock()
	rt, ok := s.lps[id]
	return rt, ok
}

// seedInitialEvents asks every registered InitialEventSource LP for its
// initial events and admits them, per section 6.
func (s *Simulation) seedInitialEvents() error {
	s.lpsMu.RLock()
	runtimes := make([]*lpRuntime, 0, len(s.lps))
	for _, rt := range s.lps {
		runtimes = append(runtimes, rt)
	}
	s.lpsMu.RUnlock()

	for _, rt := range runtimes {
		source, ok := rt.model.(types.InitialEventSource)
		if !ok {
			continue
		}
		for _, e := range source.InitialEvents() {
			if err := s.admit(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// admit routes e to its receiver's input queue (local) or the bridge
// (remote), matching the worker loop's deliver_local/enqueue_remote
// split in section 4.F. It is also used for initial event seeding.
func (s *Simulation) admit(e types.Event) error {
	if s.config.Partitioner(e.Receiver) != s.config.Self {
		return s.enqueueRemote(e)
	}
	return s.deliverLocal(e)
}

func (s *Simulation) deliverLocal(e types.Event) error {
	rt, ok := s.lookupLP(e.Receiver)
	if !ok {
		return types.NewKernelError(types.ProtocolViolation, e.Receiver, &e,
			"event addressed to unknown local LP")
	}
	action, err := rt.input.Insert(e)
	if err != nil {
		return err
	}
	if action.Push != nil {
		s.ladder.Insert(*action.Push)
	}
	return nil
}

func (s *Simulation) enqueueRemote(e types.Event) error {
	dst := s.config.Partitioner(e.Receiver)
	s.mattern.OnSend(e.ReceiveTime)
	msg := types.NewEventMessage(s.config.Self, dst, e, s.mattern.Colour())
	s.bridge.Insert(msg)
	return nil
}

// wireBridge registers the manager's handlers for every inbound wire
// message type, per section 4.J's dispatch table.
func (s *Simulation) wireBridge() {
	s.bridge.OnEvent(func(msg types.EventMessage) {
		s.mattern.OnReceive()
		if err := s.deliverLocal(msg.Event); err != nil {
			s.log.Errorf("failed delivering inbound event: %v", err)
		}
	})
	s.bridge.OnMatternToken(func(msg types.MatternToken) {
		s.handleMatternToken(msg)
	})
	s.bridge.OnGVTUpdate(func(msg types.GVTUpdate) {
		s.gvt.Store(msg.NewGVT)
		s.mattern.OnGVTUpdate(msg.NewGVT)
		s.metrics.GVT.Set(float64(msg.NewGVT))
		s.fossilCollect(msg.NewGVT)
		// Ring relay: every non-initiator node forwards the broadcast
		// one hop further so it reaches the whole ring; the initiator
		// already applied it locally when it computed the new GVT and
		// must not re-emit (section 4.H: "every node on receipt...").
		if !s.config.Initiator && s.config.Next != s.config.Self {
			s.bridge.Insert(types.NewGVTUpdate(s.config.Self, s.config.Next, msg.NewGVT))
		}
	})
	s.bridge.OnTerminationToken(func(msg types.TerminationToken) {
		s.handleTerminationToken(msg)
	})
	s.bridge.OnTerminator(func(types.Terminator) {
		s.off.trigger()
	})
}

func (s *Simulation) handleMatternToken(token types.MatternToken) {
	local := s.localGVT.CollectLocalMinimum()
	result := s.mattern.HandleToken(token, local)
	if result.Done {
		s.gvt.Store(result.NewGVT)
		s.mattern.OnGVTUpdate(result.NewGVT)
		s.metrics.GVT.Set(float64(result.NewGVT))
		s.bridge.Insert(types.NewGVTUpdate(s.config.Self, s.config.Next, result.NewGVT))
		s.fossilCollect(result.NewGVT)
		return
	}
	if result.Forward != nil {
		s.bridge.Insert(*result.Forward)
	}
}

func (s *Simulation) handleTerminationToken(token types.TerminationToken) {
	result := s.termination.HandleToken(token)
	if result.Terminate {
		s.bridge.Insert(types.NewTerminator(s.config.Self, s.config.Next))
		s.off.trigger()
		return
	}
	if result.Forward != nil {
		s.bridge.Insert(*result.Forward)
	}
}

// fossilCollect drops every queue entry that can no longer be rolled
// back to, across all locally-registered LPs, per sections 4.B/4.D/4.E.
func (s *Simulation) fossilCollect(gvt uint32) {
	s.lpsMu.RLock()
	defer s.lpsMu.RUnlock()
	for _, rt := range s.lps {
		rt.input.FossilBelow(gvt)
		rt.states.FossilBelow(gvt)
		rt.output.FossilBelow(gvt)
	}
	s.metrics.FossilRuns.Inc()
}

// Run seeds initial events and starts the worker pool plus the manager
// loop, blocking until termination is detected or Shutdown is called.
func (s *Simulation) Run() error {
	if err := s.seedInitialEvents(); err != nil {
		return err
	}

	for tid := 0; tid < s.config.Workers; tid++ {
		id := tid
		s.wg.Add(1)
		s.invoker.Spawn(func() {
			defer s.wg.Done()
			s.workerLoop(id)
		})
	}

	s.wg.Add(1)
	s.invoker.Spawn(func() {
		defer s.wg.Done()
		s.managerLoop()
	})

	<-s.off.ch
	s.wg.Wait()
	return nil
}

// Shutdown requests the simulation stop; safe to call multiple times
// and from any goroutine.
func (s *Simulation) Shutdown() {
	s.off.trigger()
}

// GVT returns the most recently agreed Global Virtual Time.
func (s *Simulation) GVT() uint32 {
	return s.gvt.Load()
}

// managerLoop drives message dispatch, periodic GVT rounds, and
// passive-state token emission, per section 5 ("the manager runs
// message dispatch, GVT progression, fossil collection, and
// remote-send flushing").
func (s *Simulation) managerLoop() {
	ticker := time.NewTicker(s.config.GVTPeriod)
	defer ticker.Stop()

	inbound := s.bridge.transport.Listen()
	for {
		select {
		case <-s.off.ch:
			return
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			s.bridge.Dispatch(msg)
		case <-ticker.C:
			s.managerTick()
		}
	}
}

func (s *Simulation) managerTick() {
	if s.config.Initiator {
		local := s.localGVT.CollectLocalMinimum()
		token := s.mattern.StartRound(local)
		s.bridge.Insert(token)
	}
	if s.allLPsPassive() {
		s.termination.SetPassive()
	} else {
		s.termination.SetActive()
	}
	if tok, ok := s.termination.MaybeSendToken(); ok {
		s.bridge.Insert(tok)
	}
	s.metrics.LadderDepth.Set(float64(s.ladder.Depth()))
	s.metrics.LadderSize.Set(float64(s.ladder.Len()))
	if err := s.bridge.Flush(); err != nil {
		s.log.Warnf("manager: flush failed: %v", err)
	}
}

// allLPsPassive reports whether every local LP has no scheduled work,
// the per-thread passivity signal section 4.I derives termination from.
func (s *Simulation) allLPsPassive() bool {
	s.lpsMu.RLock()
	defer s.lpsMu.RUnlock()
	for _, rt := range s.lps {
		if _, ok := rt.input.ScheduledEvent(); ok {
			return false
		}
	}
	return s.ladder.Len() == 0
}
