package core

import (
	"time"

	"github.com/lattice-sim/timewarp/pkg/timewarp/types"
)

// workerLoop implements section 4.F verbatim: pop the schedule queue's
// minimum, resolve any pending straggler or anti-message for that LP
// first, otherwise process the event, save a checkpoint, fan emitted
// events out locally or remotely, then reschedule the LP.
func (s *Simulation) workerLoop(tid int) {
	for {
		select {
		case <-s.off.ch:
			return
		default:
		}

		if s.gvt.Load() >= s.config.MaxSimTime {
			return
		}

		ev, ok := s.popSchedulable()
		if !ok {
			// An idle worker still must report into the local-GVT
			// reduction, or a collection round started while it has no
			// work would block forever: it contributes no lower bound
			// of its own (maxVirtualTime), matching the usual Time Warp
			// treatment of an idle thread during GVT computation.
			s.localGVT.ReportSendAndLVT(tid, maxVirtualTime)
			if sc, isSync := s.localGVT.(*SyncLocalGVT); isSync {
				sc.WorkerSync(tid, maxVirtualTime)
			}
			time.Sleep(time.Millisecond)
			continue
		}

		rt, known := s.lookupLP(ev.Receiver)
		if !known {
			s.log.Errorf("schedule ladder produced event for unknown LP %s", ev.Receiver)
			continue
		}

		s.syncCollector(tid, ev)

		if _, has := rt.input.StragglerEvent(); has {
			s.handleRollback(rt)
			continue
		}

		if ev.Polarity == types.Negative {
			if err := rt.input.CancelMatchedPair(ev); err != nil {
				s.log.Errorf("cancel_matched_pair failed: %v", err)
			}
			s.rescheduleLP(rt)
			continue
		}

		s.localGVT.ReportSendAndLVT(tid, ev.ReceiveTime)
		rt.advanceClockTo(ev.ReceiveTime)

		newEvents, err := rt.model.ReceiveEvent(ev)
		if err != nil {
			s.log.Errorf("receive_event failed for lp %s: %v", rt.model.ID(), err)
			continue
		}
		if err := s.validateEmitted(ev, newEvents); err != nil {
			s.log.Errorf("%v", err)
			continue
		}

		rt.states.MaybeSave(ev, rt.model.State(), rt.rngs, false)
		s.metrics.EventsProcessed.Inc()

		for _, e := range newEvents {
			e.Sender = rt.model.ID()
			e.Generation = rt.nextGeneration()
			e.SendTime = ev.ReceiveTime
			rt.output.Insert(ev, e)
			if err := s.admit(e); err != nil {
				s.log.Errorf("failed admitting emitted event: %v", err)
			}
		}

		if err := rt.input.MarkProcessed(ev); err != nil {
			s.log.Errorf("mark_processed failed: %v", err)
		}
		s.rescheduleLP(rt)
	}
}

// syncCollector folds the synchronous local-GVT collector's
// rendezvous into the worker loop's "safe point" (section 4.G): right
// after an event has been popped but before it is processed. It is a
// no-op unless the manager has started a synchronous collection round,
// and a no-op entirely when the configured collector is asynchronous.
func (s *Simulation) syncCollector(tid int, ev types.Event) {
	if sc, ok := s.localGVT.(*SyncLocalGVT); ok {
		sc.WorkerSync(tid, ev.ReceiveTime)
	}
}

// popSchedulable pops the ladder's global minimum and discards stale
// entries (lazy tombstoning, section 9's open question): an entry is
// stale if it no longer matches the receiving LP's current
// scheduled_event, because the LP was rescheduled or rolled back since
// this entry was pushed.
func (s *Simulation) popSchedulable() (types.Event, bool) {
	for {
		e, ok := s.ladder.Pop()
		if !ok {
			return types.Event{}, false
		}
		rt, known := s.lookupLP(e.Receiver)
		if !known {
			continue
		}
		current, has := rt.input.ScheduledEvent()
		if !has || !types.Equal(current, e) {
			continue // stale: LP moved on without this entry
		}
		return e, true
	}
}

func (s *Simulation) rescheduleLP(rt *lpRuntime) {
	action := rt.input.Reschedule()
	if action.Push != nil {
		s.ladder.Insert(*action.Push)
	}
}

// validateEmitted enforces the ModelContract rule from section 6: a
// model's emitted events must never be timestamped earlier than the
// event being handled.
func (s *Simulation) validateEmitted(cause types.Event, emitted []types.Event) error {
	for _, e := range emitted {
		if e.ReceiveTime < cause.ReceiveTime {
			return types.NewKernelError(types.ModelContract, cause.Receiver, &e,
				"emitted event receive_time %d precedes handled event receive_time %d",
				e.ReceiveTime, cause.ReceiveTime)
		}
	}
	return nil
}

// handleRollback implements section 4.F's handle_rollback(lp): cancel
// or undo every effect of events at or after the straggler, restore
// the most recent safe checkpoint, coast-forward back up to (but not
// including) the straggler, then reschedule.
func (s *Simulation) handleRollback(rt *lpRuntime) {
	straggler, has := rt.input.StragglerEvent()
	if !has {
		return
	}
	s.metrics.Rollbacks.Inc()

	antis := rt.output.Rollback(straggler)
	for _, anti := range antis {
		s.metrics.AntiMessagesSent.Inc()
		if err := s.admit(anti); err != nil {
			s.log.Errorf("failed dispatching anti-message: %v", err)
		}
	}

	checkpoint, err := rt.states.Restore(straggler, rt.model.State(), rt.rngs)
	if err != nil {
		s.log.Errorf("state restore failed for lp %s: %v", rt.model.ID(), err)
		return
	}
	rt.advanceClockTo(checkpoint.ReceiveTime)

	// Un-mark every entry at or after the straggler so it becomes
	// eligible for rescheduling again: otherwise an event already
	// committed past the straggler (e.g. spec.md section 8 scenario
	// 2's {B,20}) stays flagged processed forever and is never
	// reprocessed.
	rt.input.UnmarkProcessedFrom(straggler)

	for _, e := range rt.input.CollectCoastEvents(checkpoint, straggler) {
		if _, err := rt.model.ReceiveEvent(e); err != nil {
			s.log.Errorf("coast-forward re-execution failed for lp %s: %v", rt.model.ID(), err)
			return
		}
		rt.states.MaybeSave(e, rt.model.State(), rt.rngs, true)
		rt.advanceClockTo(e.ReceiveTime)
	}

	rt.input.ClearStraggler()

	if straggler.Polarity == types.Negative {
		if err := rt.input.CancelMatchedPair(straggler); err != nil {
			s.log.Errorf("cancel_matched_pair on rollback straggler failed: %v", err)
		}
	}
	s.rescheduleLP(rt)
}
