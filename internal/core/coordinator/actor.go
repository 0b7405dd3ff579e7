package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/berfenger/gridpoll2mqtt/internal/core/domain"
	"github.com/berfenger/gridpoll2mqtt/internal/core/service"
	"github.com/berfenger/gridpoll2mqtt/internal/telemetry"
	. "github.com/berfenger/gridpoll2mqtt/internal/util/actorutil"
	"go.uber.org/zap"
)

// the goio timeout around a cycle; the cycle context expires first
const cycleTimeoutGrace = 2 * time.Second

type tick struct {
}

type cycleResult struct {
	seq      uint64
	snapshot *domain.Snapshot
	err      error
	started  time.Time
}

type coordinatorActor struct {
	ActorWithStates
	c            *Coordinator
	interval     time.Duration
	fetchTimeout time.Duration
	metrics      *telemetry.Metrics
	logger       *zap.Logger

	scheduler   *scheduler.TimerScheduler
	cancelTick  scheduler.CancelFunc
	cancelCycle context.CancelFunc
	cycleDone   chan struct{}
	cycleSeq    uint64
	version     uint64
	waiters     []*actor.PID
}

func newCoordinatorActor(c *Coordinator, opts Options) *coordinatorActor {
	act := &coordinatorActor{
		ActorWithStates: ActorWithStates{Behavior: actor.NewBehavior()},
		c:               c,
		interval:        opts.Interval,
		fetchTimeout:    opts.FetchTimeout,
		metrics:         opts.Metrics,
		logger:          c.logger,
	}
	act.Become(NamedState{StateName: "uninitialized", Fn: act.UninitializedReceive})
	return act
}

func (state *coordinatorActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("coordinator started", zap.String("state", state.StateName()))
		state.scheduler = scheduler.NewTimerScheduler(ctx.ActorSystem().Root)
		if state.c.State().Available() && state.cycleDone == nil {
			state.scheduleTick(ctx)
		}
		return
	case *actor.Restarting:
		state.logger.Warn("coordinator restarting")
		state.stopTick()
		return
	case *actor.Stopping:
		state.teardown(ctx)
		return
	case domain.ActorHealthRequest:
		s := state.c.State()
		ctx.Respond(domain.ActorHealthResponse{
			Id:      state.c.name,
			Healthy: s.Available(),
			State:   s.String(),
		})
		return
	case cycleResult:
		if msg.seq != state.cycleSeq {
			state.logger.Debug("coordinator stale cycle result", zap.Uint64("seq", msg.seq))
			return
		}
	}
	state.Behavior.Receive(ctx)
}

func (state *coordinatorActor) UninitializedReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.FirstRefreshRequest:
		state.logger.Debug("coordinator@uninitialized FirstRefreshRequest")
		state.beginFirstRefresh(ctx, msg)
	case domain.RefreshRequest:
		state.logger.Debug("coordinator@uninitialized RefreshRequest")
		state.respondNotReady(ctx, msg)
	case tick:
	}
}

func (state *coordinatorActor) InitializingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.FirstRefreshRequest:
		state.addWaiter(ctx, msg)
	case domain.RefreshRequest:
		state.addWaiter(ctx, msg)
	case tick:
	case cycleResult:
		update := state.applyResult(msg)
		state.publish(update)
		if update.Outcome == domain.OutcomeUpdated {
			state.logger.Info("coordinator@initializing ready", zap.Uint64("version", state.version))
			state.Become(NamedState{StateName: "serving", Fn: state.ServingReceive})
			state.scheduleTick(ctx)
			state.respondWaiters(ctx, nil)
		} else {
			state.logger.Warn("coordinator@initializing setup failed",
				zap.String("class", domain.ClassifyError(msg.err)), zap.Error(msg.err))
			state.Become(NamedState{StateName: "setup_failed", Fn: state.SetupFailedReceive})
			state.respondWaiters(ctx, &domain.NotReadyError{Target: state.c.name, Cause: msg.err})
		}
	}
}

func (state *coordinatorActor) SetupFailedReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.FirstRefreshRequest:
		state.logger.Debug("coordinator@setup_failed FirstRefreshRequest retry")
		state.beginFirstRefresh(ctx, msg)
	case domain.RefreshRequest:
		state.respondNotReady(ctx, msg)
	case tick:
	}
}

// ServingReceive covers both Ready and Degraded; the distinction only lives
// in the published state.
func (state *coordinatorActor) ServingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case tick:
		state.logger.Debug("coordinator@serving tick")
		state.cancelTick = nil
		state.beginCycle(ctx)
	case domain.RefreshRequest:
		state.logger.Debug("coordinator@serving RefreshRequest")
		state.stopTick()
		state.addWaiter(ctx, msg)
		state.beginCycle(ctx)
	case domain.FirstRefreshRequest:
		ForRequest(msg).Respond(ctx, state.response(nil))
	}
}

func (state *coordinatorActor) RefreshingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case tick:
		state.logger.Debug("coordinator@refreshing tick skipped, cycle in flight")
	case domain.RefreshRequest:
		state.logger.Debug("coordinator@refreshing RefreshRequest joins cycle")
		state.addWaiter(ctx, msg)
	case domain.FirstRefreshRequest:
		state.addWaiter(ctx, msg)
	case cycleResult:
		update := state.applyResult(msg)
		state.publish(update)
		state.UnbecomeStacked()
		state.scheduleTick(ctx)
		if update.Outcome == domain.OutcomeUpdated {
			state.respondWaiters(ctx, nil)
		} else {
			state.logger.Warn("coordinator@refreshing cycle failed, serving last snapshot",
				zap.String("class", domain.ClassifyError(msg.err)), zap.Error(msg.err))
			state.respondWaiters(ctx, msg.err)
		}
	}
}

func (state *coordinatorActor) beginFirstRefresh(ctx actor.Context, req domain.ActorRequest) {
	state.c.setState(domain.StateInitializing)
	state.addWaiter(ctx, req)
	state.Become(NamedState{StateName: "initializing", Fn: state.InitializingReceive})
	state.startCycle(ctx)
}

func (state *coordinatorActor) beginCycle(ctx actor.Context) {
	state.BecomeStacked(NamedState{StateName: "refreshing", Fn: state.RefreshingReceive})
	state.startCycle(ctx)
}

// startCycle runs one fetch cycle off the actor and pipes the result back.
func (state *coordinatorActor) startCycle(ctx actor.Context) {
	state.cycleSeq++
	seq := state.cycleSeq
	version := state.version + 1
	adapter := state.c.adapter
	vendor := state.c.vendor
	metrics := state.metrics

	cycleCtx, cancel := context.WithTimeout(context.Background(), state.fetchTimeout)
	done := make(chan struct{})
	state.cancelCycle = cancel
	state.cycleDone = done
	started := time.Now()

	NewBackgroundTask(ctx, func() (*cycleResult, error) {
		defer close(done)
		snap, err := service.RunFetchCycle(cycleCtx, adapter, version, time.Now(),
			func(kind domain.ResourceKind, elapsed time.Duration, err error) {
				metrics.RecordFetch(cycleCtx, vendor, string(kind), elapsed, err != nil)
			})
		return &cycleResult{seq: seq, snapshot: snap, err: err, started: started}, nil
	}).WithTimeout(state.fetchTimeout + cycleTimeoutGrace).Recover(func(err error) cycleResult {
		return cycleResult{seq: seq, err: domain.ConnectionError("", fmt.Errorf("cycle: %w", err)), started: started}
	}).PipeTo(ctx.Self())
}

// applyResult swaps in the snapshot of a successful cycle and moves the state
// machine. It never touches the snapshot once teardown has begun.
func (state *coordinatorActor) applyResult(res cycleResult) domain.CoordinatorUpdate {
	if state.cancelCycle != nil {
		state.cancelCycle()
		state.cancelCycle = nil
	}
	state.cycleDone = nil
	c := state.c
	elapsed := time.Since(res.started)
	state.metrics.RecordCycle(context.Background(), c.name, elapsed, domain.ClassifyError(res.err))

	update := domain.CoordinatorUpdate{Coordinator: c.name}
	if c.closing.Load() {
		update.Outcome = domain.OutcomeShutdown
		update.State = domain.StateShuttingDown
		return update
	}

	prev := c.snapshot.Load()
	if res.err == nil {
		state.version = res.snapshot.Version()
		c.snapshot.Store(res.snapshot)
		c.setState(domain.StateReady)
		c.setLastError(nil)
		update.Outcome = domain.OutcomeUpdated
		update.State = domain.StateReady
		update.Snapshot = res.snapshot
		update.Changed = !prev.SameRecords(res.snapshot)
		state.logger.Debug("coordinator cycle ok",
			zap.Uint64("version", state.version), zap.Bool("changed", update.Changed), zap.Duration("elapsed", elapsed))
		return update
	}

	c.setLastError(res.err)
	if prev == nil {
		c.setState(domain.StateSetupFailed)
		update.State = domain.StateSetupFailed
	} else {
		c.setState(domain.StateDegraded)
		update.State = domain.StateDegraded
	}
	update.Outcome = domain.OutcomeFailed
	update.Snapshot = prev
	update.Err = res.err
	return update
}

func (state *coordinatorActor) publish(update domain.CoordinatorUpdate) {
	if update.Outcome == domain.OutcomeShutdown {
		return
	}
	state.c.stream.Publish(update)
}

func (state *coordinatorActor) scheduleTick(ctx actor.Context) {
	state.stopTick()
	if state.scheduler == nil || state.c.closing.Load() {
		return
	}
	state.cancelTick = state.scheduler.RequestOnce(state.interval, ctx.Self(), tick{})
}

func (state *coordinatorActor) stopTick() {
	if state.cancelTick != nil {
		state.cancelTick()
		state.cancelTick = nil
	}
}

func (state *coordinatorActor) addWaiter(ctx actor.Context, req domain.ActorRequest) {
	if pid := ForRequest(req).ReplyTo(ctx); pid != nil {
		state.waiters = append(state.waiters, pid)
	}
}

func (state *coordinatorActor) respondWaiters(ctx actor.Context, err error) {
	resp := state.response(err)
	for _, pid := range state.waiters {
		ctx.Send(pid, resp)
	}
	state.waiters = nil
}

func (state *coordinatorActor) respondNotReady(ctx actor.Context, req domain.ActorRequest) {
	cause := state.c.LastError()
	if cause == nil {
		cause = domain.ErrNotReady
	}
	ForRequest(req).Respond(ctx, state.response(&domain.NotReadyError{Target: state.c.name, Cause: cause}))
}

func (state *coordinatorActor) response(err error) domain.RefreshResponse {
	return domain.RefreshResponse{
		ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		State:              state.c.State(),
		Version:            state.version,
	}
}

// teardown cancels the tick and any in-flight cycle, waits for that cycle to
// return, then releases the adapter and snapshot. The shutdown notice is the
// last thing subscribers see.
func (state *coordinatorActor) teardown(ctx actor.Context) {
	state.logger.Debug("coordinator stopping", zap.String("state", state.StateName()))
	c := state.c
	c.closing.Store(true)
	state.stopTick()
	if state.cancelCycle != nil {
		state.cancelCycle()
	}
	if state.cycleDone != nil {
		select {
		case <-state.cycleDone:
		case <-time.After(state.fetchTimeout):
			state.logger.Warn("coordinator in-flight cycle did not return before release")
		}
		state.cycleDone = nil
	}
	for _, pid := range state.waiters {
		ctx.Send(pid, domain.RefreshResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: domain.ErrShutdown},
			State:              domain.StateShuttingDown,
		})
	}
	state.waiters = nil
	_ = c.release()
	c.stream.Publish(domain.CoordinatorUpdate{
		Coordinator: c.name,
		Outcome:     domain.OutcomeShutdown,
		State:       domain.StateShuttingDown,
	})
}
