// Package coordinator implements the generic polling coordinator: one actor
// per upstream target that owns its FetchAdapter, runs one fetch cycle at a
// time on a fixed interval and atomically publishes complete snapshots.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/berfenger/gridpoll2mqtt/internal/core/domain"
	"github.com/berfenger/gridpoll2mqtt/internal/core/port"
	"github.com/berfenger/gridpoll2mqtt/internal/telemetry"
	. "github.com/berfenger/gridpoll2mqtt/internal/util/actorutil"
	"go.uber.org/zap"
)

const (
	defaultFetchTimeout = 10 * time.Second
	askGrace            = 5 * time.Second
)

// DeviceInfoFunc derives the static device metadata of a grouping key from a
// snapshot.
type DeviceInfoFunc func(snap *domain.Snapshot, service string) domain.DeviceMetadata

type Options struct {
	Name         string
	Vendor       string
	Adapter      port.FetchAdapter
	Interval     time.Duration
	FetchTimeout time.Duration
	DeviceInfo   DeviceInfoFunc
	Metrics      *telemetry.Metrics
	Logger       *zap.Logger
}

type errorHolder struct {
	err error
}

// Coordinator is the handle to a running coordinator actor. Reads are lock
// free; every state change happens on the actor.
type Coordinator struct {
	name       string
	vendor     string
	root       *actor.RootContext
	pid        *actor.PID
	adapter    port.FetchAdapter
	deviceInfo DeviceInfoFunc
	askTimeout time.Duration

	snapshot atomic.Pointer[domain.Snapshot]
	state    atomic.Int32
	lastErr  atomic.Pointer[errorHolder]
	closing  atomic.Bool
	stream   *eventstream.EventStream

	releaseOnce sync.Once
	releaseErr  error
	logger      *zap.Logger
}

// New spawns a coordinator in the Uninitialized state. The adapter is owned
// by the coordinator from here on, and is released by Shutdown.
func New(system *actor.ActorSystem, opts Options) (*Coordinator, error) {
	if opts.Adapter == nil {
		return nil, errors.New("coordinator requires an adapter")
	}
	if opts.Name == "" {
		return nil, errors.New("coordinator requires a name")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("coordinator %s: invalid interval %s", opts.Name, opts.Interval)
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	c := &Coordinator{
		name:       opts.Name,
		vendor:     opts.Vendor,
		root:       system.Root,
		adapter:    opts.Adapter,
		deviceInfo: opts.DeviceInfo,
		askTimeout: opts.FetchTimeout + askGrace,
		stream:     &eventstream.EventStream{},
		logger:     ActorLogger(domain.ACTOR_ID_COORDINATOR, opts.Logger).With(zap.String("coordinator", opts.Name)),
	}
	c.state.Store(int32(domain.StateUninitialized))

	act := newCoordinatorActor(c, opts)
	props := actor.PropsFromProducer(func() actor.Actor { return act })
	c.pid = system.Root.SpawnPrefix(props, domain.ACTOR_ID_COORDINATOR+"-"+opts.Name)
	return c, nil
}

func (c *Coordinator) Name() string {
	return c.name
}

func (c *Coordinator) Vendor() string {
	return c.vendor
}

func (c *Coordinator) PID() *actor.PID {
	return c.pid
}

// Snapshot returns the last complete snapshot, or nil if none was produced.
func (c *Coordinator) Snapshot() *domain.Snapshot {
	return c.snapshot.Load()
}

func (c *Coordinator) State() domain.CoordinatorState {
	return domain.CoordinatorState(c.state.Load())
}

// LastError is the error of the last failed cycle, cleared on success.
func (c *Coordinator) LastError() error {
	if h := c.lastErr.Load(); h != nil {
		return h.err
	}
	return nil
}

// DeviceInfo returns the device metadata of a grouping key, sourced from the
// current snapshot.
func (c *Coordinator) DeviceInfo(service string) domain.DeviceMetadata {
	snap := c.Snapshot()
	if snap == nil || c.deviceInfo == nil {
		return domain.DeviceMetadata{}
	}
	return c.deviceInfo(snap, service)
}

// Subscribe registers fn for every cycle outcome. fn runs on the coordinator
// and must not block.
func (c *Coordinator) Subscribe(fn func(domain.CoordinatorUpdate)) *eventstream.Subscription {
	return c.stream.Subscribe(func(evt any) {
		if u, ok := evt.(domain.CoordinatorUpdate); ok {
			fn(u)
		}
	})
}

func (c *Coordinator) Unsubscribe(sub *eventstream.Subscription) {
	c.stream.Unsubscribe(sub)
}

// FirstRefresh runs the first cycle and waits for it. A failure is a
// *domain.NotReadyError wrapping the classified cause.
func (c *Coordinator) FirstRefresh(ctx context.Context) error {
	resp, err := c.ask(ctx, domain.FirstRefreshRequest{})
	if err != nil {
		return &domain.NotReadyError{Target: c.name, Cause: err}
	}
	return resp.GetResponseError()
}

// Refresh runs a cycle now, or joins the one in flight, and returns its error.
func (c *Coordinator) Refresh(ctx context.Context) error {
	resp, err := c.ask(ctx, domain.RefreshRequest{})
	if err != nil {
		return err
	}
	return resp.GetResponseError()
}

// RequestRefresh asks for a cycle without waiting for it.
func (c *Coordinator) RequestRefresh() {
	if c.closing.Load() {
		return
	}
	c.root.Send(c.pid, domain.RefreshRequest{})
}

// Shutdown stops the actor, cancelling the pending tick and any in-flight
// cycle, and releases the adapter. Safe to call more than once.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	if c.closing.CompareAndSwap(false, true) {
		c.logger.Debug("coordinator shutdown")
		done := make(chan struct{})
		go func() {
			c.root.StopFuture(c.pid).Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			c.logger.Warn("coordinator shutdown timed out", zap.Error(ctx.Err()))
		}
	}
	return c.release()
}

func (c *Coordinator) ask(ctx context.Context, msg any) (domain.RefreshResponse, error) {
	if c.closing.Load() {
		return domain.RefreshResponse{}, domain.ErrShutdown
	}
	timeout := c.askTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	if timeout <= 0 {
		return domain.RefreshResponse{}, context.DeadlineExceeded
	}
	res, err := c.root.RequestFuture(c.pid, msg, timeout).Result()
	if err != nil {
		return domain.RefreshResponse{}, err
	}
	resp, ok := res.(domain.RefreshResponse)
	if !ok {
		return domain.RefreshResponse{}, fmt.Errorf("unexpected response %T", res)
	}
	return resp, nil
}

// release closes the adapter and drops the snapshot, exactly once.
func (c *Coordinator) release() error {
	c.releaseOnce.Do(func() {
		c.closing.Store(true)
		c.snapshot.Store(nil)
		c.setState(domain.StateShuttingDown)
		if err := c.adapter.Close(); err != nil {
			c.logger.Warn("coordinator adapter close failed", zap.Error(err))
			c.releaseErr = err
		}
	})
	return c.releaseErr
}

func (c *Coordinator) setState(s domain.CoordinatorState) {
	c.state.Store(int32(s))
}

func (c *Coordinator) setLastError(err error) {
	if err == nil {
		c.lastErr.Store(nil)
		return
	}
	c.lastErr.Store(&errorHolder{err: err})
}
