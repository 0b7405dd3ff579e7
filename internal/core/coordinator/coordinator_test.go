package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/berfenger/gridpoll2mqtt/internal/core/domain"
	"github.com/berfenger/gridpoll2mqtt/internal/core/port"
	"github.com/berfenger/gridpoll2mqtt/internal/core/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

const (
	kindDevice domain.ResourceKind = "device"
	kindMeter  domain.ResourceKind = "meter"
)

type devRec struct {
	N        int
	Firmware string
}

func (devRec) Validate() error { return nil }

type meterRec struct {
	N int
}

func (meterRec) Validate() error { return nil }

// scriptedAdapter answers each cycle from a function of the cycle number.
type scriptedAdapter struct {
	mu      sync.Mutex
	cycle   int
	respond func(cycle int, kind domain.ResourceKind) (domain.SubRecord, error)
	gate    chan struct{}
	entered chan struct{}
	fetches atomic.Int32
	closes  atomic.Int32
}

func (a *scriptedAdapter) Resources() []domain.ResourceKind {
	return []domain.ResourceKind{kindDevice, kindMeter}
}

func (a *scriptedAdapter) Fetch(ctx context.Context, kind domain.ResourceKind) (domain.SubRecord, error) {
	a.fetches.Add(1)
	a.mu.Lock()
	if kind == kindDevice {
		a.cycle++
	}
	cycle := a.cycle
	gate := a.gate
	a.mu.Unlock()
	if gate != nil && kind == kindDevice {
		if a.entered != nil {
			a.entered <- struct{}{}
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return a.respond(cycle, kind)
}

func (a *scriptedAdapter) Close() error {
	a.closes.Add(1)
	return nil
}

func (a *scriptedAdapter) cycles() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cycle
}

func consistent(cycle int, kind domain.ResourceKind) (domain.SubRecord, error) {
	if kind == kindDevice {
		return devRec{N: cycle, Firmware: "1.6.16"}, nil
	}
	return meterRec{N: cycle}, nil
}

func newTestCoordinator(t *testing.T, adapter port.FetchAdapter, interval time.Duration) *Coordinator {
	t.Helper()
	system := actor.NewActorSystem()
	c, err := New(system, Options{
		Name:         "test",
		Vendor:       "test",
		Adapter:      adapter,
		Interval:     interval,
		FetchTimeout: 2 * time.Second,
		DeviceInfo: func(snap *domain.Snapshot, service string) domain.DeviceMetadata {
			d, _ := domain.RecordAs[devRec](snap, kindDevice)
			return domain.DeviceMetadata{FirmwareVersion: d.Firmware}
		},
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Shutdown(ctx)
	})
	return c
}

type updateRecorder struct {
	mu      sync.Mutex
	updates []domain.CoordinatorUpdate
}

func (r *updateRecorder) record(u domain.CoordinatorUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *updateRecorder) all() []domain.CoordinatorUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.CoordinatorUpdate(nil), r.updates...)
}

func TestNewValidatesOptions(t *testing.T) {
	system := actor.NewActorSystem()
	_, err := New(system, Options{Name: "x", Interval: time.Second})
	assert.Error(t, err)
	_, err = New(system, Options{Name: "x", Adapter: &scriptedAdapter{}})
	assert.Error(t, err)
}

func TestFirstRefreshSuccess(t *testing.T) {
	adapter := &scriptedAdapter{respond: consistent}
	c := newTestCoordinator(t, adapter, time.Hour)
	rec := &updateRecorder{}
	c.Subscribe(rec.record)

	assert.Equal(t, domain.StateUninitialized, c.State())
	assert.Nil(t, c.Snapshot())

	require.NoError(t, c.FirstRefresh(context.Background()))
	assert.Equal(t, domain.StateReady, c.State())
	require.NotNil(t, c.Snapshot())
	assert.Equal(t, uint64(1), c.Snapshot().Version())
	assert.Equal(t, "1.6.16", c.DeviceInfo("any").FirmwareVersion)

	updates := rec.all()
	require.Len(t, updates, 1)
	assert.Equal(t, domain.OutcomeUpdated, updates[0].Outcome)
	assert.True(t, updates[0].Changed)
	assert.Same(t, c.Snapshot(), updates[0].Snapshot)
}

func TestFirstRefreshConnectionErrorThenRecovers(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	adapter := &scriptedAdapter{respond: func(cycle int, kind domain.ResourceKind) (domain.SubRecord, error) {
		if fail.Load() {
			return nil, domain.ConnectionError(kind, errors.New("no route to host"))
		}
		return consistent(cycle, kind)
	}}
	c := newTestCoordinator(t, adapter, time.Hour)

	err := c.FirstRefresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotReady)
	assert.ErrorIs(t, err, domain.ErrConnection)
	var notReady *domain.NotReadyError
	require.ErrorAs(t, err, &notReady)
	assert.Equal(t, "test", notReady.Target)
	assert.Nil(t, c.Snapshot())
	assert.Equal(t, domain.StateSetupFailed, c.State())
	assert.ErrorIs(t, c.LastError(), domain.ErrConnection)

	// a plain refresh is refused until a first refresh succeeds
	assert.ErrorIs(t, c.Refresh(context.Background()), domain.ErrNotReady)

	fail.Store(false)
	require.NoError(t, c.FirstRefresh(context.Background()))
	assert.Equal(t, domain.StateReady, c.State())
	assert.NotNil(t, c.Snapshot())
	assert.NoError(t, c.LastError())
}

func TestFirstRefreshAuthenticationIsDistinguishable(t *testing.T) {
	adapter := &scriptedAdapter{respond: func(int, domain.ResourceKind) (domain.SubRecord, error) {
		return nil, domain.AuthenticationError(kindDevice, errors.New("401"))
	}}
	c := newTestCoordinator(t, adapter, time.Hour)

	err := c.FirstRefresh(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotReady)
	assert.ErrorIs(t, err, domain.ErrAuthentication)
	assert.NotErrorIs(t, err, domain.ErrConnection)
	assert.Equal(t, domain.ERROR_CLASS_AUTHENTICATION, domain.ClassifyError(err))
}

func TestFailureAfterSuccessesDegradesAndKeepsSnapshot(t *testing.T) {
	var fail atomic.Bool
	adapter := &scriptedAdapter{respond: func(cycle int, kind domain.ResourceKind) (domain.SubRecord, error) {
		if fail.Load() {
			return nil, domain.ConnectionError(kind, errors.New("timeout"))
		}
		return consistent(cycle, kind)
	}}
	c := newTestCoordinator(t, adapter, time.Hour)
	rec := &updateRecorder{}
	c.Subscribe(rec.record)

	require.NoError(t, c.FirstRefresh(context.Background()))
	require.NoError(t, c.Refresh(context.Background()))
	require.NoError(t, c.Refresh(context.Background()))
	last := c.Snapshot()
	require.Equal(t, uint64(3), last.Version())

	groups := []domain.ProjectionGroup{{Service: "meter", Rules: []domain.ProjectionRule{{
		Key: "n",
		Value: func(s *domain.Snapshot) (domain.StateValue, error) {
			m, err := domain.RecordAs[meterRec](s, kindMeter)
			return domain.IntValue(int64(m.N)), err
		},
	}}}}
	projections := service.BuildProjections(c, "entry", groups)
	assert.Equal(t, "3", projections[0].CurrentValue().String())

	fail.Store(true)
	err := c.Refresh(context.Background())
	assert.ErrorIs(t, err, domain.ErrConnection)
	assert.Equal(t, domain.StateDegraded, c.State())
	assert.Same(t, last, c.Snapshot())
	assert.True(t, projections[0].IsAvailable())
	assert.Equal(t, "3", projections[0].CurrentValue().String())

	updates := rec.all()
	require.Len(t, updates, 4)
	failed := updates[3]
	assert.Equal(t, domain.OutcomeFailed, failed.Outcome)
	assert.Equal(t, domain.StateDegraded, failed.State)
	assert.Same(t, last, failed.Snapshot)

	fail.Store(false)
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, domain.StateReady, c.State())
	assert.Equal(t, uint64(4), c.Snapshot().Version())
}

func TestMultiEndpointCycleIsAtomic(t *testing.T) {
	var failMeter atomic.Bool
	adapter := &scriptedAdapter{respond: func(cycle int, kind domain.ResourceKind) (domain.SubRecord, error) {
		if kind == kindMeter && failMeter.Load() {
			return nil, domain.ConnectionError(kind, errors.New("reset by peer"))
		}
		return consistent(cycle, kind)
	}}
	c := newTestCoordinator(t, adapter, time.Hour)
	require.NoError(t, c.FirstRefresh(context.Background()))
	before := c.Snapshot()

	failMeter.Store(true)
	require.Error(t, c.Refresh(context.Background()))
	assert.Same(t, before, c.Snapshot())
	dev, err := domain.RecordAs[devRec](c.Snapshot(), kindDevice)
	require.NoError(t, err)
	assert.Equal(t, 1, dev.N, "device record of the failed cycle must not leak")
}

func TestIdenticalReplayIsNotAChange(t *testing.T) {
	adapter := &scriptedAdapter{respond: func(_ int, kind domain.ResourceKind) (domain.SubRecord, error) {
		return consistent(7, kind)
	}}
	c := newTestCoordinator(t, adapter, time.Hour)
	rec := &updateRecorder{}
	c.Subscribe(rec.record)

	require.NoError(t, c.FirstRefresh(context.Background()))
	first := c.Snapshot()
	require.NoError(t, c.Refresh(context.Background()))
	second := c.Snapshot()

	assert.NotSame(t, first, second)
	assert.Equal(t, uint64(2), second.Version())
	assert.True(t, first.SameRecords(second))

	updates := rec.all()
	require.Len(t, updates, 2)
	assert.True(t, updates[0].Changed)
	assert.False(t, updates[1].Changed)
}

func TestReadersNeverObserveTornSnapshots(t *testing.T) {
	adapter := &scriptedAdapter{respond: func(cycle int, kind domain.ResourceKind) (domain.SubRecord, error) {
		if cycle%3 == 0 && kind == kindMeter {
			return nil, domain.ConnectionError(kind, errors.New("flaky"))
		}
		return consistent(cycle, kind)
	}}
	c := newTestCoordinator(t, adapter, time.Hour)
	require.NoError(t, c.FirstRefresh(context.Background()))

	var lastVersion uint64
	versions := make(chan uint64, 100)
	c.Subscribe(func(u domain.CoordinatorUpdate) {
		if u.Snapshot != nil {
			versions <- u.Snapshot.Version()
		}
	})

	stop := make(chan struct{})
	var torn atomic.Int32
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			snap := c.Snapshot()
			dev, err1 := domain.RecordAs[devRec](snap, kindDevice)
			meter, err2 := domain.RecordAs[meterRec](snap, kindMeter)
			if err1 != nil || err2 != nil || dev.N != meter.N {
				torn.Add(1)
			}
		}
	}()

	for i := 0; i < 20; i++ {
		_ = c.Refresh(context.Background())
	}
	close(stop)
	wg.Wait()
	close(versions)

	assert.Zero(t, torn.Load())
	for v := range versions {
		assert.GreaterOrEqual(t, v, lastVersion, "snapshots observed out of order")
		lastVersion = v
	}
}

func TestTicksRefreshOnInterval(t *testing.T) {
	adapter := &scriptedAdapter{respond: consistent}
	c := newTestCoordinator(t, adapter, 20*time.Millisecond)
	require.NoError(t, c.FirstRefresh(context.Background()))

	assert.Eventually(t, func() bool {
		snap := c.Snapshot()
		return snap != nil && snap.Version() >= 4
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRefreshesCoalesceWhileCycleInFlight(t *testing.T) {
	adapter := &scriptedAdapter{respond: consistent}
	c := newTestCoordinator(t, adapter, time.Hour)
	require.NoError(t, c.FirstRefresh(context.Background()))

	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	adapter.mu.Lock()
	adapter.gate = gate
	adapter.entered = entered
	adapter.mu.Unlock()

	errs := make(chan error, 3)
	go func() { errs <- c.Refresh(context.Background()) }()
	<-entered
	go func() { errs <- c.Refresh(context.Background()) }()
	go func() { errs <- c.Refresh(context.Background()) }()
	time.Sleep(100 * time.Millisecond)
	close(gate)

	for i := 0; i < 3; i++ {
		assert.NoError(t, <-errs)
	}
	assert.Equal(t, 2, adapter.cycles())
	assert.Equal(t, uint64(2), c.Snapshot().Version())
}

func TestShutdownReleasesAdapterExactlyOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	adapter := port.NewMockFetchAdapter(ctrl)
	inFlight := make(chan struct{})
	var calls atomic.Int32

	adapter.EXPECT().Resources().Return([]domain.ResourceKind{kindDevice}).AnyTimes()
	adapter.EXPECT().Fetch(gomock.Any(), kindDevice).DoAndReturn(
		func(ctx context.Context, kind domain.ResourceKind) (domain.SubRecord, error) {
			if calls.Add(1) == 1 {
				return devRec{N: 1}, nil
			}
			close(inFlight)
			<-ctx.Done()
			return nil, ctx.Err()
		}).AnyTimes()
	adapter.EXPECT().Close().Return(nil).Times(1)

	system := actor.NewActorSystem()
	c, err := New(system, Options{Name: "once", Adapter: adapter, Interval: time.Hour, FetchTimeout: 5 * time.Second})
	require.NoError(t, err)
	rec := &updateRecorder{}
	c.Subscribe(rec.record)

	require.NoError(t, c.FirstRefresh(context.Background()))
	c.RequestRefresh()
	<-inFlight

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Shutdown(ctx))
	require.NoError(t, c.Shutdown(ctx))

	assert.Equal(t, domain.StateShuttingDown, c.State())
	assert.Nil(t, c.Snapshot())
	assert.ErrorIs(t, c.Refresh(context.Background()), domain.ErrShutdown)

	updates := rec.all()
	require.NotEmpty(t, updates)
	assert.Equal(t, domain.OutcomeShutdown, updates[len(updates)-1].Outcome)
	for _, u := range updates[1 : len(updates)-1] {
		assert.NotEqual(t, domain.OutcomeUpdated, u.Outcome, "no snapshot may be published after teardown began")
	}
}

func TestShutdownAfterSetupFailureReleasesAdapter(t *testing.T) {
	adapter := &scriptedAdapter{respond: func(int, domain.ResourceKind) (domain.SubRecord, error) {
		return nil, domain.ConnectionError(kindDevice, errors.New("down"))
	}}
	c := newTestCoordinator(t, adapter, time.Hour)
	require.Error(t, c.FirstRefresh(context.Background()))
	require.NoError(t, c.Shutdown(context.Background()))
	assert.Equal(t, int32(1), adapter.closes.Load())
}

func TestHealthReflectsState(t *testing.T) {
	adapter := &scriptedAdapter{respond: consistent}
	c := newTestCoordinator(t, adapter, time.Hour)

	health := func() domain.ActorHealthResponse {
		res, err := c.root.RequestFuture(c.PID(), domain.ActorHealthRequest{}, time.Second).Result()
		require.NoError(t, err)
		return res.(domain.ActorHealthResponse)
	}
	h := health()
	assert.False(t, h.Healthy)
	assert.Equal(t, "uninitialized", h.State)

	require.NoError(t, c.FirstRefresh(context.Background()))
	h = health()
	assert.True(t, h.Healthy)
	assert.Equal(t, "ready", h.State)
	assert.Equal(t, "test", h.Id)
}
