// Package integration sets up one configured integration: it connects the
// vendor adapters, spawns a coordinator per upstream target, awaits their
// first refresh and derives the sensor projections.
package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/berfenger/gridpoll2mqtt/internal/core/coordinator"
	"github.com/berfenger/gridpoll2mqtt/internal/core/domain"
	"github.com/berfenger/gridpoll2mqtt/internal/core/port"
	"github.com/berfenger/gridpoll2mqtt/internal/core/service"
	"github.com/berfenger/gridpoll2mqtt/internal/telemetry"
	. "github.com/berfenger/gridpoll2mqtt/internal/util/actorutil"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

type Options struct {
	FetchTimeout time.Duration
	Metrics      *telemetry.Metrics
	Logger       *zap.Logger
}

// Integration owns the coordinators and projections of one entry. Its
// coordinator and projection sets are fixed once Setup returns.
type Integration struct {
	entry        domain.IntegrationEntry
	vendor       port.Vendor
	coordinators []*coordinator.Coordinator
	projections  []*service.SensorProjection
	logger       *zap.Logger
}

type target struct {
	name string
	cfg  domain.ConnectionConfig
}

// EntryId derives a stable entry id from the vendor and integration name.
func EntryId(vendor, name string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(vendor+"/"+name)).String()
}

// Setup connects every target of the entry and awaits all first refreshes
// concurrently. Any failure tears down what was created and returns a
// *domain.NotReadyError wrapping every classified cause.
func Setup(ctx context.Context, system *actor.ActorSystem, vendor port.Vendor, entry domain.IntegrationEntry, opts Options) (*Integration, error) {
	if entry.EntryId == "" {
		entry.EntryId = EntryId(vendor.Name(), entry.Name)
	}
	if entry.ScanInterval <= 0 {
		entry.ScanInterval = vendor.ScanInterval()
	}
	in := &Integration{
		entry:  entry,
		vendor: vendor,
		logger: ActorLogger("integration", opts.Logger).With(zap.String("integration", entry.Name)),
	}

	targets, err := in.targets(ctx)
	if err != nil {
		return nil, in.notReady(err)
	}
	for _, t := range targets {
		adapter, err := vendor.Connect(ctx, t.cfg)
		if err != nil {
			in.teardown()
			return nil, in.notReady(fmt.Errorf("%s: %w", t.name, err))
		}
		c, err := coordinator.New(system, coordinator.Options{
			Name:         t.name,
			Vendor:       vendor.Name(),
			Adapter:      adapter,
			Interval:     entry.ScanInterval,
			FetchTimeout: opts.FetchTimeout,
			DeviceInfo:   vendor.DeviceMetadata,
			Metrics:      opts.Metrics,
			Logger:       opts.Logger,
		})
		if err != nil {
			_ = adapter.Close()
			in.teardown()
			return nil, in.notReady(err)
		}
		in.coordinators = append(in.coordinators, c)
	}

	if err := in.firstRefresh(ctx); err != nil {
		in.teardown()
		return nil, in.notReady(err)
	}

	for _, c := range in.coordinators {
		first := c.Snapshot()
		groups, err := vendor.ProjectionGroups(first)
		if err == nil {
			err = service.CheckRules(first, groups)
		}
		if err != nil {
			in.teardown()
			return nil, in.notReady(domain.ShapeError("", fmt.Errorf("%s: %w", c.Name(), err)))
		}
		in.projections = append(in.projections, service.BuildProjections(c, entry.EntryId, groups)...)
	}
	in.logger.Info("integration@ready setup done",
		zap.Int("coordinators", len(in.coordinators)),
		zap.Int("projections", len(in.projections)))
	return in, nil
}

// targets lists one target per discovered device for fan-out vendors, or the
// entry itself.
func (in *Integration) targets(ctx context.Context) ([]target, error) {
	discoverer, ok := in.vendor.(port.DeviceDiscoverer)
	if !ok {
		return []target{{name: in.entry.Name, cfg: in.entry.Connection}}, nil
	}
	handles, err := discoverer.DiscoverDevices(ctx, in.entry.Connection)
	if err != nil {
		return nil, err
	}
	out := make([]target, 0, len(handles))
	for _, h := range handles {
		out = append(out, target{
			name: in.entry.Name + "_" + TopicSafe(h.Id),
			cfg:  in.entry.Connection.WithDevice(h.Id),
		})
	}
	in.logger.Debug("integration@setup devices discovered", zap.Int("devices", len(out)))
	return out, nil
}

func (in *Integration) firstRefresh(ctx context.Context) error {
	errs := make([]error, len(in.coordinators))
	var wg conc.WaitGroup
	for i, c := range in.coordinators {
		wg.Go(func() {
			errs[i] = c.FirstRefresh(ctx)
		})
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (in *Integration) notReady(cause error) error {
	in.logger.Warn("integration@setup not ready", zap.Error(cause))
	return &domain.NotReadyError{Target: in.entry.Name, Cause: cause}
}

func (in *Integration) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = in.Shutdown(ctx)
}

func (in *Integration) Name() string {
	return in.entry.Name
}

func (in *Integration) Entry() domain.IntegrationEntry {
	return in.entry
}

func (in *Integration) Vendor() port.Vendor {
	return in.vendor
}

func (in *Integration) Coordinators() []*coordinator.Coordinator {
	return in.coordinators
}

func (in *Integration) Coordinator(name string) (*coordinator.Coordinator, bool) {
	for _, c := range in.coordinators {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

func (in *Integration) Projections() []*service.SensorProjection {
	return in.projections
}

// DeviceInfo returns the device metadata of a projection's grouping key.
// Targets reached by host get a configuration URL.
func (in *Integration) DeviceInfo(p *service.SensorProjection) domain.DeviceMetadata {
	c, ok := in.Coordinator(p.Coordinator())
	if !ok {
		return domain.DeviceMetadata{}
	}
	meta := c.DeviceInfo(p.Service())
	if meta.Name == "" {
		meta.Name = p.ServiceName()
	}
	if meta.ConfigurationURL == "" && in.entry.Connection.Host != "" {
		meta.ConfigurationURL = configurationURL(in.entry.Connection.Host)
	}
	return meta
}

func (in *Integration) Diagnostics() service.Diagnostics {
	snapshots := make(map[string]*domain.Snapshot, len(in.coordinators))
	for _, c := range in.coordinators {
		snapshots[c.Name()] = c.Snapshot()
	}
	return service.BuildDiagnostics(in.entry, snapshots)
}

// Refresh runs a cycle on every coordinator and joins their errors.
func (in *Integration) Refresh(ctx context.Context) error {
	errs := make([]error, len(in.coordinators))
	var wg conc.WaitGroup
	for i, c := range in.coordinators {
		wg.Go(func() {
			errs[i] = c.Refresh(ctx)
		})
	}
	wg.Wait()
	return errors.Join(errs...)
}

// RequestRefresh asks every coordinator for a cycle without waiting.
func (in *Integration) RequestRefresh() {
	for _, c := range in.coordinators {
		c.RequestRefresh()
	}
}

// Shutdown tears down every coordinator concurrently. Each adapter is closed
// exactly once, however many times Shutdown is called.
func (in *Integration) Shutdown(ctx context.Context) error {
	errs := make([]error, len(in.coordinators))
	var wg conc.WaitGroup
	for i, c := range in.coordinators {
		wg.Go(func() {
			errs[i] = c.Shutdown(ctx)
		})
	}
	wg.Wait()
	return errors.Join(errs...)
}

type CoordinatorStatus struct {
	Name            string `json:"name"`
	State           string `json:"state"`
	Available       bool   `json:"available"`
	SnapshotVersion uint64 `json:"snapshot_version"`
	LastUpdate      string `json:"last_update,omitempty"`
	LastError       string `json:"last_error,omitempty"`
}

func (in *Integration) Status() []CoordinatorStatus {
	out := make([]CoordinatorStatus, 0, len(in.coordinators))
	for _, c := range in.coordinators {
		st := CoordinatorStatus{
			Name:      c.Name(),
			State:     c.State().String(),
			Available: c.State().Available(),
		}
		if snap := c.Snapshot(); snap != nil {
			st.SnapshotVersion = snap.Version()
			st.LastUpdate = snap.FetchedAt().UTC().Format(time.RFC3339)
		}
		if err := c.LastError(); err != nil {
			st.LastError = err.Error()
		}
		out = append(out, st)
	}
	return out
}

// Healthy reports whether every coordinator is serving.
func (in *Integration) Healthy() bool {
	for _, c := range in.coordinators {
		if !c.State().Available() {
			return false
		}
	}
	return true
}

func configurationURL(host string) string {
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	return "http://" + host
}

// TopicSafe maps an upstream id onto the [a-z0-9_] alphabet of MQTT topics
// and coordinator names.
func TopicSafe(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, id)
}
