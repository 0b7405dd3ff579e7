package port

import (
	"context"
	"time"

	"github.com/berfenger/gridpoll2mqtt/internal/core/domain"
)

//go:generate mockgen -source=fetch.go -destination=mock_port.go -package=port

// FetchAdapter performs the network calls of one upstream target. It is owned
// by exactly one coordinator, which calls Close exactly once.
type FetchAdapter interface {
	// Resources lists the sub-resources fetched each cycle, in order.
	Resources() []domain.ResourceKind
	Fetch(ctx context.Context, kind domain.ResourceKind) (domain.SubRecord, error)
	Close() error
}

// Connector builds a FetchAdapter from connection parameters. Connect may
// fail with a connection or authentication error.
type Connector interface {
	Connect(ctx context.Context, cfg domain.ConnectionConfig) (FetchAdapter, error)
}

// Vendor bundles a connector with its static projection rules.
type Vendor interface {
	Connector
	Name() string
	ScanInterval() time.Duration
	// ProjectionGroups returns the rule set for a coordinator, derived once from
	// its first snapshot.
	ProjectionGroups(first *domain.Snapshot) ([]domain.ProjectionGroup, error)
	DeviceMetadata(snap *domain.Snapshot, service string) domain.DeviceMetadata
}

// DeviceDiscoverer is implemented by fan-out vendors, where one account
// exposes several devices each governed by its own coordinator.
type DeviceDiscoverer interface {
	DiscoverDevices(ctx context.Context, cfg domain.ConnectionConfig) ([]domain.DeviceHandle, error)
}
