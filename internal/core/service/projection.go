package service

import (
	"errors"
	"fmt"

	"github.com/berfenger/gridpoll2mqtt/internal/core/domain"
)

// SnapshotSource is the read side of a coordinator.
type SnapshotSource interface {
	Name() string
	Snapshot() *domain.Snapshot
	State() domain.CoordinatorState
}

// SensorProjection renders one rule against the current snapshot of its
// coordinator. It holds no state of its own.
type SensorProjection struct {
	source    SnapshotSource
	rule      domain.ProjectionRule
	service   string
	name      string
	uniqueKey string
	groupKey  string
}

func NewSensorProjection(source SnapshotSource, entryId string, group domain.ProjectionGroup, rule domain.ProjectionRule) *SensorProjection {
	return &SensorProjection{
		source:    source,
		rule:      rule,
		service:   group.Service,
		name:      group.Name,
		uniqueKey: fmt.Sprintf("%s_%s_%s", entryId, group.Service, rule.Key),
		groupKey:  fmt.Sprintf("%s_%s", entryId, group.Service),
	}
}

func (p *SensorProjection) Key() string {
	return p.rule.Key
}

func (p *SensorProjection) Rule() domain.ProjectionRule {
	return p.rule
}

func (p *SensorProjection) Service() string {
	return p.service
}

// ServiceName is the display name of the device group.
func (p *SensorProjection) ServiceName() string {
	return p.name
}

func (p *SensorProjection) UniqueKey() string {
	return p.uniqueKey
}

func (p *SensorProjection) GroupingKey() string {
	return p.groupKey
}

func (p *SensorProjection) Coordinator() string {
	return p.source.Name()
}

// CurrentValue renders the rule against the coordinator's current snapshot,
// or unknown when there is none.
func (p *SensorProjection) CurrentValue() domain.StateValue {
	return p.ValueFrom(p.source.Snapshot())
}

// ValueFrom renders the rule against a given snapshot.
func (p *SensorProjection) ValueFrom(snap *domain.Snapshot) domain.StateValue {
	if snap == nil {
		return domain.StateValue{}
	}
	v, err := p.rule.Value(snap)
	if err != nil {
		return domain.StateValue{}
	}
	return v
}

// IsAvailable holds while the coordinator serves a snapshot, stale or not.
func (p *SensorProjection) IsAvailable() bool {
	return p.source.State().Available()
}

// BuildProjections creates one projection per rule of every group.
func BuildProjections(source SnapshotSource, entryId string, groups []domain.ProjectionGroup) []*SensorProjection {
	var out []*SensorProjection
	for _, g := range groups {
		for _, r := range g.Rules {
			out = append(out, NewSensorProjection(source, entryId, g, r))
		}
	}
	return out
}

// CheckRules runs every rule against the first snapshot so that schema
// mismatches surface at setup instead of as silent unknown values.
func CheckRules(first *domain.Snapshot, groups []domain.ProjectionGroup) error {
	if first == nil {
		return errors.New("no snapshot to check rules against")
	}
	var errs []error
	seen := map[string]bool{}
	for _, g := range groups {
		for _, r := range g.Rules {
			id := g.Service + "." + r.Key
			if seen[id] {
				errs = append(errs, fmt.Errorf("duplicate rule %s", id))
				continue
			}
			seen[id] = true
			if r.Value == nil {
				errs = append(errs, fmt.Errorf("rule %s has no extraction function", id))
				continue
			}
			if _, err := r.Value(first); err != nil {
				errs = append(errs, fmt.Errorf("rule %s: %w", id, err))
			}
		}
	}
	return errors.Join(errs...)
}
