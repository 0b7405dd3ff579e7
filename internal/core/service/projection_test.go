package service

import (
	"errors"
	"testing"
	"time"

	"github.com/berfenger/gridpoll2mqtt/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	snap  *domain.Snapshot
	state domain.CoordinatorState
}

func (s *staticSource) Name() string                   { return "static" }
func (s *staticSource) Snapshot() *domain.Snapshot     { return s.snap }
func (s *staticSource) State() domain.CoordinatorState { return s.state }

var meterGroup = domain.ProjectionGroup{
	Service: "meter",
	Name:    "Meter",
	Rules: []domain.ProjectionRule{
		{
			Key:               "power",
			Name:              "Power",
			UnitOfMeasurement: domain.UNIT_WATT,
			Value: func(s *domain.Snapshot) (domain.StateValue, error) {
				m, err := domain.RecordAs[meterRecord](s, kindMeter)
				if err != nil {
					return domain.StateValue{}, err
				}
				return domain.IntValue(m.Power), nil
			},
		},
		{
			Key:  "firmware",
			Name: "Firmware",
			Value: func(s *domain.Snapshot) (domain.StateValue, error) {
				d, err := domain.RecordAs[deviceRecord](s, kindDevice)
				if err != nil {
					return domain.StateValue{}, err
				}
				return domain.TextValue(d.Firmware), nil
			},
		},
	},
}

func snapshotOf(version uint64, power int64) *domain.Snapshot {
	return domain.NewSnapshot(version, time.Now(), map[domain.ResourceKind]domain.SubRecord{
		kindDevice: deviceRecord{Firmware: "1.6.16"},
		kindMeter:  meterRecord{Power: power},
	})
}

func TestProjectionKeys(t *testing.T) {
	src := &staticSource{}
	projections := BuildProjections(src, "entry1", []domain.ProjectionGroup{meterGroup})
	require.Len(t, projections, 2)
	assert.Equal(t, "entry1_meter_power", projections[0].UniqueKey())
	assert.Equal(t, "entry1_meter", projections[0].GroupingKey())
	assert.Equal(t, "Meter", projections[0].ServiceName())
	assert.Equal(t, "static", projections[0].Coordinator())
}

func TestProjectionUnknownWithoutSnapshot(t *testing.T) {
	src := &staticSource{state: domain.StateInitializing}
	p := BuildProjections(src, "e", []domain.ProjectionGroup{meterGroup})[0]
	assert.False(t, p.CurrentValue().Known())
	assert.Equal(t, domain.STATE_UNKNOWN, p.CurrentValue().String())
	assert.False(t, p.IsAvailable())
}

func TestProjectionServesStaleValueWhenDegraded(t *testing.T) {
	src := &staticSource{snap: snapshotOf(1, 338), state: domain.StateReady}
	p := BuildProjections(src, "e", []domain.ProjectionGroup{meterGroup})[0]
	assert.Equal(t, "338", p.CurrentValue().String())
	assert.True(t, p.IsAvailable())

	src.state = domain.StateDegraded
	assert.Equal(t, "338", p.CurrentValue().String())
	assert.True(t, p.IsAvailable())

	src.state = domain.StateShuttingDown
	assert.False(t, p.IsAvailable())
}

func TestProjectionEqualValuesOnReplay(t *testing.T) {
	src := &staticSource{snap: snapshotOf(1, 500), state: domain.StateReady}
	projections := BuildProjections(src, "e", []domain.ProjectionGroup{meterGroup})
	before := make([]domain.StateValue, len(projections))
	for i, p := range projections {
		before[i] = p.CurrentValue()
	}
	next := snapshotOf(2, 500)
	assert.True(t, src.snap.SameRecords(next))
	src.snap = next
	for i, p := range projections {
		assert.Equal(t, before[i], p.CurrentValue())
	}
}

func TestCheckRules(t *testing.T) {
	require.NoError(t, CheckRules(snapshotOf(1, 1), []domain.ProjectionGroup{meterGroup}))

	partial := domain.NewSnapshot(1, time.Now(), map[domain.ResourceKind]domain.SubRecord{
		kindMeter: meterRecord{Power: 1},
	})
	err := CheckRules(partial, []domain.ProjectionGroup{meterGroup})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrShape)
	assert.Contains(t, err.Error(), "meter.firmware")

	dup := domain.ProjectionGroup{Service: "meter", Rules: []domain.ProjectionRule{meterGroup.Rules[0], meterGroup.Rules[0]}}
	assert.ErrorContains(t, CheckRules(snapshotOf(1, 1), []domain.ProjectionGroup{dup}), "duplicate")

	assert.Error(t, CheckRules(nil, nil))
}

func TestProjectionRuleErrorRendersUnknown(t *testing.T) {
	failing := domain.ProjectionGroup{Service: "x", Rules: []domain.ProjectionRule{{
		Key: "broken",
		Value: func(*domain.Snapshot) (domain.StateValue, error) {
			return domain.StateValue{}, errors.New("nope")
		},
	}}}
	src := &staticSource{snap: snapshotOf(1, 1), state: domain.StateReady}
	p := BuildProjections(src, "e", []domain.ProjectionGroup{failing})[0]
	assert.False(t, p.CurrentValue().Known())
}
