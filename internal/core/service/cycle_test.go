package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/berfenger/gridpoll2mqtt/internal/core/domain"
	"github.com/berfenger/gridpoll2mqtt/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type deviceRecord struct {
	Firmware string `json:"firmware"`
}

func (r deviceRecord) Validate() error {
	if r.Firmware == "" {
		return errors.New("firmware missing")
	}
	return nil
}

type meterRecord struct {
	Power int64 `json:"power"`
}

func (r meterRecord) Validate() error {
	return nil
}

const (
	kindDevice domain.ResourceKind = "device"
	kindMeter  domain.ResourceKind = "meter"
)

func TestRunFetchCycleAssemblesAllResources(t *testing.T) {
	ctrl := gomock.NewController(t)
	adapter := port.NewMockFetchAdapter(ctrl)

	adapter.EXPECT().Resources().Return([]domain.ResourceKind{kindDevice, kindMeter})
	gomock.InOrder(
		adapter.EXPECT().Fetch(gomock.Any(), kindDevice).Return(deviceRecord{Firmware: "1.0"}, nil),
		adapter.EXPECT().Fetch(gomock.Any(), kindMeter).Return(meterRecord{Power: 338}, nil),
	)

	var observed []domain.ResourceKind
	now := time.Now()
	snap, err := RunFetchCycle(context.Background(), adapter, 3, now, func(kind domain.ResourceKind, _ time.Duration, err error) {
		assert.NoError(t, err)
		observed = append(observed, kind)
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), snap.Version())
	assert.Equal(t, now, snap.FetchedAt())
	assert.Equal(t, []domain.ResourceKind{kindDevice, kindMeter}, snap.Kinds())
	assert.Equal(t, []domain.ResourceKind{kindDevice, kindMeter}, observed)

	meter, err := domain.RecordAs[meterRecord](snap, kindMeter)
	require.NoError(t, err)
	assert.Equal(t, int64(338), meter.Power)
}

func TestRunFetchCycleFailsWholeCycle(t *testing.T) {
	ctrl := gomock.NewController(t)
	adapter := port.NewMockFetchAdapter(ctrl)

	adapter.EXPECT().Resources().Return([]domain.ResourceKind{kindDevice, kindMeter})
	adapter.EXPECT().Fetch(gomock.Any(), kindDevice).Return(deviceRecord{Firmware: "1.0"}, nil)
	adapter.EXPECT().Fetch(gomock.Any(), kindMeter).Return(nil, domain.ConnectionError(kindMeter, errors.New("unreachable")))

	snap, err := RunFetchCycle(context.Background(), adapter, 1, time.Now(), nil)
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, domain.ErrConnection)
}

func TestRunFetchCycleStopsAtFirstFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	adapter := port.NewMockFetchAdapter(ctrl)

	adapter.EXPECT().Resources().Return([]domain.ResourceKind{kindDevice, kindMeter})
	adapter.EXPECT().Fetch(gomock.Any(), kindDevice).Return(nil, domain.AuthenticationError(kindDevice, errors.New("401")))

	_, err := RunFetchCycle(context.Background(), adapter, 1, time.Now(), nil)
	assert.ErrorIs(t, err, domain.ErrAuthentication)
	assert.Equal(t, domain.ERROR_CLASS_AUTHENTICATION, domain.ClassifyError(err))
}

func TestRunFetchCycleValidatesRecords(t *testing.T) {
	ctrl := gomock.NewController(t)
	adapter := port.NewMockFetchAdapter(ctrl)

	adapter.EXPECT().Resources().Return([]domain.ResourceKind{kindDevice})
	adapter.EXPECT().Fetch(gomock.Any(), kindDevice).Return(deviceRecord{}, nil)

	_, err := RunFetchCycle(context.Background(), adapter, 1, time.Now(), nil)
	assert.ErrorIs(t, err, domain.ErrShape)

	var fe *domain.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, kindDevice, fe.Resource)
}

func TestRunFetchCycleClassifiesUnknownErrorsAsConnection(t *testing.T) {
	ctrl := gomock.NewController(t)
	adapter := port.NewMockFetchAdapter(ctrl)

	adapter.EXPECT().Resources().Return([]domain.ResourceKind{kindDevice})
	adapter.EXPECT().Fetch(gomock.Any(), kindDevice).Return(nil, context.DeadlineExceeded)

	_, err := RunFetchCycle(context.Background(), adapter, 1, time.Now(), nil)
	assert.ErrorIs(t, err, domain.ErrConnection)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunFetchCycleHonoursCancellation(t *testing.T) {
	ctrl := gomock.NewController(t)
	adapter := port.NewMockFetchAdapter(ctrl)

	adapter.EXPECT().Resources().Return([]domain.ResourceKind{kindDevice})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RunFetchCycle(ctx, adapter, 1, time.Now(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
