package integration

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/berfenger/gridpoll2mqtt/internal/adapter/vendor/net2grid"
	"github.com/berfenger/gridpoll2mqtt/internal/adapter/vendor/powerfox"
	"github.com/berfenger/gridpoll2mqtt/internal/core/domain"
	"github.com/berfenger/gridpoll2mqtt/internal/core/port"
)

func testOptions() Options {
	return Options{FetchTimeout: 2 * time.Second, Logger: zap.NewNop()}
}

func shutdownOnCleanup(t *testing.T, in *Integration) {
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = in.Shutdown(ctx)
	})
}

func smartBridge(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"manufacturer":"NET2GRID","model":"SBWF3102","firmware":"1.6.16"}`))
	})
	mux.HandleFunc("/meter/now", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"elec":{"power":{"now":{"value":338,"unit":"W"}},"import":{"cumulative":{"value":17762100,"unit":"Wh"}},"export":{"cumulative":{"value":21214600,"unit":"Wh"}}}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNet2GridEndToEnd(t *testing.T) {
	srv := smartBridge(t)
	entry := domain.IntegrationEntry{
		Name:       "meter",
		Title:      "SmartBridge",
		Vendor:     net2grid.NAME,
		Connection: domain.ConnectionConfig{Host: srv.URL},
	}

	in, err := Setup(context.Background(), actor.NewActorSystem(), net2grid.New(), entry, testOptions())
	require.NoError(t, err)
	shutdownOnCleanup(t, in)

	assert.Equal(t, EntryId(net2grid.NAME, "meter"), in.Entry().EntryId)
	assert.Equal(t, net2grid.SCAN_INTERVAL, in.Entry().ScanInterval)
	require.Len(t, in.Coordinators(), 1)
	assert.Equal(t, domain.StateReady, in.Coordinators()[0].State())
	assert.True(t, in.Healthy())

	values := map[string]string{}
	for _, p := range in.Projections() {
		assert.True(t, p.IsAvailable())
		assert.Equal(t, in.Entry().EntryId+"_smartbridge", p.GroupingKey())
		values[p.UniqueKey()] = p.CurrentValue().String()
	}
	id := in.Entry().EntryId
	assert.Equal(t, map[string]string{
		id + "_smartbridge_power_flow":               "338",
		id + "_smartbridge_energy_consumption_total": "17762.1",
		id + "_smartbridge_energy_production_total":  "21214.6",
	}, values)

	meta := in.DeviceInfo(in.Projections()[0])
	assert.Equal(t, domain.DeviceMetadata{
		Name:             "SmartBridge",
		Manufacturer:     "NET2GRID",
		Model:            "SBWF3102",
		FirmwareVersion:  "1.6.16",
		ConfigurationURL: srv.URL,
	}, meta)

	diag := in.Diagnostics()
	assert.Equal(t, domain.REDACTED, diag.Entry.Data["host"])
	assert.Contains(t, diag.Data, "device")
	assert.Contains(t, diag.Data, "smartbridge")

	status := in.Status()
	require.Len(t, status, 1)
	assert.Equal(t, "meter", status[0].Name)
	assert.Equal(t, uint64(1), status[0].SnapshotVersion)
	assert.Empty(t, status[0].LastError)

	require.NoError(t, in.Refresh(context.Background()))
	assert.Equal(t, uint64(2), in.Coordinators()[0].Snapshot().Version())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, in.Shutdown(ctx))
	for _, p := range in.Projections() {
		assert.False(t, p.IsAvailable())
		assert.False(t, p.CurrentValue().Known())
	}
}

func TestConfigurationURLFromHost(t *testing.T) {
	assert.Equal(t, "http://192.168.1.123", configurationURL("192.168.1.123"))
	assert.Equal(t, "https://example.org", configurationURL("https://example.org"))
}

func TestSetupUnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host := srv.URL
	srv.Close()

	_, err := Setup(context.Background(), actor.NewActorSystem(), net2grid.New(), domain.IntegrationEntry{
		Name:       "meter",
		Connection: domain.ConnectionConfig{Host: host},
	}, testOptions())
	assert.ErrorIs(t, err, domain.ErrNotReady)
	assert.ErrorIs(t, err, domain.ErrConnection)
	var notReady *domain.NotReadyError
	require.ErrorAs(t, err, &notReady)
	assert.Equal(t, "meter", notReady.Target)
}

func powerfoxCloud(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	authorized := func(r *http.Request) bool {
		user, pass, ok := r.BasicAuth()
		return ok && user == "user" && pass == "pass"
	}
	mux.HandleFunc("/api/2.0/my/all/devices", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[{"DeviceId":"9x9x1f12xx3x","Name":"Poweropti","MainDevice":true,"Prosumer":true,"Division":0}]`))
	})
	mux.HandleFunc("/api/2.0/my/9x9x1f12xx3x/current", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Outdated":false,"Watt":111,"A_Plus":1111.111,"A_Minus":222.222,"Timestamp":1730904062}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestPowerfoxFanOut(t *testing.T) {
	srv := powerfoxCloud(t)
	in, err := Setup(context.Background(), actor.NewActorSystem(), powerfox.New(), domain.IntegrationEntry{
		Name:       "home",
		EntryId:    "entry",
		Connection: domain.ConnectionConfig{Host: srv.URL, Username: "user", Password: "pass"},
	}, testOptions())
	require.NoError(t, err)
	shutdownOnCleanup(t, in)

	require.Len(t, in.Coordinators(), 1)
	c, ok := in.Coordinator("home_9x9x1f12xx3x")
	require.True(t, ok)
	assert.Equal(t, domain.StateReady, c.State())

	keys := []string{}
	for _, p := range in.Projections() {
		keys = append(keys, p.UniqueKey())
	}
	assert.ElementsMatch(t, []string{
		"entry_9x9x1f12xx3x_power",
		"entry_9x9x1f12xx3x_energy_usage",
		"entry_9x9x1f12xx3x_energy_return",
	}, keys)
}

func TestPowerfoxAuthFailureIsDistinct(t *testing.T) {
	srv := powerfoxCloud(t)
	_, err := Setup(context.Background(), actor.NewActorSystem(), powerfox.New(), domain.IntegrationEntry{
		Name:       "home",
		Connection: domain.ConnectionConfig{Host: srv.URL, Username: "user", Password: "wrong"},
	}, testOptions())
	assert.ErrorIs(t, err, domain.ErrNotReady)
	assert.ErrorIs(t, err, domain.ErrAuthentication)
	assert.NotErrorIs(t, err, domain.ErrConnection)
	assert.Equal(t, domain.ERROR_CLASS_AUTHENTICATION, domain.ClassifyError(err))

	down := httptest.NewServer(http.NotFoundHandler())
	host := down.URL
	down.Close()
	_, err = Setup(context.Background(), actor.NewActorSystem(), powerfox.New(), domain.IntegrationEntry{
		Name:       "home",
		Connection: domain.ConnectionConfig{Host: host, Username: "user", Password: "pass"},
	}, testOptions())
	assert.ErrorIs(t, err, domain.ErrConnection)
	assert.NotErrorIs(t, err, domain.ErrAuthentication)
}

type meterRecord struct {
	Power int64
}

func (meterRecord) Validate() error { return nil }

type fanOutVendor struct {
	*port.MockVendor
	*port.MockDeviceDiscoverer
}

func TestFanOutFailureTearsDownEveryCoordinator(t *testing.T) {
	ctrl := gomock.NewController(t)
	vendor := port.NewMockVendor(ctrl)
	discoverer := port.NewMockDeviceDiscoverer(ctrl)

	vendor.EXPECT().Name().Return("fanout").AnyTimes()
	vendor.EXPECT().ScanInterval().Return(time.Hour).AnyTimes()
	discoverer.EXPECT().DiscoverDevices(gomock.Any(), gomock.Any()).Return([]domain.DeviceHandle{
		{Id: "ok"}, {Id: "Broken-1"},
	}, nil)

	adapter := func(err error) *port.MockFetchAdapter {
		a := port.NewMockFetchAdapter(ctrl)
		a.EXPECT().Resources().Return([]domain.ResourceKind{"meter"}).AnyTimes()
		if err != nil {
			a.EXPECT().Fetch(gomock.Any(), domain.ResourceKind("meter")).Return(nil, err).AnyTimes()
		} else {
			a.EXPECT().Fetch(gomock.Any(), domain.ResourceKind("meter")).Return(meterRecord{Power: 5}, nil).AnyTimes()
		}
		a.EXPECT().Close().Return(nil).Times(1)
		return a
	}
	healthy := adapter(nil)
	broken := adapter(domain.ConnectionError("meter", errors.New("connection refused")))

	vendor.EXPECT().Connect(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, cfg domain.ConnectionConfig) (port.FetchAdapter, error) {
			if cfg.DeviceId == "ok" {
				return healthy, nil
			}
			return broken, nil
		}).Times(2)

	_, err := Setup(context.Background(), actor.NewActorSystem(), fanOutVendor{vendor, discoverer}, domain.IntegrationEntry{
		Name: "multi",
	}, testOptions())
	assert.ErrorIs(t, err, domain.ErrNotReady)
	assert.ErrorIs(t, err, domain.ErrConnection)
	assert.Contains(t, err.Error(), "multi_broken_1")
}

func TestConnectFailureClosesCreatedAdapters(t *testing.T) {
	ctrl := gomock.NewController(t)
	vendor := port.NewMockVendor(ctrl)
	discoverer := port.NewMockDeviceDiscoverer(ctrl)

	vendor.EXPECT().Name().Return("fanout").AnyTimes()
	vendor.EXPECT().ScanInterval().Return(time.Hour).AnyTimes()
	discoverer.EXPECT().DiscoverDevices(gomock.Any(), gomock.Any()).Return([]domain.DeviceHandle{
		{Id: "a"}, {Id: "b"},
	}, nil)

	first := port.NewMockFetchAdapter(ctrl)
	first.EXPECT().Close().Return(nil).Times(1)
	gomock.InOrder(
		vendor.EXPECT().Connect(gomock.Any(), gomock.Any()).Return(first, nil),
		vendor.EXPECT().Connect(gomock.Any(), gomock.Any()).Return(nil, domain.AuthenticationError("", errors.New("401"))),
	)

	_, err := Setup(context.Background(), actor.NewActorSystem(), fanOutVendor{vendor, discoverer}, domain.IntegrationEntry{
		Name: "multi",
	}, testOptions())
	assert.ErrorIs(t, err, domain.ErrAuthentication)
}

func TestRuleCheckFailureTearsDown(t *testing.T) {
	ctrl := gomock.NewController(t)
	vendor := port.NewMockVendor(ctrl)
	a := port.NewMockFetchAdapter(ctrl)
	a.EXPECT().Resources().Return([]domain.ResourceKind{"meter"}).AnyTimes()
	a.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(meterRecord{Power: 5}, nil).AnyTimes()
	a.EXPECT().Close().Return(nil).Times(1)

	vendor.EXPECT().Name().Return("single").AnyTimes()
	vendor.EXPECT().ScanInterval().Return(time.Hour).AnyTimes()
	vendor.EXPECT().Connect(gomock.Any(), gomock.Any()).Return(a, nil)
	vendor.EXPECT().ProjectionGroups(gomock.Any()).Return([]domain.ProjectionGroup{{
		Service: "meter",
		Rules: []domain.ProjectionRule{{
			Key: "missing",
			Value: func(s *domain.Snapshot) (domain.StateValue, error) {
				return domain.StateValue{}, domain.ShapeError("other", errors.New("not served"))
			},
		}},
	}}, nil)

	_, err := Setup(context.Background(), actor.NewActorSystem(), vendor, domain.IntegrationEntry{Name: "single"}, testOptions())
	assert.ErrorIs(t, err, domain.ErrNotReady)
	assert.ErrorIs(t, err, domain.ErrShape)
}

func TestTopicSafe(t *testing.T) {
	assert.Equal(t, "9x9x1f12xx3x", TopicSafe("9x9x1f12xx3x"))
	assert.Equal(t, "abc_def_1", TopicSafe("ABC-def 1"))
}
