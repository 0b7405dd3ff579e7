package actor

import (
	"testing"
	"time"

	"github.com/berfenger/gridpoll2mqtt/internal/core/domain"
	"github.com/berfenger/gridpoll2mqtt/internal/core/events"
	"github.com/berfenger/gridpoll2mqtt/internal/util"
	"github.com/berfenger/gridpoll2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMQTTActor(t *testing.T) {
	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()
	context := as.Root

	sink := &PublishSink{}
	props := actor.PropsFromProducer(func() actor.Actor { return NewTestMQTTActor(cfg.MQTT, sink, logger) })
	pid := context.Spawn(props)

	result, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	resp, ok := result.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.True(t, resp.Healthy)

	power := domain.StateSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: "home_smartbridge_power_flow"},
		Value:                  domain.IntValue(1200),
	}
	_, err = context.RequestFuture(pid, domain.PublishSensorUpdateRequest{Event: power}, time.Second).Result()
	require.NoError(t, err)
	_, err = context.RequestFuture(pid, domain.PublishSensorUpdateRequest{Event: events.AvailabilityEvent("home", false)}, time.Second).Result()
	require.NoError(t, err)

	last, ok := sink.Last("gridpoll/sensor/home_smartbridge_power_flow/state")
	assert.True(t, ok)
	assert.Equal(t, "1200", last)

	all := sink.All()
	require.Len(t, all, 2)
	assert.Equal(t, "gridpoll/coordinator/home/availability", all[1].Topic)
	assert.Equal(t, "offline", all[1].Payload)
	assert.True(t, all[1].Retain)

	context.Stop(pid)
}

func TestMQTTActorDiscovery(t *testing.T) {
	cfg := util.LoadTestConfig()
	as := actorutil.NewActorSystemWithZapLogger(zap.NewNop())
	defer as.Shutdown()
	context := as.Root

	sink := &PublishSink{}
	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor { return NewTestMQTTActor(cfg.MQTT, sink, nil) }))

	bridge := events.BridgeDevice(cfg.MQTT.BaseTopic)
	sensors := append(events.BridgeSensors(bridge), domain.GenericSensor{
		Device:      domain.Device{Id: "entry_smartbridge", Name: "SmartBridge"},
		Id:          "home_smartbridge_power_flow",
		SensorType:  domain.SENSOR_TYPE_SENSOR,
		Name:        "Power flow",
		UniqueId:    "entry_smartbridge_power_flow",
		Coordinator: "home",
	})
	context.Send(pid, domain.PublishDiscoveryRequest{Sensors: sensors})
	// health request is processed after the discovery request
	_, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)

	payload, ok := sink.Last("homeassistant/sensor/entry_smartbridge/home_smartbridge_power_flow/config")
	require.True(t, ok)
	var cfgMsg map[string]any
	require.NoError(t, json.Unmarshal([]byte(payload), &cfgMsg))
	assert.Equal(t, "all", cfgMsg["availability_mode"])
	assert.Equal(t, "gridpoll/sensor/home_smartbridge_power_flow/state", cfgMsg["state_topic"])

	_, ok = sink.Last("homeassistant/binary_sensor/" + bridge.Id + "/bridge/config")
	assert.True(t, ok)
}
