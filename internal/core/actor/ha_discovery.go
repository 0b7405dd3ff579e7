package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/gridpoll2mqtt/internal/config"
	"github.com/berfenger/gridpoll2mqtt/internal/core/domain"
	"github.com/berfenger/gridpoll2mqtt/internal/core/events"
	"github.com/berfenger/gridpoll2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// HADiscoveryActor publishes Home Assistant discovery configs for the bridge
// and for every loaded integration, and republishes them periodically.
type HADiscoveryActor struct {
	config    config.MQTTConfig
	behavior  actor.Behavior
	stash     *actorutil.Stash
	mqttActor *actor.PID
	bridge    domain.Device
	sensors   map[string][]domain.GenericSensor
	order     []string
	cancel    scheduler.CancelFunc

	logger *zap.Logger
}

func NewHADiscoveryActor(config config.MQTTConfig, mqttActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:    config,
		mqttActor: mqttActor,
		behavior:  actor.NewBehavior(),
		stash:     &actorutil.Stash{},
		bridge:    events.BridgeDevice(config.BaseTopic),
		sensors:   map[string][]domain.GenericSensor{},
		logger:    actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		// wait for MQTT actor to be healthy
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 15*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@starting ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		if !msg.Healthy {
			panic(errors.New("MQTT Actor is not healthy"))
		}
		state.publish(ctx, events.BridgeSensors(state.bridge))
		if interval := state.config.HADiscoveryInterval; interval > 0 {
			state.cancel = scheduler.NewTimerScheduler(ctx.ActorSystem().Root).SendRepeatedly(interval, interval, ctx.Self(), republishDiscovery{})
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
		// catch up with integrations loaded before a restart
		if ctx.Parent() != nil {
			ctx.Request(ctx.Parent(), GetIntegrationsRequest{})
		}
	case *actor.Restarting, *actor.Stopping:
	default:
		state.logger.Debug("hadiscovery@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case IntegrationLoaded:
		state.announce(ctx, msg)
	case GetIntegrationsResponse:
		for _, st := range msg.Integrations {
			if st.State == INTEGRATION_STATE_LOADED {
				ctx.Request(ctx.Parent(), GetIntegrationRequest{Name: st.Name})
			}
		}
	case GetIntegrationResponse:
		if msg.Integration != nil {
			if _, known := state.sensors[msg.Integration.Name()]; !known {
				state.announce(ctx, IntegrationLoaded{Integration: msg.Integration})
			}
		}
	case republishDiscovery:
		state.logger.Debug("hadiscovery@default republish")
		state.publish(ctx, state.all())
	case *actor.Restarting, *actor.Stopping:
		if state.cancel != nil {
			state.cancel()
			state.cancel = nil
		}
	default:
		state.logger.Debug("hadiscovery@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) announce(ctx actor.Context, msg IntegrationLoaded) {
	in := msg.Integration
	sensors := events.ProjectionSensors(in, in.Projections(), state.bridge)
	if _, known := state.sensors[in.Name()]; !known {
		state.order = append(state.order, in.Name())
	}
	state.sensors[in.Name()] = sensors
	state.logger.Info("hadiscovery@default integration announced",
		zap.String("integration", in.Name()), zap.Int("sensors", len(sensors)))
	state.publish(ctx, sensors)
}

func (state *HADiscoveryActor) all() []domain.GenericSensor {
	sensors := events.BridgeSensors(state.bridge)
	for _, name := range state.order {
		sensors = append(sensors, state.sensors[name]...)
	}
	return sensors
}

func (state *HADiscoveryActor) publish(ctx actor.Context, sensors []domain.GenericSensor) {
	if len(sensors) == 0 {
		return
	}
	ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{Sensors: sensors})
}
