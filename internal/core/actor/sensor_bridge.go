package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/gridpoll2mqtt/internal/core/domain"
	"github.com/berfenger/gridpoll2mqtt/internal/core/events"
	"github.com/berfenger/gridpoll2mqtt/internal/core/integration"
	"github.com/berfenger/gridpoll2mqtt/internal/core/service"
	"github.com/berfenger/gridpoll2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/jellydator/ttlcache/v2"
	"go.uber.org/zap"
)

// SensorBridgeActor publishes the projections of one integration to MQTT.
// A value is published when it changes, or when its last publication is
// older than the refresh interval.
type SensorBridgeActor struct {
	integration     *integration.Integration
	mqttActor       *actor.PID
	refreshInterval time.Duration
	behavior        actor.Behavior

	byCoordinator map[string][]*service.SensorProjection
	available     map[string]bool
	published     *ttlcache.Cache
	subs          []*eventstream.Subscription
	logger        *zap.Logger
}

func NewSensorBridgeActor(in *integration.Integration, mqttActor *actor.PID, refreshInterval time.Duration, logger *zap.Logger) *SensorBridgeActor {
	act := &SensorBridgeActor{
		integration:     in,
		mqttActor:       mqttActor,
		refreshInterval: refreshInterval,
		behavior:        actor.NewBehavior(),
		logger:          actorutil.ActorLogger(domain.ACTOR_ID_SENSOR_BRIDGE, logger).With(zap.String("integration", in.Name())),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *SensorBridgeActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *SensorBridgeActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("bridge@default started")
		state.start(ctx)
	case domain.CoordinatorUpdate:
		state.logger.Debug("bridge@default update",
			zap.String("coordinator", msg.Coordinator),
			zap.String("outcome", msg.Outcome.String()),
			zap.Bool("changed", msg.Changed))
		state.publishAvailability(ctx, msg.Coordinator, msg.State.Available())
		if msg.Outcome == domain.OutcomeUpdated {
			state.publishValues(ctx, msg.Coordinator, msg.Snapshot)
		}
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      fmt.Sprintf("%s-%s", domain.ACTOR_ID_SENSOR_BRIDGE, state.integration.Name()),
			Healthy: state.integration.Healthy(),
			State:   "publishing",
		})
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	}
}

// start subscribes to every coordinator and publishes the current state.
func (state *SensorBridgeActor) start(ctx actor.Context) {
	state.byCoordinator = map[string][]*service.SensorProjection{}
	for _, p := range state.integration.Projections() {
		state.byCoordinator[p.Coordinator()] = append(state.byCoordinator[p.Coordinator()], p)
	}
	state.available = map[string]bool{}
	state.published = ttlcache.NewCache()
	_ = state.published.SetTTL(state.refreshInterval)
	state.published.SkipTTLExtensionOnHit(true)

	root := ctx.ActorSystem().Root
	self := ctx.Self()
	for _, c := range state.integration.Coordinators() {
		state.subs = append(state.subs, c.Subscribe(func(update domain.CoordinatorUpdate) {
			root.Send(self, update)
		}))
	}
	for _, c := range state.integration.Coordinators() {
		state.publishAvailability(ctx, c.Name(), c.State().Available())
		state.publishValues(ctx, c.Name(), c.Snapshot())
	}
}

func (state *SensorBridgeActor) publishAvailability(ctx actor.Context, coordinator string, available bool) {
	if prev, ok := state.available[coordinator]; ok && prev == available {
		return
	}
	state.available[coordinator] = available
	ctx.Send(state.mqttActor, domain.PublishSensorUpdateRequest{
		Event:  events.AvailabilityEvent(coordinator, available),
		Retain: true,
	})
}

// publishValues renders every projection of a coordinator against snap.
// Unknown values are skipped.
func (state *SensorBridgeActor) publishValues(ctx actor.Context, coordinator string, snap *domain.Snapshot) {
	if snap == nil || state.published == nil {
		return
	}
	for _, p := range state.byCoordinator[coordinator] {
		value := p.ValueFrom(snap)
		if !value.Known() {
			continue
		}
		event := events.ProjectionUpdateEvent(state.integration, p, value)
		rendered := value.String()
		if last, err := state.published.Get(event.Id); err == nil && last == rendered {
			continue
		}
		_ = state.published.Set(event.Id, rendered)
		ctx.Send(state.mqttActor, domain.PublishSensorUpdateRequest{Event: event})
	}
}

func (state *SensorBridgeActor) stop() {
	for i, c := range state.integration.Coordinators() {
		if i < len(state.subs) {
			c.Unsubscribe(state.subs[i])
		}
	}
	state.subs = nil
	if state.published != nil {
		_ = state.published.Close()
		state.published = nil
	}
}
