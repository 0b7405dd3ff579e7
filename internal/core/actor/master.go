package actor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	adactor "github.com/berfenger/gridpoll2mqtt/internal/adapter/actor"
	"github.com/berfenger/gridpoll2mqtt/internal/config"
	"github.com/berfenger/gridpoll2mqtt/internal/core/domain"
	"github.com/berfenger/gridpoll2mqtt/internal/core/integration"
	"github.com/berfenger/gridpoll2mqtt/internal/core/port"
	"github.com/berfenger/gridpoll2mqtt/internal/mqtt"
	"github.com/berfenger/gridpoll2mqtt/internal/telemetry"
	. "github.com/berfenger/gridpoll2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

var (
	ErrIntegrationNotFound  = errors.New("integration not found")
	ErrIntegrationNotLoaded = errors.New("integration not loaded")
)

const (
	healthCheckTimeout = 1 * time.Second
	teardownTimeout    = 5 * time.Second
)

type MQTTActorProvider func() *adactor.MQTTActor

type VendorLookup func(name string) (port.Vendor, error)

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck healthCheckResult
	mqttActor          *actor.PID
	haDiscoveryActor   *actor.PID
	mqttActorProvider  MQTTActorProvider
	vendorLookup       VendorLookup
	metrics            *telemetry.Metrics
	scheduler          *scheduler.TimerScheduler
	integrations       []*integrationSlot
	stopping           atomic.Bool
	logger             *zap.Logger
	rootLogger         *zap.Logger
}

// integrationSlot tracks one configured integration across setup attempts.
type integrationSlot struct {
	cfg         config.IntegrationConfig
	vendor      port.Vendor
	state       string
	attempts    int
	err         error
	integration *integration.Integration
	bridge      *actor.PID
	cancelRetry scheduler.CancelFunc
}

type healthCheckResult struct {
	expected  int
	received  int
	unhealthy []string
	respondTo *actor.PID
}

func NewMasterOfPuppetsActor(config config.Config, vendorLookup VendorLookup, mqttActorProvider MQTTActorProvider,
	metrics *telemetry.Metrics, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:            config,
		behavior:          actor.NewBehavior(),
		stash:             &Stash{},
		logger:            ActorLogger(domain.ACTOR_ID_MASTER, logger),
		rootLogger:        logger,
		mqttActorProvider: mqttActorProvider,
		vendorLookup:      vendorLookup,
		metrics:           metrics,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx.ActorSystem().Root)

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// start HA Discovery
		if state.config.MQTT.HADiscoveryEnable {
			haDiscPID, err := state.startHADiscoveryActor(ctx)
			if err != nil {
				panic(err)
			}
			state.haDiscoveryActor = haDiscPID
		}

		for _, cfg := range state.config.Integrations {
			slot := &integrationSlot{cfg: cfg}
			state.integrations = append(state.integrations, slot)
			vendor, err := state.vendorLookup(cfg.Vendor)
			if err != nil {
				state.logger.Error("master@starting unknown vendor", zap.String("integration", cfg.Name), zap.Error(err))
				slot.state = INTEGRATION_STATE_SETUP_ERROR
				slot.err = err
				continue
			}
			slot.vendor = vendor
			state.startSetup(ctx, slot)
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.beginHealthCheck(ctx)
	case setupResult:
		state.onSetupResult(ctx, msg)
	case retrySetup:
		slot := state.slot(msg.name)
		if slot != nil && slot.state == INTEGRATION_STATE_SETUP_RETRY {
			slot.cancelRetry = nil
			state.startSetup(ctx, slot)
		}
	case GetIntegrationsRequest:
		out := make([]IntegrationStatus, 0, len(state.integrations))
		for _, slot := range state.integrations {
			out = append(out, slot.status())
		}
		ForRequest(msg).Respond(ctx, GetIntegrationsResponse{Integrations: out})
	case GetIntegrationRequest:
		slot := state.slot(msg.Name)
		if slot == nil {
			ForRequest(msg).Respond(ctx, GetIntegrationResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: ErrIntegrationNotFound},
			})
			return
		}
		ForRequest(msg).Respond(ctx, GetIntegrationResponse{Status: slot.status(), Integration: slot.integration})
	case RefreshIntegrationRequest:
		ForRequest(msg).Respond(ctx, RefreshIntegrationResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: state.requestRefresh(msg.Name)},
		})
	case adactor.ParsedCommand:
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil && msg.Command.Command == mqtt.MQTT_COMMAND_REFRESH {
			state.refreshCoordinator(msg.Command.Coordinator)
		}
	case domain.ActorHealthResponse, *actor.ReceiveTimeout:
		// late health check answer
	case *actor.Stopping:
		state.shutdownIntegrations()
	case *actor.Terminated:
		state.logger.Warn("master@default child terminated", zap.String("child", msg.Who.Id))
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		state.currentHealthCheck.unhealthy = append(state.currentHealthCheck.unhealthy, "timeout")
		state.endHealthCheck(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.received++
		if !msg.Healthy {
			state.currentHealthCheck.unhealthy = append(state.currentHealthCheck.unhealthy, msg.Id)
		}
		if state.currentHealthCheck.allReceived() {
			state.endHealthCheck(ctx)
		}
	case *actor.Stopping:
		state.shutdownIntegrations()
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// beginHealthCheck asks the MQTT actor and every running coordinator.
func (state *MasterOfPuppetsActor) beginHealthCheck(ctx actor.Context) {
	state.currentHealthCheck = healthCheckResult{respondTo: ctx.Sender()}

	ask := func(pid *actor.PID, id string) {
		state.currentHealthCheck.expected++
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, healthCheckTimeout/2), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      id,
				Healthy: false,
			}
		})
	}
	ask(state.mqttActor, domain.ACTOR_ID_MQTT)
	for _, slot := range state.integrations {
		if slot.integration == nil {
			continue
		}
		for _, c := range slot.integration.Coordinators() {
			ask(c.PID(), c.Name())
		}
	}

	ctx.SetReceiveTimeout(healthCheckTimeout)
	state.behavior.BecomeStacked(state.HealthCheckReceive)
}

func (state *MasterOfPuppetsActor) endHealthCheck(ctx actor.Context) {
	ctx.CancelReceiveTimeout()
	state.currentHealthCheck.respond(ctx)
	state.behavior.UnbecomeStacked()
	state.stash.UnstashAll(ctx)
}

// startSetup runs integration setup in the background. The result comes
// back as a setupResult message.
func (state *MasterOfPuppetsActor) startSetup(ctx actor.Context, slot *integrationSlot) {
	slot.state = INTEGRATION_STATE_SETTING_UP
	slot.attempts++
	state.logger.Info("master@default integration setup",
		zap.String("integration", slot.cfg.Name), zap.Int("attempt", slot.attempts))

	system := ctx.ActorSystem()
	vendor := slot.vendor
	entry := slot.cfg.Entry()
	name := slot.cfg.Name
	opts := integration.Options{
		FetchTimeout: state.config.FetchTimeout,
		Metrics:      state.metrics,
		Logger:       state.rootLogger,
	}
	timeout := state.setupTimeout()
	NewBackgroundTask(ctx, func() (*setupResult, error) {
		setupCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		in, err := integration.Setup(setupCtx, system, vendor, entry, opts)
		if err == nil && state.stopping.Load() {
			// master went away while setting up
			teardown(in)
			return nil, errors.New("master stopped")
		}
		return &setupResult{name: name, integration: in, err: err}, nil
	}).PipeTo(ctx.Self())
}

func (state *MasterOfPuppetsActor) onSetupResult(ctx actor.Context, res setupResult) {
	slot := state.slot(res.name)
	if slot == nil {
		return
	}
	if res.err != nil {
		slot.err = res.err
		if errors.Is(res.err, domain.ErrAuthentication) {
			state.logger.Error("master@default integration setup error",
				zap.String("integration", res.name), zap.Error(res.err))
			slot.state = INTEGRATION_STATE_SETUP_ERROR
			return
		}
		state.logger.Warn("master@default integration setup retry",
			zap.String("integration", res.name), zap.Duration("in", state.config.SetupRetryInterval), zap.Error(res.err))
		slot.state = INTEGRATION_STATE_SETUP_RETRY
		slot.cancelRetry = state.scheduler.SendOnce(state.config.SetupRetryInterval, ctx.Self(), retrySetup{name: res.name})
		return
	}

	slot.err = nil
	slot.integration = res.integration
	slot.state = INTEGRATION_STATE_LOADED

	bridge, err := state.startSensorBridgeActor(ctx, res.integration)
	if err != nil {
		state.logger.Error("master@default could not start sensor bridge", zap.String("integration", res.name), zap.Error(err))
	} else {
		slot.bridge = bridge
	}
	if state.haDiscoveryActor != nil {
		ctx.Send(state.haDiscoveryActor, IntegrationLoaded{Integration: res.integration})
	}
	state.logger.Info("master@default integration loaded", zap.String("integration", res.name))
}

func (state *MasterOfPuppetsActor) requestRefresh(name string) error {
	slot := state.slot(name)
	if slot == nil {
		return ErrIntegrationNotFound
	}
	if slot.integration == nil {
		return ErrIntegrationNotLoaded
	}
	slot.integration.RequestRefresh()
	return nil
}

func (state *MasterOfPuppetsActor) refreshCoordinator(name string) {
	for _, slot := range state.integrations {
		if slot.integration == nil {
			continue
		}
		if c, ok := slot.integration.Coordinator(name); ok {
			c.RequestRefresh()
			return
		}
	}
	state.logger.Warn("master@default refresh for unknown coordinator", zap.String("coordinator", name))
}

func (state *MasterOfPuppetsActor) shutdownIntegrations() {
	if !state.stopping.CompareAndSwap(false, true) {
		return
	}
	state.logger.Info("master@stopping shutting down integrations")
	for _, slot := range state.integrations {
		if slot.cancelRetry != nil {
			slot.cancelRetry()
			slot.cancelRetry = nil
		}
		if slot.integration != nil {
			teardown(slot.integration)
		}
	}
}

func (state *MasterOfPuppetsActor) slot(name string) *integrationSlot {
	for _, slot := range state.integrations {
		if slot.cfg.Name == name {
			return slot
		}
	}
	return nil
}

// setupTimeout bounds discovery, connect and first refresh of one attempt.
func (state *MasterOfPuppetsActor) setupTimeout() time.Duration {
	return 3*state.config.FetchTimeout + teardownTimeout
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider()
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(10, 1*time.Minute, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(state.config.MQTT, state.mqttActor, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
}

func (state *MasterOfPuppetsActor) startSensorBridgeActor(ctx actor.Context, in *integration.Integration) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(10, 1*time.Minute, decider)

	bridgeProps := actor.PropsFromProducer(func() actor.Actor {
		return NewSensorBridgeActor(in, state.mqttActor, state.config.MQTT.StateRefreshInterval, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(bridgeProps, fmt.Sprintf("%s-%s", domain.ACTOR_ID_SENSOR_BRIDGE, in.Name()))
}

func (slot *integrationSlot) status() IntegrationStatus {
	st := IntegrationStatus{
		Name:     slot.cfg.Name,
		Title:    slot.cfg.Entry().Title,
		Vendor:   slot.cfg.Vendor,
		State:    slot.state,
		Attempts: slot.attempts,
	}
	if slot.err != nil {
		st.Error = slot.err.Error()
	}
	if slot.integration != nil {
		st.EntryId = slot.integration.Entry().EntryId
		st.Coordinators = slot.integration.Status()
	}
	return st
}

func teardown(in *integration.Integration) {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	_ = in.Shutdown(ctx)
}

func (state *healthCheckResult) allReceived() bool {
	return state.received >= state.expected
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: len(state.unhealthy) == 0,
		State:   "ok",
	}
	if !resp.Healthy {
		resp.State = "unhealthy: " + strings.Join(state.unhealthy, ", ")
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
