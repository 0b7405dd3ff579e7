package domain

import (
	"github.com/asynkron/protoactor-go/actor"
)

const (
	ACTOR_ID_MASTER        = "master"
	ACTOR_ID_MQTT          = "mqtt"
	ACTOR_ID_HA_DISCOVERY  = "hadiscovery"
	ACTOR_ID_COORDINATOR   = "coordinator"
	ACTOR_ID_SENSOR_BRIDGE = "bridge"
)

type ActorRef actor.PID

type ActorRequestMixIn struct {
	ReplyToRef *ActorRef
}

type ActorRequest interface {
	ReplyTo() *ActorRef
}

func (r ActorRequestMixIn) ReplyTo() *ActorRef {
	return r.ReplyToRef
}

type ActorResponseMixIn struct {
	ResponseError error
}

func (r ActorResponseMixIn) GetResponseError() error {
	return r.ResponseError
}

func (r ActorResponseMixIn) HasResponseError() bool {
	return r.ResponseError != nil
}

type ActorResponse interface {
	GetResponseError() error
	HasResponseError() bool
}

// coordinator protocol

type FirstRefreshRequest struct {
	ActorRequestMixIn
}

// RefreshRequest asks for an immediate cycle. Requests arriving while a
// cycle is in flight join that cycle.
type RefreshRequest struct {
	ActorRequestMixIn
}

type RefreshResponse struct {
	ActorResponseMixIn
	State   CoordinatorState
	Version uint64
}

// mqtt protocol

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Event  SensorUpdateEvent
	Retain bool
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors []GenericSensor
}

// health

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	Id      string
	Healthy bool
	State   string
}
