package events

import (
	. "github.com/berfenger/gridpoll2mqtt/internal/core/domain"
	"github.com/berfenger/gridpoll2mqtt/internal/core/service"
)

func ProjectionUpdateEvent(src DeviceSource, p *service.SensorProjection, value StateValue) StateSensorUpdateEvent {
	return StateSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SensorId(src, p)},
		Value:                  value,
	}
}

func AvailabilityEvent(coordinator string, available bool) AvailabilityUpdateEvent {
	return AvailabilityUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: coordinator},
		Value:                  available,
	}
}

func BridgeStateEvent(online bool) BridgeStateUpdateEvent {
	return BridgeStateUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SENSOR_ID_BRIDGE_STATE},
		Value:                  online,
	}
}
