package domain

import "fmt"

type SensorUpdateEventMixIn struct {
	Id string
}

type SensorUpdateEvent interface {
	SensorUpdateEvent() string
	SensorId() string
}

func (e SensorUpdateEventMixIn) SensorUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e SensorUpdateEventMixIn) SensorId() string {
	return e.Id
}

// StateSensorUpdateEvent carries a rendered projection value.
type StateSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value StateValue
}

type BridgeStateUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

// AvailabilityUpdateEvent reports whether a coordinator is serving data.
// Id is the coordinator name.
type AvailabilityUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}
