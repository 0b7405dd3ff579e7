package events

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	. "github.com/berfenger/gridpoll2mqtt/internal/core/domain"
	"github.com/berfenger/gridpoll2mqtt/internal/core/integration"
	"github.com/berfenger/gridpoll2mqtt/internal/core/service"

	"github.com/carlmjohnson/versioninfo"
)

// DeviceSource resolves the device metadata of a projection.
type DeviceSource interface {
	Name() string
	DeviceInfo(p *service.SensorProjection) DeviceMetadata
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("gridpoll_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "gridpoll2mqtt",
		Model:        "GridPoll",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("GridPoll %s", md5HashShort(baseTopic)),
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {
	return []GenericSensor{{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	}}
}

// ProjectionDevice is the device a projection's grouping key maps to,
// attached via the bridge.
func ProjectionDevice(src DeviceSource, p *service.SensorProjection, bridge Device) Device {
	meta := src.DeviceInfo(p)
	return Device{
		Id:               integration.TopicSafe(p.GroupingKey()),
		Name:             meta.Name,
		Version:          meta.FirmwareVersion,
		Model:            meta.Model,
		Manufacturer:     meta.Manufacturer,
		ViaDevice:        bridge.Id,
		ConfigurationURL: meta.ConfigurationURL,
	}
}

// SensorId is the id of a projection in state topics.
func SensorId(src DeviceSource, p *service.SensorProjection) string {
	return integration.TopicSafe(fmt.Sprintf("%s_%s_%s", src.Name(), p.Service(), p.Key()))
}

func ProjectionSensor(src DeviceSource, p *service.SensorProjection, bridge Device) GenericSensor {
	rule := p.Rule()
	return GenericSensor{
		Device:            ProjectionDevice(src, p, bridge),
		Id:                SensorId(src, p),
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              rule.Name,
		UniqueId:          p.UniqueKey(),
		UnitOfMeasurement: rule.UnitOfMeasurement,
		StateClass:        rule.StateClass,
		DeviceClass:       rule.DeviceClass,
		EntityCategory:    rule.EntityCategory,
		Icon:              rule.Icon,
		Coordinator:       p.Coordinator(),
	}
}

func ProjectionSensors(src DeviceSource, projections []*service.SensorProjection, bridge Device) []GenericSensor {
	sensors := make([]GenericSensor, 0, len(projections))
	for _, p := range projections {
		sensors = append(sensors, ProjectionSensor(src, p, bridge))
	}
	return sensors
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}
