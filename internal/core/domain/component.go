package domain

const (
	SENSOR_ID_BRIDGE_STATE       = "bridge"
	STATE_UNKNOWN                = "unknown"
	STATE_CLASS_MEASUREMENT      = "measurement"
	STATE_CLASS_TOTAL_INCREASING = "total_increasing"
	DEVICE_CLASS_ENERGY          = "energy"
	DEVICE_CLASS_FREQUENCY       = "frequency"
	DEVICE_CLASS_GAS             = "gas"
	DEVICE_CLASS_POWER           = "power"
	DEVICE_CLASS_VOLTAGE         = "voltage"
	DEVICE_CLASS_CONNECTIVITY    = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC      = "diagnostic"
	SENSOR_TYPE_SENSOR           = "sensor"
	SENSOR_TYPE_BINARY           = "binary_sensor"
	UNIT_WATT                    = "W"
	UNIT_KILO_WATT_HOUR          = "kWh"
	UNIT_CUBIC_METER             = "m³"
	UNIT_HERTZ                   = "Hz"
	UNIT_VOLT                    = "V"
)

type Device struct {
	Id               string
	Name             string
	Version          string
	Model            string
	Manufacturer     string
	ViaDevice        string
	ConfigurationURL string
}

// GenericSensor describes one published sensor for discovery.
type GenericSensor struct {
	Device            Device
	Id                string
	SensorType        string
	Name              string
	UniqueId          string
	UnitOfMeasurement string
	StateClass        string // measurement, total_increasing
	DeviceClass       string // power, energy, gas, ...
	EntityCategory    string // diagnostic, nil
	EnabledByDefault  *bool
	Icon              string
	// Coordinator is the name of the coordinator whose availability gates
	// this sensor. Empty for bridge sensors.
	Coordinator string
}
