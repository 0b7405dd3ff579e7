package sunspec_modbus

type ACMeterInfo struct {
	DeviceInfo
}

type ACMeterPowerFlow struct {
	// Current AC power flow. Positive = import. Negative = export
	CurrentPowerFlowWatt float64
	// Lifetime exported energy in kWh
	TotalEnergyExportedKWh float64
	// Lifetime imported energy in kWh
	TotalEnergyImportedKWh float64
	// Grid frequency
	Frequency float64
	// First grid phase voltage
	PhaseAVoltage float64
}

type ACMeterModbusReader interface {
	Open() error
	Close() error
	GetInfo() (*ACMeterInfo, error)
	GetPowerFlow() (*ACMeterPowerFlow, error)
}
