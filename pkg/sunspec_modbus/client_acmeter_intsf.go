package sunspec_modbus

import (
	"errors"

	"github.com/simonvetter/modbus"
)

type acMeterIntSFModbusBlocks struct {
	common  uint16
	acMeter uint16
}

// ACMeterIntSFModbusReader reads an integer + scale factor meter (models
// 201-204).
type ACMeterIntSFModbusReader struct {
	ModbusClient
	blocks acMeterIntSFModbusBlocks
}

func NewACMeterReader(client RegisterClient, opts ReaderOptions) *ACMeterIntSFModbusReader {
	return &ACMeterIntSFModbusReader{
		ModbusClient: newModbusClient(client, "acMeter", opts),
	}
}

func (reader *ACMeterIntSFModbusReader) Open() error {
	if err := reader.client.Open(); err != nil {
		return err
	}
	if err := reader.survey(); err != nil {
		_ = reader.client.Close()
		return err
	}
	return nil
}

func (reader *ACMeterIntSFModbusReader) Close() error {
	return reader.client.Close()
}

func (reader *ACMeterIntSFModbusReader) survey() error {
	blocks, err := reader.ModbusClient.survey(SUNSPEC_WK_COMMON, SUNSPEC_WK_METERS_MIN)
	if err != nil {
		return err
	}
	if !blocks.has(SUNSPEC_WK_COMMON, SUNSPEC_WK_METERS_MIN) {
		return errors.New("could not find all required sunspec blocks (common, ac_meter)")
	}
	reader.blocks = acMeterIntSFModbusBlocks{
		common:  blocks[SUNSPEC_WK_COMMON],
		acMeter: blocks[SUNSPEC_WK_METERS_MIN],
	}
	return nil
}

func (reader *ACMeterIntSFModbusReader) GetInfo() (*ACMeterInfo, error) {
	common, err := reader.readCommon(reader.blocks.common)
	if err != nil {
		return nil, err
	}
	return &ACMeterInfo{DeviceInfo: common}, nil
}

func (reader *ACMeterIntSFModbusReader) GetPowerFlow() (*ACMeterPowerFlow, error) {
	totalRealPower, err := reader.readRegister(reader.blocks.acMeter+18, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	totalRealPowerSF, err := reader.readRegister(reader.blocks.acMeter+22, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	totalEnergyExported, err := reader.readUint32(reader.blocks.acMeter+38, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	totalEnergyImported, err := reader.readUint32(reader.blocks.acMeter+46, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	totWh_SF, err := reader.readRegister(reader.blocks.acMeter+54, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	freq, err := reader.readRegisters(reader.blocks.acMeter+16, 2, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	phaseAVoltage, err := reader.readRegister(reader.blocks.acMeter+8, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	phaseAVoltage_SF, err := reader.readRegister(reader.blocks.acMeter+15, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}

	return &ACMeterPowerFlow{
		CurrentPowerFlowWatt:   applySFint16(int16(totalRealPower), totalRealPowerSF),
		TotalEnergyExportedKWh: applySFuint32(totalEnergyExported, totWh_SF) / 1000,
		TotalEnergyImportedKWh: applySFuint32(totalEnergyImported, totWh_SF) / 1000,
		Frequency:              applySF(freq[0], freq[1]),
		PhaseAVoltage:          applySF(phaseAVoltage, phaseAVoltage_SF),
	}, nil
}
