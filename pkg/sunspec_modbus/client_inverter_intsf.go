package sunspec_modbus

import (
	"errors"

	"github.com/simonvetter/modbus"
)

type inverterIntSFModbusBlocks struct {
	common   uint16
	inverter uint16
	mppt     uint16
}

// InverterIntSFModbusReader reads an integer + scale factor inverter
// (models 101-103) and its multiple MPPT extension (model 160).
type InverterIntSFModbusReader struct {
	ModbusClient

	blocks inverterIntSFModbusBlocks
}

func NewInverterReader(client RegisterClient, opts ReaderOptions) *InverterIntSFModbusReader {
	return &InverterIntSFModbusReader{
		ModbusClient: newModbusClient(client, "inverter", opts),
	}
}

func (inv *InverterIntSFModbusReader) Open() error {
	if err := inv.client.Open(); err != nil {
		return err
	}
	if err := inv.survey(); err != nil {
		_ = inv.client.Close()
		return err
	}
	return nil
}

func (inv *InverterIntSFModbusReader) Close() error {
	return inv.client.Close()
}

func (inv *InverterIntSFModbusReader) survey() error {
	blocks, err := inv.ModbusClient.survey(SUNSPEC_WK_COMMON, SUNSPEC_WK_INVERTERS_MIN, SUNSPEC_WK_MPPT)
	if err != nil {
		return err
	}
	if !blocks.has(SUNSPEC_WK_COMMON, SUNSPEC_WK_INVERTERS_MIN, SUNSPEC_WK_MPPT) {
		return errors.New("could not find all required sunspec blocks (common, inverter, mppt)")
	}
	inv.blocks = inverterIntSFModbusBlocks{
		common:   blocks[SUNSPEC_WK_COMMON],
		inverter: blocks[SUNSPEC_WK_INVERTERS_MIN],
		mppt:     blocks[SUNSPEC_WK_MPPT],
	}
	return nil
}

func (inv *InverterIntSFModbusReader) GetInfo() (*InverterInfo, error) {
	common, err := inv.readCommon(inv.blocks.common)
	if err != nil {
		return nil, err
	}
	// WRtg of nameplate model 120, when it directly follows the inverter block
	regs, err := inv.readRegisters(inv.blocks.inverter+82, 1, modbus.HOLDING_REGISTER)
	var rated uint32
	if err == nil && len(regs) == 1 && regs[0] != 0xFFFF {
		rated = uint32(regs[0])
	}
	return &InverterInfo{
		DeviceInfo:        common,
		MaxRatedPowerWatt: rated,
	}, nil
}

func (inv *InverterIntSFModbusReader) GetState() (*InverterState, error) {
	regs, err := inv.readRegisters(inv.blocks.inverter+33, 6, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	// TmpCab, TmpSnk, TmpTrns, TmpOt, Tmp_SF, St
	state := regs[5]
	return &InverterState{
		CabinetTemperature: applySFint16(int16(regs[0]), regs[4]),
		OperatingState:     state,
		OperatingStateStr:  InverterStatusToString(state),
	}, nil
}

func (inv *InverterIntSFModbusReader) GetPowerFlow() (*InverterPowerFlow, error) {
	// ac power
	acpower, err := inv.readRegisters(inv.blocks.inverter+14, 2, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	// lifetime energy
	energy, err := inv.readUint32(inv.blocks.inverter+24, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	energySF, err := inv.readRegister(inv.blocks.inverter+26, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	// dc power sf
	dcPowerSF, err := inv.readRegister(inv.blocks.mppt+4, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	nMods, err := inv.readRegister(inv.blocks.mppt+8, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	var dcpower float64 = 0
	for _, idx := range pvModules(nMods) {
		mpptPower, err := inv.readMPPTPower(idx)
		if err != nil {
			return nil, err
		}
		dcpower += applySF(mpptPower, dcPowerSF)
	}

	return &InverterPowerFlow{
		ACPowerWatt:         applySFint16(int16(acpower[0]), acpower[1]),
		PVPowerWatt:         dcpower,
		TotalEnergyWattHour: applySFuint32(energy, energySF),
	}, nil
}

// pvModules returns the photovoltaic module indexes. With 3 or 4 modules
// the last two are battery charge and discharge.
func pvModules(nMods uint16) []uint8 {
	switch nMods {
	case 0:
		return nil
	case 1, 3:
		return []uint8{0}
	default:
		return []uint8{0, 1}
	}
}

func (inv *InverterIntSFModbusReader) readMPPTPower(index uint8) (uint16, error) {
	baseAddr := inv.blocks.mppt + 10 + 20*uint16(index)
	// dc power
	dcpower, err := inv.readRegister(baseAddr+11, modbus.HOLDING_REGISTER)
	if err != nil {
		return 0, err
	}
	if dcpower == 0xFFFF {
		dcpower = 0
	}
	return dcpower, nil
}
