package sunspec_modbus

import (
	"errors"

	"github.com/simonvetter/modbus"
)

const (
	SUNSPEC_BASE_ADDR        = 40000
	SUNSPEC_WK_COMMON        = 1
	SUNSPEC_WK_INVERTERS_MIN = 101
	SUNSPEC_WK_INVERTERS_MAX = 103
	SUNSPEC_WK_MPPT          = 160
	SUNSPEC_WK_METERS_MIN    = 201
	SUNSPEC_WK_METERS_MAX    = 204
	SUNSPEC_END_BLOCK        = 0xFFFF

	maxSurveyBlocks = 20
)

var ErrNotSunSpec = errors.New("sunspec: marker SunS not found")

type modbusBlock struct {
	id       uint16
	baseAddr uint16
	length   uint16
}

func (block *modbusBlock) isEndBlock() bool {
	return block.id == SUNSPEC_END_BLOCK
}

// blockMap maps a well known model id onto the base address of its block.
// Inverter and meter variants are folded onto their range minimum.
type blockMap map[uint16]uint16

func (m blockMap) has(ids ...uint16) bool {
	for _, id := range ids {
		if m[id] == 0 {
			return false
		}
	}
	return true
}

func canonicalBlockId(id uint16) uint16 {
	switch {
	case id >= SUNSPEC_WK_INVERTERS_MIN && id <= SUNSPEC_WK_INVERTERS_MAX:
		return SUNSPEC_WK_INVERTERS_MIN
	case id >= SUNSPEC_WK_METERS_MIN && id <= SUNSPEC_WK_METERS_MAX:
		return SUNSPEC_WK_METERS_MIN
	default:
		return id
	}
}

// survey walks the model chain after the SunS marker until the end block or
// until every wanted block was found.
func (reader ModbusClient) survey(wanted ...uint16) (blockMap, error) {
	str, err := reader.readString(SUNSPEC_BASE_ADDR, 4)
	if err != nil {
		return nil, err
	}
	if str != "SunS" {
		return nil, ErrNotSunSpec
	}

	blocks := blockMap{}
	var baseAddr uint16 = SUNSPEC_BASE_ADDR + 2
	for n := 0; n < maxSurveyBlocks; n++ {
		block, err := reader.surveyModbusBlock(baseAddr)
		if err != nil {
			return nil, err
		}
		if block.isEndBlock() {
			break
		}
		id := canonicalBlockId(block.id)
		if blocks[id] == 0 {
			blocks[id] = block.baseAddr
		}
		if blocks.has(wanted...) {
			break
		}
		baseAddr = baseAddr + block.length + 2
	}
	return blocks, nil
}

func (reader ModbusClient) surveyModbusBlock(baseAddr uint16) (*modbusBlock, error) {
	regs, err := reader.readRegisters(baseAddr, 2, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	return &modbusBlock{
		id:       regs[0],
		length:   regs[1],
		baseAddr: baseAddr,
	}, nil
}

type DeviceInfo struct {
	Manufacturer string
	Model        string
	Version      string
	Serial       string
}

// readCommon reads the common model (id 1) strings.
func (reader ModbusClient) readCommon(common uint16) (DeviceInfo, error) {
	manufacturer, err := reader.readString(common+2, 32)
	if err != nil {
		return DeviceInfo{}, err
	}
	model, err := reader.readString(common+18, 32)
	if err != nil {
		return DeviceInfo{}, err
	}
	version, err := reader.readString(common+42, 16)
	if err != nil {
		return DeviceInfo{}, err
	}
	serial, err := reader.readString(common+50, 32)
	if err != nil {
		return DeviceInfo{}, err
	}
	return DeviceInfo{
		Manufacturer: manufacturer,
		Model:        model,
		Version:      version,
		Serial:       serial,
	}, nil
}
