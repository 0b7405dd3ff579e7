package sunspec_modbus

import (
	"errors"
	"sync"

	"github.com/simonvetter/modbus"
)

// FakeRegisters is an in-memory RegisterClient holding a SunSpec register
// map. Unset registers read as zero.
type FakeRegisters struct {
	mu      sync.Mutex
	regs    map[uint16]uint16
	opened  int
	closed  int
	readErr error
}

func NewFakeRegisters() *FakeRegisters {
	return &FakeRegisters{regs: map[uint16]uint16{}}
}

func (f *FakeRegisters) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened++
	return nil
}

func (f *FakeRegisters) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *FakeRegisters) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// FailReads makes every following read return err; nil restores reads.
func (f *FakeRegisters) FailReads(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErr = err
}

func (f *FakeRegisters) ReadRegister(addr uint16, regType modbus.RegType) (uint16, error) {
	regs, err := f.ReadRegisters(addr, 1, regType)
	if err != nil {
		return 0, err
	}
	return regs[0], nil
}

func (f *FakeRegisters) ReadRegisters(addr uint16, quantity uint16, regType modbus.RegType) ([]uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	if regType != modbus.HOLDING_REGISTER {
		return nil, errors.New("fake: only holding registers")
	}
	out := make([]uint16, quantity)
	for i := range out {
		out[i] = f.regs[addr+uint16(i)]
	}
	return out, nil
}

// ReadUint32 reads two registers, high word first.
func (f *FakeRegisters) ReadUint32(addr uint16, regType modbus.RegType) (uint32, error) {
	regs, err := f.ReadRegisters(addr, 2, regType)
	if err != nil {
		return 0, err
	}
	return uint32(regs[0])<<16 | uint32(regs[1]), nil
}

// ReadRawBytes reads quantity bytes, big endian within each register.
func (f *FakeRegisters) ReadRawBytes(addr uint16, quantity uint16, regType modbus.RegType) ([]byte, error) {
	regs, err := f.ReadRegisters(addr, quantity/2+quantity%2, regType)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(regs)*2)
	for _, r := range regs {
		out = append(out, byte(r>>8), byte(r))
	}
	return out[:quantity], nil
}

func (f *FakeRegisters) Set(addr uint16, values ...uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, v := range values {
		f.regs[addr+uint16(i)] = v
	}
}

func (f *FakeRegisters) SetUint32(addr uint16, v uint32) {
	f.Set(addr, uint16(v>>16), uint16(v))
}

// SetString writes s into size bytes, zero padded.
func (f *FakeRegisters) SetString(addr uint16, s string, size int) {
	b := make([]byte, size)
	copy(b, s)
	for i := 0; i < size; i += 2 {
		f.Set(addr+uint16(i/2), uint16(b[i])<<8|uint16(b[i+1]))
	}
}

const (
	fakeCommonLen   = 66
	fakeInverterLen = 50
	fakeMeterLen    = 105
)

func (f *FakeRegisters) header() uint16 {
	f.SetString(SUNSPEC_BASE_ADDR, "SunS", 4)
	return SUNSPEC_BASE_ADDR + 2
}

func (f *FakeRegisters) common(addr uint16, info DeviceInfo) uint16 {
	f.Set(addr, SUNSPEC_WK_COMMON, fakeCommonLen)
	f.SetString(addr+2, info.Manufacturer, 32)
	f.SetString(addr+18, info.Model, 32)
	f.SetString(addr+42, info.Version, 16)
	f.SetString(addr+50, info.Serial, 32)
	return addr + fakeCommonLen + 2
}

func (f *FakeRegisters) end(addr uint16) {
	f.Set(addr, SUNSPEC_END_BLOCK, 0)
}

// FakeInverter lays out a model 103 inverter with the given MPPT module
// powers in watts, using scale factors of zero.
type FakeInverter struct {
	Info        DeviceInfo
	ACPowerWatt int16
	EnergyWh    uint32
	MPPTWatts   []uint16
	State       uint16
	TempCelsius int16
}

func NewFakeInverter(spec FakeInverter) *FakeRegisters {
	f := NewFakeRegisters()
	f.SetInverter(spec)
	return f
}

// SetInverter rewrites the whole register map; used between cycles to
// change the readings.
func (f *FakeRegisters) SetInverter(spec FakeInverter) {
	addr := f.common(f.header(), spec.Info)

	inv := addr
	f.Set(inv, 103, fakeInverterLen)
	f.Set(inv+14, uint16(spec.ACPowerWatt), 0)
	f.SetUint32(inv+24, spec.EnergyWh)
	f.Set(inv+26, 0)
	f.Set(inv+33, uint16(spec.TempCelsius), 0, 0, 0, 0, spec.State)
	addr = inv + fakeInverterLen + 2

	mppt := addr
	mpptLen := uint16(8 + 20*len(spec.MPPTWatts))
	f.Set(mppt, SUNSPEC_WK_MPPT, mpptLen)
	f.Set(mppt+4, 0)
	f.Set(mppt+8, uint16(len(spec.MPPTWatts)))
	for i, w := range spec.MPPTWatts {
		f.Set(mppt+10+20*uint16(i)+11, w)
	}
	f.end(mppt + mpptLen + 2)
}

// FakeACMeter lays out a model 203 meter. Energy is given in Wh, voltage in
// decivolts and frequency in centihertz.
type FakeACMeter struct {
	Info          DeviceInfo
	PowerWatt     int16
	ExportedWh    uint32
	ImportedWh    uint32
	CentiHertz    uint16
	DeciVoltPhase uint16
}

func NewFakeACMeter(spec FakeACMeter) *FakeRegisters {
	f := NewFakeRegisters()
	f.SetACMeter(spec)
	return f
}

func (f *FakeRegisters) SetACMeter(spec FakeACMeter) {
	addr := f.common(f.header(), spec.Info)

	meter := addr
	f.Set(meter, 203, fakeMeterLen)
	f.Set(meter+8, spec.DeciVoltPhase)
	f.Set(meter+15, negSF(1))
	f.Set(meter+16, spec.CentiHertz, negSF(2))
	f.Set(meter+18, uint16(spec.PowerWatt))
	f.Set(meter+22, 0)
	f.SetUint32(meter+38, spec.ExportedWh)
	f.SetUint32(meter+46, spec.ImportedWh)
	f.Set(meter+54, 0)
	f.end(meter + fakeMeterLen + 2)
}

func negSF(n int16) uint16 {
	return uint16(-n)
}
