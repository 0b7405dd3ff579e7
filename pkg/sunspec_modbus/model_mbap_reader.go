package sunspec_modbus

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// RegisterClient is the subset of *modbus.ModbusClient the readers use.
type RegisterClient interface {
	Open() error
	Close() error
	ReadRegister(addr uint16, regType modbus.RegType) (uint16, error)
	ReadRegisters(addr uint16, quantity uint16, regType modbus.RegType) ([]uint16, error)
	ReadUint32(addr uint16, regType modbus.RegType) (uint32, error)
	ReadRawBytes(addr uint16, quantity uint16, regType modbus.RegType) ([]byte, error)
}

type DialConfig struct {
	Host    string
	Port    uint
	UnitId  uint8
	Timeout time.Duration
}

// Dial builds a Modbus TCP client addressed to one unit. The connection is
// opened by the reader.
func Dial(cfg DialConfig) (RegisterClient, error) {
	port := cfg.Port
	if port == 0 {
		port = 502
	}
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", cfg.Host, port),
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	if cfg.UnitId > 0 {
		if err := client.SetUnitId(cfg.UnitId); err != nil {
			return nil, err
		}
	}
	return client, nil
}

type ModbusInstrument struct {
	RecordTime func(fnName string, readTime time.Duration)
}

type ReaderOptions struct {
	Logger      *zap.Logger
	Instruments []ModbusInstrument
}

type ModbusClient struct {
	client     RegisterClient
	instrument []ModbusInstrument
}

func newModbusClient(client RegisterClient, target string, opts ReaderOptions) ModbusClient {
	inst := slices.Clone(opts.Instruments)
	if opts.Logger != nil {
		inst = append(inst, debugLoggerInstrumentation(opts.Logger.With(zap.String("target", target))))
	}
	return ModbusClient{
		client:     client,
		instrument: inst,
	}
}

func debugLoggerInstrumentation(logger *zap.Logger) ModbusInstrument {
	return ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			logger.Debug("modbus read", zap.String("fn", fnName), zap.Int64("millis", readTime.Milliseconds()))
		},
	}
}

func (reader ModbusClient) readString(address uint16, size uint16) (string, error) {
	bytes, err := reader.readRawBytes(address, size, modbus.HOLDING_REGISTER)
	if err != nil {
		return "", err
	}
	f := slices.Index(bytes, 0x00)
	if f >= 0 {
		return string(bytes[:f]), nil
	}
	return string(bytes), nil
}

// scale factors are signed powers of ten
func applySF(number uint16, sf uint16) float64 {
	return float64(number) * math.Pow(10, float64(int16(sf)))
}

func applySFint16(number int16, sf uint16) float64 {
	return float64(number) * math.Pow(10, float64(int16(sf)))
}

func applySFuint32(number uint32, sf uint16) float64 {
	return float64(number) * math.Pow(10, float64(int16(sf)))
}

func (reader ModbusClient) readRegister(addr uint16, regType modbus.RegType) (uint16, error) {
	defer RecordTimer("ReadRegister", reader.instrument)()
	return reader.client.ReadRegister(addr, regType)
}

func (reader ModbusClient) readRegisters(addr uint16, quantity uint16, regType modbus.RegType) ([]uint16, error) {
	defer RecordTimer("ReadRegisters", reader.instrument)()
	return reader.client.ReadRegisters(addr, quantity, regType)
}

func (reader ModbusClient) readUint32(addr uint16, regType modbus.RegType) (uint32, error) {
	defer RecordTimer("ReadUint32", reader.instrument)()
	return reader.client.ReadUint32(addr, regType)
}

func (reader ModbusClient) readRawBytes(addr uint16, quantity uint16, regType modbus.RegType) ([]byte, error) {
	defer RecordTimer("ReadRawBytes", reader.instrument)()
	return reader.client.ReadRawBytes(addr, quantity, regType)
}

func RecordTimer(name string, instrument []ModbusInstrument) func() {
	if len(instrument) == 0 {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(name, duration)
		}
	}
}
