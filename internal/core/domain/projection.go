package domain

import (
	"strconv"
	"strings"
)

type ValueKind int

const (
	ValueUnknown ValueKind = iota
	ValueInt
	ValueFloat
	ValueText
)

// StateValue is the typed value a projection renders.
type StateValue struct {
	Kind  ValueKind
	Int   int64
	Float float64
	Text  string
}

func IntValue(v int64) StateValue {
	return StateValue{Kind: ValueInt, Int: v}
}

func FloatValue(v float64) StateValue {
	return StateValue{Kind: ValueFloat, Float: v}
}

func TextValue(v string) StateValue {
	return StateValue{Kind: ValueText, Text: v}
}

func (v StateValue) Known() bool {
	return v.Kind != ValueUnknown
}

// String renders the value the way it is published: integers and floats in
// their shortest exact form, unknown as "unknown".
func (v StateValue) String() string {
	switch v.Kind {
	case ValueInt:
		return strconv.FormatInt(v.Int, 10)
	case ValueFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case ValueText:
		return v.Text
	default:
		return STATE_UNKNOWN
	}
}

// Lower lower-cases text values and leaves numbers untouched.
func (v StateValue) Lower() StateValue {
	if v.Kind == ValueText {
		v.Text = strings.ToLower(v.Text)
	}
	return v
}

// ProjectionRule is a static extraction function plus display metadata.
type ProjectionRule struct {
	Key               string
	Name              string
	UnitOfMeasurement string
	DeviceClass       string
	StateClass        string
	EntityCategory    string
	Icon              string
	Value             func(*Snapshot) (StateValue, error)
}

// ProjectionGroup is the set of rules sharing one device-grouping key.
type ProjectionGroup struct {
	Service string
	Name    string
	Rules   []ProjectionRule
}

// DeviceMetadata is the static device description of a grouping key.
type DeviceMetadata struct {
	Name             string
	Manufacturer     string
	Model            string
	FirmwareVersion  string
	ConfigurationURL string
}

// DeviceHandle identifies one device under a shared account.
type DeviceHandle struct {
	Id    string
	Name  string
	Model string
}

// FromRecord builds a rule value function that reads one typed sub-record.
func FromRecord[T SubRecord](kind ResourceKind, fn func(T) StateValue) func(*Snapshot) (StateValue, error) {
	return FromRecordE(kind, func(rec T) (StateValue, error) {
		return fn(rec), nil
	})
}

// FromRecordE is FromRecord for extractions that can fail.
func FromRecordE[T SubRecord](kind ResourceKind, fn func(T) (StateValue, error)) func(*Snapshot) (StateValue, error) {
	return func(s *Snapshot) (StateValue, error) {
		rec, err := RecordAs[T](s, kind)
		if err != nil {
			return StateValue{}, err
		}
		return fn(rec)
	}
}
