package telemetry

import (
	"fmt"
)

// DeviceClass identifies a device schema; it doubles as the URL slug.
type DeviceClass string

const (
	Germinator DeviceClass = "germinator"
	Coop       DeviceClass = "coop"
)

// Kind is the value type of a field.
type Kind int

const (
	Number Kind = iota
	Flag
)

// FieldSpec maps a column to a path inside a raw reading. Path segments are
// object keys, or decimal indexes when the value at that point is a list.
// Default applies to Number fields; Flag fields default to false.
type FieldSpec struct {
	Column  string
	Path    []string
	Kind    Kind
	Default float64
}

// Constant is a fixed column value attached to every record of a class,
// such as the bounds of a target band.
type Constant struct {
	Column string
	Value  float64
}

// Schema describes how to normalize the readings of one device class.
type Schema struct {
	Class     DeviceClass
	Title     string
	Fields    []FieldSpec
	Constants []Constant
	// ErrorPaths lists where a reading may carry its error list, tried in
	// order. Empty when the class reports no errors.
	ErrorPaths [][]string
}

// Columns returns the record columns in display order, timestamp excluded.
func (s Schema) Columns() []string {
	cols := make([]string, 0, len(s.Fields)+len(s.Constants))
	for _, f := range s.Fields {
		cols = append(cols, f.Column)
	}
	for _, c := range s.Constants {
		cols = append(cols, c.Column)
	}
	return cols
}

// HasErrors reports whether readings of this class may carry error events.
func (s Schema) HasErrors() bool {
	return len(s.ErrorPaths) > 0
}

func path(segments ...string) []string { return segments }

var germinatorSchema = Schema{
	Class: Germinator,
	Title: "The Germinator",
	Fields: []FieldSpec{
		{Column: "lights_on", Path: path("data", "lights"), Kind: Flag},
		{Column: "soil_temp", Path: path("data", "soil", "soil_temp")},
		{Column: "soil_moisture", Path: path("data", "soil", "moisture")},
		{Column: "humidity_actual", Path: path("data", "air", "humidity", "actual")},
		{Column: "humidity_target_low", Path: path("data", "air", "humidity", "target", "0")},
		{Column: "humidity_target_high", Path: path("data", "air", "humidity", "target", "1")},
		{Column: "temp_actual", Path: path("data", "air", "temperature", "actual")},
		{Column: "temp_target_low", Path: path("data", "air", "temperature", "target", "0")},
		{Column: "temp_target_high", Path: path("data", "air", "temperature", "target", "1")},
	},
	Constants: []Constant{
		{Column: "soil_temp_target_low", Value: 65},
		{Column: "soil_temp_target_high", Value: 86},
		{Column: "soil_moisture_target_low", Value: 800},
		{Column: "soil_moisture_target_high", Value: 1200},
	},
	ErrorPaths: [][]string{
		path("data", "errors"),
		path("errors"),
	},
}

var coopSchema = Schema{
	Class: Coop,
	Title: "NuLay Inn",
	Fields: []FieldSpec{
		{Column: "battery", Path: path("data", "battery")},
		{Column: "outside_temp", Path: path("data", "outside", "air_temp")},
		{Column: "outside_humidity", Path: path("data", "outside", "humidity")},
		{Column: "coop_temp", Path: path("data", "coop", "coop_temp")},
		{Column: "coop_humidity", Path: path("data", "coop", "coop_humidity")},
		{Column: "coop_gas", Path: path("data", "coop", "coop_gas")},
		{Column: "coop_pressure", Path: path("data", "coop", "coop_pressure")},
	},
	Constants: []Constant{
		{Column: "gas_low", Value: 0},
		{Column: "gas_high", Value: 10000},
	},
}

// Classes lists every known device class in navigation order.
func Classes() []DeviceClass {
	return []DeviceClass{Germinator, Coop}
}

// LookupSchema returns the schema of class.
func LookupSchema(class DeviceClass) (Schema, error) {
	switch class {
	case Germinator:
		return germinatorSchema, nil
	case Coop:
		return coopSchema, nil
	default:
		return Schema{}, fmt.Errorf("unknown device class %q", class)
	}
}
