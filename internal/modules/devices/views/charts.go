package views

import (
	"github.com/Tom-Camp/fe/internal/telemetry"
)

// SeriesSpec is one line of a chart, drawn from a table column.
type SeriesSpec struct {
	Column string
	Label  string
	Color  string
	// Band lines are dashed; a band's low line fills up to the line before it.
	Band     bool
	FillPrev bool
}

// ChartSpec describes one chart of a device page.
type ChartSpec struct {
	ID      string
	Heading string
	Title   string
	YLabel  string
	Series  []SeriesSpec
}

func actual(column, label, color string) SeriesSpec {
	return SeriesSpec{Column: column, Label: label, Color: color}
}

func band(high, low string) []SeriesSpec {
	return []SeriesSpec{
		{Column: high, Label: "Target High", Color: "red", Band: true},
		{Column: low, Label: "Target Low", Color: "green", Band: true, FillPrev: true},
	}
}

func withBand(main SeriesSpec, high, low string) []SeriesSpec {
	return append([]SeriesSpec{main}, band(high, low)...)
}

var chartSpecs = map[telemetry.DeviceClass][]ChartSpec{
	telemetry.Germinator: {
		{
			ID: "humidity", Heading: "Humidity Monitoring",
			Title: "Humidity Over Time with Target Range", YLabel: "Humidity (%)",
			Series: withBand(actual("humidity_actual", "Actual Humidity", "blue"), "humidity_target_high", "humidity_target_low"),
		},
		{
			ID: "temperature", Heading: "Temperature Monitoring",
			Title: "Temperature Over Time with Target Range", YLabel: "Temperature (°F)",
			Series: withBand(actual("temp_actual", "Actual Temperature", "orange"), "temp_target_high", "temp_target_low"),
		},
		{
			ID: "soil-temp", Heading: "Soil Conditions",
			Title: "Soil Temperature Over Time with Target Range", YLabel: "Temperature (°F)",
			Series: withBand(actual("soil_temp", "Soil Temperature", "brown"), "soil_temp_target_high", "soil_temp_target_low"),
		},
		{
			ID:     "soil-moisture",
			Title:  "Soil Moisture Over Time with Target Range",
			YLabel: "Moisture",
			Series: withBand(actual("soil_moisture", "Soil Moisture", "blue"), "soil_moisture_target_high", "soil_moisture_target_low"),
		},
	},
	telemetry.Coop: {
		{
			ID: "temperature", Heading: "Temperature",
			Title: "Temperature Over Time Outside and Inside the COOP", YLabel: "Temperature (°F)",
			Series: []SeriesSpec{
				actual("outside_temp", "Outside Temperature", "blue"),
				actual("coop_temp", "Inside Temperature", "orange"),
			},
		},
		{
			ID: "humidity", Heading: "Humidity",
			Title: "Humidity Over Time Outside and Inside the COOP", YLabel: "Humidity (%)",
			Series: []SeriesSpec{
				actual("outside_humidity", "Outside Humidity", "blue"),
				actual("coop_humidity", "Inside Humidity", "green"),
			},
		},
		{
			ID: "voc", Heading: "Volatile Organic Compound (VOC) Monitoring",
			Title: "Volatile Organic Compound (VOC) Gas Over Time", YLabel: "VOC (Ω)",
			Series: []SeriesSpec{
				actual("coop_gas", "VOC level", "red"),
				{Column: "gas_high", Label: "Polluted air", Color: "grey", Band: true},
				{Column: "gas_low", Label: "Very Polluted air", Color: "grey", Band: true, FillPrev: true},
			},
		},
		{
			ID: "battery", Heading: "Battery Level",
			Title: "Sensor Battery Level Over Time", YLabel: "Battery Level (V)",
			Series: []SeriesSpec{actual("battery", "Battery level", "green")},
		},
	},
}

// Charts returns the chart layout of class.
func Charts(class telemetry.DeviceClass) []ChartSpec {
	return chartSpecs[class]
}

// summaryField is a value shown on a home-page card.
type summaryField struct {
	Column string
	Label  string
	Unit   string
}

var summaryFields = map[telemetry.DeviceClass][]summaryField{
	telemetry.Germinator: {
		{"temp_actual", "Air temperature", "°F"},
		{"humidity_actual", "Humidity", "%"},
		{"soil_temp", "Soil temperature", "°F"},
		{"soil_moisture", "Soil moisture", ""},
		{"lights_on", "Lights", ""},
	},
	telemetry.Coop: {
		{"coop_temp", "Inside temperature", "°F"},
		{"outside_temp", "Outside temperature", "°F"},
		{"coop_humidity", "Inside humidity", "%"},
		{"coop_gas", "VOC", "Ω"},
		{"battery", "Battery", "V"},
	},
}
