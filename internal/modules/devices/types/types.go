package types

import (
	"time"

	"github.com/Tom-Camp/fe/internal/telemetry"
)

// Dashboard is everything a device page shows.
type Dashboard struct {
	Class    telemetry.DeviceClass
	Title    string
	DeviceID string
	Phase    string
	// DataPoints counts readings in the document, including skipped ones.
	DataPoints int
	Records    []telemetry.Record
	Errors     []telemetry.ErrorEvent
	Skipped    []telemetry.SkippedReading
	Table      telemetry.Columnar
	FetchedAt  time.Time
	Zone       string
}

// Empty reports whether no reading produced a record.
func (d Dashboard) Empty() bool {
	return len(d.Records) == 0
}

// Latest returns the newest record.
func (d Dashboard) Latest() (telemetry.Record, bool) {
	if len(d.Records) == 0 {
		return telemetry.Record{}, false
	}
	return d.Records[len(d.Records)-1], true
}

// Summary is one home-page card. Err is set when the device could not be
// loaded; the other fields are then zero.
type Summary struct {
	Class      telemetry.DeviceClass
	Title      string
	Phase      string
	DataPoints int
	Latest     *telemetry.Record
	ErrorCount int
	FetchedAt  time.Time
	Err        error
}

// DeviceInfo is one entry of GET /api/v1/devices.
type DeviceInfo struct {
	Class     telemetry.DeviceClass `json:"class"`
	Title     string                `json:"title"`
	Columns   []string              `json:"columns"`
	HasErrors bool                  `json:"has_errors"`
}

// RecordsResponse is the body of GET /api/v1/devices/{class}/records.
type RecordsResponse struct {
	Class      telemetry.DeviceClass `json:"class"`
	DeviceID   string                `json:"device_id"`
	Phase      string                `json:"phase"`
	DataPoints int                   `json:"data_points"`
	Skipped    int                   `json:"skipped"`
	FetchedAt  time.Time             `json:"fetched_at"`
	Timezone   string                `json:"timezone"`
	telemetry.Columnar
}

// ErrorsResponse is the body of GET /api/v1/devices/{class}/errors.
type ErrorsResponse struct {
	Class  telemetry.DeviceClass  `json:"class"`
	Errors []telemetry.ErrorEvent `json:"errors"`
}
