package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"time"
)

// ErrMalformedReading marks a reading that is not a JSON object.
var ErrMalformedReading = errors.New("reading is not an object")

// Record is one normalized reading.
type Record struct {
	Timestamp time.Time
	Numbers   map[string]float64
	Flags     map[string]bool
	// Defaulted lists the columns whose source path was missing.
	Defaulted []string
}

// Value returns the value of column as a JSON-friendly scalar, or nil when
// the column is unknown.
func (r Record) Value(column string) any {
	if v, ok := r.Numbers[column]; ok {
		return v
	}
	if v, ok := r.Flags[column]; ok {
		return v
	}
	return nil
}

// ErrorEvent is a sensor error reported with a reading.
type ErrorEvent struct {
	Time    time.Time `json:"time"`
	Sensor  string    `json:"sensor"`
	Message string    `json:"message"`
}

// SkippedReading records why a reading produced no record.
type SkippedReading struct {
	Index  int
	Reason error
}

// Result is the output of one normalization run. Records and Errors keep
// input order.
type Result struct {
	Records []Record
	Errors  []ErrorEvent
	Skipped []SkippedReading
}

// Normalizer applies a Schema to device payloads. It holds no mutable state
// and is safe for concurrent use.
type Normalizer struct {
	zone   ZoneConverter
	logger *slog.Logger
}

// NewNormalizer returns a Normalizer converting timestamps with zone.
// If logger is nil, slog.Default() is used.
func NewNormalizer(zone ZoneConverter, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{zone: zone, logger: logger}
}

// Zone returns the display timezone converter.
func (n *Normalizer) Zone() ZoneConverter {
	return n.zone
}

// NormalizeJSON decodes body and normalizes it. The only error is
// ErrMalformedPayload; bad readings are skipped and reported in the Result.
func (n *Normalizer) NormalizeJSON(body []byte, s Schema) (Payload, Result, error) {
	p, err := DecodePayload(body)
	if err != nil {
		return Payload{}, Result{}, err
	}
	return p, n.Normalize(p, s), nil
}

// Normalize produces one record per reading with a parseable created_date.
func (n *Normalizer) Normalize(p Payload, s Schema) Result {
	res := Result{
		Records: make([]Record, 0, len(p.Readings)),
		Errors:  []ErrorEvent{},
	}
	for i, raw := range p.Readings {
		rec, events, err := n.normalizeReading(raw, s)
		if err != nil {
			n.logger.Warn("skipping reading",
				"class", s.Class,
				"index", i,
				"error", err,
			)
			res.Skipped = append(res.Skipped, SkippedReading{Index: i, Reason: err})
			continue
		}
		if len(rec.Defaulted) > 0 {
			n.logger.Debug("reading fields defaulted",
				"class", s.Class,
				"index", i,
				"fields", rec.Defaulted,
			)
		}
		res.Records = append(res.Records, rec)
		res.Errors = append(res.Errors, events...)
	}
	return res
}

func (n *Normalizer) normalizeReading(raw json.RawMessage, s Schema) (Record, []ErrorEvent, error) {
	// Numbers stay json.Number so one out-of-range value defaults its own
	// column instead of failing the reading.
	var reading map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&reading); err != nil || reading == nil {
		return Record{}, nil, ErrMalformedReading
	}

	created, _ := reading["created_date"].(string)
	instant, err := ParseTimestamp(created)
	if err != nil {
		return Record{}, nil, err
	}

	rec := Record{
		Timestamp: n.zone.Convert(instant),
		Numbers:   make(map[string]float64, len(s.Fields)+len(s.Constants)),
		Flags:     make(map[string]bool),
	}
	for _, f := range s.Fields {
		switch f.Kind {
		case Flag:
			v, ok := extractFlag(reading, f.Path)
			if !ok {
				rec.Defaulted = append(rec.Defaulted, f.Column)
			}
			rec.Flags[f.Column] = v
		default:
			v, ok := extractNumber(reading, f.Path)
			if !ok {
				v = f.Default
				rec.Defaulted = append(rec.Defaulted, f.Column)
			}
			rec.Numbers[f.Column] = v
		}
	}
	for _, c := range s.Constants {
		rec.Numbers[c.Column] = c.Value
	}

	return rec, readingErrors(reading, s, rec.Timestamp), nil
}

func readingErrors(reading map[string]any, s Schema, at time.Time) []ErrorEvent {
	for _, p := range s.ErrorPaths {
		raw, ok := lookupPath(reading, p)
		if !ok {
			continue
		}
		list, ok := raw.([]any)
		if !ok {
			continue
		}
		events := make([]ErrorEvent, 0, len(list))
		for _, item := range list {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			sensor, _ := entry["sensor"].(string)
			message, _ := entry["message"].(string)
			events = append(events, ErrorEvent{Time: at, Sensor: sensor, Message: message})
		}
		return events
	}
	return nil
}

// SortByTimestamp returns a copy of records in chronological order; records
// with equal timestamps keep their input order.
func SortByTimestamp(records []Record) []Record {
	out := slices.Clone(records)
	slices.SortStableFunc(out, func(a, b Record) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out
}

// SortEventsByTime returns a copy of events in chronological order.
func SortEventsByTime(events []ErrorEvent) []ErrorEvent {
	out := slices.Clone(events)
	slices.SortStableFunc(out, func(a, b ErrorEvent) int {
		return a.Time.Compare(b.Time)
	})
	return out
}
