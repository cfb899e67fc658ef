package telemetry

import "time"

// Columnar is the records of one class laid out column by column, keyed by
// timestamp position. Series[c][i] belongs to Timestamps[i].
type Columnar struct {
	Columns    []string         `json:"columns"`
	Timestamps []time.Time      `json:"timestamps"`
	Series     map[string][]any `json:"series"`
}

// Table converts records into columnar series, one per schema column.
func Table(records []Record, s Schema) Columnar {
	cols := s.Columns()
	t := Columnar{
		Columns:    cols,
		Timestamps: make([]time.Time, 0, len(records)),
		Series:     make(map[string][]any, len(cols)),
	}
	for _, c := range cols {
		t.Series[c] = make([]any, 0, len(records))
	}
	for _, r := range records {
		t.Timestamps = append(t.Timestamps, r.Timestamp)
		for _, c := range cols {
			t.Series[c] = append(t.Series[c], r.Value(c))
		}
	}
	return t
}

// Len returns the number of rows.
func (t Columnar) Len() int {
	return len(t.Timestamps)
}
