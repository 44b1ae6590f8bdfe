package model

import (
	"time"

	"github.com/google/uuid"
)

// Base contains common fields for all models
type Base struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"timestamp" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Logical field names understood by the record store.
const (
	FieldOPNo      = "opNo"
	FieldRegNo     = "regNo"
	FieldDate      = "date"
	FieldTimestamp = "timestamp"
)

type SortDirection string

const (
	Ascending  SortDirection = "asc"
	Descending SortDirection = "desc"
)

// Query is an equality filter with optional ordering and limit. Empty
// Field means no filter; zero Limit means no limit.
type Query struct {
	Field     string
	Value     string
	OrderBy   string
	Direction SortDirection
	Limit     int
}

func Where(field, value string) Query {
	return Query{Field: field, Value: value}
}

func (q Query) Order(field string, dir SortDirection) Query {
	q.OrderBy = field
	q.Direction = dir
	return q
}

func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

// Vitals are shared by patient records and visit snapshots.
type Vitals struct {
	Temperature string `json:"temp" db:"temperature"`
	Pulse       string `json:"pr" db:"pulse"`
	BP          string `json:"bp" db:"bp"`
	SpO2        string `json:"spo2" db:"spo2"`
}

func (v Vitals) IsZero() bool {
	return v == Vitals{}
}

// Or fills each empty reading from fallback.
func (v Vitals) Or(fallback Vitals) Vitals {
	if v.Temperature == "" {
		v.Temperature = fallback.Temperature
	}
	if v.Pulse == "" {
		v.Pulse = fallback.Pulse
	}
	if v.BP == "" {
		v.BP = fallback.BP
	}
	if v.SpO2 == "" {
		v.SpO2 = fallback.SpO2
	}
	return v
}

// Stamp returns the entry date and time strings for t.
func Stamp(t time.Time) (string, string) {
	return t.Format(DateLayout), t.Format(TimeLayout)
}
