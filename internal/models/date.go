package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
	_ "time/tzdata" // minimal containers ship without zoneinfo
)

// DateLayout is the ISO-8601 calendar date layout used on the wire and in the cache.
const DateLayout = "2006-01-02"

// Date is a calendar date without a time-of-day component.
// It marshals to and from "YYYY-MM-DD" so cached values come back as dates, not strings.
type Date struct {
	time.Time
}

// ExchangeLocation is the US equity exchange timezone. "Today" is always its calendar date.
var ExchangeLocation = loadExchangeLocation()

func loadExchangeLocation() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// Final fallback to DST-agnostic FixedZone
		return time.FixedZone("ET", -5*60*60)
	}
	return loc
}

// ExchangeDate returns the calendar date of t on the exchange.
func ExchangeDate(t time.Time) Date {
	return NewDate(t.In(ExchangeLocation))
}

// NewDate truncates t to its calendar date in t's location.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an ISO-8601 calendar date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return Date{t}, nil
}

// String returns the ISO-8601 form, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// DaysFrom returns whole calendar days from the exchange date of now until d
// (negative when d is in the past).
func (d Date) DaysFrom(now time.Time) int {
	from := ExchangeDate(now)
	return int(d.Sub(from.Time).Hours() / 24)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(DateLayout))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) || bytes.Equal(b, []byte(`""`)) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	// Accept full timestamps written by older cache entries.
	if len(s) > len(DateLayout) {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("parsing date %q: %w", s, err)
		}
		*d = NewDate(t)
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
