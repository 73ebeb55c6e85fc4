package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Range is a half-open availability window [Start, End) within one day.
// End may be MinutesPerDay to mean midnight.
type Range struct {
	Start Minute `json:"start"`
	End   Minute `json:"end"`
}

// Template is a professional's recurring weekly availability.
type Template struct {
	OwnerID     string
	Timezone    string
	SlotMinutes int
	Ranges      WeeklyRanges
	UpdatedAt   time.Time
}

// WeeklyRanges encodes as a JSON object keyed by lower-case day name.
type WeeklyRanges map[time.Weekday][]Range

var weekdayByName = func() map[string]time.Weekday {
	m := map[string]time.Weekday{}
	for d := time.Sunday; d <= time.Saturday; d++ {
		m[strings.ToLower(d.String())] = d
	}
	return m
}()

func (w WeeklyRanges) MarshalJSON() ([]byte, error) {
	out := make(map[string][]Range, len(w))
	for day, rs := range w {
		out[strings.ToLower(day.String())] = rs
	}
	return json.Marshal(out)
}

func (w *WeeklyRanges) UnmarshalJSON(b []byte) error {
	var in map[string][]Range
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	out := make(WeeklyRanges, len(in))
	for name, rs := range in {
		day, ok := weekdayByName[strings.ToLower(name)]
		if !ok {
			return fmt.Errorf("unknown weekday %q", name)
		}
		out[day] = rs
	}
	*w = out
	return nil
}

func (t Template) Location() (*time.Location, error) {
	if t.Timezone == "" {
		return nil, errors.New("template has no time zone")
	}
	return time.LoadLocation(t.Timezone)
}

// Validate checks the template is usable by the resolver.
func (t Template) Validate() error {
	if t.OwnerID == "" {
		return errors.New("owner_id is required")
	}
	if _, err := t.Location(); err != nil {
		return fmt.Errorf("timezone %q: %w", t.Timezone, err)
	}
	if t.SlotMinutes < 5 || t.SlotMinutes > 480 {
		return fmt.Errorf("slot_minutes must be between 5 and 480 (got %d)", t.SlotMinutes)
	}
	for day, ranges := range t.Ranges {
		if day < time.Sunday || day > time.Saturday {
			return fmt.Errorf("invalid weekday %d", day)
		}
		sorted := append([]Range(nil), ranges...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
		for i, r := range sorted {
			if !r.Start.Valid() || r.End <= r.Start || r.End > MinutesPerDay {
				return fmt.Errorf("%s: invalid range %s-%s", day, r.Start, r.End)
			}
			if i > 0 && r.Start < sorted[i-1].End {
				return fmt.Errorf("%s: ranges overlap", day)
			}
		}
	}
	return nil
}
