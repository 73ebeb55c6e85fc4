package model

import (
	"fmt"
	"time"
)

// Minute is a time of day at minute resolution, 0 (00:00) to 1439 (23:59).
type Minute int

const MinutesPerDay Minute = 24 * 60

// ParseMinute parses HH:MM. "24:00" parses to MinutesPerDay so a range can
// end at midnight.
func ParseMinute(s string) (Minute, error) {
	if s == "24:00" {
		return MinutesPerDay, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("time %q must be HH:MM", s)
	}
	return Minute(t.Hour()*60 + t.Minute()), nil
}

// MinuteOf is the minute of day of t in t's location.
func MinuteOf(t time.Time) Minute {
	return Minute(t.Hour()*60 + t.Minute())
}

func (m Minute) Valid() bool { return m >= 0 && m < MinutesPerDay }

func (m Minute) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

func (m Minute) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Minute) UnmarshalText(b []byte) error {
	parsed, err := ParseMinute(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
