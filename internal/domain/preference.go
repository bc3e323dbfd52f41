package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// ClockTime is an owner-local publishing time with minute granularity.
type ClockTime struct {
	Hour   int
	Minute int
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// SchedulePreference describes when an owner wants content generated,
// keyed by weekday. Stored as a JSONB blob keyed by lowercase day name,
// e.g. {"monday": ["09:00", "18:30"]}.
type SchedulePreference struct {
	OwnerID int64
	Enabled bool
	Times   map[time.Weekday][]ClockTime
}

// TimesFor returns the owner's publishing times for a weekday, sorted.
func (p *SchedulePreference) TimesFor(day time.Weekday) []ClockTime {
	times := p.Times[day]
	sort.Slice(times, func(i, j int) bool {
		if times[i].Hour != times[j].Hour {
			return times[i].Hour < times[j].Hour
		}
		return times[i].Minute < times[j].Minute
	})
	return times
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseScheduleTimes validates a raw preference blob at the storage boundary.
// Unknown day names or malformed "HH:mm" entries reject the whole blob; the
// caller isolates the failure to that owner.
func ParseScheduleTimes(raw []byte) (map[time.Weekday][]ClockTime, error) {
	var byDay map[string][]string
	if err := json.Unmarshal(raw, &byDay); err != nil {
		return nil, fmt.Errorf("decode schedule times: %w", err)
	}
	out := make(map[time.Weekday][]ClockTime, len(byDay))
	for name, entries := range byDay {
		day, ok := weekdayNames[name]
		if !ok {
			return nil, fmt.Errorf("unknown day %q", name)
		}
		for _, e := range entries {
			ct, err := parseClockTime(e)
			if err != nil {
				return nil, fmt.Errorf("day %s: %w", name, err)
			}
			out[day] = append(out[day], ct)
		}
	}
	return out, nil
}

func parseClockTime(s string) (ClockTime, error) {
	var ct ClockTime
	if len(s) != 5 || s[2] != ':' {
		return ct, fmt.Errorf("malformed time %q", s)
	}
	if _, err := fmt.Sscanf(s, "%02d:%02d", &ct.Hour, &ct.Minute); err != nil {
		return ct, fmt.Errorf("malformed time %q", s)
	}
	if ct.Hour < 0 || ct.Hour > 23 || ct.Minute < 0 || ct.Minute > 59 {
		return ct, fmt.Errorf("time %q out of range", s)
	}
	return ct, nil
}
