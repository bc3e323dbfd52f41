package cache

import "time"

// Key formats are shared across instances; all timestamps are UTC.
const (
	hourPrefix   = "hourlySchedule:"
	minutePrefix = "postsByMinute:"

	hourLayout   = "2006-01-02-15"
	minuteLayout = "2006-01-02-15-04"

	// Entries outlive the hour they cover so a late drain still finds them.
	entryTTL = 7200 * time.Second
)

// HourKey returns the hour-bucket key for the hour containing t.
func HourKey(t time.Time) string {
	return hourPrefix + t.UTC().Format(hourLayout)
}

// MinuteKey returns the minute-set key for the minute containing t.
func MinuteKey(t time.Time) string {
	return minutePrefix + t.UTC().Format(minuteLayout)
}
