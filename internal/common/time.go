package common

import "time"

// TimeLayout is the layout used for every timestamp shown to a user or
// recorded in an activity log.
const TimeLayout = "2006-01-02 15:04:05"

// FormatTime renders t in UTC using TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
