// Package util provides common formatting helpers used across the castles service.
package util

import (
	"strconv"
	"strings"
	"time"
)

type unit struct {
	size             time.Duration
	singular, plural string
}

var (
	longUnits = []unit{
		{24 * time.Hour, " Day", " Days"},
		{time.Hour, " Hour", " Hours"},
		{time.Minute, " Minute", " Minutes"},
		{time.Second, " Second", " Seconds"},
	}
	shortUnits = []unit{
		{24 * time.Hour, "d", "d"},
		{time.Hour, "h", "h"},
		{time.Minute, "m", "m"},
		{time.Second, "s", "s"},
	}
)

// formatDuration truncates d to whole seconds and joins every non-zero unit.
func formatDuration(d time.Duration, units []unit, delimiter string) string {
	d = d.Truncate(time.Second)
	var b strings.Builder
	for _, u := range units {
		if d <= 0 {
			break
		}
		n := d / u.size
		if n == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(delimiter)
		}
		b.WriteString(strconv.FormatInt(int64(n), 10))
		if n == 1 {
			b.WriteString(u.singular)
		} else {
			b.WriteString(u.plural)
		}
		d -= n * u.size
	}
	return b.String()
}

// FormatShorthand renders d as "1h5m30s". Durations under a second render empty.
func FormatShorthand(d time.Duration) string {
	return formatDuration(d, shortUnits, "")
}

// FormatLonghand renders d as "1 Hour 5 Minutes 30 Seconds".
func FormatLonghand(d time.Duration) string {
	return formatDuration(d, longUnits, " ")
}

// FormatDate renders t as day/month/year without padding.
func FormatDate(t time.Time) string {
	return strconv.Itoa(t.Day()) + "/" + strconv.Itoa(int(t.Month())) + "/" + strconv.Itoa(t.Year())
}
