// Package aggregate turns ticker snapshots into OHLCV bars at arbitrary
// intervals and keeps incremental and rolling volumes consistent.
package aggregate

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Day is the width of the exchange's rolling volume window.
const Day = 24 * time.Hour

// ParseInterval parses interval names such as "5s", "1min", "30min", "1h"
// and "1d". Plain Go durations are accepted too.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	units := []struct {
		suffix string
		unit   time.Duration
	}{
		{"min", time.Minute},
		{"d", Day},
		{"w", 7 * Day},
	}
	for _, u := range units {
		if !strings.HasSuffix(s, u.suffix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(s, u.suffix))
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("aggregate: invalid interval %q", s)
		}
		return time.Duration(n) * u.unit, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("aggregate: invalid interval %q", s)
	}
	return d, nil
}

// FormatInterval renders d the way ParseInterval reads it. It is used to
// build log file names.
func FormatInterval(d time.Duration) string {
	switch {
	case d >= Day && d%Day == 0:
		return strconv.Itoa(int(d/Day)) + "d"
	case d >= time.Hour && d%time.Hour == 0:
		return strconv.Itoa(int(d/time.Hour)) + "h"
	case d >= time.Minute && d%time.Minute == 0:
		return strconv.Itoa(int(d/time.Minute)) + "min"
	case d%time.Second == 0:
		return strconv.Itoa(int(d/time.Second)) + "s"
	}
	return d.String()
}
