package cron

import "time"

// ResolveTimezone implements the resolution order: entry
// override -> global configured zone -> host zone -> UTC.
func ResolveTimezone(entryTZ, globalTZ string) *time.Location {
	for _, name := range []string{entryTZ, globalTZ} {
		if name == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.Local
}

// InQuietWindow reports whether hour (0-23, local to the resolved zone)
// falls inside [start, end), supporting wrap-around when start > end.
// start == end means no quiet window.
func InQuietWindow(hour, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	// wrap-around: start > end, e.g. [22, 7)
	return hour >= start || hour < end
}
