package summary

import (
	"fmt"
	"time"
)

// mountainTime is where the support team lives; timestamps in summaries are
// rendered there when the tz database is available.
var mountainTime = func() *time.Location {
	loc, err := time.LoadLocation("America/Denver")
	if err != nil {
		return nil
	}
	return loc
}()

// FormatDuration renders a call duration in seconds as "45s", "5m 3s", or
// "1h 12m".
func FormatDuration(seconds int) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	default:
		return fmt.Sprintf("%dh %dm", seconds/3600, (seconds%3600)/60)
	}
}

// FormatTimestamp renders an ISO timestamp as a human-readable Mountain Time
// string, falling back to UTC rendering and finally to the raw input when
// parsing fails.
func FormatTimestamp(iso string) string {
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return iso
	}
	if mountainTime != nil {
		return t.In(mountainTime).Format("January 02, 2006 at 03:04 PM MST")
	}
	return t.UTC().Format("January 02, 2006 at 03:04 PM UTC")
}
