package calendar

import (
	"fmt"
	"strings"
	"time"
)

// weekdayShort holds the abbreviations shown on the published schedule.
var weekdayShort = [...]string{
	time.Sunday:    "Dom",
	time.Monday:    "Seg",
	time.Tuesday:   "Ter",
	time.Wednesday: "Qua",
	time.Thursday:  "Qui",
	time.Friday:    "Sex",
	time.Saturday:  "Sáb",
}

// ShortWeekday returns the abbreviation used on the schedule.
func ShortWeekday(wd time.Weekday) string {
	if wd < time.Sunday || wd > time.Saturday {
		return ""
	}
	return weekdayShort[wd]
}

// ParseWeekday accepts English names ("saturday", "sat") or the schedule abbreviations.
func ParseWeekday(raw string) (time.Weekday, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		name := strings.ToLower(wd.String())
		if value == name || value == name[:3] || value == strings.ToLower(weekdayShort[wd]) {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("calendar: unknown weekday %q", raw)
}
