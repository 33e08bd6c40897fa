package receipt

import (
	"regexp"
	"strconv"
	"time"
)

var datePattern = regexp.MustCompile(`\d{4}[/-]\d{1,2}[/-]\d{1,2}|\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`)

var dateSeparator = regexp.MustCompile(`[/-]`)

// ExtractDate returns the first real calendar date found in lines as
// YYYY-MM-DD, or now's date when there is none.
func ExtractDate(lines []string, now time.Time) string {
	for _, line := range lines {
		for _, m := range datePattern.FindAllString(line, -1) {
			if d, ok := parseDate(m); ok {
				return d.Format(DateLayout)
			}
		}
	}
	return now.UTC().Format(DateLayout)
}

// parseDate interprets YYYY-MM-DD, then MM/DD/YYYY, then DD/MM/YYYY
func parseDate(s string) (time.Time, bool) {
	parts := dateSeparator.Split(s, -1)
	if len(parts) != 3 {
		return time.Time{}, false
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, false
		}
		nums[i] = n
	}

	if len(parts[0]) == 4 {
		return calendarDate(nums[0], nums[1], nums[2])
	}

	year, ok := expandYear(parts[2], nums[2])
	if !ok {
		return time.Time{}, false
	}
	if d, ok := calendarDate(year, nums[0], nums[1]); ok {
		return d, true
	}
	return calendarDate(year, nums[1], nums[0])
}

func expandYear(raw string, n int) (int, bool) {
	switch len(raw) {
	case 2:
		return 2000 + n, true
	case 4:
		return n, true
	default:
		return 0, false
	}
}

// calendarDate rejects values time.Date would normalize, like February 30
func calendarDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Year() != year || int(d.Month()) != month || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}
