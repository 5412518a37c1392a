package util

import (
	"strings"
	"time"
)

// dateTplReplacer rewrites template placeholders into reference-time layout
// fragments. YYYY must come before YY so the long form wins.
var dateTplReplacer = strings.NewReplacer(
	"YYYY", "2006",
	"YY", "06",
	"MM", "01",
	"DD", "02",
	"hh", "15",
	"mm", "04",
	"ss", "05",
)

// FormatDateTpl formats a millisecond Unix timestamp using a template with
// YYYY/YY/MM/DD/hh/mm/ss placeholders. Returns "" when ts is zero.
func FormatDateTpl(ts int64, tpl string) string {
	if ts == 0 {
		return ""
	}
	return time.UnixMilli(ts).Format(dateTplReplacer.Replace(tpl))
}

// WeekStart truncates t to midnight of the Monday of its week.
func WeekStart(t time.Time) time.Time {
	offset := int(t.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7
	}
	t = t.AddDate(0, 0, -offset)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
