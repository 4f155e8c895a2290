package journal

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// DefaultChildBirthday is used when no birthday is configured.
var DefaultChildBirthday = civil.Date{Year: 2025, Month: time.May, Day: 10}

// ChildAge renders an age as a compact Chinese string, e.g. "1岁2个月3天".
// Zero components are omitted, except that a bare day count is always
// shown so the birthday itself reads "0天". Day borrowing uses the
// length of the month preceding today.
func ChildAge(birthday, today civil.Date) string {
	years := today.Year - birthday.Year
	months := int(today.Month) - int(birthday.Month)
	days := today.Day - birthday.Day

	if days < 0 {
		months--
		prevYear, prevMonth := today.Year, today.Month-1
		if today.Month == time.January {
			prevYear, prevMonth = today.Year-1, time.December
		}
		days += daysInMonth(prevYear, prevMonth)
	}
	if months < 0 {
		years--
		months += 12
	}

	var b strings.Builder
	if years > 0 {
		fmt.Fprintf(&b, "%d岁", years)
	}
	if months > 0 {
		fmt.Fprintf(&b, "%d个月", months)
	}
	if days > 0 || b.Len() == 0 {
		fmt.Fprintf(&b, "%d天", days)
	}
	return b.String()
}

// daysInMonth uses day-zero normalization of the following month.
func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
