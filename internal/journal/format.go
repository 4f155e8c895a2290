// Package journal renders daily sleep entries and drives the
// fetch-format-post flow shared by the CLI commands. Formatting is
// pure; the orchestration talks to the sleep service and the issue
// tracker through narrow injected interfaces.
package journal

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// DisplayZone is the wall-clock zone entries are rendered in (UTC+8).
// Sleep timestamps arrive as UTC instants; diary lines always show
// Chinese local time regardless of where the process runs.
var DisplayZone = time.FixedZone("UTC+8", 8*60*60)

// MissingValue is rendered in place of an absent sleep or wake time.
const MissingValue = "数据缺失"

// FormatEntry renders one diary line:
//
//	2026-01-06: 昨日睡觉 23:30 今天起床 07:00
//
// An absent time renders as the missing-data placeholder in its slot
// without affecting the other. Present times are converted to
// DisplayZone and zero-padded to HH:MM.
func FormatEntry(entryDate civil.Date, sleepTime, wakeTime *time.Time) string {
	return fmt.Sprintf("%s: 昨日睡觉 %s 今天起床 %s",
		entryDate, formatClock(sleepTime), formatClock(wakeTime))
}

func formatClock(t *time.Time) string {
	if t == nil {
		return MissingValue
	}
	return t.In(DisplayZone).Format("15:04")
}

// DetermineEntryDate returns the calendar date a sleep session is
// credited to: the wake time's date in DisplayZone, regardless of when
// sleep began. A session crossing midnight attributes to the waking
// day, the way a person labels a diary entry.
func DetermineEntryDate(sleepTime, wakeTime time.Time) civil.Date {
	return civil.DateOf(wakeTime.In(DisplayZone))
}
