package policy

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is an offset from local midnight.
type TimeOfDay time.Duration

// ParseTimeOfDay parses "HH:MM" (24h).
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	s := strings.TrimSpace(raw)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("invalid time of day %q (want HH:MM)", raw)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", raw)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", raw)
	}
	return TimeOfDay(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute), nil
}

// Of returns the wall-clock time of day of t in its location.
func Of(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(t.Nanosecond()))
}

func (t TimeOfDay) String() string {
	d := time.Duration(t)
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

// QuietHours is the delivery window: notifications pass only inside
// [Start, End]. A window with Start >= End spans midnight.
type QuietHours struct {
	Enabled bool
	Start   TimeOfDay
	End     TimeOfDay
}

// Outside reports whether now falls outside the window.
func (q QuietHours) Outside(now TimeOfDay) bool {
	if q.Start < q.End {
		return now < q.Start || now > q.End
	}
	return now < q.Start && now > q.End
}

// Inside reports whether now falls inside the window.
func (q QuietHours) Inside(now TimeOfDay) bool {
	if q.Start < q.End {
		return now >= q.Start && now <= q.End
	}
	return now >= q.Start || now <= q.End
}

// Suppresses reports whether the window suppresses an event at now.
func (q QuietHours) Suppresses(now time.Time) bool {
	return q.Enabled && q.Outside(Of(now))
}
