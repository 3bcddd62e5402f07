package availability

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrMalformedTime  = errors.New("malformed time of day")
	ErrInvalidWeekday = errors.New("invalid day of week")
	ErrInvalidRule    = errors.New("invalid weekly rule")
)

type Weekday string

const (
	Monday    Weekday = "MONDAY"
	Tuesday   Weekday = "TUESDAY"
	Wednesday Weekday = "WEDNESDAY"
	Thursday  Weekday = "THURSDAY"
	Friday    Weekday = "FRIDAY"
	Saturday  Weekday = "SATURDAY"
	Sunday    Weekday = "SUNDAY"
)

// Week lists weekdays in ISO order, Monday first.
var Week = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

var fromStdlib = map[time.Weekday]Weekday{
	time.Monday:    Monday,
	time.Tuesday:   Tuesday,
	time.Wednesday: Wednesday,
	time.Thursday:  Thursday,
	time.Friday:    Friday,
	time.Saturday:  Saturday,
	time.Sunday:    Sunday,
}

func ParseWeekday(s string) (Weekday, error) {
	d := Weekday(strings.ToUpper(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidWeekday, s)
	}
	return d, nil
}

func (d Weekday) Valid() bool {
	for _, w := range Week {
		if d == w {
			return true
		}
	}
	return false
}

// Index returns 0 for Monday through 6 for Sunday, -1 if d is not a weekday.
func (d Weekday) Index() int {
	for i, w := range Week {
		if d == w {
			return i
		}
	}
	return -1
}

// NoonOf moves t to 12:00 on the same calendar date in t's location.
// Weekday resolution always happens at noon so a zone offset applied later
// cannot push the instant across midnight.
func NoonOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 12, 0, 0, 0, t.Location())
}

// WeekdayOf resolves the calendar date of t to its weekday name.
func WeekdayOf(t time.Time) Weekday {
	return fromStdlib[NoonOf(t).Weekday()]
}

// SameDate reports whether a and b fall on the same calendar date.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Clock is a wall-clock time of day in minutes after midnight.
type Clock int

func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock accepts "HH:MM" and "HH:MM:SS". Seconds are dropped.
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
	}
	limits := []int{23, 59, 59}
	vals := make([]int, len(parts))
	for i, p := range parts {
		if len(p) != 2 || !isDigit(p[0]) || !isDigit(p[1]) {
			return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
		}
		n := int(p[0]-'0')*10 + int(p[1]-'0')
		if n > limits[i] {
			return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
		}
		vals[i] = n
	}
	return NewClock(vals[0], vals[1]), nil
}

func isDigit(b byte) bool { return '0' <= b && b <= '9' }

func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) Add(minutes int) Clock { return c + Clock(minutes) }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// On returns the instant at c on t's calendar date, in t's location.
func (c Clock) On(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, c.Hour(), c.Minute(), 0, 0, t.Location())
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	v, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusNoShow    Status = "NO_SHOW"
)

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow:
		return st, nil
	}
	return "", fmt.Errorf("invalid appointment status %q", s)
}

// Blocks reports whether a booking in this status occupies its slot.
func (s Status) Blocks() bool {
	return s != StatusCancelled
}

// WeeklyRule is a doctor's recurring availability window for one weekday.
type WeeklyRule struct {
	DayOfWeek           Weekday `json:"day_of_week"`
	StartTime           Clock   `json:"start_time"`
	EndTime             Clock   `json:"end_time"`
	SlotDurationMinutes int     `json:"slot_duration_minutes"`
	IsActive            bool    `json:"is_active"`
}

func (r WeeklyRule) Validate() error {
	if !r.DayOfWeek.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidWeekday, string(r.DayOfWeek))
	}
	if r.StartTime >= r.EndTime {
		return fmt.Errorf("%w: end time %s must be after start time %s", ErrInvalidRule, r.EndTime, r.StartTime)
	}
	if r.SlotDurationMinutes <= 0 {
		return fmt.Errorf("%w: slot duration must be positive", ErrInvalidRule)
	}
	return nil
}

// BookedSlot is an existing reservation on a doctor's calendar.
type BookedSlot struct {
	Date      time.Time `json:"date"`
	StartTime Clock     `json:"start_time"`
	EndTime   Clock     `json:"end_time"`
	Status    Status    `json:"status"`
}

// Slot is one discrete interval generated from a WeeklyRule.
type Slot struct {
	StartTime   Clock `json:"start_time"`
	EndTime     Clock `json:"end_time"`
	IsAvailable bool  `json:"is_available"`
}
