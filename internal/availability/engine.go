package availability

import (
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"
)

// MatchMode decides when a booking blocks a generated slot.
type MatchMode int

const (
	// ExactMatch blocks a slot only when a booking covers exactly [start, end).
	// A booking that is not aligned to the rule's grid blocks nothing.
	ExactMatch MatchMode = iota
	// OverlapMatch blocks every slot that shares any time with a booking.
	OverlapMatch
)

func ParseMatchMode(s string) (MatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "exact":
		return ExactMatch, nil
	case "overlap":
		return OverlapMatch, nil
	}
	return ExactMatch, fmt.Errorf("unknown slot match mode %q", s)
}

func (m MatchMode) String() string {
	if m == OverlapMatch {
		return "overlap"
	}
	return "exact"
}

func (m MatchMode) blocks(start, end Clock, b BookedSlot) bool {
	if !b.Status.Blocks() {
		return false
	}
	if m == OverlapMatch {
		return start < b.EndTime && end > b.StartTime
	}
	return start == b.StartTime && end == b.EndTime
}

// IsDateBookable reports whether any active rule covers the weekday of date.
func IsDateBookable(rules []WeeklyRule, date time.Time) bool {
	_, ok := RuleFor(rules, date)
	return ok
}

// RuleFor returns the first active rule for the weekday of date.
func RuleFor(rules []WeeklyRule, date time.Time) (WeeklyRule, bool) {
	if len(rules) == 0 {
		return WeeklyRule{}, false
	}
	day := WeekdayOf(date)
	for _, r := range rules {
		if r.DayOfWeek == day && r.IsActive {
			return r, true
		}
	}
	return WeeklyRule{}, false
}

// SlotCount is the number of whole slots that fit in the rule's window.
func SlotCount(r WeeklyRule) int {
	if r.Validate() != nil {
		return 0
	}
	return int(r.EndTime-r.StartTime) / r.SlotDurationMinutes
}

// Slots yields the rule's slots in chronological order. The trailing
// remainder shorter than one slot is never yielded. Each range over the
// returned sequence starts again from the rule's start time.
func Slots(rule WeeklyRule, booked []BookedSlot, mode MatchMode) iter.Seq[Slot] {
	return func(yield func(Slot) bool) {
		if !rule.IsActive || rule.Validate() != nil {
			return
		}
		step := rule.SlotDurationMinutes
		for start := rule.StartTime; start.Add(step) <= rule.EndTime; start = start.Add(step) {
			end := start.Add(step)
			s := Slot{StartTime: start, EndTime: end, IsAvailable: true}
			for _, b := range booked {
				if mode.blocks(start, end, b) {
					s.IsAvailable = false
					break
				}
			}
			if !yield(s) {
				return
			}
		}
	}
}

// GenerateSlots expands rule into slots, marking those that exactly match a
// live booking as unavailable. An inactive rule yields no slots.
func GenerateSlots(rule WeeklyRule, booked []BookedSlot) []Slot {
	return GenerateSlotsMatching(rule, booked, ExactMatch)
}

func GenerateSlotsMatching(rule WeeklyRule, booked []BookedSlot, mode MatchMode) []Slot {
	out := slices.Collect(Slots(rule, booked, mode))
	if out == nil {
		return []Slot{}
	}
	return out
}

// SlotsForDate picks the active rule for date and generates its slots.
// Bookings dated on another calendar day are ignored; a zero Date is treated
// as belonging to the requested day.
func SlotsForDate(rules []WeeklyRule, date time.Time, booked []BookedSlot, mode MatchMode) []Slot {
	rule, ok := RuleFor(rules, date)
	if !ok {
		return []Slot{}
	}
	sameDay := make([]BookedSlot, 0, len(booked))
	for _, b := range booked {
		if b.Date.IsZero() || SameDate(b.Date, date) {
			sameDay = append(sameDay, b)
		}
	}
	return GenerateSlotsMatching(rule, sameDay, mode)
}

// BookableDates returns the noon-normalized dates in [from, from+days) that
// IsDateBookable accepts.
func BookableDates(rules []WeeklyRule, from time.Time, days int) []time.Time {
	out := []time.Time{}
	start := NoonOf(from)
	for i := 0; i < days; i++ {
		d := start.AddDate(0, 0, i)
		if IsDateBookable(rules, d) {
			out = append(out, d)
		}
	}
	return out
}

// FindSlot returns the generated slot starting at start, if the rule's grid
// has one.
func FindSlot(slots []Slot, start Clock) (Slot, bool) {
	for _, s := range slots {
		if s.StartTime == start {
			return s, true
		}
	}
	return Slot{}, false
}
