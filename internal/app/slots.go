package app

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"medisync/internal/availability"
)

const (
	defaultBookableDays = 30
	maxBookableDays     = 90
)

// weeklyRules loads a doctor's rules, preferring the cache. Cache failures
// are logged and fall through to Postgres.
func (a *App) weeklyRules(ctx context.Context, doctorID int64) ([]availability.WeeklyRule, error) {
	rules, ok, err := a.Rules.Get(ctx, doctorID)
	if err != nil {
		a.Logger.Warn("rule cache read failed", zap.Int64("doctor_id", doctorID), zap.Error(err))
	}
	if ok {
		return rules, nil
	}

	schedules, err := a.Repo.ListSchedules(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	rules = rulesOf(schedules)
	if err := a.Rules.Set(ctx, doctorID, rules); err != nil {
		a.Logger.Warn("rule cache write failed", zap.Int64("doctor_id", doctorID), zap.Error(err))
	}
	return rules, nil
}

func (a *App) invalidateRules(ctx context.Context, doctorID int64) {
	if err := a.Rules.Invalidate(ctx, doctorID); err != nil {
		a.Logger.Warn("rule cache invalidate failed", zap.Int64("doctor_id", doctorID), zap.Error(err))
	}
}

// sortByWeekday orders schedules Monday through Sunday.
func sortByWeekday(s []Schedule) {
	slices.SortStableFunc(s, func(x, y Schedule) int {
		return x.DayOfWeek.Index() - y.DayOfWeek.Index()
	})
}

// AvailableSlots runs the engine for one doctor and date. The list is empty
// when the doctor has no active rule that day.
func (a *App) AvailableSlots(ctx context.Context, doctorID int64, date Date) ([]availability.Slot, error) {
	if _, err := a.Repo.Doctor(ctx, doctorID); err != nil {
		return nil, err
	}
	rules, err := a.weeklyRules(ctx, doctorID)
	if err != nil {
		a.Metrics.ObserveSlotQuery("error")
		return nil, err
	}
	if !availability.IsDateBookable(rules, date.Time) {
		a.Metrics.ObserveSlotQuery("not_bookable")
		return []availability.Slot{}, nil
	}

	booked, err := a.Repo.BookedSlots(ctx, doctorID, date.Time)
	if err != nil {
		a.Metrics.ObserveSlotQuery("error")
		return nil, err
	}
	a.Metrics.ObserveSlotQuery("bookable")
	return availability.SlotsForDate(rules, date.Time, booked, a.MatchMode), nil
}

// BookableDates lists the dates in [from, from+days) with an active rule.
func (a *App) BookableDates(ctx context.Context, doctorID int64, from Date, days int) ([]Date, error) {
	if days < 1 || days > maxBookableDays {
		return nil, invalid("days must be between 1 and %d", maxBookableDays)
	}
	if _, err := a.Repo.Doctor(ctx, doctorID); err != nil {
		return nil, err
	}
	rules, err := a.weeklyRules(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	out := []Date{}
	for _, d := range availability.BookableDates(rules, from.Time, days) {
		out = append(out, NewDate(d))
	}
	return out, nil
}
