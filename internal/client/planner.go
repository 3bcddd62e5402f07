package client

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"medisync/internal/availability"
)

// ErrStale is returned for a query that a newer query of the same kind
// superseded while it was in flight.
var ErrStale = errors.New("result superseded by a newer query")

// Source supplies the snapshots the planner feeds to the engine. *Client
// satisfies it.
type Source interface {
	WeeklyRules(ctx context.Context, doctorID int64) ([]availability.WeeklyRule, error)
	BookedSlots(ctx context.Context, doctorID int64, date time.Time) ([]availability.BookedSlot, error)
}

// Planner computes bookable dates and slots locally, the way the booking
// screen does while the user clicks through a calendar. Each query kind has
// its own generation counter; only the latest query of a kind returns data.
type Planner struct {
	src  Source
	mode availability.MatchMode

	dateGen atomic.Uint64
	slotGen atomic.Uint64
}

func NewPlanner(src Source, mode availability.MatchMode) *Planner {
	return &Planner{src: src, mode: mode}
}

// BookableDates returns the dates in [from, from+days) the doctor works on.
func (p *Planner) BookableDates(ctx context.Context, doctorID int64, from time.Time, days int) ([]time.Time, error) {
	gen := p.dateGen.Add(1)
	rules, err := p.src.WeeklyRules(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if p.dateGen.Load() != gen {
		return nil, ErrStale
	}
	return availability.BookableDates(rules, from, days), nil
}

// Slots returns the slot grid for date with booked slots marked unavailable.
// A date the doctor does not work on yields an empty grid.
func (p *Planner) Slots(ctx context.Context, doctorID int64, date time.Time) ([]availability.Slot, error) {
	gen := p.slotGen.Add(1)
	rules, err := p.src.WeeklyRules(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if !availability.IsDateBookable(rules, date) {
		if p.slotGen.Load() != gen {
			return nil, ErrStale
		}
		return []availability.Slot{}, nil
	}

	booked, err := p.src.BookedSlots(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	if p.slotGen.Load() != gen {
		return nil, ErrStale
	}
	return availability.SlotsForDate(rules, date, booked, p.mode), nil
}
