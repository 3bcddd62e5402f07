package app

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"medisync/internal/availability"
)

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid("invalid %s %q", name, c.Param(name))
	}
	return id, nil
}

type scheduleReq struct {
	DayOfWeek           string `json:"day_of_week" binding:"required"`
	StartTime           string `json:"start_time" binding:"required"`
	EndTime             string `json:"end_time" binding:"required"`
	SlotDurationMinutes int    `json:"slot_duration_minutes" binding:"required,min=15,max=480"`
	IsActive            *bool  `json:"is_active"`
}

func (r scheduleReq) rule() (availability.WeeklyRule, error) {
	day, err := availability.ParseWeekday(r.DayOfWeek)
	if err != nil {
		return availability.WeeklyRule{}, err
	}
	start, err := availability.ParseClock(r.StartTime)
	if err != nil {
		return availability.WeeklyRule{}, err
	}
	end, err := availability.ParseClock(r.EndTime)
	if err != nil {
		return availability.WeeklyRule{}, err
	}
	rule := availability.WeeklyRule{
		DayOfWeek:           day,
		StartTime:           start,
		EndTime:             end,
		SlotDurationMinutes: r.SlotDurationMinutes,
		IsActive:            r.IsActive == nil || *r.IsActive,
	}
	return rule, rule.Validate()
}

// POST /api/doctors/schedule
func (a *App) CreateScheduleHandler(c *gin.Context) {
	var req scheduleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule, err := req.rule()
	if err != nil {
		a.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	s := &Schedule{DoctorID: principal(c).UserID, WeeklyRule: rule}
	if err := a.Repo.InsertSchedule(ctx, s); err != nil {
		a.fail(c, err)
		return
	}
	a.invalidateRules(ctx, s.DoctorID)

	a.Logger.Info("schedule created", zap.Int64("doctor_id", s.DoctorID), zap.String("day", string(s.DayOfWeek)))
	c.JSON(http.StatusCreated, s)
}

// GET /api/doctors/schedule
func (a *App) ListSchedulesHandler(c *gin.Context) {
	schedules, err := a.Repo.ListSchedules(c.Request.Context(), principal(c).UserID)
	if err != nil {
		a.fail(c, err)
		return
	}
	sortByWeekday(schedules)
	c.JSON(http.StatusOK, schedules)
}

// PUT /api/doctors/schedule/:id
func (a *App) UpdateScheduleHandler(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		a.fail(c, err)
		return
	}
	var req scheduleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule, err := req.rule()
	if err != nil {
		a.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	s := &Schedule{ID: id, DoctorID: principal(c).UserID, WeeklyRule: rule}
	if err := a.Repo.UpdateSchedule(ctx, s); err != nil {
		a.fail(c, err)
		return
	}
	a.invalidateRules(ctx, s.DoctorID)
	c.JSON(http.StatusOK, s)
}

// DELETE /api/doctors/schedule/:id
func (a *App) DeleteScheduleHandler(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		a.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	doctorID := principal(c).UserID
	if err := a.Repo.DeleteSchedule(ctx, doctorID, id); err != nil {
		a.fail(c, err)
		return
	}
	a.invalidateRules(ctx, doctorID)
	c.Status(http.StatusNoContent)
}

// GET /api/doctors/:id/schedule
func (a *App) DoctorScheduleHandler(c *gin.Context) {
	doctorID, err := pathID(c, "id")
	if err != nil {
		a.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	if _, err := a.Repo.Doctor(ctx, doctorID); err != nil {
		a.fail(c, err)
		return
	}
	rules, err := a.weeklyRules(ctx, doctorID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

// GET /api/doctors/:id/available-slots?date=YYYY-MM-DD
func (a *App) AvailableSlotsHandler(c *gin.Context) {
	doctorID, err := pathID(c, "id")
	if err != nil {
		a.fail(c, err)
		return
	}
	if c.Query("date") == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date required (YYYY-MM-DD)"})
		return
	}
	date, err := ParseDate(c.Query("date"))
	if err != nil {
		a.fail(c, err)
		return
	}

	slots, err := a.AvailableSlots(c.Request.Context(), doctorID, date)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, slots)
}

// GET /api/doctors/:id/bookable-dates?from=YYYY-MM-DD&days=N
func (a *App) BookableDatesHandler(c *gin.Context) {
	doctorID, err := pathID(c, "id")
	if err != nil {
		a.fail(c, err)
		return
	}

	from := a.today()
	if s := c.Query("from"); s != "" {
		if from, err = ParseDate(s); err != nil {
			a.fail(c, err)
			return
		}
	}
	days := defaultBookableDays
	if s := c.Query("days"); s != "" {
		if days, err = strconv.Atoi(s); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid days"})
			return
		}
	}

	dates, err := a.BookableDates(c.Request.Context(), doctorID, from, days)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dates)
}

// GET /api/doctors/:id/booked-slots?date=YYYY-MM-DD
func (a *App) BookedSlotsHandler(c *gin.Context) {
	doctorID, err := pathID(c, "id")
	if err != nil {
		a.fail(c, err)
		return
	}
	date, err := ParseDate(c.Query("date"))
	if err != nil {
		a.fail(c, err)
		return
	}

	booked, err := a.Repo.BookedSlots(c.Request.Context(), doctorID, date.Time)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, booked)
}
