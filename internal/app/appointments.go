package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"medisync/internal/availability"
	"medisync/internal/notify"
)

type bookReq struct {
	DoctorID        int64  `json:"doctor_id" binding:"required,min=1"`
	AppointmentDate string `json:"appointment_date" binding:"required"`
	StartTime       string `json:"start_time" binding:"required"`
	Reason          string `json:"reason" binding:"max=500"`
}

type statusReq struct {
	Status string  `json:"status" binding:"required"`
	Notes  *string `json:"notes" binding:"omitempty,max=1000"`
}

// Book reserves a slot for the patient. The date must lie after today and
// the start time must be a slot start on the doctor's grid for that day.
func (a *App) Book(ctx context.Context, patientID int64, req bookReq) (*Appointment, error) {
	date, err := ParseDate(req.AppointmentDate)
	if err != nil {
		return nil, err
	}
	if !date.After(a.today().Time) {
		return nil, invalid("appointment date must be in the future")
	}
	start, err := availability.ParseClock(req.StartTime)
	if err != nil {
		return nil, err
	}
	if _, err := a.Repo.Doctor(ctx, req.DoctorID); err != nil {
		return nil, err
	}

	rules, err := a.weeklyRules(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	rule, ok := availability.RuleFor(rules, date.Time)
	if !ok {
		return nil, fmt.Errorf("%w on %s", ErrDoctorNotAvailable, availability.WeekdayOf(date.Time))
	}
	slot, ok := availability.FindSlot(availability.GenerateSlots(rule, nil), start)
	if !ok {
		return nil, fmt.Errorf("%w at %s: outside working hours or not a slot start", ErrDoctorNotAvailable, start)
	}

	appt := &Appointment{
		PatientID: patientID,
		DoctorID:  req.DoctorID,
		Date:      date,
		StartTime: slot.StartTime,
		EndTime:   slot.EndTime,
		Status:    availability.StatusScheduled,
		Reason:    req.Reason,
	}
	if err := a.Repo.CreateAppointment(ctx, appt); err != nil {
		return nil, err
	}

	saved, err := a.Repo.Appointment(ctx, appt.ID)
	if err != nil {
		return nil, err
	}
	a.afterBooked(ctx, saved)
	return saved, nil
}

func bookingResult(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, ErrSlotTaken):
		return "conflict"
	case statusFor(err) < http.StatusInternalServerError:
		return "rejected"
	}
	return "error"
}

func noticeOf(a *Appointment) notify.AppointmentInfo {
	return notify.AppointmentInfo{
		ID:           a.ID,
		PatientEmail: a.Patient.Email,
		PatientName:  a.Patient.Name,
		DoctorName:   a.Doctor.Name,
		Date:         a.Date.Time,
		StartTime:    a.StartTime,
		EndTime:      a.EndTime,
		Reason:       a.Reason,
	}
}

// afterBooked runs the best-effort side effects of a new booking.
func (a *App) afterBooked(ctx context.Context, appt *Appointment) {
	log := a.Logger.With(zap.Int64("appointment_id", appt.ID))
	if err := a.Notifier.AppointmentBooked(ctx, noticeOf(appt)); err != nil {
		log.Warn("confirmation email failed", zap.Error(err))
	}
	eventID, err := a.Calendar.AddAppointment(ctx, a.Repo, appt)
	if err != nil {
		log.Warn("calendar event not created", zap.Error(err))
		return
	}
	if eventID == "" {
		return
	}
	appt.GoogleEventID = eventID
	if err := a.Repo.SetAppointmentEvent(ctx, appt.ID, eventID); err != nil {
		log.Warn("calendar event id not saved", zap.Error(err))
	}
}

func (a *App) afterCancelled(ctx context.Context, appt *Appointment) {
	log := a.Logger.With(zap.Int64("appointment_id", appt.ID))
	if err := a.Notifier.AppointmentCancelled(ctx, noticeOf(appt)); err != nil {
		log.Warn("cancellation email failed", zap.Error(err))
	}
	if err := a.Calendar.RemoveAppointment(ctx, a.Repo, appt); err != nil {
		log.Warn("calendar event not removed", zap.Error(err))
	}
}

// appointmentFor loads an appointment the caller takes part in.
func (a *App) appointmentFor(ctx context.Context, p Principal, id int64) (*Appointment, error) {
	appt, err := a.Repo.Appointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !appt.Involves(p) {
		return nil, ErrForbidden
	}
	return appt, nil
}

// Cancel frees the appointment's slot. Only scheduled appointments can be
// cancelled.
func (a *App) Cancel(ctx context.Context, p Principal, id int64) (*Appointment, error) {
	appt, err := a.appointmentFor(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != availability.StatusScheduled {
		return nil, fmt.Errorf("%w: appointment is already %s", ErrStatusConflict, appt.Status)
	}
	if err := a.Repo.TransitionAppointment(ctx, id, availability.StatusScheduled, availability.StatusCancelled, nil); err != nil {
		return nil, err
	}
	appt.Status = availability.StatusCancelled
	a.Metrics.ObserveCancellation()
	a.afterCancelled(ctx, appt)
	return appt, nil
}

// Complete records the outcome of a visit as COMPLETED or NO_SHOW.
func (a *App) Complete(ctx context.Context, p Principal, id int64, req statusReq) (*Appointment, error) {
	to, err := availability.ParseStatus(req.Status)
	if err != nil {
		return nil, invalid("%s", err.Error())
	}
	if to != availability.StatusCompleted && to != availability.StatusNoShow {
		return nil, invalid("status must be COMPLETED or NO_SHOW")
	}
	appt, err := a.appointmentFor(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if err := a.Repo.TransitionAppointment(ctx, id, availability.StatusScheduled, to, req.Notes); err != nil {
		return nil, err
	}
	appt.Status = to
	if req.Notes != nil {
		appt.Notes = *req.Notes
	}
	return appt, nil
}

// POST /api/appointments
func (a *App) CreateAppointmentHandler(c *gin.Context) {
	var req bookReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p := principal(c)
	appt, err := a.Book(c.Request.Context(), p.UserID, req)
	a.Metrics.ObserveBooking(bookingResult(err))
	if err != nil {
		a.fail(c, err)
		return
	}

	a.Logger.Info("appointment booked",
		zap.Int64("appointment_id", appt.ID),
		zap.Int64("doctor_id", appt.DoctorID),
		zap.Int64("patient_id", appt.PatientID),
		zap.String("date", appt.Date.String()),
		zap.String("start", appt.StartTime.String()),
	)
	c.JSON(http.StatusCreated, appt)
}

// GET /api/appointments
func (a *App) ListAppointmentsHandler(c *gin.Context) {
	p := principal(c)
	appts, err := a.Repo.ListAppointments(c.Request.Context(), p.Role, p.UserID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, appts)
}

// GET /api/appointments/:id
func (a *App) GetAppointmentHandler(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		a.fail(c, err)
		return
	}
	appt, err := a.appointmentFor(c.Request.Context(), principal(c), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, appt)
}

// DELETE /api/appointments/:id
func (a *App) CancelAppointmentHandler(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		a.fail(c, err)
		return
	}
	appt, err := a.Cancel(c.Request.Context(), principal(c), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	a.Logger.Info("appointment cancelled", zap.Int64("appointment_id", id), zap.Int64("by", principal(c).UserID))
	c.JSON(http.StatusOK, appt)
}

// PATCH /api/appointments/:id/status
func (a *App) UpdateAppointmentStatusHandler(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		a.fail(c, err)
		return
	}
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	appt, err := a.Complete(c.Request.Context(), principal(c), id, req)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, appt)
}
