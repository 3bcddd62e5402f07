package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"medisync/internal/availability"
)

type recordReq struct {
	AppointmentID int64  `json:"appointment_id" binding:"required,min=1"`
	Diagnosis     string `json:"diagnosis" binding:"max=500"`
	Symptoms      string `json:"symptoms" binding:"max=1000"`
	Notes         string `json:"notes" binding:"max=2000"`
	FollowUpDate  string `json:"follow_up_date"`
}

type prescriptionReq struct {
	MedicationName string `json:"medication_name" binding:"required,max=200"`
	Dosage         string `json:"dosage" binding:"required,max=100"`
	Frequency      string `json:"frequency" binding:"required,max=100"`
	Duration       string `json:"duration" binding:"max=50"`
	Instructions   string `json:"instructions" binding:"max=500"`
}

// RecordVisit documents the visit behind one of the doctor's appointments
// and marks the appointment COMPLETED. An appointment already completed
// through the status endpoint can still get its record; cancelled and
// no-show appointments cannot.
func (a *App) RecordVisit(ctx context.Context, p Principal, req recordReq) (*MedicalRecord, error) {
	appt, err := a.appointmentFor(ctx, p, req.AppointmentID)
	if err != nil {
		return nil, err
	}

	var followUp *Date
	if req.FollowUpDate != "" {
		d, err := ParseDate(req.FollowUpDate)
		if err != nil {
			return nil, err
		}
		if d.Before(appt.Date.Time) {
			return nil, invalid("follow-up date must not be before the visit")
		}
		followUp = &d
	}

	switch appt.Status {
	case availability.StatusScheduled:
		if err := a.Repo.TransitionAppointment(ctx, appt.ID, availability.StatusScheduled, availability.StatusCompleted, nil); err != nil {
			return nil, err
		}
	case availability.StatusCompleted:
	default:
		return nil, fmt.Errorf("%w: appointment is %s", ErrStatusConflict, appt.Status)
	}

	rec := &MedicalRecord{
		PatientID:     appt.PatientID,
		DoctorID:      appt.DoctorID,
		AppointmentID: appt.ID,
		VisitDate:     appt.Date,
		Diagnosis:     req.Diagnosis,
		Symptoms:      req.Symptoms,
		Notes:         req.Notes,
		FollowUpDate:  followUp,
	}
	if err := a.Repo.CreateMedicalRecord(ctx, rec); err != nil {
		return nil, err
	}
	return a.Repo.MedicalRecord(ctx, rec.ID)
}

// recordFor loads a record the caller is the patient or doctor of.
func (a *App) recordFor(ctx context.Context, p Principal, id int64) (*MedicalRecord, error) {
	rec, err := a.Repo.MedicalRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.Involves(p) {
		return nil, ErrForbidden
	}
	return rec, nil
}

// Prescribe adds a prescription to one of the doctor's own records.
func (a *App) Prescribe(ctx context.Context, p Principal, recordID int64, req prescriptionReq) (*Prescription, error) {
	rec, err := a.Repo.MedicalRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if p.Role != RoleDoctor || rec.DoctorID != p.UserID {
		return nil, ErrForbidden
	}
	rx := &Prescription{
		MedicalRecordID: rec.ID,
		MedicationName:  req.MedicationName,
		Dosage:          req.Dosage,
		Frequency:       req.Frequency,
		Duration:        req.Duration,
		Instructions:    req.Instructions,
	}
	if err := a.Repo.AddPrescription(ctx, rx); err != nil {
		return nil, err
	}
	return rx, nil
}

// POST /api/medical-records
func (a *App) CreateMedicalRecordHandler(c *gin.Context) {
	var req recordReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := a.RecordVisit(c.Request.Context(), principal(c), req)
	if err != nil {
		a.fail(c, err)
		return
	}
	a.Logger.Info("medical record created",
		zap.Int64("record_id", rec.ID),
		zap.Int64("appointment_id", rec.AppointmentID),
		zap.Int64("doctor_id", rec.DoctorID),
	)
	c.JSON(http.StatusCreated, rec)
}

// GET /api/medical-records/:id
func (a *App) GetMedicalRecordHandler(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		a.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	rec, err := a.recordFor(ctx, principal(c), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	if rec.Prescriptions, err = a.Repo.ListPrescriptions(ctx, rec.ID); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GET /api/patients/medical-records, GET /api/doctors/medical-records
func (a *App) ListMedicalRecordsHandler(c *gin.Context) {
	p := principal(c)
	recs, err := a.Repo.ListMedicalRecords(c.Request.Context(), p.Role, p.UserID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

// POST /api/medical-records/:id/prescriptions
func (a *App) AddPrescriptionHandler(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		a.fail(c, err)
		return
	}
	var req prescriptionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rx, err := a.Prescribe(c.Request.Context(), principal(c), id, req)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rx)
}

// GET /api/medical-records/:id/prescriptions
func (a *App) ListPrescriptionsHandler(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		a.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	if _, err := a.recordFor(ctx, principal(c), id); err != nil {
		a.fail(c, err)
		return
	}
	rxs, err := a.Repo.ListPrescriptions(ctx, id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rxs)
}
