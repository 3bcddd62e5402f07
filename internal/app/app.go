package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"medisync/internal/availability"
	"medisync/internal/cache"
	"medisync/internal/metrics"
	"medisync/internal/notify"
)

// App holds the dependencies shared by every handler.
type App struct {
	Repo      Repository
	Tokens    *TokenIssuer
	Rules     *cache.RuleCache
	Metrics   *metrics.Metrics
	Notifier  *notify.Notifier
	Calendar  *Calendar
	Limiter   *LoginLimiter
	Logger    *zap.Logger
	MatchMode availability.MatchMode
	Location  *time.Location
	Now       func() time.Time
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now().In(a.loc())
	}
	return time.Now().In(a.loc())
}

func (a *App) loc() *time.Location {
	if a.Location == nil {
		return time.Local
	}
	return a.Location
}

// today is midnight of the current date in the clinic's zone.
func (a *App) today() Date {
	return NewDate(a.now())
}

// Routes registers the API on r.
func (a *App) Routes(r *gin.Engine) {
	r.GET("/healthz", a.HealthHandler)
	r.GET("/oauth2callback", a.GoogleOAuth2CallbackHandler)

	api := r.Group("/api")

	auth := api.Group("/auth", a.Limiter.Middleware())
	auth.POST("/register", a.RegisterHandler)
	auth.POST("/login", a.LoginHandler)

	api.GET("/doctors", a.ListDoctorsHandler)
	api.GET("/doctors/:id/schedule", a.DoctorScheduleHandler)
	api.GET("/doctors/:id/available-slots", a.AvailableSlotsHandler)
	api.GET("/doctors/:id/bookable-dates", a.BookableDatesHandler)
	api.GET("/doctors/:id/booked-slots", a.BookedSlotsHandler)

	authed := api.Group("", a.Authenticate())

	doctor := authed.Group("/doctors", RequireRole(RoleDoctor))
	doctor.GET("/profile", a.GetDoctorProfileHandler)
	doctor.PUT("/profile", a.UpdateDoctorProfileHandler)
	doctor.POST("/schedule", a.CreateScheduleHandler)
	doctor.GET("/schedule", a.ListSchedulesHandler)
	doctor.PUT("/schedule/:id", a.UpdateScheduleHandler)
	doctor.DELETE("/schedule/:id", a.DeleteScheduleHandler)
	doctor.GET("/medical-records", a.ListMedicalRecordsHandler)

	patient := authed.Group("/patients", RequireRole(RolePatient))
	patient.GET("/profile", a.GetPatientProfileHandler)
	patient.PUT("/profile", a.UpdatePatientProfileHandler)
	patient.GET("/medical-records", a.ListMedicalRecordsHandler)

	appts := authed.Group("/appointments")
	appts.POST("", RequireRole(RolePatient), a.CreateAppointmentHandler)
	appts.GET("", RequireRole(RolePatient, RoleDoctor), a.ListAppointmentsHandler)
	appts.GET("/:id", a.GetAppointmentHandler)
	appts.DELETE("/:id", a.CancelAppointmentHandler)
	appts.PATCH("/:id/status", RequireRole(RoleDoctor), a.UpdateAppointmentStatusHandler)

	records := authed.Group("/medical-records")
	records.POST("", RequireRole(RoleDoctor), a.CreateMedicalRecordHandler)
	records.GET("/:id", a.GetMedicalRecordHandler)
	records.POST("/:id/prescriptions", RequireRole(RoleDoctor), a.AddPrescriptionHandler)
	records.GET("/:id/prescriptions", a.ListPrescriptionsHandler)

	cal := authed.Group("/calendar", RequireRole(RoleDoctor))
	cal.GET("/auth", a.GoogleAuthHandler)
	cal.GET("/events", a.GetGoogleCalendarEvents)
	cal.GET("/calendars", a.GetGoogleCalendarList)
}

// GET /healthz
func (a *App) HealthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{"postgres": "ok"}
	status := http.StatusOK
	if err := a.Repo.Ping(ctx); err != nil {
		checks["postgres"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if a.Rules != nil {
		checks["redis"] = "ok"
		if err := a.Rules.Ping(ctx); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	c.JSON(status, checks)
}
