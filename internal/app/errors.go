package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"medisync/internal/availability"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("access denied")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrScheduleExists     = errors.New("schedule already exists for this day")
	ErrSlotTaken          = errors.New("slot already booked")
	ErrDoctorNotAvailable = errors.New("doctor not available")
	ErrStatusConflict     = errors.New("appointment status does not allow this change")
	ErrCalendarDisabled   = errors.New("google calendar not configured")
	ErrRecordExists       = errors.New("appointment already has a medical record")
)

// ValidationError is a client input problem; it maps to 400.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func invalid(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

func notFound(what string) error {
	return fmt.Errorf("%s %w", what, ErrNotFound)
}

func statusFor(err error) int {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve),
		errors.Is(err, availability.ErrMalformedTime),
		errors.Is(err, availability.ErrInvalidWeekday),
		errors.Is(err, availability.ErrInvalidRule):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrEmailTaken),
		errors.Is(err, ErrScheduleExists),
		errors.Is(err, ErrSlotTaken),
		errors.Is(err, ErrStatusConflict),
		errors.Is(err, ErrRecordExists):
		return http.StatusConflict
	case errors.Is(err, ErrDoctorNotAvailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrCalendarDisabled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// fail writes err as {"error": msg}. Unexpected errors are logged and
// replaced with a generic message.
func (a *App) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.Logger.Error("request failed",
			zap.Error(err),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
		)
		c.JSON(status, gin.H{"error": "an unexpected error occurred"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
