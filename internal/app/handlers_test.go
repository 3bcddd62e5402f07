package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"medisync/internal/availability"
)

// Saturday; the next Monday is 2026-10-19.
var testNow = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

type harness struct {
	t      *testing.T
	app    *App
	repo   *memRepo
	router *gin.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := newMemRepo()
	a := &App{
		Repo:      repo,
		Tokens:    NewTokenIssuer("test-secret", time.Hour),
		Logger:    zap.NewNop(),
		MatchMode: availability.ExactMatch,
		Location:  time.UTC,
		Now:       func() time.Time { return testNow },
	}
	r := gin.New()
	a.Routes(r)
	return &harness{t: t, app: a, repo: repo, router: r}
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// register signs up a user and returns its token and id.
func (h *harness) register(email string, role Role) (string, int64) {
	h.t.Helper()
	w := h.do(http.MethodPost, "/api/auth/register", "", gin.H{
		"email": email, "password": "password123", "role": role, "first_name": "Test", "last_name": "User",
	})
	require.Equal(h.t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[authResp](h.t, w)
	p, err := h.app.Tokens.Verify(resp.Token)
	require.NoError(h.t, err)
	return resp.Token, p.UserID
}

// doctorWithMonday registers a doctor working Mondays 09:00-12:00 in 30 minute slots.
func (h *harness) doctorWithMonday() (string, int64) {
	h.t.Helper()
	token, id := h.register(fmt.Sprintf("doc%d@clinic.test", len(h.repo.users)), RoleDoctor)
	w := h.do(http.MethodPost, "/api/doctors/schedule", token, gin.H{
		"day_of_week": "MONDAY", "start_time": "09:00", "end_time": "12:00", "slot_duration_minutes": 30,
	})
	require.Equal(h.t, http.StatusCreated, w.Code, w.Body.String())
	return token, id
}

func (h *harness) book(token string, doctorID int64, date, start string) *httptest.ResponseRecorder {
	return h.do(http.MethodPost, "/api/appointments", token, gin.H{
		"doctor_id": doctorID, "appointment_date": date, "start_time": start, "reason": "checkup",
	})
}

func TestRegisterAndLogin(t *testing.T) {
	h := newHarness(t)
	h.register("ann@example.com", RolePatient)

	w := h.do(http.MethodPost, "/api/auth/register", "", gin.H{
		"email": "ANN@example.com", "password": "password123", "role": "PATIENT", "first_name": "A", "last_name": "B",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(http.MethodPost, "/api/auth/register", "", gin.H{
		"email": "bob@example.com", "password": "short", "role": "PATIENT", "first_name": "B", "last_name": "C",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "/api/auth/register", "", gin.H{
		"email": "bob@example.com", "password": "password123", "role": "ADMIN", "first_name": "B", "last_name": "C",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "ann@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	wrong := decode[gin.H](t, w)

	w = h.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "nobody@example.com", "password": "password123"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, wrong, decode[gin.H](t, w))

	w = h.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "ann@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[authResp](t, w)
	assert.Equal(t, RolePatient, resp.Role)
	assert.NotEmpty(t, resp.Token)
}

func TestRoleGating(t *testing.T) {
	h := newHarness(t)
	patient, _ := h.register("pat@example.com", RolePatient)
	doctor, doctorID := h.doctorWithMonday()

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"no token", http.MethodGet, "/api/appointments", "", http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/api/appointments", "not-a-jwt", http.StatusUnauthorized},
		{"patient manages schedule", http.MethodPost, "/api/doctors/schedule", patient, http.StatusForbidden},
		{"patient reads doctor profile", http.MethodGet, "/api/doctors/profile", patient, http.StatusForbidden},
		{"doctor reads patient profile", http.MethodGet, "/api/patients/profile", doctor, http.StatusForbidden},
		{"doctor books", http.MethodPost, "/api/appointments", doctor, http.StatusForbidden},
		{"patient sets status", http.MethodPatch, "/api/appointments/1/status", patient, http.StatusForbidden},
		{"patient links calendar", http.MethodGet, "/api/calendar/auth", patient, http.StatusForbidden},
		{"public schedule", http.MethodGet, fmt.Sprintf("/api/doctors/%d/schedule", doctorID), "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(tt.method, tt.path, tt.token, gin.H{})
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestStateTokenIsNotASession(t *testing.T) {
	h := newHarness(t)
	state, err := h.app.Tokens.IssueState(7)
	require.NoError(t, err)

	w := h.do(http.MethodGet, "/api/appointments", state, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestScheduleLifecycle(t *testing.T) {
	h := newHarness(t)
	token, doctorID := h.doctorWithMonday()

	w := h.do(http.MethodPost, "/api/doctors/schedule", token, gin.H{
		"day_of_week": "monday", "start_time": "13:00", "end_time": "17:00", "slot_duration_minutes": 30,
	})
	assert.Equal(t, http.StatusConflict, w.Code, "second rule for the same weekday")

	for name, body := range map[string]gin.H{
		"end before start": {"day_of_week": "FRIDAY", "start_time": "12:00", "end_time": "09:00", "slot_duration_minutes": 30},
		"short duration":   {"day_of_week": "FRIDAY", "start_time": "09:00", "end_time": "12:00", "slot_duration_minutes": 10},
		"bad weekday":      {"day_of_week": "FUNDAY", "start_time": "09:00", "end_time": "12:00", "slot_duration_minutes": 30},
		"malformed time":   {"day_of_week": "FRIDAY", "start_time": "9am", "end_time": "12:00", "slot_duration_minutes": 30},
	} {
		w := h.do(http.MethodPost, "/api/doctors/schedule", token, body)
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
	}

	w = h.do(http.MethodPost, "/api/doctors/schedule", token, gin.H{
		"day_of_week": "WEDNESDAY", "start_time": "14:00", "end_time": "16:00", "slot_duration_minutes": 60, "is_active": false,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	wed := decode[Schedule](t, w)
	assert.False(t, wed.IsActive)

	// listing is Monday first whatever the insert order
	w = h.do(http.MethodPost, "/api/doctors/schedule", token, gin.H{
		"day_of_week": "SUNDAY", "start_time": "10:00", "end_time": "11:00", "slot_duration_minutes": 15,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	w = h.do(http.MethodPost, "/api/doctors/schedule", token, gin.H{
		"day_of_week": "TUESDAY", "start_time": "10:00", "end_time": "11:00", "slot_duration_minutes": 15,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = h.do(http.MethodGet, "/api/doctors/schedule", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var days []availability.Weekday
	for _, s := range decode[[]Schedule](t, w) {
		days = append(days, s.DayOfWeek)
	}
	assert.Equal(t, []availability.Weekday{availability.Monday, availability.Tuesday, availability.Wednesday, availability.Sunday}, days)

	w = h.do(http.MethodPut, fmt.Sprintf("/api/doctors/schedule/%d", wed.ID), token, gin.H{
		"day_of_week": "WEDNESDAY", "start_time": "14:00", "end_time": "18:00", "slot_duration_minutes": 60,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[Schedule](t, w).IsActive)

	other, _ := h.register("other@clinic.test", RoleDoctor)
	w = h.do(http.MethodDelete, fmt.Sprintf("/api/doctors/schedule/%d", wed.ID), other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "not the owner")

	w = h.do(http.MethodDelete, fmt.Sprintf("/api/doctors/schedule/%d", wed.ID), token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = h.do(http.MethodDelete, fmt.Sprintf("/api/doctors/schedule/%d", wed.ID), token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(http.MethodGet, fmt.Sprintf("/api/doctors/%d/schedule", doctorID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]availability.WeeklyRule](t, w), 3)
}

func TestAvailableSlots(t *testing.T) {
	h := newHarness(t)
	_, doctorID := h.doctorWithMonday()
	patient, _ := h.register("pat@example.com", RolePatient)

	slotsOn := func(date string) []availability.Slot {
		w := h.do(http.MethodGet, fmt.Sprintf("/api/doctors/%d/available-slots?date=%s", doctorID, date), "", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		return decode[[]availability.Slot](t, w)
	}

	monday := slotsOn("2026-10-19")
	require.Len(t, monday, 6)
	assert.Equal(t, availability.MustClock("09:00"), monday[0].StartTime)
	assert.Equal(t, availability.MustClock("12:00"), monday[5].EndTime)
	for _, s := range monday {
		assert.True(t, s.IsAvailable)
	}

	assert.Empty(t, slotsOn("2026-10-20"), "no rule on Tuesday")

	require.Equal(t, http.StatusCreated, h.book(patient, doctorID, "2026-10-19", "10:00").Code)
	monday = slotsOn("2026-10-19")
	for _, s := range monday {
		assert.Equal(t, s.StartTime != availability.MustClock("10:00"), s.IsAvailable, s.StartTime.String())
	}
	for _, s := range slotsOn("2026-10-26") {
		assert.True(t, s.IsAvailable, "the booking only blocks its own date")
	}

	w := h.do(http.MethodGet, fmt.Sprintf("/api/doctors/%d/available-slots?date=19-10-2026", doctorID), "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = h.do(http.MethodGet, "/api/doctors/999/available-slots?date=2026-10-19", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(http.MethodGet, fmt.Sprintf("/api/doctors/%d/booked-slots?date=2026-10-19", doctorID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	booked := decode[[]availability.BookedSlot](t, w)
	require.Len(t, booked, 1)
	assert.Equal(t, availability.StatusScheduled, booked[0].Status)
}

func TestBookableDates(t *testing.T) {
	h := newHarness(t)
	_, doctorID := h.doctorWithMonday()

	w := h.do(http.MethodGet, fmt.Sprintf("/api/doctors/%d/bookable-dates?from=2026-10-19&days=14", doctorID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["2026-10-19","2026-10-26"]`, w.Body.String())

	w = h.do(http.MethodGet, fmt.Sprintf("/api/doctors/%d/bookable-dates", doctorID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]Date](t, w), 4, "30 days from Saturday 2026-10-17 end on Sunday 2026-11-15")

	for _, days := range []string{"0", "91", "many"} {
		w = h.do(http.MethodGet, fmt.Sprintf("/api/doctors/%d/bookable-dates?days=%s", doctorID, days), "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, days)
	}
}

func TestBookAppointment(t *testing.T) {
	h := newHarness(t)
	_, doctorID := h.doctorWithMonday()
	patient, patientID := h.register("pat@example.com", RolePatient)
	rival, _ := h.register("rival@example.com", RolePatient)

	w := h.book(patient, doctorID, "2026-10-19", "10:00")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	appt := decode[Appointment](t, w)
	assert.Equal(t, patientID, appt.PatientID)
	assert.Equal(t, "2026-10-19", appt.Date.String())
	assert.Equal(t, "10:30", appt.EndTime.String())
	assert.Equal(t, availability.StatusScheduled, appt.Status)
	assert.Equal(t, "Dr. Test User", appt.Doctor.Name)

	tests := []struct {
		name  string
		token string
		date  string
		start string
		want  int
	}{
		{"slot taken", rival, "2026-10-19", "10:00", http.StatusConflict},
		{"past date", rival, "2026-10-12", "10:00", http.StatusBadRequest},
		{"today", rival, "2026-10-17", "10:00", http.StatusBadRequest},
		{"no rule that day", rival, "2026-10-20", "10:00", http.StatusUnprocessableEntity},
		{"off the grid", rival, "2026-10-19", "10:15", http.StatusUnprocessableEntity},
		{"partial tail", rival, "2026-10-19", "12:00", http.StatusUnprocessableEntity},
		{"malformed start", rival, "2026-10-19", "10", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.book(tt.token, doctorID, tt.date, tt.start)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	w = h.book(rival, 999, "2026-10-19", "10:00")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.book(rival, doctorID, "2026-10-19", "10:30")
	assert.Equal(t, http.StatusCreated, w.Code, "adjacent slot is free")
}

func TestCancelFreesSlot(t *testing.T) {
	h := newHarness(t)
	_, doctorID := h.doctorWithMonday()
	patient, _ := h.register("pat@example.com", RolePatient)
	rival, _ := h.register("rival@example.com", RolePatient)

	appt := decode[Appointment](t, h.book(patient, doctorID, "2026-10-19", "09:00"))
	path := fmt.Sprintf("/api/appointments/%d", appt.ID)

	w := h.do(http.MethodDelete, path, rival, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(http.MethodDelete, path, patient, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, availability.StatusCancelled, decode[Appointment](t, w).Status)

	w = h.do(http.MethodDelete, path, patient, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.book(rival, doctorID, "2026-10-19", "09:00")
	assert.Equal(t, http.StatusCreated, w.Code, "cancelled booking no longer blocks")
}

func TestAppointmentAccess(t *testing.T) {
	h := newHarness(t)
	doctor, doctorID := h.doctorWithMonday()
	otherDoctor, _ := h.register("other@clinic.test", RoleDoctor)
	patient, _ := h.register("pat@example.com", RolePatient)
	stranger, _ := h.register("stranger@example.com", RolePatient)

	appt := decode[Appointment](t, h.book(patient, doctorID, "2026-10-19", "11:00"))
	path := fmt.Sprintf("/api/appointments/%d", appt.ID)

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, path, patient, nil).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, path, doctor, nil).Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, path, stranger, nil).Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, path, otherDoctor, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/appointments/999", patient, nil).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/appointments/abc", patient, nil).Code)

	w := h.do(http.MethodGet, "/api/appointments", doctor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]Appointment](t, w), 1)

	w = h.do(http.MethodGet, "/api/appointments", stranger, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]Appointment](t, w))
}

func TestUpdateAppointmentStatus(t *testing.T) {
	h := newHarness(t)
	doctor, doctorID := h.doctorWithMonday()
	patient, _ := h.register("pat@example.com", RolePatient)
	rival, _ := h.register("rival@example.com", RolePatient)

	appt := decode[Appointment](t, h.book(patient, doctorID, "2026-10-19", "09:30"))
	path := fmt.Sprintf("/api/appointments/%d/status", appt.ID)

	w := h.do(http.MethodPatch, path, doctor, gin.H{"status": "CANCELLED"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = h.do(http.MethodPatch, path, doctor, gin.H{"status": "LATE"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPatch, path, doctor, gin.H{"status": "NO_SHOW", "notes": "did not arrive"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[Appointment](t, w)
	assert.Equal(t, availability.StatusNoShow, got.Status)
	assert.Equal(t, "did not arrive", got.Notes)

	w = h.do(http.MethodPatch, path, doctor, gin.H{"status": "COMPLETED"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.book(rival, doctorID, "2026-10-19", "09:30")
	assert.Equal(t, http.StatusConflict, w.Code, "no-show keeps the slot occupied")
}

func TestProfiles(t *testing.T) {
	h := newHarness(t)
	doctor, _ := h.register("doc@clinic.test", RoleDoctor)
	patient, _ := h.register("pat@example.com", RolePatient)

	w := h.do(http.MethodPut, "/api/doctors/profile", doctor, gin.H{"specialization": "Cardiology", "years_of_experience": 12})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	d := decode[Doctor](t, w)
	assert.Equal(t, "Cardiology", d.Specialization)
	assert.Equal(t, "Test", d.FirstName, "untouched fields survive")
	require.NotNil(t, d.YearsOfExperience)
	assert.Equal(t, 12, *d.YearsOfExperience)

	w = h.do(http.MethodPut, "/api/doctors/profile", doctor, gin.H{"phone": "12ab"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = h.do(http.MethodPut, "/api/doctors/profile", doctor, gin.H{"years_of_experience": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPut, "/api/patients/profile", patient, gin.H{"date_of_birth": "1990-04-01", "blood_type": "O+"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	p := decode[Patient](t, w)
	require.NotNil(t, p.DateOfBirth)
	assert.Equal(t, "1990-04-01", p.DateOfBirth.String())

	w = h.do(http.MethodPut, "/api/patients/profile", patient, gin.H{"date_of_birth": "2030-01-01"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodGet, "/api/doctors", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]Doctor](t, w), 1)
}

func TestCalendarDisabled(t *testing.T) {
	h := newHarness(t)
	doctor, _ := h.register("doc@clinic.test", RoleDoctor)

	assert.Equal(t, http.StatusServiceUnavailable, h.do(http.MethodGet, "/api/calendar/auth", doctor, nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, h.do(http.MethodGet, "/api/calendar/events", doctor, nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, h.do(http.MethodGet, "/oauth2callback?code=x", "", nil).Code)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"postgres":"ok"}`, w.Body.String())
}
