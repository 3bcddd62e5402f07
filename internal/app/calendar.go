package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"medisync/internal/availability"
)

const primaryCalendar = "primary"

// Calendar mirrors appointments onto doctors' Google calendars. A nil
// *Calendar means Google is not configured.
type Calendar struct {
	config *oauth2.Config
	loc    *time.Location
	opts   []option.ClientOption
}

// CalendarEvent represents a Google Calendar event
type CalendarEvent struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Location    string    `json:"location,omitempty"`
	Status      string    `json:"status"`
	Creator     string    `json:"creator,omitempty"`
}

type CalendarInfo struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	Primary     bool   `json:"primary"`
	AccessRole  string `json:"access_role"`
}

func NewCalendar(clientID, clientSecret, redirectURL string, loc *time.Location, opts ...option.ClientOption) *Calendar {
	if clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil
	}
	if loc == nil {
		loc = time.Local
	}
	return &Calendar{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes: []string{
				calendar.CalendarEventsScope,
				calendar.CalendarReadonlyScope,
			},
			Endpoint: google.Endpoint,
		},
		loc:  loc,
		opts: opts,
	}
}

// service builds a Calendar client for the doctor's stored token. Refreshed
// tokens are written back before returning.
func (cal *Calendar) service(ctx context.Context, repo Repository, doctorID int64) (*calendar.Service, error) {
	raw, err := repo.CalendarToken(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	var token oauth2.Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("decode calendar token: %w", err)
	}

	ts := cal.config.TokenSource(ctx, &token)
	fresh, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh calendar token: %w", err)
	}
	if fresh.AccessToken != token.AccessToken {
		if b, err := json.Marshal(fresh); err == nil {
			_ = repo.SaveCalendarToken(ctx, doctorID, b)
		}
	}

	opts := append([]option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(fresh)))}, cal.opts...)
	return calendar.NewService(ctx, opts...)
}

func (cal *Calendar) at(d Date, clock availability.Clock) string {
	y, m, day := d.Date()
	return clock.On(time.Date(y, m, day, 0, 0, 0, 0, cal.loc)).Format(time.RFC3339)
}

// AddAppointment inserts appt on the doctor's primary calendar and returns
// the event id. It is a no-op when Google is disabled or the doctor has not
// linked a calendar.
func (cal *Calendar) AddAppointment(ctx context.Context, repo Repository, appt *Appointment) (string, error) {
	if cal == nil {
		return "", nil
	}
	srv, err := cal.service(ctx, repo, appt.DoctorID)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	ev := &calendar.Event{
		Summary:     "Appointment: " + appt.Patient.Name,
		Description: appt.Reason,
		Start:       &calendar.EventDateTime{DateTime: cal.at(appt.Date, appt.StartTime), TimeZone: cal.loc.String()},
		End:         &calendar.EventDateTime{DateTime: cal.at(appt.Date, appt.EndTime), TimeZone: cal.loc.String()},
	}
	if appt.Patient.Email != "" {
		ev.Attendees = []*calendar.EventAttendee{{Email: appt.Patient.Email, DisplayName: appt.Patient.Name}}
	}
	created, err := srv.Events.Insert(primaryCalendar, ev).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert calendar event: %w", err)
	}
	return created.Id, nil
}

// RemoveAppointment deletes the event created for appt, if any.
func (cal *Calendar) RemoveAppointment(ctx context.Context, repo Repository, appt *Appointment) error {
	if cal == nil || appt.GoogleEventID == "" {
		return nil
	}
	srv, err := cal.service(ctx, repo, appt.DoctorID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := srv.Events.Delete(primaryCalendar, appt.GoogleEventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete calendar event: %w", err)
	}
	return nil
}

// GET /api/calendar/auth
func (a *App) GoogleAuthHandler(c *gin.Context) {
	if a.Calendar == nil {
		a.fail(c, ErrCalendarDisabled)
		return
	}

	state, err := a.Tokens.IssueState(principal(c).UserID)
	if err != nil {
		a.fail(c, err)
		return
	}
	url := a.Calendar.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	c.JSON(http.StatusOK, gin.H{
		"auth_url": url,
		"state":    state,
	})
}

// GET /oauth2callback
func (a *App) GoogleOAuth2CallbackHandler(c *gin.Context) {
	if a.Calendar == nil {
		a.fail(c, ErrCalendarDisabled)
		return
	}

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authorization code required"})
		return
	}
	doctorID, err := a.Tokens.VerifyState(c.Query("state"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired state"})
		return
	}

	ctx := c.Request.Context()
	token, err := a.Calendar.config.Exchange(ctx, code)
	if err != nil {
		a.Logger.Warn("oauth code exchange failed", zap.Int64("doctor_id", doctorID), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to exchange code for token"})
		return
	}
	tokenJSON, err := json.Marshal(token)
	if err != nil {
		a.fail(c, err)
		return
	}
	if err := a.Repo.SaveCalendarToken(ctx, doctorID, tokenJSON); err != nil {
		a.fail(c, err)
		return
	}

	a.Logger.Info("calendar linked", zap.Int64("doctor_id", doctorID))
	c.JSON(http.StatusOK, gin.H{"message": "Authorization successful"})
}

// GET /api/calendar/events?time_min=RFC3339&time_max=RFC3339
func (a *App) GetGoogleCalendarEvents(c *gin.Context) {
	if a.Calendar == nil {
		a.fail(c, ErrCalendarDisabled)
		return
	}

	ctx := c.Request.Context()
	srv, err := a.Calendar.service(ctx, a.Repo, principal(c).UserID)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "google calendar not linked"})
		return
	}
	if err != nil {
		a.fail(c, err)
		return
	}

	timeMin := c.Query("time_min")
	if timeMin == "" {
		timeMin = a.now().Format(time.RFC3339)
	}
	eventsCall := srv.Events.List(c.DefaultQuery("calendar_id", primaryCalendar)).
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(timeMin).
		MaxResults(250).
		Context(ctx)
	if timeMax := c.Query("time_max"); timeMax != "" {
		eventsCall = eventsCall.TimeMax(timeMax)
	}

	events, err := eventsCall.Do()
	if err != nil {
		a.fail(c, fmt.Errorf("failed to retrieve events: %w", err))
		return
	}

	calendarEvents := make([]CalendarEvent, 0, len(events.Items))
	for _, item := range events.Items {
		event := CalendarEvent{
			ID:          item.Id,
			Summary:     item.Summary,
			Description: item.Description,
			Location:    item.Location,
			Status:      item.Status,
			StartTime:   eventTime(item.Start),
			EndTime:     eventTime(item.End),
		}
		if item.Creator != nil {
			event.Creator = item.Creator.Email
		}
		calendarEvents = append(calendarEvents, event)
	}

	c.JSON(http.StatusOK, gin.H{
		"events": calendarEvents,
		"count":  len(calendarEvents),
	})
}

// GET /api/calendar/calendars
func (a *App) GetGoogleCalendarList(c *gin.Context) {
	if a.Calendar == nil {
		a.fail(c, ErrCalendarDisabled)
		return
	}

	ctx := c.Request.Context()
	srv, err := a.Calendar.service(ctx, a.Repo, principal(c).UserID)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "google calendar not linked"})
		return
	}
	if err != nil {
		a.fail(c, err)
		return
	}

	calendarList, err := srv.CalendarList.List().Context(ctx).Do()
	if err != nil {
		a.fail(c, fmt.Errorf("failed to retrieve calendars: %w", err))
		return
	}

	calendars := make([]CalendarInfo, 0, len(calendarList.Items))
	for _, item := range calendarList.Items {
		calendars = append(calendars, CalendarInfo{
			ID:          item.Id,
			Summary:     item.Summary,
			Description: item.Description,
			Primary:     item.Primary,
			AccessRole:  item.AccessRole,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"calendars": calendars,
		"count":     len(calendars),
	})
}

// eventTime reads a timed or all-day event boundary.
func eventTime(t *calendar.EventDateTime) time.Time {
	if t == nil {
		return time.Time{}
	}
	if t.DateTime != "" {
		if v, err := time.Parse(time.RFC3339, t.DateTime); err == nil {
			return v
		}
	}
	if t.Date != "" {
		if v, err := time.Parse(dateLayout, t.Date); err == nil {
			return v
		}
	}
	return time.Time{}
}
