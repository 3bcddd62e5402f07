// Package client is a typed HTTP client for the MediSync API. Public reads
// hang off Client; calls that need a logged-in user hang off Session.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"medisync/internal/availability"
)

const dateLayout = "2006-01-02"

var (
	ErrSessionClosed = errors.New("session closed")
	ErrSlotTaken     = errors.New("slot is no longer available, search again")
	ErrUnauthorized  = errors.New("unauthorized")
)

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type authResp struct {
	Token string `json:"token"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Register creates an account and returns a session for it.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	var resp authResp
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", "", req, &resp); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return c.session(resp), nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	var resp authResp
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", "", body, &resp); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return c.session(resp), nil
}

func (c *Client) session(resp authResp) *Session {
	c.logger.Debug("session opened", zap.String("email", resp.Email), zap.String("role", resp.Role))
	return &Session{client: c, token: resp.Token, Email: resp.Email, Role: resp.Role}
}

// WeeklyRules fetches a doctor's recurring availability.
func (c *Client) WeeklyRules(ctx context.Context, doctorID int64) ([]availability.WeeklyRule, error) {
	var rules []availability.WeeklyRule
	path := fmt.Sprintf("/api/doctors/%d/schedule", doctorID)
	if err := c.do(ctx, http.MethodGet, path, "", nil, &rules); err != nil {
		return nil, fmt.Errorf("weekly rules for doctor %d: %w", doctorID, err)
	}
	return rules, nil
}

// BookedSlots fetches the reservations a doctor already holds on date.
func (c *Client) BookedSlots(ctx context.Context, doctorID int64, date time.Time) ([]availability.BookedSlot, error) {
	var booked []availability.BookedSlot
	path := fmt.Sprintf("/api/doctors/%d/booked-slots?date=%s", doctorID, url.QueryEscape(date.Format(dateLayout)))
	if err := c.do(ctx, http.MethodGet, path, "", nil, &booked); err != nil {
		return nil, fmt.Errorf("booked slots for doctor %d: %w", doctorID, err)
	}
	return booked, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.logger.Debug("api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var e struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&e); err == nil {
			apiErr.Message = e.Error
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %w", ErrUnauthorized, apiErr)
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Session carries the bearer token of one logged-in user. It is safe for
// concurrent use; Close ends it for every holder.
type Session struct {
	client *Client
	Email  string
	Role   string

	mu     sync.RWMutex
	token  string
	closed bool
}

// Token returns the bearer token, or "" once the session is closed.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Close discards the token. Later calls fail with ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.token = ""
	s.client.logger.Debug("session closed", zap.String("email", s.Email))
	return nil
}

func (s *Session) do(ctx context.Context, method, path string, in, out any) error {
	s.mu.RLock()
	token, closed := s.token, s.closed
	s.mu.RUnlock()
	if closed {
		return ErrSessionClosed
	}
	return s.client.do(ctx, method, path, token, in, out)
}

type Party struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone,omitempty"`
	Specialization string `json:"specialization,omitempty"`
}

type Appointment struct {
	ID        int64               `json:"id"`
	PatientID int64               `json:"patient_id"`
	DoctorID  int64               `json:"doctor_id"`
	Date      string              `json:"appointment_date"`
	StartTime availability.Clock  `json:"start_time"`
	EndTime   availability.Clock  `json:"end_time"`
	Status    availability.Status `json:"status"`
	Reason    string              `json:"reason,omitempty"`
	Notes     string              `json:"notes,omitempty"`
	Patient   Party               `json:"patient"`
	Doctor    Party               `json:"doctor"`
}

// CreateBooking books the slot starting at start on date. A slot taken
// since it was displayed yields ErrSlotTaken.
func (s *Session) CreateBooking(ctx context.Context, doctorID int64, date time.Time, start availability.Clock, reason string) (*Appointment, error) {
	body := map[string]any{
		"doctor_id":        doctorID,
		"appointment_date": date.Format(dateLayout),
		"start_time":       start.String(),
		"reason":           reason,
	}
	var appt Appointment
	err := s.do(ctx, http.MethodPost, "/api/appointments", body, &appt)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
		return nil, fmt.Errorf("%w: %s", ErrSlotTaken, apiErr.Message)
	}
	if err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}
	return &appt, nil
}

// MyAppointments lists the caller's appointments, as patient or doctor.
func (s *Session) MyAppointments(ctx context.Context) ([]Appointment, error) {
	var appts []Appointment
	if err := s.do(ctx, http.MethodGet, "/api/appointments", nil, &appts); err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

func (s *Session) CancelAppointment(ctx context.Context, id int64) (*Appointment, error) {
	var appt Appointment
	if err := s.do(ctx, http.MethodDelete, fmt.Sprintf("/api/appointments/%d", id), nil, &appt); err != nil {
		return nil, fmt.Errorf("cancel appointment %d: %w", id, err)
	}
	return &appt, nil
}
