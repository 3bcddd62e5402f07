package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"medisync/internal/availability"
)

// AppointmentInfo carries what the patient needs to see in a notice.
type AppointmentInfo struct {
	ID           int64
	PatientEmail string
	PatientName  string
	DoctorName   string
	Date         time.Time
	StartTime    availability.Clock
	EndTime      availability.Clock
	Reason       string
}

// Notifier sends appointment emails. A nil *Notifier drops every message.
type Notifier struct {
	sender EmailSender
	logger *zap.Logger
}

func NewNotifier(sender EmailSender, logger *zap.Logger) *Notifier {
	if sender == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{sender: sender, logger: logger}
}

func (n *Notifier) AppointmentBooked(ctx context.Context, a AppointmentInfo) error {
	if n == nil || a.PatientEmail == "" {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", greetingName(a.PatientName))
	fmt.Fprintf(&b, "Your appointment with %s is confirmed for %s, %s-%s.\n",
		a.DoctorName, a.Date.Format("Monday, 2 January 2006"), a.StartTime, a.EndTime)
	if a.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", a.Reason)
	}
	fmt.Fprintf(&b, "\nReference: #%d\n", a.ID)

	return n.sender.Send(ctx, EmailMessage{
		To:      a.PatientEmail,
		Subject: "Appointment confirmed",
		Body:    b.String(),
	})
}

func (n *Notifier) AppointmentCancelled(ctx context.Context, a AppointmentInfo) error {
	if n == nil || a.PatientEmail == "" {
		return nil
	}
	body := fmt.Sprintf("Hello %s,\n\nYour appointment #%d with %s on %s at %s has been cancelled.\n",
		greetingName(a.PatientName), a.ID, a.DoctorName, a.Date.Format("Monday, 2 January 2006"), a.StartTime)
	return n.sender.Send(ctx, EmailMessage{
		To:      a.PatientEmail,
		Subject: "Appointment cancelled",
		Body:    body,
	})
}

func greetingName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "there"
	}
	return name
}
