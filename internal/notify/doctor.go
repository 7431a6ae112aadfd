package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/shifalabs/clinic-receptionist/internal/appointments"
	"github.com/shifalabs/clinic-receptionist/internal/messaging"
	"github.com/shifalabs/clinic-receptionist/pkg/logging"
)

// DoctorNotifier tells the doctor about each confirmed booking over WhatsApp
// and, when configured, email. Either channel may be absent.
type DoctorNotifier struct {
	messenger   messaging.Messenger
	email       EmailSender
	logger      *logging.Logger
	doctorPhone string
	doctorEmail string
	clinicName  string
}

// NewDoctorNotifier creates the staff-facing booking notifier.
func NewDoctorNotifier(messenger messaging.Messenger, email EmailSender, logger *logging.Logger, doctorPhone, doctorEmail, clinicName string) *DoctorNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	if clinicName == "" {
		clinicName = "the clinic"
	}
	return &DoctorNotifier{
		messenger:   messenger,
		email:       email,
		logger:      logger.WithComponent("notify"),
		doctorPhone: doctorPhone,
		doctorEmail: doctorEmail,
		clinicName:  clinicName,
	}
}

// NotifyBooking sends the booking summary over every configured channel.
// A partial failure is reported but the rest still go out.
func (n *DoctorNotifier) NotifyBooking(ctx context.Context, appt *appointments.Appointment) error {
	if appt == nil {
		return errors.New("notify: appointment required")
	}
	summary := bookingSummary(n.clinicName, appt)

	var errs []error
	if n.messenger != nil && n.doctorPhone != "" {
		if err := n.messenger.Send(ctx, n.doctorPhone, summary); err != nil {
			errs = append(errs, fmt.Errorf("notify: doctor whatsapp: %w", err))
		}
	}
	if n.email != nil && n.doctorEmail != "" {
		msg := EmailMessage{
			To:      n.doctorEmail,
			ToName:  "Doctor",
			Subject: fmt.Sprintf("New booking: %s on %s at %s", appt.PatientName, appt.DateString(), appt.SlotStart),
			Body:    summary,
		}
		if err := n.email.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("notify: doctor email: %w", err))
		}
	}
	return errors.Join(errs...)
}

func bookingSummary(clinicName string, appt *appointments.Appointment) string {
	start := appt.StartAt()
	return fmt.Sprintf("New appointment at %s\n\n"+
		"Patient: %s (%d)\n"+
		"Phone: %s\n"+
		"Complaint: %s\n"+
		"When: %s at %s",
		clinicName, appt.PatientName, appt.PatientAge, appt.Phone, appt.Complaint,
		start.Format("Monday, 02 January 2006"), start.Format("03:04 PM"))
}
