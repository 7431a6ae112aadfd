package conversation

import (
	"fmt"
	"strings"

	"github.com/shifalabs/clinic-receptionist/internal/intake"
	"github.com/shifalabs/clinic-receptionist/internal/schedule"
)

// EscalationReply is the fixed emergency override. It bypasses every other
// component so it can be produced even when downstream services are degraded.
const EscalationReply = "URGENT: Based on your symptoms, this may be an emergency. " +
	"Please call emergency services (115) or go to the nearest hospital immediately. " +
	"Do not wait for an appointment."

// ReplySystemError is the fail-closed reply for store failures: a visible
// failure with no confirmation.
const ReplySystemError = "Sorry, we could not complete your request right now. " +
	"Please try again in a few minutes or call the clinic directly."

func (e *Engine) greetingReply() string {
	return fmt.Sprintf("Hello! Welcome to %s. I can help you book an appointment with our doctor. "+
		"May I have your name please?", e.clinicName)
}

func (e *Engine) returningPatientReply(name string) string {
	return fmt.Sprintf("Welcome back to %s, %s! I can help you book another appointment with our doctor. "+
		"What is your age?", e.clinicName, name)
}

func promptFor(field intake.Field, fields intake.Fields) string {
	switch field {
	case intake.FieldAge:
		return fmt.Sprintf("Thank you, %s! What is your age?", fields.Name)
	case intake.FieldPhone:
		return "Great! What is your phone number? (format: 0300-1234567)"
	case intake.FieldComplaint:
		return "I understand. What is the main health concern you'd like to see the doctor for?"
	case intake.FieldDate:
		return "Got it. Which date would you prefer for your appointment? " +
			"(YYYY-MM-DD, or say 'today'/'aaj', 'tomorrow'/'kal')"
	default:
		return "May I have your name please?"
	}
}

func repromptFor(field intake.Field) string {
	switch field {
	case intake.FieldName:
		return "Sorry, I didn't catch your name. Could you tell me your full name please? (Aap ka naam kya hai?)"
	case intake.FieldAge:
		return "Please tell me your age as a number between 1 and 120. (Aap ki umar kya hai?)"
	case intake.FieldPhone:
		return "That doesn't look like a valid phone number. Please use the format 0300-1234567."
	case intake.FieldComplaint:
		return "Could you briefly describe the health concern you'd like to see the doctor about?"
	case intake.FieldDate:
		return "Sorry, I couldn't understand that date. Please give a date like 2024-01-20, or say 'today' or 'tomorrow'."
	default:
		return "Could you please repeat that?"
	}
}

func pastDateReply() string {
	return "Sorry, I cannot book appointments for past dates. Please choose today or a future date."
}

func beyondHorizonReply(horizonDays int) string {
	return fmt.Sprintf("Sorry, we can only book appointments up to %d days ahead. Please choose an earlier date.", horizonDays)
}

func fullyBookedReply(date string) string {
	return fmt.Sprintf("Sorry, no slots are available on %s. Please choose another date.", date)
}

func slotListReply(date string, slots []schedule.Slot) string {
	labels := make([]string, len(slots))
	for i, s := range slots {
		labels[i] = s.Display()
	}
	return fmt.Sprintf("Available slots on %s: %s\n\nWhich time works best for you?",
		date, strings.Join(labels, ", "))
}

func slotNotOfferedReply(date string, slots []schedule.Slot) string {
	return "That time is not in the available list. " + slotListReply(date, slots)
}

func conflictReply(date string, slots []schedule.Slot) string {
	return "Sorry, that slot was just booked by another patient. " + slotListReply(date, slots)
}

func confirmationReply(appt confirmedAppointment) string {
	return fmt.Sprintf("Appointment confirmed!\n\n"+
		"Patient: %s\n"+
		"Date: %s\n"+
		"Time: %s\n"+
		"Phone: %s\n\n"+
		"You will receive a reminder message before your appointment. "+
		"Please arrive 10 minutes early. Thank you!",
		appt.Name, appt.FriendlyDate, appt.FriendlyTime, appt.Phone)
}

type confirmedAppointment struct {
	Name         string
	FriendlyDate string
	FriendlyTime string
	Phone        string
}
