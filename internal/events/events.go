// Package events turns account and clinical activity raised by the web
// front end into notification emails.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"oscan-intake/internal/logging"
	"oscan-intake/pkg"
)

type Kind string

const (
	KindLogin             Kind = "user.login"
	KindSignup            Kind = "user.signup"
	KindCaseSubmitted     Kind = "case.submitted"
	KindAppointmentBooked Kind = "appointment.booked"
)

// Event is the JSON payload carried by NOTIFY and NATS messages.
type Event struct {
	Kind          Kind   `json:"kind"`
	UserID        int64  `json:"user_id,omitempty"`
	RecordID      int64  `json:"record_id,omitempty"`
	AppointmentID int64  `json:"appointment_id,omitempty"`
	PDFPath       string `json:"pdf_path,omitempty"`
}

func Decode(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Kind == "" {
		return Event{}, errors.New("decode event: missing kind")
	}
	return ev, nil
}

// Records looks up the entities an event refers to.
type Records interface {
	GetUser(ctx context.Context, id int64) (pkg.User, error)
	GetPatientRecord(ctx context.Context, id int64) (pkg.PatientRecord, error)
	GetAppointment(ctx context.Context, id int64) (pkg.Appointment, error)
}

// Notifications is the set of emails an event can trigger.
type Notifications interface {
	LoginAlert(user pkg.User)
	SignupWelcome(user pkg.User)
	ScanResult(user pkg.User, rec pkg.PatientRecord, pdfPath string)
	NewCase(doctor, patient pkg.User, rec pkg.PatientRecord)
	AppointmentConfirmation(patient, doctor pkg.User, a pkg.Appointment)
	AppointmentToDoctor(doctor, patient pkg.User, a pkg.Appointment)
}

// Handler routes events to notifications.  Errors are logged and never
// returned to the source.
type Handler struct {
	records Records
	notify  Notifications
	log     *logrus.Entry
}

func NewHandler(records Records, notify Notifications) *Handler {
	return &Handler{records: records, notify: notify, log: logging.NewLogger("events")}
}

// HandlePayload decodes a raw payload and handles it.
func (h *Handler) HandlePayload(ctx context.Context, payload []byte) {
	ev, err := Decode(payload)
	if err != nil {
		h.log.WithError(err).WithField("payload", string(payload)).Warn("discarding event")
		return
	}
	h.Handle(ctx, ev)
}

func (h *Handler) Handle(ctx context.Context, ev Event) {
	log := h.log.WithField("kind", ev.Kind)
	var err error
	switch ev.Kind {
	case KindLogin, KindSignup:
		err = h.account(ctx, ev)
	case KindCaseSubmitted:
		err = h.caseSubmitted(ctx, ev)
	case KindAppointmentBooked:
		err = h.appointmentBooked(ctx, ev)
	default:
		log.Warn("unknown event kind ignored")
		return
	}
	if err != nil {
		log.WithError(err).Error("event handling failed")
		return
	}
	log.Debug("event handled")
}

func (h *Handler) account(ctx context.Context, ev Event) error {
	user, err := h.records.GetUser(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("user %d: %w", ev.UserID, err)
	}
	if ev.Kind == KindLogin {
		h.notify.LoginAlert(user)
	} else {
		h.notify.SignupWelcome(user)
	}
	return nil
}

func (h *Handler) caseSubmitted(ctx context.Context, ev Event) error {
	rec, err := h.records.GetPatientRecord(ctx, ev.RecordID)
	if err != nil {
		return fmt.Errorf("record %d: %w", ev.RecordID, err)
	}
	patient, err := h.records.GetUser(ctx, rec.UserID)
	if err != nil {
		return fmt.Errorf("patient %d: %w", rec.UserID, err)
	}
	h.notify.ScanResult(patient, rec, ev.PDFPath)

	if rec.DoctorID == nil {
		return nil
	}
	doctor, err := h.records.GetUser(ctx, *rec.DoctorID)
	if err != nil {
		return fmt.Errorf("doctor %d: %w", *rec.DoctorID, err)
	}
	h.notify.NewCase(doctor, patient, rec)
	return nil
}

func (h *Handler) appointmentBooked(ctx context.Context, ev Event) error {
	a, err := h.records.GetAppointment(ctx, ev.AppointmentID)
	if err != nil {
		return fmt.Errorf("appointment %d: %w", ev.AppointmentID, err)
	}
	patient, err := h.records.GetUser(ctx, a.PatientID)
	if err != nil {
		return fmt.Errorf("patient %d: %w", a.PatientID, err)
	}
	doctor, err := h.records.GetUser(ctx, a.DoctorID)
	if err != nil {
		return fmt.Errorf("doctor %d: %w", a.DoctorID, err)
	}
	h.notify.AppointmentConfirmation(patient, doctor, a)
	h.notify.AppointmentToDoctor(doctor, patient, a)
	return nil
}
