package mail

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"oscan-intake/internal/logging"
	"oscan-intake/pkg"
)

// Sender accepts rendered messages for delivery.
type Sender interface {
	Dispatch(msg Message)
}

// Mailer renders each notification kind and hands it to the dispatcher.
// Methods return once the message is queued; render errors are logged.
type Mailer struct {
	tpl *Templates
	out Sender
	now func() time.Time
	log *logrus.Entry
}

func NewMailer(tpl *Templates, out Sender) *Mailer {
	return &Mailer{tpl: tpl, out: out, now: time.Now, log: logging.NewLogger("mailer")}
}

func (m *Mailer) dispatch(kind Kind, msg Message, err error) {
	if err != nil {
		m.log.WithError(err).WithField("kind", kind).Error("render failed")
		return
	}
	if msg.To == "" {
		m.log.WithField("kind", kind).Warn("no recipient address, message skipped")
		return
	}
	m.out.Dispatch(msg)
}

func (m *Mailer) LoginAlert(user pkg.User) {
	msg, err := m.tpl.Login(user, m.now())
	m.dispatch(KindLogin, msg, err)
}

func (m *Mailer) SignupWelcome(user pkg.User) {
	msg, err := m.tpl.Signup(user, m.now())
	m.dispatch(KindSignup, msg, err)
}

// ScanResult sends the report to the patient.  pdfPath overrides the
// record's stored path when set.
func (m *Mailer) ScanResult(user pkg.User, rec pkg.PatientRecord, pdfPath string) {
	if pdfPath != "" {
		rec.PDFPath = pdfPath
	}
	msg, err := m.tpl.ScanResult(user, rec, m.now())
	m.dispatch(KindScanResult, msg, err)
}

func (m *Mailer) NewCase(doctor, patient pkg.User, rec pkg.PatientRecord) {
	msg, err := m.tpl.NewCase(doctor, patient, rec, m.now())
	m.dispatch(KindNewCase, msg, err)
}

func (m *Mailer) AppointmentConfirmation(patient, doctor pkg.User, a pkg.Appointment) {
	msg, err := m.tpl.AppointmentConfirmation(patient, doctor, a)
	m.dispatch(KindAppointmentPatient, msg, err)
}

func (m *Mailer) AppointmentToDoctor(doctor, patient pkg.User, a pkg.Appointment) {
	msg, err := m.tpl.AppointmentToDoctor(doctor, patient, a)
	m.dispatch(KindAppointmentDoctor, msg, err)
}

// LogTransport only logs; it is used when no mail credentials are set.
type LogTransport struct {
	log *logrus.Entry
}

func NewLogTransport() *LogTransport {
	return &LogTransport{log: logging.NewLogger("mail-log")}
}

func (t *LogTransport) Send(_ context.Context, msg Message, att *Attachment) error {
	fields := logrus.Fields{"to": msg.To, "subject": msg.Subject, "html_bytes": len(msg.HTML)}
	if att != nil {
		fields["attachment"] = att.Name
	}
	t.log.WithFields(fields).Info("mail transport not configured, message logged only")
	return nil
}
