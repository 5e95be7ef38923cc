package mail

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oscan-intake/pkg"
)

var (
	patient = pkg.User{ID: 7, Username: "alice", Email: "alice@example.com", Role: pkg.UserRolePatient}
	doctor  = pkg.User{ID: 1, Username: "Smith", Email: "smith@example.com", Role: pkg.UserRoleDoctor, Specialization: "Oncologist"}
	now     = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
)

func newTestTemplates(t *testing.T) *Templates {
	t.Helper()
	tpl, err := NewTemplates("http://clinic.example.com/")
	require.NoError(t, err)
	return tpl
}

func TestLoginTemplate(t *testing.T) {
	msg, err := newTestTemplates(t).Login(patient, now)
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", msg.To)
	assert.Equal(t, "🔐 New Login to Your O-Scan Account", msg.Subject)
	assert.Contains(t, msg.HTML, "Hello, alice")
	assert.Contains(t, msg.HTML, "01 Mar 2024 at 09:30 AM")
	assert.Contains(t, msg.HTML, "Patient")
	assert.Contains(t, msg.HTML, "O-SCAN DIAGNOSTICS")
	assert.Contains(t, msg.HTML, defaultFooter)
}

func TestSignupTemplateLinksDashboard(t *testing.T) {
	tpl := newTestTemplates(t)

	msg, err := tpl.Signup(patient, now)
	require.NoError(t, err)
	assert.Contains(t, msg.HTML, `href="http://clinic.example.com/patient_dashboard"`)
	assert.Contains(t, msg.HTML, "01 March 2024")

	msg, err = tpl.Signup(doctor, now)
	require.NoError(t, err)
	assert.Contains(t, msg.HTML, `href="http://clinic.example.com/doctor_dashboard"`)
}

func TestScanResultTemplate(t *testing.T) {
	tpl := newTestTemplates(t)
	rec := pkg.PatientRecord{Timestamp: "20240301_093000", Prediction: "Oral Cancer Risk", Confidence: "91.2", PDFPath: "/reports/r.pdf"}

	msg, err := tpl.ScanResult(patient, rec, now)
	require.NoError(t, err)
	assert.Equal(t, "🩺 Your O-Scan Report — HIGH RISK Detected", msg.Subject)
	assert.Equal(t, "/reports/r.pdf", msg.AttachmentPath)
	assert.Equal(t, "OScan_Report_20240301_093000.pdf", msg.AttachmentName)
	assert.Contains(t, msg.HTML, "URGENT")
	assert.Contains(t, msg.HTML, "91.2%")
	assert.Contains(t, msg.HTML, "20240301")

	rec.Prediction = "Normal"
	rec.Timestamp = ""
	msg, err = tpl.ScanResult(patient, rec, now)
	require.NoError(t, err)
	assert.Equal(t, "🩺 Your O-Scan Report — LOW RISK Detected", msg.Subject)
	assert.Equal(t, "OScan_Report.pdf", msg.AttachmentName)
	assert.Contains(t, msg.HTML, "Good News")
	assert.NotContains(t, msg.HTML, "URGENT")
}

func TestNewCaseTemplate(t *testing.T) {
	rec := pkg.PatientRecord{Timestamp: "20240301_093000", Prediction: "", PainLevel: "Mild"}

	msg, err := newTestTemplates(t).NewCase(doctor, patient, rec, now)
	require.NoError(t, err)
	assert.Equal(t, "smith@example.com", msg.To)
	assert.Equal(t, "📋 New Case: alice — Result Pending", msg.Subject)
	assert.Contains(t, msg.HTML, "Dear Dr. Smith")
	assert.Contains(t, msg.HTML, "ROUTINE")
	assert.Contains(t, msg.HTML, "None reported")
	assert.Empty(t, msg.AttachmentPath)
}

func TestAppointmentTemplates(t *testing.T) {
	tpl := newTestTemplates(t)
	appt := pkg.Appointment{
		StartTime: time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC),
	}

	msg, err := tpl.AppointmentConfirmation(patient, doctor, appt)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", msg.To)
	assert.Equal(t, "📅 Appointment Confirmed — Monday, 04 March 2024 with Dr. Smith", msg.Subject)
	assert.Contains(t, msg.HTML, "02:00 PM")
	assert.Contains(t, msg.HTML, "30 minutes")
	assert.Contains(t, msg.HTML, "General consultation")
	assert.Contains(t, msg.HTML, "Oncologist")

	msg, err = tpl.AppointmentToDoctor(doctor, patient, appt)
	require.NoError(t, err)
	assert.Equal(t, "smith@example.com", msg.To)
	assert.Equal(t, "🗓️ New Appointment: alice on Monday, 04 March 2024", msg.Subject)
	assert.Contains(t, msg.HTML, "Not specified")
}

func TestTemplatesEscapeUserInput(t *testing.T) {
	evil := patient
	evil.Username = `<script>alert(1)</script>`

	msg, err := newTestTemplates(t).Login(evil, now)
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "<script>")
}

func TestIsHighRisk(t *testing.T) {
	assert.True(t, IsHighRisk("Oral Cancer Risk"))
	assert.False(t, IsHighRisk("Normal"))
	assert.False(t, IsHighRisk(""))
}

type captureSender struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *captureSender) Dispatch(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func TestMailerDispatchesRenderedMessages(t *testing.T) {
	out := &captureSender{}
	m := NewMailer(newTestTemplates(t), out)
	m.now = func() time.Time { return now }

	m.LoginAlert(patient)
	m.ScanResult(patient, pkg.PatientRecord{Prediction: "Normal", PDFPath: "/stored.pdf"}, "/override.pdf")
	m.SignupWelcome(pkg.User{Username: "ghost"})

	require.Len(t, out.msgs, 2)
	assert.Equal(t, "🔐 New Login to Your O-Scan Account", out.msgs[0].Subject)
	assert.Equal(t, "/override.pdf", out.msgs[1].AttachmentPath)
}
