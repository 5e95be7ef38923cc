package mail

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"oscan-intake/pkg"
)

//go:embed templates/*.html
var templateFS embed.FS

const defaultFooter = "This is an automated message from O-Scan Diagnostics. Please do not reply to this email."

// Kind names one of the branded messages.
type Kind string

const (
	KindLogin              Kind = "login"
	KindSignup             Kind = "signup"
	KindScanResult         Kind = "scan_result"
	KindNewCase            Kind = "new_case"
	KindAppointmentPatient Kind = "appointment_patient"
	KindAppointmentDoctor  Kind = "appointment_doctor"
)

var kinds = []Kind{KindLogin, KindSignup, KindScanResult, KindNewCase, KindAppointmentPatient, KindAppointmentDoctor}

type row struct{ Label, Value string }

type button struct{ Text, Href string }

type when struct{ Label, Date, Start, End string }

type page struct {
	Title      string
	Heading    string
	Subheading string
	FooterNote string
	Year       int
	Body       any
}

// Templates renders every message kind from the shared layout.  All
// builders are pure: the same inputs give the same subject and HTML.
type Templates struct {
	publicURL string
	sets      map[Kind]*template.Template
}

// NewTemplates parses the embedded layout and message bodies.  publicURL is
// the front end base used for dashboard links.
func NewTemplates(publicURL string) (*Templates, error) {
	base, err := template.ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	t := &Templates{publicURL: strings.TrimRight(publicURL, "/"), sets: make(map[Kind]*template.Template, len(kinds))}
	for _, k := range kinds {
		set, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := set.ParseFS(templateFS, "templates/"+string(k)+".html"); err != nil {
			return nil, fmt.Errorf("parse %s template: %w", k, err)
		}
		t.sets[k] = set
	}
	return t, nil
}

func (t *Templates) render(k Kind, p page) (string, error) {
	if p.FooterNote == "" {
		p.FooterNote = defaultFooter
	}
	var buf bytes.Buffer
	if err := t.sets[k].ExecuteTemplate(&buf, "layout", p); err != nil {
		return "", fmt.Errorf("render %s: %w", k, err)
	}
	return buf.String(), nil
}

func (t *Templates) link(path string) string { return t.publicURL + path }

// IsHighRisk reports whether a model prediction flags risk.
func IsHighRisk(prediction string) bool {
	return strings.Contains(prediction, "Risk")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "—"
	}
	return s
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func percent(confidence string) string {
	return orDash(confidence) + "%"
}

// Login builds the sign-in security alert.
func (t *Templates) Login(user pkg.User, at time.Time) (Message, error) {
	html, err := t.render(KindLogin, page{
		Title:      "Login Notification",
		Heading:    "New Login Detected",
		Subheading: "Someone just signed in to your O-Scan account.",
		Year:       at.Year(),
		Body: struct {
			Username string
			Rows     []row
		}{
			Username: user.Username,
			Rows: []row{
				{"Account", user.Email},
				{"Role", titleCase(user.Role)},
				{"Date & Time", at.Format("02 Jan 2006 at 03:04 PM")},
				{"Status", "✅ Successful"},
			},
		},
	})
	if err != nil {
		return Message{}, err
	}
	return Message{To: user.Email, Subject: "🔐 New Login to Your O-Scan Account", HTML: html}, nil
}

// Signup builds the welcome message for a new account.
func (t *Templates) Signup(user pkg.User, joined time.Time) (Message, error) {
	html, err := t.render(KindSignup, page{
		Title:      "Welcome!",
		Heading:    "Welcome to O-Scan!",
		Subheading: "Your account has been successfully created.",
		Year:       joined.Year(),
		Body: struct {
			Username string
			Rows     []row
			Button   button
		}{
			Username: user.Username,
			Rows: []row{
				{"Name", user.Username},
				{"Email", user.Email},
				{"Role", titleCase(user.Role)},
				{"Joined", joined.Format("02 January 2006")},
			},
			Button: button{"Go to Your Dashboard", t.link(dashboardPath(user))},
		},
	})
	if err != nil {
		return Message{}, err
	}
	return Message{To: user.Email, Subject: "🎉 Welcome to O-Scan Diagnostics!", HTML: html}, nil
}

func dashboardPath(user pkg.User) string {
	if user.IsDoctor() {
		return "/doctor_dashboard"
	}
	return "/patient_dashboard"
}

type riskBadge struct {
	High       bool
	Label      string
	Color      string
	Background string
}

func riskOf(prediction string) riskBadge {
	if IsHighRisk(prediction) {
		return riskBadge{High: true, Label: "HIGH RISK", Color: "#dc2626", Background: "#fef2f2"}
	}
	return riskBadge{Label: "LOW RISK", Color: "#16a34a", Background: "#f0fdf4"}
}

// ReportName is the attachment name for a record's PDF report.
func ReportName(rec pkg.PatientRecord) string {
	if rec.Timestamp == "" {
		return "OScan_Report.pdf"
	}
	return "OScan_Report_" + rec.Timestamp + ".pdf"
}

// ScanResult builds the patient's report email with the PDF attached.
func (t *Templates) ScanResult(user pkg.User, rec pkg.PatientRecord, now time.Time) (Message, error) {
	risk := riskOf(rec.Prediction)
	date := now.Format("20060102")
	if len(rec.Timestamp) >= 8 {
		date = rec.Timestamp[:8]
	}
	html, err := t.render(KindScanResult, page{
		Title:      "Scan Report",
		Heading:    "Your Scan Report is Ready",
		Subheading: "AI analysis complete. View your results below.",
		FooterNote: "Your health data is protected. This report is confidential and intended only for the recipient.",
		Year:       now.Year(),
		Body: struct {
			Username   string
			Prediction string
			Confidence string
			Risk       riskBadge
			Rows       []row
		}{
			Username:   user.Username,
			Prediction: orDefault(rec.Prediction, "N/A"),
			Confidence: percent(rec.Confidence),
			Risk:       risk,
			Rows: []row{
				{"Patient", user.Username},
				{"Scan ID", orDash(rec.Timestamp)},
				{"Date", date},
				{"Result", orDash(rec.Prediction)},
				{"Confidence", percent(rec.Confidence)},
			},
		},
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:             user.Email,
		Subject:        fmt.Sprintf("🩺 Your O-Scan Report — %s Detected", risk.Label),
		HTML:           html,
		AttachmentPath: rec.PDFPath,
		AttachmentName: ReportName(rec),
	}, nil
}

// NewCase alerts the assigned doctor to a submitted screening.
func (t *Templates) NewCase(doctor, patient pkg.User, rec pkg.PatientRecord, now time.Time) (Message, error) {
	priority := struct{ Label, Color string }{"ROUTINE", "#2563eb"}
	if IsHighRisk(rec.Prediction) {
		priority.Label, priority.Color = "HIGH PRIORITY", "#dc2626"
	}
	html, err := t.render(KindNewCase, page{
		Title:      "New Case Alert",
		Heading:    "New Patient Case Assigned",
		Subheading: "A patient has completed their oral screening.",
		FooterNote: "This notification was sent as you are the assigned doctor for this patient.",
		Year:       now.Year(),
		Body: struct {
			DoctorName string
			Priority   struct{ Label, Color string }
			Rows       []row
			Button     button
		}{
			DoctorName: doctor.Username,
			Priority:   priority,
			Rows: []row{
				{"Patient Name", patient.Username},
				{"Patient Email", patient.Email},
				{"Scan ID", orDash(rec.Timestamp)},
				{"AI Result", orDash(rec.Prediction)},
				{"Confidence", percent(rec.Confidence)},
				{"Pain Level", orDash(rec.PainLevel)},
				{"Bleeding", orDash(rec.Bleeding)},
				{"Swelling", orDash(rec.Swelling)},
				{"Habits", orDefault(rec.Habits, "None reported")},
			},
			Button: button{"Open Doctor Dashboard →", t.link("/doctor_dashboard")},
		},
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      doctor.Email,
		Subject: fmt.Sprintf("📋 New Case: %s — %s", patient.Username, orDefault(rec.Prediction, "Result Pending")),
		HTML:    html,
	}, nil
}

func appointmentWhen(label string, a pkg.Appointment) when {
	return when{
		Label: label,
		Date:  a.StartTime.Format("Monday, 02 January 2006"),
		Start: a.StartTime.Format("03:04 PM"),
		End:   a.EndTime.Format("03:04 PM"),
	}
}

// AppointmentConfirmation is sent to the patient after booking.
func (t *Templates) AppointmentConfirmation(patient, doctor pkg.User, a pkg.Appointment) (Message, error) {
	w := appointmentWhen("APPOINTMENT DATE", a)
	html, err := t.render(KindAppointmentPatient, page{
		Title:      "Appointment Confirmed",
		Heading:    "Appointment Confirmed",
		Subheading: "Your appointment has been successfully scheduled.",
		Year:       a.StartTime.Year(),
		Body: struct {
			PatientName string
			DoctorName  string
			When        when
			Rows        []row
			Button      button
		}{
			PatientName: patient.Username,
			DoctorName:  doctor.Username,
			When:        w,
			Rows: []row{
				{"Doctor", "Dr. " + doctor.Username},
				{"Specialization", orDefault(doctor.Specialization, "General")},
				{"Date", w.Date},
				{"Time", w.Start + " – " + w.End},
				{"Duration", fmt.Sprintf("%d minutes", int(a.EndTime.Sub(a.StartTime).Minutes()))},
				{"Reason", orDefault(a.Reason, "General consultation")},
				{"Status", "✅ Scheduled"},
			},
			Button: button{"View My Appointments", t.link("/appointments")},
		},
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      patient.Email,
		Subject: fmt.Sprintf("📅 Appointment Confirmed — %s with Dr. %s", w.Date, doctor.Username),
		HTML:    html,
	}, nil
}

// AppointmentToDoctor tells the doctor about a new booking.
func (t *Templates) AppointmentToDoctor(doctor, patient pkg.User, a pkg.Appointment) (Message, error) {
	w := appointmentWhen("NEW APPOINTMENT", a)
	html, err := t.render(KindAppointmentDoctor, page{
		Title:      "New Appointment",
		Heading:    "New Appointment Booked",
		Subheading: "A patient has scheduled an appointment with you.",
		FooterNote: "You are receiving this as you have a new appointment scheduled through O-Scan Diagnostics.",
		Year:       a.StartTime.Year(),
		Body: struct {
			DoctorName string
			When       when
			Rows       []row
			Button     button
		}{
			DoctorName: doctor.Username,
			When:       w,
			Rows: []row{
				{"Patient Name", patient.Username},
				{"Patient Email", patient.Email},
				{"Date", w.Date},
				{"Time", w.Start + " – " + w.End},
				{"Reason", orDefault(a.Reason, "Not specified")},
				{"Status", "✅ Scheduled"},
			},
			Button: button{"Open Doctor Dashboard →", t.link("/doctor_dashboard")},
		},
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      doctor.Email,
		Subject: fmt.Sprintf("🗓️ New Appointment: %s on %s", patient.Username, w.Date),
		HTML:    html,
	}, nil
}
