package pkg

import (
	"encoding/json"
	"time"
)

// Role describes who authored a conversation turn.  The model only ever sees
// two roles: the patient (user) and the intake assistant.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single entry in the intake conversation history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ActionType is the kind of action the model asks the front end to take.
// The zero value means no action.
type ActionType string

const (
	ActionNone         ActionType = ""
	ActionFillField    ActionType = "fill_field"
	ActionRequestPhoto ActionType = "request_photo"
	ActionSubmit       ActionType = "submit"
)

// Valid reports whether a is one of the known action types.
func (a ActionType) Valid() bool {
	switch a {
	case ActionNone, ActionFillField, ActionRequestPhoto, ActionSubmit:
		return true
	}
	return false
}

// Field names an intake form field.
type Field string

const (
	FieldDoctorID     Field = "doctor_id"
	FieldPainLevel    Field = "pain_level"
	FieldBleeding     Field = "bleeding"
	FieldSwelling     Field = "swelling"
	FieldDuration     Field = "duration"
	FieldHistory      Field = "history"
	FieldHabits       Field = "habits"
	FieldTobaccoYears Field = "tobacco_years"
	FieldAlcoholYears Field = "alcohol_years"
	FieldSmokingYears Field = "smoking_years"
	FieldTrismusTest  Field = "trismus_test"
	FieldMouthPain    Field = "mouth_pain"
	FieldExtraDetails Field = "extra_details"
)

// Fields lists every intake field in the order the assistant is asked to
// collect them.
var Fields = []Field{
	FieldDoctorID,
	FieldPainLevel,
	FieldBleeding,
	FieldSwelling,
	FieldDuration,
	FieldHistory,
	FieldHabits,
	FieldTobaccoYears,
	FieldAlcoholYears,
	FieldSmokingYears,
	FieldTrismusTest,
	FieldMouthPain,
	FieldExtraDetails,
}

// Valid reports whether f is a known intake field.
func (f Field) Valid() bool {
	for _, known := range Fields {
		if f == known {
			return true
		}
	}
	return false
}

// Conditional reports whether the field is only collected when the matching
// habit was mentioned.
func (f Field) Conditional() bool {
	return f == FieldTobaccoYears || f == FieldAlcoholYears || f == FieldSmokingYears
}

// PhotoCount is the number of mouth photos requested at the end of intake.
const PhotoCount = 3

// AgentAction is the structured decision the conversational model returns
// on every turn.  Field is set only for fill_field actions and PhotoIndex
// (1-3) only for request_photo actions; zero values mean "absent".
type AgentAction struct {
	Speech     string
	ActionType ActionType
	Field      Field
	Value      *string
	PhotoIndex int
	IsComplete bool
}

// Completed reports whether the model declared the intake finished.
func (a AgentAction) Completed() bool {
	return a.IsComplete || a.ActionType == ActionSubmit
}

type agentActionJSON struct {
	Speech     string  `json:"speech"`
	ActionType *string `json:"action_type"`
	Field      *string `json:"field"`
	Value      *string `json:"value"`
	PhotoIndex *int    `json:"photo_index"`
	IsComplete bool    `json:"is_complete"`
}

// MarshalJSON renders the action with the wire names the front end expects.
// Absent values are emitted as null.
func (a AgentAction) MarshalJSON() ([]byte, error) {
	w := agentActionJSON{Speech: a.Speech, Value: a.Value, IsComplete: a.IsComplete}
	if a.ActionType != ActionNone {
		s := string(a.ActionType)
		w.ActionType = &s
	}
	if a.Field != "" {
		s := string(a.Field)
		w.Field = &s
	}
	if a.PhotoIndex != 0 {
		i := a.PhotoIndex
		w.PhotoIndex = &i
	}
	return json.Marshal(w)
}

// UnmarshalJSON is the strict inverse of MarshalJSON.  Model output goes
// through llm.DecodeAction instead, which is lenient.
func (a *AgentAction) UnmarshalJSON(data []byte) error {
	var w agentActionJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*a = AgentAction{Speech: w.Speech, Value: w.Value, IsComplete: w.IsComplete}
	if w.ActionType != nil {
		a.ActionType = ActionType(*w.ActionType)
	}
	if w.Field != nil {
		a.Field = Field(*w.Field)
	}
	if w.PhotoIndex != nil {
		a.PhotoIndex = *w.PhotoIndex
	}
	return nil
}

// Doctor is the roster entry shown to the patient and embedded in the
// system prompt.
type Doctor struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Spec string `json:"spec"`
}

// User is an account from the external data layer.  Role is "patient" or
// "doctor"; Specialization is only meaningful for doctors.
type User struct {
	ID             int64  `json:"id" yaml:"id"`
	Username       string `json:"username" yaml:"username"`
	Email          string `json:"email" yaml:"email"`
	Role           string `json:"role" yaml:"role"`
	Specialization string `json:"specialization,omitempty" yaml:"specialization"`
}

const (
	UserRolePatient = "patient"
	UserRoleDoctor  = "doctor"
)

// IsDoctor reports whether the user has the doctor role.
func (u User) IsDoctor() bool { return u.Role == UserRoleDoctor }

// PatientRecord is a completed screening case.  Only the columns used to
// build notifications are loaded.
type PatientRecord struct {
	ID         int64  `json:"id"`
	UserID     int64  `json:"user_id"`
	DoctorID   *int64 `json:"doctor_id,omitempty"`
	Timestamp  string `json:"timestamp"`
	Prediction string `json:"prediction"`
	Confidence string `json:"confidence"`
	PainLevel  string `json:"pain_level"`
	Bleeding   string `json:"bleeding"`
	Swelling   string `json:"swelling"`
	Habits     string `json:"habits"`
	PDFPath    string `json:"pdf_path"`
	Status     string `json:"status"`
}

// Appointment is a booked consultation between a patient and a doctor.
type Appointment struct {
	ID        int64     `json:"id"`
	PatientID int64     `json:"patient_id"`
	DoctorID  int64     `json:"doctor_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Reason    string    `json:"reason"`
	Status    string    `json:"status"`
}

// MaxHistory bounds the number of turns kept per session.
const MaxHistory = 14

// SessionState is the server-side intake state for one authenticated user.
// It is treated as an immutable value: the With* methods return modified
// copies and the store replaces the whole value on every turn.
type SessionState struct {
	PatientName string           `json:"patient_name"`
	Doctors     []Doctor         `json:"doctors"`
	History     []Turn           `json:"history"`
	Form        map[Field]string `json:"form"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// NewSessionState returns an empty session for the given patient and
// roster snapshot.
func NewSessionState(patientName string, doctors []Doctor) SessionState {
	return SessionState{
		PatientName: patientName,
		Doctors:     append([]Doctor(nil), doctors...),
		History:     []Turn{},
		Form:        map[Field]string{},
	}
}

// WithTurns returns a copy with turns appended, keeping only the most
// recent MaxHistory entries.
func (s SessionState) WithTurns(turns ...Turn) SessionState {
	history := make([]Turn, 0, len(s.History)+len(turns))
	history = append(history, s.History...)
	history = append(history, turns...)
	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}
	out := s
	out.History = history
	return out
}

// WithField returns a copy with form[field] set to value.
func (s SessionState) WithField(field Field, value string) SessionState {
	form := make(map[Field]string, len(s.Form)+1)
	for k, v := range s.Form {
		form[k] = v
	}
	form[field] = value
	out := s
	out.Form = form
	return out
}

// FilledFields returns the names of collected fields in collection order.
func (s SessionState) FilledFields() []Field {
	var filled []Field
	for _, f := range Fields {
		if _, ok := s.Form[f]; ok {
			filled = append(filled, f)
		}
	}
	return filled
}

// MissingFields returns the unconditional fields that have not been
// collected yet.
func (s SessionState) MissingFields() []Field {
	var missing []Field
	for _, f := range Fields {
		if f.Conditional() {
			continue
		}
		if _, ok := s.Form[f]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}
