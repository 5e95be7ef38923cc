package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oscan-intake/internal/core"
	"oscan-intake/pkg"
)

type stubIntake struct {
	lastUser    pkg.User
	lastMessage string
	resets      int
	err         error
}

func (s *stubIntake) Start(_ context.Context, u pkg.User) (core.StartResult, error) {
	s.lastUser = u
	return core.StartResult{
		Response:    pkg.AgentAction{Speech: "Hi Alice! Which doctor?"},
		Doctors:     []pkg.Doctor{{ID: 1, Name: "Smith", Spec: "Oncologist"}},
		PatientName: u.Username,
	}, s.err
}

func (s *stubIntake) Step(_ context.Context, u pkg.User, msg string) (pkg.AgentAction, error) {
	s.lastUser, s.lastMessage = u, msg
	if strings.TrimSpace(msg) == "" {
		return pkg.AgentAction{}, core.ErrEmptyInput
	}
	if s.err != nil {
		return pkg.AgentAction{}, s.err
	}
	v := "Mild"
	return pkg.AgentAction{Speech: "Noted.", ActionType: pkg.ActionFillField, Field: pkg.FieldPainLevel, Value: &v}, nil
}

func (s *stubIntake) Reset(_ context.Context, u pkg.User) error {
	s.lastUser = u
	s.resets++
	return s.err
}

func (s *stubIntake) Form(_ context.Context, _ pkg.User) (map[pkg.Field]string, error) {
	return map[pkg.Field]string{pkg.FieldPainLevel: "Mild"}, s.err
}

var alice = pkg.User{ID: 7, Username: "Alice", Role: pkg.UserRolePatient}

func newTestServer() (*Server, *stubIntake) {
	intake := &stubIntake{}
	return NewServer(intake, core.NewStaticDirectory([]pkg.User{alice})), intake
}

func do(t *testing.T, s *Server, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req.Header.Set(UserHeader, userID)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer()
	rec := do(t, s, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAuthentication(t *testing.T) {
	s, _ := newTestServer()
	for _, id := range []string{"", "abc", "99"} {
		rec := do(t, s, http.MethodPost, "/aria/start", id, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "user %q", id)
	}
}

func TestStart(t *testing.T) {
	s, intake := newTestServer()
	rec := do(t, s, http.MethodPost, "/aria/start", "7", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Alice", intake.lastUser.Username)
	assert.JSONEq(t, `{
		"response": {"speech":"Hi Alice! Which doctor?","action_type":null,"field":null,"value":null,"photo_index":null,"is_complete":false},
		"doctors": [{"id":1,"name":"Smith","spec":"Oncologist"}],
		"patient_name": "Alice"
	}`, rec.Body.String())
}

func TestChat(t *testing.T) {
	s, intake := newTestServer()
	rec := do(t, s, http.MethodPost, "/aria/chat", "7", `{"message":"a bit"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a bit", intake.lastMessage)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "fill_field", got["action_type"])
	assert.Equal(t, "pain_level", got["field"])
	assert.Equal(t, "Mild", got["value"])
}

func TestChatRejectsBadInput(t *testing.T) {
	s, _ := newTestServer()

	rec := do(t, s, http.MethodPost, "/aria/chat", "7", `{"message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Empty message"}`, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/aria/chat", "7", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatInternalError(t *testing.T) {
	s, intake := newTestServer()
	intake.err = errors.New("store down")

	rec := do(t, s, http.MethodPost, "/aria/chat", "7", `{"message":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}

func TestResetAndForm(t *testing.T) {
	s, intake := newTestServer()

	rec := do(t, s, http.MethodDelete, "/aria/session", "7", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, intake.resets)

	rec = do(t, s, http.MethodGet, "/aria/form", "7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pain_level":"Mild"}`, rec.Body.String())
}
