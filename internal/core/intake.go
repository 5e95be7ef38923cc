package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"oscan-intake/internal/logging"
	"oscan-intake/pkg"
)

// ErrEmptyInput is returned by Step when the patient message is blank.
var ErrEmptyInput = errors.New("empty message")

// Conversation produces the assistant's next action.  It never fails; the
// implementation falls back to a static action instead.
type Conversation interface {
	Converse(ctx context.Context, history []pkg.Turn, system string) pkg.AgentAction
}

// SessionStore persists intake state per authenticated user.
type SessionStore interface {
	Get(ctx context.Context, key string) (pkg.SessionState, bool, error)
	Put(ctx context.Context, key string, state pkg.SessionState) error
	Delete(ctx context.Context, key string) error
}

// Directory resolves accounts from the external data layer.
type Directory interface {
	GetUser(ctx context.Context, id int64) (pkg.User, error)
	ListDoctors(ctx context.Context) ([]pkg.User, error)
}

// StartResult is returned to the front end when a session begins.
type StartResult struct {
	Response    pkg.AgentAction `json:"response"`
	Doctors     []pkg.Doctor    `json:"doctors"`
	PatientName string          `json:"patient_name"`
}

// IntakeService drives the conversational intake for one user at a time.
// Concurrent steps for the same user are last-writer-wins.
type IntakeService struct {
	llm      Conversation
	sessions SessionStore
	dir      Directory
	now      func() time.Time
	log      *logrus.Entry
}

// NewIntakeService wires the orchestrator to its collaborators.
func NewIntakeService(llm Conversation, sessions SessionStore, dir Directory) *IntakeService {
	return &IntakeService{
		llm:      llm,
		sessions: sessions,
		dir:      dir,
		now:      time.Now,
		log:      logging.NewLogger("intake"),
	}
}

func sessionKey(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// Start resets the user's session, snapshots the doctor roster and asks the
// model for its greeting.
func (s *IntakeService) Start(ctx context.Context, user pkg.User) (StartResult, error) {
	users, err := s.dir.ListDoctors(ctx)
	if err != nil {
		return StartResult{}, fmt.Errorf("list doctors: %w", err)
	}
	roster := rosterFromUsers(users)
	state := pkg.NewSessionState(user.Username, roster)

	bootstrap := pkg.Turn{Role: pkg.RoleUser, Content: BootstrapMessage}
	action := s.llm.Converse(ctx, []pkg.Turn{bootstrap}, SystemPrompt(state.PatientName, roster))

	state = state.WithTurns(bootstrap, pkg.Turn{Role: pkg.RoleAssistant, Content: action.Speech})
	if err := s.save(ctx, user.ID, state); err != nil {
		return StartResult{}, err
	}

	s.log.WithFields(logrus.Fields{"user_id": user.ID, "doctors": len(roster)}).Info("intake started")
	return StartResult{Response: action, Doctors: roster, PatientName: state.PatientName}, nil
}

// Step records one patient message and returns the model's next action.
func (s *IntakeService) Step(ctx context.Context, user pkg.User, message string) (pkg.AgentAction, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return pkg.AgentAction{}, ErrEmptyInput
	}

	state, ok, err := s.sessions.Get(ctx, sessionKey(user.ID))
	if err != nil {
		return pkg.AgentAction{}, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		state = pkg.NewSessionState(user.Username, nil)
	}

	// The model sees the stored history plus this turn; the cap applies to
	// what is persisted afterwards.
	turn := pkg.Turn{Role: pkg.RoleUser, Content: filledPrefix(state) + message}
	sent := make([]pkg.Turn, 0, len(state.History)+1)
	sent = append(append(sent, state.History...), turn)
	action := s.llm.Converse(ctx, sent, SystemPrompt(state.PatientName, state.Doctors))

	state = state.WithTurns(turn, pkg.Turn{Role: pkg.RoleAssistant, Content: action.Speech})
	if action.ActionType == pkg.ActionFillField && action.Field != "" {
		var value string
		if action.Value != nil {
			value = *action.Value
		}
		state = state.WithField(action.Field, value)
	}
	if err := s.save(ctx, user.ID, state); err != nil {
		return pkg.AgentAction{}, err
	}

	log := s.log.WithFields(logrus.Fields{"user_id": user.ID, "action": action.ActionType})
	if action.Completed() {
		if missing := state.MissingFields(); len(missing) > 0 {
			log.WithField("missing", missing).Warn("intake completed with missing fields")
		} else {
			log.Info("intake completed")
		}
	} else {
		log.Debug("intake step")
	}
	return action, nil
}

// Reset discards the user's session.
func (s *IntakeService) Reset(ctx context.Context, user pkg.User) error {
	if err := s.sessions.Delete(ctx, sessionKey(user.ID)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Form returns the fields collected so far.  A missing session yields an
// empty form.
func (s *IntakeService) Form(ctx context.Context, user pkg.User) (map[pkg.Field]string, error) {
	state, ok, err := s.sessions.Get(ctx, sessionKey(user.ID))
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	form := make(map[pkg.Field]string, len(state.Form))
	if !ok {
		return form, nil
	}
	for k, v := range state.Form {
		form[k] = v
	}
	return form, nil
}

func (s *IntakeService) save(ctx context.Context, userID int64, state pkg.SessionState) error {
	state.UpdatedAt = s.now()
	if err := s.sessions.Put(ctx, sessionKey(userID), state); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
