package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"oscan-intake/internal/core"
	"oscan-intake/internal/logging"
	"oscan-intake/pkg"
)

// UserHeader carries the authenticated user id set by the front end proxy.
const UserHeader = "X-User-ID"

// Intake is the conversational intake used by the /aria routes.
type Intake interface {
	Start(ctx context.Context, user pkg.User) (core.StartResult, error)
	Step(ctx context.Context, user pkg.User, message string) (pkg.AgentAction, error)
	Reset(ctx context.Context, user pkg.User) error
	Form(ctx context.Context, user pkg.User) (map[pkg.Field]string, error)
}

// Users resolves the authenticated account.
type Users interface {
	GetUser(ctx context.Context, id int64) (pkg.User, error)
}

// Server bundles together the dependencies required by HTTP handlers.  It
// implements http.Handler so it can be passed to an http.Server.
type Server struct {
	intake Intake
	users  Users
	router chi.Router
	log    *logrus.Entry
}

func NewServer(intake Intake, users Users) *Server {
	s := &Server{intake: intake, users: users, log: logging.NewLogger("http")}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(s.requestID)
	r.Use(s.accessLog)

	r.Get("/health", s.handleHealth)
	r.Route("/aria", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/start", s.handleStart)
		r.Post("/chat", s.handleChat)
		r.Delete("/session", s.handleReset)
		r.Get("/form", s.handleForm)
	})

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type ctxKey int

const (
	userKey ctxKey = iota
	requestIDKey
)

func userFrom(ctx context.Context) pkg.User {
	u, _ := ctx.Value(userKey).(pkg.User)
	return u
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		rid, _ := r.Context().Value(requestIDKey).(string)
		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"request_id": rid,
		}).Info("request")
	})
}

// authenticate resolves X-User-ID to an account; anything else is 401.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(UserHeader))
		id, err := strconv.ParseInt(raw, 10, 64)
		if raw == "" || err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
		user, err := s.users.GetUser(r.Context(), id)
		if errors.Is(err, pkg.ErrNotFound) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	res, err := s.intake.Start(r.Context(), userFrom(r.Context()))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	action, err := s.intake.Step(r.Context(), userFrom(r.Context()), body.Message)
	if errors.Is(err, core.ErrEmptyInput) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Empty message"})
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.intake.Reset(r.Context(), userFrom(r.Context())); err != nil {
		s.internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	form, err := s.intake.Form(r.Context(), userFrom(r.Context()))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	rid, _ := r.Context().Value(requestIDKey).(string)
	s.log.WithError(err).WithFields(logrus.Fields{"path": r.URL.Path, "request_id": rid}).Error("request failed")
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
