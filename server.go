package chatter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/klipach/chatter/auth"
	"github.com/klipach/chatter/chat"
	"github.com/klipach/chatter/log"
)

const (
	ErrorMsgLogField       = "errorMsg"
	userLogField           = "user"
	conversationIDLogField = "conversationID"
	methodLogField         = "method"
	pathLogField           = "path"
	timezoneLogField       = "timezone"

	timezoneParam  = "tz"
	timezoneHeader = "X-Timezone"
)

// Server serves the chat HTTP API. Every route requires a Firebase ID token.
type Server struct {
	chat      *chat.Service
	verifier  auth.Verifier
	logger    *slog.Logger
	loc       *time.Location
	projectID string
	handler   http.Handler
}

type Option func(*Server)

// WithProjectID enables Cloud Trace correlation of log entries.
func WithProjectID(projectID string) Option {
	return func(s *Server) {
		s.projectID = projectID
	}
}

func NewServer(svc *chat.Service, verifier auth.Verifier, logger *slog.Logger, loc *time.Location, opts ...Option) *Server {
	if loc == nil {
		loc = time.UTC
	}
	s := &Server{
		chat:     svc,
		verifier: verifier,
		logger:   logger,
		loc:      loc,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handler = auth.Middleware(s.verifier, s.logAuthError, s.routes())
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if trace := log.TraceFromHeader(s.projectID, r.Header.Get(log.CloudTraceHeader)); trace != "" {
		ctx = log.WithTrace(ctx, trace)
	}
	logger := s.logger.With(
		slog.String(methodLogField, r.Method),
		slog.String(pathLogField, r.URL.Path),
	)
	s.handler.ServeHTTP(w, r.WithContext(log.WithLogger(ctx, logger)))
}

func (s *Server) logAuthError(r *http.Request, err error) {
	log.LoggerFromContext(r.Context()).Error("error while authenticating", slog.String(ErrorMsgLogField, err.Error()))
}

// session returns the request identity and a logger carrying it.
func session(r *http.Request) (auth.Session, *slog.Logger) {
	sess, _ := auth.SessionFromContext(r.Context())
	logger := log.LoggerFromContext(r.Context()).With(slog.String(userLogField, sess.Email))
	return sess, logger
}

// location picks the caller's timezone from ?tz= or X-Timezone.
func (s *Server) location(r *http.Request, logger *slog.Logger) *time.Location {
	name := r.URL.Query().Get(timezoneParam)
	if name == "" {
		name = r.Header.Get(timezoneHeader)
	}
	if name == "" {
		return s.loc
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Error("error while loading location",
			slog.String(timezoneLogField, name),
			slog.String(ErrorMsgLogField, err.Error()),
		)
		return s.loc
	}
	return loc
}

func writeJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}

// fail logs err and answers with the status the chat error maps to.
func fail(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, chat.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, chat.ErrNotParticipant):
		code = http.StatusForbidden
	}
	logger.Error(msg, slog.String(ErrorMsgLogField, err.Error()), slog.Int("status", code))
	http.Error(w, http.StatusText(code), code)
}
