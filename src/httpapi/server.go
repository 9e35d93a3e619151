// Package httpapi exposes the bot over HTTP: a JSON event endpoint for
// clients without a chat platform, and a health check.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/thomasfsr/gymlog/src/bot"
)

const maxBodyBytes = 8 << 20

type Handler interface {
	Handle(ctx context.Context, ev bot.Event) *bot.Response
}

// Dependency is something /healthz checks, such as the database gateway.
type Dependency interface {
	Ready() bool
	Ping(ctx context.Context) error
}

type Options struct {
	// Token, when set, is required as a bearer token on /v1 routes.
	Token  string
	Logger zerolog.Logger
}

type server struct {
	handler Handler
	deps    map[string]Dependency
}

// NewRouter returns the HTTP handler. handler may be nil, in which case only
// /healthz is served.
func NewRouter(handler Handler, deps map[string]Dependency, opts Options) http.Handler {
	s := &server{handler: handler, deps: deps}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger(opts.Logger))
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", s.health)
	if handler != nil {
		r.Route("/v1", func(r chi.Router) {
			r.Use(bearerAuth(opts.Token))
			r.Post("/events", s.events)
		})
	}
	return r
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	report := make(map[string]string, len(s.deps))
	for name, dep := range s.deps {
		switch {
		case !dep.Ready():
			report[name] = "not ready"
			status = http.StatusServiceUnavailable
		default:
			if err := dep.Ping(ctx); err != nil {
				report[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			report[name] = "ok"
		}
	}
	JSON(w, status, report)
}

func (s *server) events(w http.ResponseWriter, r *http.Request) {
	var ev bot.Event
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&ev); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		Error(w, http.StatusBadRequest, "invalid event: "+err.Error())
		return
	}
	if err := validate(ev); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := s.handler.Handle(r.Context(), ev)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	JSON(w, http.StatusOK, resp)
}

func validate(ev bot.Event) error {
	if ev.UserID <= 0 {
		return errors.New("user_id must be positive")
	}
	switch ev.Kind {
	case bot.KindCommand, bot.KindButton, bot.KindText:
	case bot.KindFile:
		if ev.File == nil {
			return errors.New("file event without file")
		}
	default:
		return errors.New("unknown event kind")
	}
	return nil
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				Error(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info().
					Str("request_id", chiMiddleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("http request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
