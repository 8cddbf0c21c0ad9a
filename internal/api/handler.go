// Package api serves the assistant over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/askolist/askolist/internal/assistant"
	"github.com/askolist/askolist/internal/audit"
	"github.com/askolist/askolist/internal/auth"
	"github.com/askolist/askolist/internal/config"
	"github.com/askolist/askolist/internal/dataset"
	"github.com/askolist/askolist/internal/memory"
	"github.com/askolist/askolist/internal/observability"
)

type ReadinessCheck func(ctx context.Context) error

// Asker is the conversation the API serves. *assistant.Assistant
// implements it.
type Asker interface {
	Ask(ctx context.Context, question string) assistant.Response
	History() []memory.Turn
	Reset()
	Schema() string
	Dataset() *dataset.Dataset
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Assistant         Asker
	// Audit is nil when the audit log is disabled.
	Audit audit.Recorder
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("GET /v1/schema", func(w http.ResponseWriter, r *http.Request) {
		handleSchema(deps, w, r)
	})
	protected.HandleFunc("POST /v1/ask", func(w http.ResponseWriter, r *http.Request) {
		handleAsk(deps, w, r)
	})
	protected.HandleFunc("GET /v1/memory", func(w http.ResponseWriter, r *http.Request) {
		handleGetMemory(deps, w, r)
	})
	protected.HandleFunc("DELETE /v1/memory", func(w http.ResponseWriter, r *http.Request) {
		handleResetMemory(deps, w, r)
	})
	protected.HandleFunc("GET /v1/audit", func(w http.ResponseWriter, r *http.Request) {
		handleListAudit(deps, w, r)
	})

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("GET /v1/schema", protectedHandler)
	mux.Handle("POST /v1/ask", protectedHandler)
	mux.Handle("GET /v1/memory", protectedHandler)
	mux.Handle("DELETE /v1/memory", protectedHandler)
	mux.Handle("GET /v1/audit", protectedHandler)

	return observability.Instrument(deps.Logger)(mux)
}

// CheckDatasetFile reports not ready once the bound dataset file is gone.
func CheckDatasetFile(path string) ReadinessCheck {
	return func(_ context.Context) error {
		if path == "" {
			return errors.New("dataset path is not configured")
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("dataset file: %w", err)
		}
		return nil
	}
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

func CheckAudit(db healthChecker) ReadinessCheck {
	return func(ctx context.Context) error {
		if db == nil {
			return nil
		}
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("audit database: %w", err)
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}

func principalFromRequest(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		return identity.Principal
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
