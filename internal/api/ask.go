package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/askolist/askolist/internal/assistant"
	"github.com/askolist/askolist/internal/audit"
	"github.com/askolist/askolist/internal/auth"
	"github.com/askolist/askolist/internal/observability"
	"github.com/askolist/askolist/internal/prompt"
)

const maxAskBodyBytes = 64 << 10

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	assistant.Response
	TraceID string `json:"trace_id,omitempty"`
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "assistant is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAsker); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	ds := deps.Assistant.Dataset()
	writeJSON(w, http.StatusOK, map[string]any{
		"relation":    prompt.RelationName,
		"columns":     ds.Columns,
		"row_count":   ds.NumRows,
		"description": deps.Assistant.Schema(),
	})
}

// handleAsk answers 200 for every well-formed request; pipeline failures are
// reported through the response outcome.
func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "assistant is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAsker); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request askRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAskBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}

	resp := deps.Assistant.Ask(r.Context(), request.Question)
	observability.NoteOutcome(r.Context(), string(resp.Outcome))
	recordAudit(deps, r, request.Question, resp)
	writeJSON(w, http.StatusOK, askResponse{Response: resp, TraceID: observability.TraceIDFromContext(r.Context())})
}

// recordAudit stores the exchange when the audit log is enabled. A failed
// write never changes the answer.
func recordAudit(deps Dependencies, r *http.Request, question string, resp assistant.Response) {
	if deps.Audit == nil {
		return
	}
	entry := audit.Entry{
		TraceID:    observability.TraceIDFromContext(r.Context()),
		Principal:  principalFromRequest(r),
		Question:   question,
		Translated: resp.Question,
		Outcome:    string(resp.Outcome),
		SQL:        resp.SQL,
		Repaired:   resp.Repaired,
		DurationMs: resp.DurationMs,
	}
	if resp.Result != nil {
		entry.RowCount = len(resp.Result.Rows)
	}
	if _, err := deps.Audit.Record(r.Context(), entry); err != nil && deps.Logger != nil {
		deps.Logger.WarnContext(r.Context(), "audit_record_failed",
			slog.String("trace_id", entry.TraceID),
			slog.String("error", err.Error()),
		)
	}
}

func handleGetMemory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "assistant is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAsker); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"turns": deps.Assistant.History()})
}

func handleResetMemory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "assistant is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAsker); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	deps.Assistant.Reset()
	w.WriteHeader(http.StatusNoContent)
}
