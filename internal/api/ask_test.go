package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/askolist/askolist/internal/assistant"
	"github.com/askolist/askolist/internal/audit"
	"github.com/askolist/askolist/internal/auth"
	"github.com/askolist/askolist/internal/dataset"
	"github.com/askolist/askolist/internal/memory"
	"github.com/askolist/askolist/internal/query"
)

func TestAskEndpointReturnsAnswer(t *testing.T) {
	cfg := loadConfig(t, map[string]string{})
	asker := newFakeAsker()
	asker.response = assistant.Response{
		Answer:   "**Answer:** SP leads.",
		Outcome:  assistant.OutcomeAnswered,
		Question: "top states",
		SQL:      "SELECT customer_state FROM olist",
		Result:   &query.Relation{Columns: []string{"customer_state"}, Rows: [][]any{{"SP"}, {"RJ"}}},
	}
	recorder := &fakeRecorder{}
	h := NewHandler(cfg, Dependencies{Assistant: asker, Audit: recorder})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"top states"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["outcome"] != "answered" || body["sql"] != "SELECT customer_state FROM olist" {
		t.Fatalf("body = %v", body)
	}
	if body["trace_id"] == "" || body["trace_id"] == nil {
		t.Fatalf("trace_id missing: %v", body)
	}
	if len(asker.questions) != 1 || asker.questions[0] != "top states" {
		t.Fatalf("questions = %v", asker.questions)
	}
	if len(recorder.entries) != 1 {
		t.Fatalf("audit entries = %d", len(recorder.entries))
	}
	entry := recorder.entries[0]
	if entry.Outcome != "answered" || entry.RowCount != 2 || entry.Question != "top states" || entry.TraceID == "" {
		t.Fatalf("audit entry = %+v", entry)
	}
}

func TestAskRequestLogCarriesOutcome(t *testing.T) {
	cfg := loadConfig(t, map[string]string{})
	asker := newFakeAsker()
	asker.response = assistant.Response{Answer: "Error: timed out (deadline)", Outcome: assistant.OutcomeTimeout}
	var logs bytes.Buffer
	h := NewHandler(cfg, Dependencies{Assistant: asker, Logger: slog.New(slog.NewJSONHandler(&logs, nil))})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"slow"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var found bool
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		if record["msg"] == "http_request" {
			found = true
			if record["outcome"] != "timeout" || record["path"] != "/v1/ask" {
				t.Fatalf("record = %#v", record)
			}
		}
	}
	if !found {
		t.Fatalf("no http_request line in %s", logs.String())
	}
}

func TestAskEndpointReturns200ForPipelineFailures(t *testing.T) {
	cfg := loadConfig(t, map[string]string{})
	asker := newFakeAsker()
	asker.response = assistant.Response{Answer: "query error: no such column", Outcome: assistant.OutcomeQueryFailed}
	recorder := &fakeRecorder{err: errors.New("db down")}
	h := NewHandler(cfg, Dependencies{Assistant: asker, Audit: recorder})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"bad"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["outcome"] != "query_failed" {
		t.Fatalf("body = %v", body)
	}
}

func TestAskEndpointRejectsMalformedBody(t *testing.T) {
	cfg := loadConfig(t, map[string]string{})
	asker := newFakeAsker()
	h := NewHandler(cfg, Dependencies{Assistant: asker})

	for _, payload := range []string{`{`, `{"question":"x","extra":1}`} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(payload)))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("payload %q: status = %d", payload, rr.Code)
		}
		if body := decodeBody(t, rr); body["error_code"] != "INVALID_JSON" {
			t.Fatalf("body = %v", body)
		}
	}
	if len(asker.questions) != 0 {
		t.Fatalf("assistant called for malformed body: %v", asker.questions)
	}
}

func TestAskEndpointWithoutAssistant(t *testing.T) {
	cfg := loadConfig(t, map[string]string{})
	h := NewHandler(cfg, Dependencies{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"x"}`)))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestProtectedRouteRequiresAuth(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"ASKOLIST_AUTH_REQUIRED": "true"})
	validator, err := auth.NewStaticAPIKeyValidator("k1:analyst:asker,k2:ops:operator")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}
	asker := newFakeAsker()
	recorder := &fakeRecorder{}
	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		Assistant:      asker,
		Audit:          recorder,
	})

	unauthResp := httptest.NewRecorder()
	h.ServeHTTP(unauthResp, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"x"}`)))
	if unauthResp.Code != http.StatusUnauthorized {
		t.Fatalf("unauth status = %d", unauthResp.Code)
	}

	authReq := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"x"}`))
	authReq.Header.Set("X-API-Key", "k1")
	authResp := httptest.NewRecorder()
	h.ServeHTTP(authResp, authReq)
	if authResp.Code != http.StatusOK {
		t.Fatalf("auth status = %d", authResp.Code)
	}
	if len(recorder.entries) != 1 || recorder.entries[0].Principal != "analyst" {
		t.Fatalf("audit entries = %+v", recorder.entries)
	}

	opReq := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"x"}`))
	opReq.Header.Set("X-API-Key", "k2")
	opResp := httptest.NewRecorder()
	h.ServeHTTP(opResp, opReq)
	if opResp.Code != http.StatusForbidden {
		t.Fatalf("operator-only key status = %d", opResp.Code)
	}
}

func TestSchemaEndpoint(t *testing.T) {
	cfg := loadConfig(t, map[string]string{})
	h := NewHandler(cfg, Dependencies{Assistant: newFakeAsker()})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["relation"] != "olist" || body["row_count"] != float64(3) {
		t.Fatalf("body = %v", body)
	}
	columns, ok := body["columns"].([]any)
	if !ok || len(columns) != 2 {
		t.Fatalf("columns = %v", body["columns"])
	}
	if !strings.Contains(body["description"].(string), "order_id") {
		t.Fatalf("description = %v", body["description"])
	}
}

func TestMemoryEndpoints(t *testing.T) {
	cfg := loadConfig(t, map[string]string{})
	asker := newFakeAsker()
	asker.history = []memory.Turn{{Question: "q1", Answer: "a1"}}
	h := NewHandler(cfg, Dependencies{Assistant: asker})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/memory", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var payload struct {
		Turns []memory.Turn `json:"turns"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(payload.Turns) != 1 || payload.Turns[0].Question != "q1" {
		t.Fatalf("turns = %+v", payload.Turns)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/v1/memory", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
	if asker.resets != 1 {
		t.Fatalf("resets = %d", asker.resets)
	}
}

type fakeAsker struct {
	mu        sync.Mutex
	response  assistant.Response
	questions []string
	history   []memory.Turn
	resets    int
	dataset   *dataset.Dataset
}

func newFakeAsker() *fakeAsker {
	return &fakeAsker{
		response: assistant.Response{Answer: "ok", Outcome: assistant.OutcomeAnswered},
		dataset: &dataset.Dataset{
			Path:    "olist.parquet",
			Columns: []dataset.Column{{Name: "order_id", Type: "BYTE_ARRAY"}, {Name: "price", Type: "DOUBLE"}},
			NumRows: 3,
		},
	}
}

func (f *fakeAsker) Ask(_ context.Context, question string) assistant.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questions = append(f.questions, question)
	return f.response
}

func (f *fakeAsker) History() []memory.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]memory.Turn(nil), f.history...)
}

func (f *fakeAsker) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.history = nil
}

func (f *fakeAsker) Schema() string {
	return "Columns: order_id, price"
}

func (f *fakeAsker) Dataset() *dataset.Dataset {
	return f.dataset
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
	err     error
}

func (f *fakeRecorder) Record(_ context.Context, entry audit.Entry) (audit.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return audit.Entry{}, f.err
	}
	entry.ID = "id-" + entry.Question
	f.entries = append(f.entries, entry)
	return entry, nil
}

func (f *fakeRecorder) Get(_ context.Context, id string) (audit.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, entry := range f.entries {
		if entry.ID == id {
			return entry, nil
		}
	}
	return audit.Entry{}, audit.ErrNotFound
}

func (f *fakeRecorder) ListRecent(_ context.Context, limit int) ([]audit.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if limit <= 0 || limit > len(f.entries) {
		limit = len(f.entries)
	}
	return append([]audit.Entry(nil), f.entries[:limit]...), nil
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v (body=%s)", err, rr.Body.String())
	}
	return body
}
