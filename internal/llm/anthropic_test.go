package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropicGeneratorSendsPromptAndReturnsText(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-Api-Key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"m1","content":[{"type":"text","text":" SELECT 2 "}],"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":2}}`))
	}))
	defer srv.Close()

	gen, err := NewAnthropicGenerator(AnthropicConfig{BaseURL: srv.URL, APIKey: "k1", Model: "m1", MaxTokens: 64})
	if err != nil {
		t.Fatalf("NewAnthropicGenerator() error = %v", err)
	}
	got, err := gen.Generate(context.Background(), "count orders")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "SELECT 2" {
		t.Fatalf("Generate() = %q", got)
	}
	if gotPath != "/v1/messages" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotKey != "k1" {
		t.Fatalf("x-api-key = %q", gotKey)
	}
	if gotBody["model"] != "m1" || gotBody["max_tokens"] != float64(64) {
		t.Fatalf("body = %#v", gotBody)
	}
}

func TestAnthropicGeneratorRejectsEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"m1","content":[],"stop_reason":"max_tokens","usage":{"input_tokens":3,"output_tokens":0}}`))
	}))
	defer srv.Close()

	gen, err := NewAnthropicGenerator(AnthropicConfig{BaseURL: srv.URL, APIKey: "k1"})
	if err != nil {
		t.Fatalf("NewAnthropicGenerator() error = %v", err)
	}
	if _, err := gen.Generate(context.Background(), "count orders"); err == nil {
		t.Fatal("expected error for empty content")
	}
}
