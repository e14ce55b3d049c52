package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pavelanni/smartexam/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// fakeLLM serves the subset of the OpenAI API the client uses and records the last
// chat request it received.
type fakeLLM struct {
	reply  string
	status int
	last   openai.ChatCompletionRequest
}

func (f *fakeLLM) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&f.last); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		if f.status != 0 {
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream failure","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID:     "chatcmpl-test",
			Object: "chat.completion",
			Choices: []openai.ChatCompletionChoice{{
				Index:        0,
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: f.reply},
				FinishReason: openai.FinishReasonStop,
			}},
		})
	})
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"llama3.2","object":"model"}]}`))
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeLLM) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/v1", "test-key", "llama3.2", 7, model.DifficultyHard)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestGenerate(t *testing.T) {
	reply := "Here you go:\n```json\n[{\"question\":\"Q\",\"choices\":[\"a\",\"b\"],\"correct_answer\":\"a\",\"explanation\":\"e\"}]\n```"
	f := &fakeLLM{reply: reply}
	c := newTestClient(t, f)

	got, err := c.Generate(context.Background(), "Mitochondria produce ATP. ")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != reply {
		t.Errorf("Generate should return the raw reply verbatim, got %q", got)
	}

	if len(f.last.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(f.last.Messages))
	}
	system, user := f.last.Messages[0], f.last.Messages[1]
	if system.Role != openai.ChatMessageRoleSystem || user.Role != openai.ChatMessageRoleUser {
		t.Errorf("unexpected roles %q, %q", system.Role, user.Role)
	}
	if !strings.Contains(system.Content, "create 7 realistic Master-level") {
		t.Errorf("system prompt missing count or level: %q", system.Content)
	}
	if !strings.Contains(user.Content, "Mitochondria produce ATP.") {
		t.Errorf("user block should carry the chunk: %q", user.Content)
	}
	if f.last.Model != "llama3.2" {
		t.Errorf("expected model llama3.2, got %q", f.last.Model)
	}
}

func TestGenerateError(t *testing.T) {
	f := &fakeLLM{status: http.StatusInternalServerError}
	c := newTestClient(t, f)

	if _, err := c.Generate(context.Background(), "chunk"); err == nil {
		t.Fatal("expected error from failing endpoint")
	}
}

func TestSummarize(t *testing.T) {
	f := &fakeLLM{reply: "Short summary."}
	c := newTestClient(t, f)

	got, err := c.Summarize(context.Background(), "A very long text.")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "Short summary." {
		t.Errorf("Summarize = %q", got)
	}
	if !strings.Contains(f.last.Messages[0].Content, "summar") {
		t.Errorf("expected summarizer instructions, got %q", f.last.Messages[0].Content)
	}
}

func TestPing(t *testing.T) {
	c := newTestClient(t, &fakeLLM{})
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New("", "k", "m", 0, model.DifficultyEasy); err == nil {
		t.Error("expected error for zero questions per chunk")
	}
	if _, err := New("", "k", "m", 5, "extreme"); err == nil {
		t.Error("expected error for unknown difficulty")
	}
}
