package completion_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/m2tx/chat_relay/internal/completion"
	"github.com/m2tx/chat_relay/internal/model"
)

type capturedRequest struct {
	mu      sync.Mutex
	path    string
	headers http.Header
	body    []byte
}

// newUpstream serves a chat completions endpoint that streams frames verbatim.
func newUpstream(t *testing.T, status int, frames []string, captured *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if captured != nil {
			captured.mu.Lock()
			defer captured.mu.Unlock()
			captured.path = r.URL.Path
			captured.headers = r.Header.Clone()
			captured.body = body
		}

		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			fmt.Fprint(w, `{"error":{"message":"upstream exploded","type":"server_error"}}`)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func chunk(content string) string {
	if content == "" {
		return `{"id":"c","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"role":"assistant"}}]}`
	}
	b, _ := json.Marshal(content)
	return fmt.Sprintf(`{"id":"c","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":%s}}]}`, b)
}

func collect(t *testing.T, c completion.Completer, msgs []model.Message) ([]string, error) {
	t.Helper()
	var out []string
	for fragment, err := range c.Stream(context.Background(), msgs) {
		if err != nil {
			return out, err
		}
		out = append(out, fragment)
	}
	return out, nil
}

func TestOpenAI_Stream_YieldsFragmentsInOrder(t *testing.T) {
	captured := &capturedRequest{}
	srv := newUpstream(t, http.StatusOK, []string{chunk(""), chunk("Hi"), chunk(" there"), "[DONE]"}, captured)

	c := completion.NewOpenAICompleter(completion.Options{
		BaseURL: srv.URL + "/v1",
		Model:   "test-model",
		Headers: completion.CredentialHeaders("client-id", "client-secret"),
	})

	got, err := collect(t, c, []model.Message{model.NewUserMessage("hello")})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	want := []string{"", "Hi", " there"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("fragments = %q, want %q", got, want)
	}

	captured.mu.Lock()
	defer captured.mu.Unlock()

	if captured.path != "/v1/chat/completions" {
		t.Fatalf("path = %q, want /v1/chat/completions", captured.path)
	}
	if v := captured.headers.Get(completion.HeaderAccessClientID); v != "client-id" {
		t.Fatalf("%s = %q", completion.HeaderAccessClientID, v)
	}
	if v := captured.headers.Get(completion.HeaderAccessClientSecret); v != "client-secret" {
		t.Fatalf("%s = %q", completion.HeaderAccessClientSecret, v)
	}
	if v := captured.headers.Get("Authorization"); v != "Bearer "+completion.UnusedAPIKey {
		t.Fatalf("Authorization = %q", v)
	}
}

func TestOpenAI_Stream_RequestBody(t *testing.T) {
	captured := &capturedRequest{}
	srv := newUpstream(t, http.StatusOK, []string{"[DONE]"}, captured)

	c := completion.NewOpenAICompleter(completion.Options{BaseURL: srv.URL + "/v1", Model: "test-model"})
	history := []model.Message{
		model.NewUserMessage("hello"),
		model.NewAssistantMessage("hi"),
		model.NewUserMessage("again"),
	}
	if _, err := collect(t, c, history); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	captured.mu.Lock()
	defer captured.mu.Unlock()

	var body struct {
		Model     string          `json:"model"`
		Messages  []model.Message `json:"messages"`
		MaxTokens int             `json:"max_tokens"`
		Stream    bool            `json:"stream"`
	}
	if err := json.Unmarshal(captured.body, &body); err != nil {
		t.Fatalf("unmarshal body: %v\nbody=%s", err, captured.body)
	}

	if body.Model != "test-model" {
		t.Fatalf("model = %q", body.Model)
	}
	if body.MaxTokens != completion.DefaultMaxTokens {
		t.Fatalf("max_tokens = %d, want %d", body.MaxTokens, completion.DefaultMaxTokens)
	}
	if !body.Stream {
		t.Fatal("stream = false, want true")
	}
	if len(body.Messages) != len(history) {
		t.Fatalf("got %d messages, want %d", len(body.Messages), len(history))
	}
	for i := range history {
		if body.Messages[i] != history[i] {
			t.Fatalf("message %d = %+v, want %+v", i, body.Messages[i], history[i])
		}
	}
}

func TestOpenAI_Stream_ErrorStatus_ReturnsRemoteServiceError(t *testing.T) {
	srv := newUpstream(t, http.StatusInternalServerError, nil, nil)

	c := completion.NewOpenAICompleter(completion.Options{BaseURL: srv.URL + "/v1"})
	_, err := collect(t, c, []model.Message{model.NewUserMessage("hello")})

	var remoteErr *completion.RemoteServiceError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected RemoteServiceError, got %v", err)
	}
	if remoteErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", remoteErr.StatusCode)
	}
}

func TestOpenAI_Stream_Unreachable_ReturnsRemoteServiceError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := completion.NewOpenAICompleter(completion.Options{BaseURL: url + "/v1"})
	_, err := collect(t, c, []model.Message{model.NewUserMessage("hello")})

	var remoteErr *completion.RemoteServiceError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected RemoteServiceError, got %v", err)
	}
}

func TestOpenAI_Stream_BreakStopsEarly(t *testing.T) {
	srv := newUpstream(t, http.StatusOK, []string{chunk("a"), chunk("b"), chunk("c"), "[DONE]"}, nil)
	c := completion.NewOpenAICompleter(completion.Options{BaseURL: srv.URL + "/v1"})

	var got []string
	for fragment, err := range c.Stream(context.Background(), []model.Message{model.NewUserMessage("x")}) {
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		got = append(got, fragment)
		break
	}
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("got %q, want [a]", got)
	}
}

func TestCredentialHeaders_SkipsEmpty(t *testing.T) {
	h := completion.CredentialHeaders("", "secret")
	if _, ok := h[http.CanonicalHeaderKey(completion.HeaderAccessClientID)]; ok {
		t.Fatal("empty client id should not be set")
	}
	if h.Get(completion.HeaderAccessClientSecret) != "secret" {
		t.Fatal("client secret missing")
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	if _, err := completion.New(context.Background(), "bogus", completion.Options{}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
