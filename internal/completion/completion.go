// Package completion talks to the remote chat completion service and exposes
// its incremental reply as a lazy sequence of text fragments.
package completion

import (
	"context"
	"fmt"
	"iter"
	"net/http"

	"github.com/m2tx/chat_relay/internal/model"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	DefaultModel     = "llama3.2-vision:latest"
	DefaultMaxTokens = 8192

	// UnusedAPIKey is sent to OpenAI-compatible endpoints that do not check keys.
	UnusedAPIKey = "unused"

	HeaderAccessClientID     = "CF-Access-Client-Id"
	HeaderAccessClientSecret = "CF-Access-Client-Secret"
)

// Completer streams an assistant reply for a conversation.
//
// The returned sequence is finite and can be ranged over once. Fragments that
// carry no text are yielded as the empty string. A failure is yielded as a
// *RemoteServiceError and ends the sequence. Cancelling ctx or stopping the
// range loop releases the upstream request.
type Completer interface {
	Stream(ctx context.Context, messages []model.Message) iter.Seq2[string, error]
}

// Options configures a Completer.
type Options struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Headers   http.Header
}

func (o Options) withDefaults() Options {
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	return o
}

// CredentialHeaders returns the fixed access headers forwarded on every
// outbound request. Empty values are left out.
func CredentialHeaders(clientID, clientSecret string) http.Header {
	h := http.Header{}
	if clientID != "" {
		h.Set(HeaderAccessClientID, clientID)
	}
	if clientSecret != "" {
		h.Set(HeaderAccessClientSecret, clientSecret)
	}
	return h
}

// New builds the Completer for provider.
func New(ctx context.Context, provider string, opts Options) (Completer, error) {
	switch provider {
	case "", ProviderOpenAI:
		return NewOpenAICompleter(opts), nil
	case ProviderGemini:
		return NewGeminiCompleter(ctx, opts)
	default:
		return nil, fmt.Errorf("completion: unsupported provider %q", provider)
	}
}

// headerTransport adds a fixed set of headers to every request.
type headerTransport struct {
	headers http.Header
	base    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) == 0 {
		return t.base.RoundTrip(req)
	}

	req = req.Clone(req.Context())
	for k, vs := range t.headers {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	return t.base.RoundTrip(req)
}
