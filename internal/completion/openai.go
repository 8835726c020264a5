package completion

import (
	"context"
	"errors"
	"io"
	"iter"
	"net/http"

	"github.com/m2tx/chat_relay/internal/model"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAICompleter streams replies from an OpenAI-compatible chat completions endpoint.
type OpenAICompleter struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAICompleter creates a new OpenAICompleter. BaseURL defaults to the
// public OpenAI API when empty.
func NewOpenAICompleter(opts Options) *OpenAICompleter {
	opts = opts.withDefaults()
	if opts.APIKey == "" {
		opts.APIKey = UnusedAPIKey
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	cfg.HTTPClient = &http.Client{
		Transport: &headerTransport{headers: opts.Headers, base: http.DefaultTransport},
	}

	return &OpenAICompleter{
		client:    openai.NewClientWithConfig(cfg),
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
	}
}

func (c *OpenAICompleter) Stream(ctx context.Context, messages []model.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:     c.model,
			Messages:  toChatMessages(messages),
			MaxTokens: c.maxTokens,
			Stream:    true,
		})
		if err != nil {
			yield("", remoteError("open stream", err))
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", remoteError("receive", err))
				return
			}

			if !yield(deltaContent(resp), nil) {
				return
			}
		}
	}
}

func toChatMessages(messages []model.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return out
}

// deltaContent returns choices[0].delta.content, or "" for chunks without one.
func deltaContent(resp openai.ChatCompletionStreamResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].Delta.Content
}
