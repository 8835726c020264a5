package completion

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/m2tx/chat_relay/internal/model"
	"google.golang.org/genai"
)

// GeminiCompleter streams replies from the Gemini API.
type GeminiCompleter struct {
	client    *genai.Client
	model     string
	maxTokens int
}

// NewGeminiCompleter creates a new GeminiCompleter. The credential headers and
// base URL in opts are applied to every request. An empty APIKey falls back to
// GOOGLE_API_KEY or GEMINI_API_KEY.
func NewGeminiCompleter(ctx context.Context, opts Options) (*GeminiCompleter, error) {
	opts = opts.withDefaults()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: opts.BaseURL,
			Headers: opts.Headers,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("completion: create gemini client: %w", err)
	}

	return &GeminiCompleter{
		client:    client,
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
	}, nil
}

func (c *GeminiCompleter) Stream(ctx context.Context, messages []model.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		responses := c.client.Models.GenerateContentStream(ctx, c.model, toGenAIContents(messages), &genai.GenerateContentConfig{
			MaxOutputTokens: int32(c.maxTokens),
		})

		for resp, err := range responses {
			if err != nil {
				yield("", remoteError("generate content stream", err))
				return
			}

			if !yield(responseText(resp), nil) {
				return
			}
		}
	}
}

// toGenAIContents converts history to genai contents; assistant turns use the "model" role.
func toGenAIContents(messages []model.Message) []*genai.Content {
	result := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := string(genai.RoleUser)
		if m.Role == model.RoleAssistant {
			role = string(genai.RoleModel)
		}
		result = append(result, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return result
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}

		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			sb.WriteString(part.Text)
		}

		// Only the first candidate is relayed.
		break
	}
	return sb.String()
}
