package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// openaiBackend serves OpenAI and every API that speaks its chat completion
// protocol.
type openaiBackend struct {
	vendor string
	client *openai.Client
}

// NewOpenAIProvider builds a Client for the OpenAI chat completion API, or a
// compatible endpoint when cfg.BaseURL is set.
func NewOpenAIProvider(cfg Config) (*Client, error) {
	return newOpenAICompatible("openai", cfg, nil)
}

// NewOpenRouterProvider builds a Client for OpenRouter. Requests carry the
// attribution headers OpenRouter uses for its app rankings.
func NewOpenRouterProvider(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = openRouterBaseURL
	}
	headers := http.Header{}
	headers.Set("HTTP-Referer", "https://github.com/abhisek/riskdrill")
	headers.Set("X-Title", "riskdrill")
	return newOpenAICompatible("openrouter", cfg, headers)
}

func newOpenAICompatible(vendor string, cfg Config, headers http.Header) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: API key is required", vendor)
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if len(headers) > 0 {
		oc.HTTPClient = &http.Client{Transport: headerTransport{headers: headers, next: http.DefaultTransport}}
	}
	b := &openaiBackend{vendor: vendor, client: openai.NewClientWithConfig(oc)}
	return newClient(vendor, cfg.Model, cfg.Timeout, b), nil
}

func (b *openaiBackend) complete(ctx context.Context, model string, req Request) (completion, error) {
	chat := openai.ChatCompletionRequest{
		Model:               model,
		MaxCompletionTokens: req.MaxTokens,
		Temperature:         float32(req.Temperature),
	}
	if req.System != "" {
		chat.Messages = append(chat.Messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		chat.Messages = append(chat.Messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	if req.Schema != nil {
		def, err := json.Marshal(req.Schema.Definition)
		if err != nil {
			return completion{}, fmt.Errorf("%s: encode schema %s: %w", b.vendor, req.Schema.Name, err)
		}
		chat.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:        req.Schema.Name,
				Description: req.Schema.Description,
				Schema:      json.RawMessage(def),
				Strict:      true,
			},
		}
	}

	resp, err := b.client.CreateChatCompletion(ctx, chat)
	if err != nil {
		return completion{}, b.mapError(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return completion{}, &ErrInvalidResponse{Err: fmt.Errorf("%s: no choices", b.vendor)}
	}

	choice := resp.Choices[0]
	out := completion{
		Text:  choice.Message.Content,
		Model: resp.Model,
		Usage: Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens},
		Stop:  StopEnd,
	}
	if choice.FinishReason == openai.FinishReasonLength {
		out.Stop = StopMaxTokens
	}
	return out, nil
}

func (b *openaiBackend) mapError(ctx context.Context, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classify(b.vendor, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classify(b.vendor, reqErr.HTTPStatusCode, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return classify(b.vendor, 0, err)
}

// headerTransport adds fixed headers to every request.
type headerTransport struct {
	headers http.Header
	next    http.RoundTripper
}

func (t headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	for k, v := range t.headers {
		r.Header[k] = v
	}
	return t.next.RoundTrip(r)
}
