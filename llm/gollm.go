package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmProvider wraps a gollm.LLM instance as a Provider.
type GollmProvider struct {
	provider string
	llm      gollm.LLM
	model    string
}

// GollmOption configures a GollmProvider.
type GollmOption func(*gollmConfig)

type gollmConfig struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) GollmOption {
	return func(c *gollmConfig) { c.apiKey = key }
}

// WithModel sets the default model.
func WithModel(model string) GollmOption {
	return func(c *gollmConfig) { c.model = model }
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) GollmOption {
	return func(c *gollmConfig) { c.maxTokens = n }
}

// WithGollmOptions appends raw gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmOption {
	return func(c *gollmConfig) { c.extraOpts = append(c.extraOpts, opts...) }
}

// NewGollmProvider creates a provider adapter for the named vendor. An
// empty apiKey defers to gollm's environment variable lookup.
func NewGollmProvider(provider string, apiKey string, opts ...GollmOption) (*GollmProvider, error) {
	cfg := &gollmConfig{
		apiKey:      apiKey,
		maxTokens:   8192,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		switch provider {
		case "anthropic":
			model = "claude-sonnet-4-5"
		default:
			model = "gpt-5.2-mini"
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // retries are handled above this layer
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	inner, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gollm LLM for provider %s: %w", provider, err)
	}

	return &GollmProvider{provider: provider, llm: inner, model: model}, nil
}

// Name returns the provider identifier.
func (p *GollmProvider) Name() string { return p.provider }

// Complete sends a blocking request and returns the full response.
func (p *GollmProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt := p.translateRequest(req)
	p.applyRequestOptions(req)

	text, err := p.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, p.translateError(err)
	}

	return p.buildResponse(req, text), nil
}

// translateRequest flattens the transcript into a gollm Prompt. gollm's
// prompt model is single-shot, so prior assistant turns and tool results
// are inlined as role-tagged context.
func (p *GollmProvider) translateRequest(req Request) *gollm.Prompt {
	var parts []string
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleUser:
			parts = append(parts, msg.Text)
		case RoleAssistant:
			if msg.Text != "" {
				parts = append(parts, "[Assistant]: "+msg.Text)
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, fmt.Sprintf("[Tool Call %s]: %s(%s)", tc.ID, tc.Name, string(tc.Arguments)))
			}
		case RoleTool:
			for _, tr := range msg.ToolResults {
				prefix := "[Tool Result]"
				if tr.IsError {
					prefix = "[Tool Error]"
				}
				parts = append(parts, prefix+": "+tr.Content)
			}
		}
	}

	promptText := strings.Join(parts, "\n")
	if promptText == "" {
		promptText = "Continue."
	}

	var promptOpts []gollm.PromptOption
	if sys := req.SystemText(); sys != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.TrimSpace(sys), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.MaxTokens))
	}

	if len(req.Tools) > 0 {
		tools := make([]gollm.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))
	}
	if req.ToolChoice != nil {
		promptOpts = append(promptOpts, gollm.WithToolChoice(req.ToolChoice.Mode))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

func (p *GollmProvider) applyRequestOptions(req Request) {
	if req.Model != "" {
		p.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		p.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens != nil {
		p.llm.SetOption("max_tokens", *req.MaxTokens)
	}
}

func (p *GollmProvider) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = p.model
	}

	toolCalls := parseToolCalls(text)
	cleaned := stripToolCallJSON(text, toolCalls)

	finish := FinishReason{Reason: "stop", Raw: "stop"}
	if len(toolCalls) > 0 {
		finish = FinishReason{Reason: "tool_calls", Raw: "tool_calls"}
	}

	// gollm does not expose usage counts; approximate from text length.
	inTokens := 0
	for _, m := range req.Messages {
		inTokens += len(m.Text) / 4
	}
	outTokens := len(text) / 4

	return &Response{
		ID:           "resp_" + uuid.New().String()[:8],
		Model:        model,
		Provider:     p.provider,
		Text:         cleaned,
		ToolCalls:    toolCalls,
		FinishReason: finish,
		Usage: Usage{
			InputTokens:  inTokens,
			OutputTokens: outTokens,
			TotalTokens:  inTokens + outTokens,
		},
	}
}

// parseToolCalls extracts tool calls gollm returns embedded in the
// response text as a JSON array of {name, arguments} objects.
func parseToolCalls(text string) []ToolCall {
	start := strings.Index(text, `[{"name"`)
	if start == -1 {
		return nil
	}

	var rawCalls []struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(text[start:]), &rawCalls); err != nil {
		return nil
	}

	calls := make([]ToolCall, 0, len(rawCalls))
	for _, rc := range rawCalls {
		calls = append(calls, ToolCall{
			ID:        "call_" + uuid.New().String()[:8],
			Name:      rc.Name,
			Arguments: rc.Arguments,
		})
	}
	return calls
}

func stripToolCallJSON(text string, calls []ToolCall) string {
	if len(calls) == 0 {
		return text
	}
	if idx := strings.Index(text, `[{"name"`); idx != -1 {
		return strings.TrimSpace(text[:idx])
	}
	return text
}

// translateError maps a gollm error into the typed hierarchy by message
// content, since gollm flattens provider errors to strings.
func (p *GollmProvider) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)

	pe := ProviderError{
		ClientError: ClientError{Message: msg, Cause: err},
		Provider:    p.provider,
	}

	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key") || strings.Contains(lower, "invalid x-api-key"):
		pe.StatusCode = 401
		return &AuthenticationError{ProviderError: pe}
	case strings.Contains(lower, "billing") || strings.Contains(lower, "quota") || strings.Contains(lower, "insufficient credit"):
		pe.StatusCode = 402
		return &BillingError{ProviderError: pe}
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests"):
		pe.StatusCode = 429
		pe.Retryable = true
		return &RateLimitError{ProviderError: pe}
	case strings.Contains(lower, "context length") || strings.Contains(lower, "too many tokens") || strings.Contains(lower, "prompt is too long"):
		pe.StatusCode = 413
		return &ContextLengthError{ProviderError: pe}
	case strings.Contains(lower, "400") || strings.Contains(lower, "invalid request"):
		pe.StatusCode = 400
		return &InvalidRequestError{ProviderError: pe}
	case strings.Contains(lower, "500") || strings.Contains(lower, "502") || strings.Contains(lower, "503") || strings.Contains(lower, "overloaded") || strings.Contains(lower, "internal server"):
		pe.StatusCode = 500
		pe.Retryable = true
		return &ServerError{ProviderError: pe}
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return &TimeoutError{ClientError: ClientError{Message: msg, Cause: err}}
	case strings.Contains(lower, "connection reset") || strings.Contains(lower, "connection refused") || strings.Contains(lower, "broken pipe") || strings.Contains(lower, "no such host"):
		return &NetworkError{ClientError: ClientError{Message: msg, Cause: err}}
	default:
		pe.Retryable = true
		return &pe
	}
}
