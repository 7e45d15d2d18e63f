package nlu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// openaiPlanner asks any OpenAI-compatible chat completion API for tool calls.
// It serves Groq (fixed endpoint) and generic OpenAI endpoints (custom base URL).
type openaiPlanner struct {
	client   openai.Client
	model    string
	tools    []openai.ChatCompletionToolUnionParam
	provider Provider
}

// newOpenAIPlanner creates an OpenAI-compatible planner.
// endpoint overrides the provider's default base URL when set.
func newOpenAIPlanner(provider Provider, apiKey, model, endpoint string, opts ...option.RequestOption) (*openaiPlanner, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s api key is empty", provider)
	}

	baseURL := endpoint
	if baseURL == "" {
		var ok bool
		baseURL, ok = ProviderEndpoint[provider]
		if !ok && provider != ProviderOpenAI {
			return nil, fmt.Errorf("unsupported OpenAI-compatible provider: %s", provider)
		}
	}

	if model == "" {
		switch provider {
		case ProviderGroq:
			model = DefaultGroqModel
		default:
			return nil, fmt.Errorf("model is required for provider %s", provider)
		}
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(baseURL))
	}
	clientOpts = append(clientOpts, opts...)

	return &openaiPlanner{
		client:   openai.NewClient(clientOpts...),
		model:    model,
		tools:    buildOpenAITools(),
		provider: provider,
	}, nil
}

// buildOpenAITools converts tool specs to OpenAI v3 tool format (lowercase JSON Schema types).
func buildOpenAITools() []openai.ChatCompletionToolUnionParam {
	result := make([]openai.ChatCompletionToolUnionParam, 0, len(toolSpecs))
	for _, spec := range toolSpecs {
		properties := make(map[string]any, len(spec.Params))
		for _, p := range spec.Params {
			properties[p.Name] = map[string]string{
				"type":        "string",
				"description": p.Description,
			}
		}
		result = append(result, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        spec.Name,
			Description: openai.String(spec.Description),
			Parameters: openai.FunctionParameters{
				"type":       "object",
				"properties": properties,
				"required":   spec.paramNames(),
			},
		}))
	}
	return result
}

// Plan sends the turn with tool_choice=required.
func (p *openaiPlanner) Plan(ctx context.Context, req Request) ([]ToolCall, error) {
	params := openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(buildSystemPrompt(req.Context)),
			openai.UserMessage(req.Text),
		},
		Tools: p.tools,
		ToolChoice: openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String(string(openai.ChatCompletionToolChoiceOptionAutoRequired)),
		},
		Temperature: openai.Float(0.3),
		MaxTokens:   openai.Int(1024),
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	duration := time.Since(start)
	if err != nil {
		slog.WarnContext(ctx, "nlu API call failed",
			"provider", p.provider,
			"model", p.model,
			"input_length", len(req.Text),
			"duration_ms", duration.Milliseconds(),
			"error", err)
		status := 0
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return nil, WrapError(fmt.Errorf("chat completion failed: %w", err), p.provider, status)
	}

	calls, err := parseOpenAIResponse(resp)
	if err != nil {
		return nil, WrapError(err, p.provider, 0)
	}

	slog.DebugContext(ctx, "nlu plan completed",
		"provider", p.provider,
		"model", p.model,
		"input_tokens", resp.Usage.PromptTokens,
		"output_tokens", resp.Usage.CompletionTokens,
		"calls", len(calls),
		"duration_ms", duration.Milliseconds())
	return calls, nil
}

func parseOpenAIResponse(resp *openai.ChatCompletion) ([]ToolCall, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response", errMalformedResponse)
	}

	var calls []ToolCall
	for _, tc := range resp.Choices[0].Message.ToolCalls {
		if tc.Type != "function" {
			continue
		}
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("%w: arguments for %s: %v", errMalformedResponse, tc.Function.Name, err)
			}
		}
		calls = append(calls, ToolCall{Name: tc.Function.Name, Args: args})
	}
	return validateCalls(calls)
}

func (p *openaiPlanner) Provider() Provider { return p.provider }

func (p *openaiPlanner) Model() string { return p.model }

func (p *openaiPlanner) Close() error { return nil }
