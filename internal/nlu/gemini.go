package nlu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"
)

// geminiPlanner asks Gemini for tool calls using forced function calling.
type geminiPlanner struct {
	client *genai.Client
	model  string
	tools  []*genai.Tool
}

// newGeminiPlanner creates a Gemini planner.
func newGeminiPlanner(ctx context.Context, apiKey, model string) (*geminiPlanner, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is empty")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &geminiPlanner{
		client: client,
		model:  model,
		tools:  []*genai.Tool{{FunctionDeclarations: buildGeminiFunctions()}},
	}, nil
}

func buildGeminiFunctions() []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(toolSpecs))
	for _, spec := range toolSpecs {
		props := make(map[string]*genai.Schema, len(spec.Params))
		for _, p := range spec.Params {
			props[p.Name] = &genai.Schema{
				Type:        genai.TypeString,
				Description: p.Description,
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   spec.paramNames(),
			},
		})
	}
	return decls
}

// Plan sends the turn to Gemini. ANY mode forces at least one function call.
func (p *geminiPlanner) Plan(ctx context.Context, req Request) ([]ToolCall, error) {
	config := &genai.GenerateContentConfig{
		Tools:             p.tools,
		SystemInstruction: genai.NewContentFromText(buildSystemPrompt(req.Context), genai.RoleUser),
		ToolConfig: &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeAny,
			},
		},
		Temperature:     genai.Ptr[float32](0.3),
		MaxOutputTokens: 1024,
	}

	start := time.Now()
	result, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(req.Text), config)
	duration := time.Since(start)
	if err != nil {
		slog.WarnContext(ctx, "nlu API call failed",
			"provider", ProviderGemini,
			"model", p.model,
			"input_length", len(req.Text),
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return nil, WrapError(fmt.Errorf("generate content failed: %w", err), ProviderGemini, 0)
	}

	calls, err := parseGeminiResponse(result)
	if err != nil {
		return nil, WrapError(err, ProviderGemini, 0)
	}

	if result.UsageMetadata != nil {
		slog.DebugContext(ctx, "nlu plan completed",
			"provider", ProviderGemini,
			"model", p.model,
			"input_tokens", result.UsageMetadata.PromptTokenCount,
			"output_tokens", result.UsageMetadata.CandidatesTokenCount,
			"calls", len(calls),
			"duration_ms", duration.Milliseconds())
	}
	return calls, nil
}

func parseGeminiResponse(result *genai.GenerateContentResponse) ([]ToolCall, error) {
	if result == nil || len(result.Candidates) == 0 {
		return nil, fmt.Errorf("%w: empty response", errMalformedResponse)
	}
	candidate := result.Candidates[0]
	if candidate.Content == nil {
		return nil, fmt.Errorf("%w: no content", errMalformedResponse)
	}

	var calls []ToolCall
	for _, part := range candidate.Content.Parts {
		if part == nil || part.FunctionCall == nil {
			continue
		}
		args := part.FunctionCall.Args
		if args == nil {
			args = map[string]any{}
		}
		calls = append(calls, ToolCall{Name: part.FunctionCall.Name, Args: args})
	}
	return validateCalls(calls)
}

func (p *geminiPlanner) Provider() Provider { return ProviderGemini }

func (p *geminiPlanner) Model() string { return p.model }

// Close is a no-op; genai.Client holds no resources that need releasing.
func (p *geminiPlanner) Close() error { return nil }
