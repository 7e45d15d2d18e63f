package nlu

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateCalls(t *testing.T) {
	tests := []struct {
		name    string
		calls   []ToolCall
		wantErr bool
	}{
		{"empty plan", nil, true},
		{"valid send", []ToolCall{{Name: ToolSend, Args: map[string]any{"text": "hi"}}}, false},
		{"finish without args", []ToolCall{{Name: ToolFinish}}, false},
		{"unknown tool", []ToolCall{{Name: "launch_rockets"}}, true},
		{"missing arg", []ToolCall{{Name: ToolSetContext, Args: map[string]any{"key": "k"}}}, true},
		{"non-string arg", []ToolCall{{Name: ToolSend, Args: map[string]any{"text": 3.0}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validateCalls(tt.calls)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateCalls() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errMalformedResponse) {
				t.Errorf("error should wrap errMalformedResponse: %v", err)
			}
		})
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	prompt := buildSystemPrompt(Context{"color": "red", DoneKey: false})

	if !strings.HasPrefix(prompt, SystemPrompt) {
		t.Error("prompt should start with the base instructions")
	}
	if !strings.Contains(prompt, `{"color":"red"}`) {
		t.Errorf("prompt should embed the context without the done marker:\n%s", prompt)
	}

	if !strings.HasSuffix(buildSystemPrompt(nil), "{}") {
		t.Error("nil context should render as {}")
	}
}

func TestToolDeclarations(t *testing.T) {
	gemini := buildGeminiFunctions()
	openai := buildOpenAITools()

	if len(gemini) != len(toolSpecs) || len(openai) != len(toolSpecs) {
		t.Fatalf("declarations = (%d gemini, %d openai), want %d each", len(gemini), len(openai), len(toolSpecs))
	}
	for i, spec := range toolSpecs {
		if gemini[i].Name != spec.Name {
			t.Errorf("gemini[%d].Name = %q, want %q", i, gemini[i].Name, spec.Name)
		}
		if len(gemini[i].Parameters.Required) != len(spec.Params) {
			t.Errorf("%s: every parameter should be required", spec.Name)
		}
	}
}
