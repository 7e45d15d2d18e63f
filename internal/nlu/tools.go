package nlu

import (
	"fmt"
	"strings"
)

// Tool names the model may call.
const (
	ToolSend         = "send"
	ToolSetContext   = "set_context"
	ToolClearContext = "clear_context"
	ToolFinish       = "finish"
)

// toolSpec is a provider-neutral function declaration.
// Every parameter is a required string.
type toolSpec struct {
	Name        string
	Description string
	Params      []paramSpec
}

type paramSpec struct {
	Name        string
	Description string
}

var toolSpecs = []toolSpec{
	{
		Name:        ToolSend,
		Description: "Send a text message to the user.",
		Params: []paramSpec{
			{Name: "text", Description: "Message text shown to the user. Plain text, no markdown."},
		},
	},
	{
		Name:        ToolSetContext,
		Description: "Remember a value for later turns of this conversation.",
		Params: []paramSpec{
			{Name: "key", Description: "Slot name, e.g. \"color\" or \"city\"."},
			{Name: "value", Description: "Slot value as text."},
		},
	},
	{
		Name:        ToolClearContext,
		Description: "Forget a previously remembered value.",
		Params: []paramSpec{
			{Name: "key", Description: "Slot name to remove."},
		},
	},
	{
		Name:        ToolFinish,
		Description: "End the conversation once the user's request is fully handled. Later messages start fresh.",
	},
}

func (t toolSpec) paramNames() []string {
	names := make([]string, len(t.Params))
	for i, p := range t.Params {
		names[i] = p.Name
	}
	return names
}

// SystemPrompt is the base instruction given to every provider.
const SystemPrompt = `You are a helpful assistant inside a Messenger chat.
You can only act through the provided functions:
- Call send to reply. Keep replies short.
- Call set_context to remember facts the user gives you that later turns will need.
- Call clear_context when a remembered fact is no longer valid.
- Call finish when the user's goal is complete or they say goodbye.
You may call several functions in one turn; they run in the order given.
Always call send at least once unless you only need to call finish.`

// buildSystemPrompt appends the current session context to the base prompt.
func buildSystemPrompt(c Context) string {
	data, err := MarshalContext(withoutDone(c))
	if err != nil {
		data = []byte("{}")
	}

	var b strings.Builder
	b.WriteString(SystemPrompt)
	b.WriteString("\n\nRemembered context (JSON):\n")
	b.Write(data)
	return b.String()
}

func withoutDone(c Context) Context {
	if _, ok := c[DoneKey]; !ok {
		return c
	}
	out := c.Clone()
	delete(out, DoneKey)
	return out
}

// validateCall checks a call against the declared tools.
func validateCall(call ToolCall) error {
	for _, spec := range toolSpecs {
		if spec.Name != call.Name {
			continue
		}
		for _, p := range spec.Params {
			v, ok := call.Args[p.Name]
			if !ok {
				return fmt.Errorf("%w: %s missing %q", errMalformedResponse, call.Name, p.Name)
			}
			if _, isString := v.(string); !isString {
				return fmt.Errorf("%w: %s.%s is %T, want string", errMalformedResponse, call.Name, p.Name, v)
			}
		}
		return nil
	}
	return fmt.Errorf("%w: unknown function %q", errMalformedResponse, call.Name)
}

// validateCalls rejects empty or invalid plans so the fallback chain can try another model.
func validateCalls(calls []ToolCall) ([]ToolCall, error) {
	if len(calls) == 0 {
		return nil, fmt.Errorf("%w: no function calls", errMalformedResponse)
	}
	for _, c := range calls {
		if err := validateCall(c); err != nil {
			return nil, err
		}
	}
	return calls, nil
}
