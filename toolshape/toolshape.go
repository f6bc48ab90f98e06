// Package toolshape shapes LLM tool-calling requests and responses for
// multiple providers. It is a stateless format-translation helper: it
// never talks to a provider itself, it only builds the request body to
// hand to a chat client and extracts the tool call from the raw response.
//
// Providers are dispatched through a capability table holding one
// {build, parse, default model} record per provider tag, so adding a
// provider means adding a table entry, not another branch.
package toolshape

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// Provider tags a supported LLM backend.
type Provider string

const (
	OpenAI Provider = "openai"
	Gemini Provider = "gemini"
)

// Tool declares one callable tool as a JSON Schema function declaration.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Turn is one message of the conversation so far.
type Turn struct {
	Role    string // "user", "assistant" or "system"
	Content string
}

// Request carries everything needed to build a tool-use chat request.
type Request struct {
	Conversation      []Turn
	Tools             []Tool
	SystemInstruction string
	// Model overrides the provider default when non-empty.
	Model string
}

// ToolCall is the first tool invocation found in a model response.
type ToolCall struct {
	Name string
	Args map[string]any
}

// shaper is one capability record of the dispatch table.
type shaper struct {
	build        func(req Request, model string) map[string]any
	parse        func(raw []byte) *ToolCall
	defaultModel func() string
}

var providers = map[Provider]shaper{
	OpenAI: {
		build:        buildOpenAI,
		parse:        parseOpenAI,
		defaultModel: func() string { return envOr("OPENAI_DEFAULT_MODEL", "gpt-4.1-nano") },
	},
	Gemini: {
		build:        buildGemini,
		parse:        parseGemini,
		defaultModel: func() string { return envOr("GEMINI_DEFAULT_MODEL", "gemini-1.5-flash") },
	},
}

// Build returns a request body ready to pass to the provider's chat
// endpoint. Unsupported providers are an error.
func Build(provider Provider, req Request) (map[string]any, error) {
	s, ok := providers[provider]
	if !ok {
		return nil, fmt.Errorf("toolshape: unsupported provider %q", provider)
	}
	model := req.Model
	if model == "" {
		model = s.defaultModel()
	}
	return s.build(req, model), nil
}

// ParseToolCall extracts the first tool call from a raw provider
// response. A response without a tool call, whether the model answered
// in text or the shape was not recognized, yields (nil, nil).
func ParseToolCall(provider Provider, raw []byte) (*ToolCall, error) {
	s, ok := providers[provider]
	if !ok {
		return nil, fmt.Errorf("toolshape: unsupported provider %q", provider)
	}
	return s.parse(raw), nil
}

func buildOpenAI(req Request, model string) map[string]any {
	messages := make([]map[string]any, 0, len(req.Conversation)+1)
	if req.SystemInstruction != "" {
		messages = append(messages, map[string]any{"role": "system", "content": req.SystemInstruction})
	}
	for _, t := range req.Conversation {
		messages = append(messages, map[string]any{"role": t.Role, "content": t.Content})
	}

	tools := make([]map[string]any, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, map[string]any{
			"type":     "function",
			"function": functionDecl(t),
		})
	}

	return map[string]any{
		"model":       model,
		"messages":    messages,
		"tools":       tools,
		"tool_choice": "auto",
		"metadata": map[string]any{
			"request_id":    uuid.NewString(),
			"timestamp_utc": time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		},
	}
}

func parseOpenAI(raw []byte) *ToolCall {
	var resp struct {
		Choices []struct {
			Message struct {
				ToolCalls []struct {
					Function struct {
						Name      string          `json:"name"`
						Arguments json.RawMessage `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil
	}
	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return nil
	}
	fn := resp.Choices[0].Message.ToolCalls[0].Function
	if fn.Name == "" {
		return nil
	}
	// Arguments arrive as a JSON-encoded string in chat completions, but
	// tolerate an inline object too.
	args := map[string]any{}
	var argStr string
	if err := json.Unmarshal(fn.Arguments, &argStr); err == nil {
		if err := json.Unmarshal([]byte(argStr), &args); err != nil {
			return nil
		}
	} else if err := json.Unmarshal(fn.Arguments, &args); err != nil {
		return nil
	}
	return &ToolCall{Name: fn.Name, Args: args}
}

// buildGemini ignores the model: Gemini addresses it in the endpoint URL,
// not the request body.
func buildGemini(req Request, _ string) map[string]any {
	decls := make([]map[string]any, 0, len(req.Tools))
	for _, t := range req.Tools {
		decls = append(decls, functionDecl(t))
	}

	contents := make([]map[string]any, 0, len(req.Conversation)+2)
	if req.SystemInstruction != "" {
		// Gemini has no system role here; prime the exchange instead.
		contents = append(contents,
			geminiTurn("user", req.SystemInstruction),
			geminiTurn("model", "OK, I am ready."),
		)
	}
	for _, t := range req.Conversation {
		role := "user"
		if t.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, geminiTurn(role, t.Content))
	}

	return map[string]any{
		"contents": contents,
		"tools":    []map[string]any{{"function_declarations": decls}},
	}
}

func parseGemini(raw []byte) *ToolCall {
	var resp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					FunctionCall *struct {
						Name string         `json:"name"`
						Args map[string]any `json:"args"`
					} `json:"functionCall"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil
	}
	call := resp.Candidates[0].Content.Parts[0].FunctionCall
	if call == nil || call.Name == "" {
		return nil
	}
	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	return &ToolCall{Name: call.Name, Args: args}
}

func functionDecl(t Tool) map[string]any {
	return map[string]any{
		"name":        t.Name,
		"description": t.Description,
		"parameters":  t.Parameters,
	}
}

func geminiTurn(role, text string) map[string]any {
	return map[string]any{
		"role":  role,
		"parts": []map[string]any{{"text": text}},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
