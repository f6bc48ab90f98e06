package toolshape

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var searchTool = Tool{
	Name:        "search_past_incidents",
	Description: "Search ISRID for similar incidents.",
	Parameters: map[string]any{
		"type":       "object",
		"properties": map[string]any{"query": map[string]any{"type": "string"}},
		"required":   []string{"query"},
	},
}

func TestBuild_OpenAI(t *testing.T) {
	req := Request{
		Conversation: []Turn{
			{Role: "user", Content: "Find similar cases for a missing 40-year-old hiker."},
		},
		Tools:             []Tool{searchTool},
		SystemInstruction: "You are a SAR reasoning agent.",
		Model:             "gpt-4.1-nano",
	}

	body, err := Build(OpenAI, req)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4.1-nano", body["model"])
	assert.Equal(t, "auto", body["tool_choice"])

	messages := body["messages"].([]map[string]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0]["role"])
	assert.Equal(t, "You are a SAR reasoning agent.", messages[0]["content"])
	assert.Equal(t, "user", messages[1]["role"])

	tools := body["tools"].([]map[string]any)
	require.Len(t, tools, 1)
	assert.Equal(t, "function", tools[0]["type"])
	fn := tools[0]["function"].(map[string]any)
	assert.Equal(t, "search_past_incidents", fn["name"])

	meta := body["metadata"].(map[string]any)
	_, err = uuid.Parse(meta["request_id"].(string))
	assert.NoError(t, err)
	_, err = time.Parse("2006-01-02T15:04:05.000Z07:00", meta["timestamp_utc"].(string))
	assert.NoError(t, err)
}

func TestBuild_OpenAI_DefaultModel(t *testing.T) {
	body, err := Build(OpenAI, Request{Conversation: []Turn{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	assert.NotEmpty(t, body["model"])
}

func TestBuild_OpenAI_ModelFromEnv(t *testing.T) {
	t.Setenv("OPENAI_DEFAULT_MODEL", "gpt-custom")
	body, err := Build(OpenAI, Request{})
	require.NoError(t, err)
	assert.Equal(t, "gpt-custom", body["model"])
}

func TestBuild_Gemini(t *testing.T) {
	req := Request{
		Conversation: []Turn{
			{Role: "user", Content: "first"},
			{Role: "assistant", Content: "second"},
		},
		Tools:             []Tool{searchTool},
		SystemInstruction: "Stay on task.",
	}

	body, err := Build(Gemini, req)
	require.NoError(t, err)
	assert.NotContains(t, body, "model", "gemini carries the model in the URL")

	contents := body["contents"].([]map[string]any)
	require.Len(t, contents, 4, "system primer exchange plus the conversation")
	assert.Equal(t, "user", contents[0]["role"])
	assert.Equal(t, "model", contents[1]["role"])
	assert.Equal(t, "user", contents[2]["role"])
	assert.Equal(t, "model", contents[3]["role"], "assistant maps to model")

	tools := body["tools"].([]map[string]any)
	require.Len(t, tools, 1)
	decls := tools[0]["function_declarations"].([]map[string]any)
	require.Len(t, decls, 1)
	assert.Equal(t, "search_past_incidents", decls[0]["name"])
}

func TestBuild_UnknownProvider(t *testing.T) {
	_, err := Build(Provider("cohere"), Request{})
	require.Error(t, err)
	_, err = ParseToolCall(Provider("cohere"), []byte("{}"))
	require.Error(t, err)
}

func TestParseToolCall_OpenAI(t *testing.T) {
	raw := []byte(`{
		"choices": [{
			"message": {
				"tool_calls": [{
					"function": {
						"name": "search_past_incidents",
						"arguments": "{\"query\": \"missing hiker\"}"
					}
				}]
			}
		}]
	}`)

	call, err := ParseToolCall(OpenAI, raw)
	require.NoError(t, err)
	require.NotNil(t, call)
	assert.Equal(t, "search_past_incidents", call.Name)
	assert.Equal(t, map[string]any{"query": "missing hiker"}, call.Args)
}

func TestParseToolCall_OpenAI_InlineArguments(t *testing.T) {
	raw := []byte(`{"choices":[{"message":{"tool_calls":[{"function":{"name":"f","arguments":{"a":1}}}]}}]}`)
	call, err := ParseToolCall(OpenAI, raw)
	require.NoError(t, err)
	require.NotNil(t, call)
	assert.Equal(t, "f", call.Name)
	assert.Equal(t, float64(1), call.Args["a"])
}

func TestParseToolCall_OpenAI_NoToolCall(t *testing.T) {
	for _, raw := range []string{
		`{"choices":[{"message":{"content":"just text"}}]}`,
		`{"choices":[]}`,
		`{}`,
		`not json at all`,
		`{"choices":[{"message":{"tool_calls":[{"function":{"name":"f","arguments":"{broken"}}]}}]}`,
	} {
		call, err := ParseToolCall(OpenAI, []byte(raw))
		require.NoError(t, err, "raw: %s", raw)
		assert.Nil(t, call, "raw: %s", raw)
	}
}

func TestParseToolCall_Gemini(t *testing.T) {
	raw := []byte(`{
		"candidates": [{
			"content": {
				"parts": [{
					"functionCall": {
						"name": "search_past_incidents",
						"args": {"query": "missing hiker"}
					}
				}]
			}
		}]
	}`)

	call, err := ParseToolCall(Gemini, raw)
	require.NoError(t, err)
	require.NotNil(t, call)
	assert.Equal(t, "search_past_incidents", call.Name)
	assert.Equal(t, map[string]any{"query": "missing hiker"}, call.Args)
}

func TestParseToolCall_Gemini_NoCall(t *testing.T) {
	for _, raw := range []string{
		`{"candidates":[{"content":{"parts":[{"text":"plain answer"}]}}]}`,
		`{"candidates":[]}`,
		`{}`,
		`garbage`,
	} {
		call, err := ParseToolCall(Gemini, []byte(raw))
		require.NoError(t, err, "raw: %s", raw)
		assert.Nil(t, call, "raw: %s", raw)
	}
}

func TestParseToolCall_Gemini_MissingArgs(t *testing.T) {
	raw := []byte(`{"candidates":[{"content":{"parts":[{"functionCall":{"name":"f"}}]}}]}`)
	call, err := ParseToolCall(Gemini, raw)
	require.NoError(t, err)
	require.NotNil(t, call)
	assert.NotNil(t, call.Args)
	assert.Empty(t, call.Args)
}
