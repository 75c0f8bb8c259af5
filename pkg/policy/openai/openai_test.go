package openai

import (
	"strings"
	"testing"

	"github.com/MrWong99/arithmos/pkg/policy"
	"github.com/MrWong99/arithmos/pkg/types"
)

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Error("expected error for empty api key")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("sk-test", "gpt-4o-mini"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestConvertMessage_User(t *testing.T) {
	msg, err := convertMessage(types.UserMessage("hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.OfUser == nil {
		t.Fatal("expected OfUser to be set")
	}
}

func TestConvertMessage_AssistantWithToolCalls(t *testing.T) {
	msg, err := convertMessage(types.Message{
		Role: types.RoleAssistant,
		ToolCalls: []types.ToolCall{
			{ID: "call_1", Name: "add", Arguments: `{"a":2,"b":3}`},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.OfAssistant == nil {
		t.Fatal("expected OfAssistant to be set")
	}
	if len(msg.OfAssistant.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(msg.OfAssistant.ToolCalls))
	}
	tc := msg.OfAssistant.ToolCalls[0]
	if tc.ID != "call_1" || tc.Function.Name != "add" {
		t.Errorf("tool call = %+v", tc)
	}
	if tc.Function.Arguments != `{"a":2,"b":3}` {
		t.Errorf("unexpected arguments: %s", tc.Function.Arguments)
	}
}

func TestConvertMessage_Tool(t *testing.T) {
	msg, err := convertMessage(types.Message{Role: types.RoleTool, Content: "5", ToolCallID: "call_1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.OfTool == nil {
		t.Fatal("expected OfTool to be set")
	}
	if msg.OfTool.ToolCallID != "call_1" {
		t.Errorf("tool call id = %q, want call_1", msg.OfTool.ToolCallID)
	}
}

func TestConvertMessage_UnknownRole(t *testing.T) {
	_, err := convertMessage(types.Message{Role: "oracle", Content: "?"})
	if err == nil {
		t.Fatal("expected error for unknown role")
	}
	if !strings.Contains(err.Error(), "oracle") {
		t.Errorf("error should name the role, got: %v", err)
	}
}

func TestBuildParams(t *testing.T) {
	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	temp := 0.2
	req := policy.Request{
		Messages:     []types.Message{types.UserMessage("what is 2+3?")},
		SystemPrompt: "You are a calculator.",
		Temperature:  &temp,
		MaxTokens:    128,
		Tools: []types.ToolDefinition{{
			Name:        "add",
			Description: "Add two integers.",
			Parameters: []types.ParamSpec{
				{Name: "a", Type: types.TypeInteger, Required: true},
				{Name: "b", Type: types.TypeInteger, Required: true},
			},
		}},
	}

	params, err := p.buildParams(req)
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if string(params.Model) != "gpt-4o-mini" {
		t.Errorf("model = %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages (system + user), got %d", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("first message should be the system prompt")
	}
	if !params.Temperature.Valid() || params.Temperature.Value != 0.2 {
		t.Errorf("temperature = %+v", params.Temperature)
	}
	if !params.MaxCompletionTokens.Valid() || params.MaxCompletionTokens.Value != 128 {
		t.Errorf("max completion tokens = %+v", params.MaxCompletionTokens)
	}
	if len(params.Tools) != 1 || params.Tools[0].Function.Name != "add" {
		t.Fatalf("tools = %+v", params.Tools)
	}
	if params.Tools[0].Function.Parameters["type"] != "object" {
		t.Errorf("function parameters = %v", params.Tools[0].Function.Parameters)
	}
}

func TestBuildParams_DefaultsOmitted(t *testing.T) {
	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	params, err := p.buildParams(policy.Request{
		Messages: []types.Message{types.UserMessage("hi")},
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if params.Temperature.Valid() {
		t.Error("unset temperature should leave the backend default in place")
	}
	if params.MaxCompletionTokens.Valid() {
		t.Error("zero max tokens should leave the backend default in place")
	}
}

func TestBuildParams_ExplicitZeroTemperature(t *testing.T) {
	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	zero := 0.0
	params, err := p.buildParams(policy.Request{
		Messages:    []types.Message{types.UserMessage("hi")},
		Temperature: &zero,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if !params.Temperature.Valid() || params.Temperature.Value != 0 {
		t.Errorf("explicit zero temperature dropped: %+v", params.Temperature)
	}
}
