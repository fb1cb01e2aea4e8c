package openai

import (
	"testing"

	"github.com/MrWong99/visema/pkg/provider/llm"
	"github.com/MrWong99/visema/pkg/types"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Error("New with empty apiKey: want error, got nil")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("New with empty model: want error, got nil")
	}
}

func TestBuildParamsMessageOrder(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "gpt-4o-mini"}
	req := llm.Request{
		Text:         "What changed?",
		SystemPrompt: "You are Assistant.",
		History: []types.Message{
			{Role: "user", Content: "Hello"},
			{Role: "assistant", Content: "Hi there."},
		},
	}

	params, err := p.buildParams(req)
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}

	if string(params.Model) != "gpt-4o-mini" {
		t.Errorf("model = %q, want gpt-4o-mini", params.Model)
	}
	if len(params.Messages) != 4 {
		t.Fatalf("got %d messages, want 4 (system + 2 history + user)", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("first message is not a system message")
	}
	if params.Messages[1].OfUser == nil {
		t.Error("second message is not a user message")
	}
	if params.Messages[2].OfAssistant == nil {
		t.Error("third message is not an assistant message")
	}
	last := params.Messages[3]
	if last.OfUser == nil {
		t.Fatal("last message is not a user message")
	}
	if got := last.OfUser.Content.OfString.Value; got != "What changed?" {
		t.Errorf("last message content = %q, want current user text", got)
	}
}

func TestBuildParamsOmitsEmptySystemPrompt(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "gpt-4o-mini"}
	params, err := p.buildParams(llm.Request{Text: "hi"})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}

	if len(params.Messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(params.Messages))
	}
	if params.Temperature.Valid() {
		t.Error("zero Temperature should not be set on params")
	}
	if params.MaxCompletionTokens.Valid() {
		t.Error("zero MaxTokens should not set MaxCompletionTokens")
	}
}

func TestBuildParamsOptionalFields(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "gpt-4o-mini"}
	params, err := p.buildParams(llm.Request{Text: "hi", Temperature: 0.7, MaxTokens: 256})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}

	if !params.Temperature.Valid() || params.Temperature.Value != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", params.Temperature)
	}
	if !params.MaxCompletionTokens.Valid() || params.MaxCompletionTokens.Value != 256 {
		t.Errorf("MaxCompletionTokens = %v, want 256", params.MaxCompletionTokens)
	}
}

func TestBuildParamsRejectsUnknownRole(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "gpt-4o-mini"}
	_, err := p.buildParams(llm.Request{
		Text:    "hi",
		History: []types.Message{{Role: "narrator", Content: "meanwhile"}},
	})
	if err == nil {
		t.Fatal("buildParams with unknown role: want error, got nil")
	}
}

func TestCapabilities(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "gpt-4o-mini"}
	caps := p.Capabilities()

	if !caps.SupportsStreaming {
		t.Error("SupportsStreaming = false, want true")
	}
	if caps.MaxTextLength != 128_000*2 {
		t.Errorf("MaxTextLength = %d, want %d", caps.MaxTextLength, 128_000*2)
	}
}

func TestMaxTextLengthFamilies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model string
		want  int
	}{
		{"gpt-4o-mini", 128_000 * 2},
		{"gpt-3.5-turbo", 16_385 * 2},
		{"o1-mini", 200_000 * 2},
		{"o3", 200_000 * 2},
	}
	for _, tt := range tests {
		if got := maxTextLength(tt.model); got != tt.want {
			t.Errorf("maxTextLength(%q) = %d, want %d", tt.model, got, tt.want)
		}
	}
}
