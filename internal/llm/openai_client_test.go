package llm

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

type stubChatClient struct {
	resp     openai.ChatCompletionResponse
	err      error
	lastReq  openai.ChatCompletionRequest
	requests int
}

func (s *stubChatClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.requests++
	s.lastReq = req
	return s.resp, s.err
}

func TestOpenAIClientComplete(t *testing.T) {
	stub := &stubChatClient{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Content: "  Olá! Como posso ajudar?  "},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{PromptTokens: 20, CompletionTokens: 8, TotalTokens: 28},
	}}
	client := newOpenAIClientWith(stub, "gpt-4o-mini")

	got, err := client.Complete(context.Background(), Request{
		System:      "Você é um assistente de vendas.",
		Messages:    []Message{{Role: RoleUser, Content: "oi"}},
		Temperature: 0.7,
		MaxTokens:   512,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.Content != "Olá! Como posso ajudar?" {
		t.Fatalf("content = %q", got.Content)
	}
	if got.Usage.TotalTokens != 28 {
		t.Fatalf("usage = %+v", got.Usage)
	}

	if stub.lastReq.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Fatalf("system prompt not first: %+v", stub.lastReq.Messages)
	}
	if stub.lastReq.Messages[1].Role != openai.ChatMessageRoleUser {
		t.Fatalf("user message role = %q", stub.lastReq.Messages[1].Role)
	}
}

func TestOpenAIClientEmptyPrompt(t *testing.T) {
	client := newOpenAIClientWith(&stubChatClient{}, "gpt-4o-mini")
	if _, err := client.Complete(context.Background(), Request{}); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("err = %v, want ErrEmptyPrompt", err)
	}
}

func TestOpenAIClientErrorClassification(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"rate limited", &openai.APIError{HTTPStatusCode: 429}, true},
		{"server error", &openai.APIError{HTTPStatusCode: 503}, true},
		{"bad request", &openai.APIError{HTTPStatusCode: 400}, false},
		{"unauthorized", &openai.APIError{HTTPStatusCode: 401}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"plain transport", errors.New("connection reset"), true},
	}
	for _, tc := range cases {
		stub := &stubChatClient{err: tc.err}
		client := newOpenAIClientWith(stub, "gpt-4o-mini")
		_, err := client.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "oi"}}})
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if IsRetryable(err) != tc.retryable {
			t.Fatalf("%s: IsRetryable = %v, want %v (err=%v)", tc.name, IsRetryable(err), tc.retryable, err)
		}
	}
}

func TestOpenAIClientNoChoicesIsRetryable(t *testing.T) {
	client := newOpenAIClientWith(&stubChatClient{}, "gpt-4o-mini")
	_, err := client.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "oi"}}})
	if !IsRetryable(err) {
		t.Fatalf("empty choices should be retryable, got %v", err)
	}
}

func TestNewOpenAIClientDefaultsModel(t *testing.T) {
	c, err := NewOpenAIClient("key", "  ")
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}
	if c.model != "gpt-4o-mini" {
		t.Fatalf("model = %q, want gpt-4o-mini", c.model)
	}
}
