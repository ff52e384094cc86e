package promptagent

import (
	"context"
	"errors"
	"testing"

	"github.com/flowctl/core/pkg/ai/llm"
	"github.com/flowctl/core/pkg/billing"
	"github.com/flowctl/core/pkg/config"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/logx"
	"github.com/flowctl/core/pkg/store/storemem"
	"github.com/flowctl/core/pkg/tenanttree"
)

type fakeProvider struct {
	responses []llm.Response
	calls     int
	err       error
}

func (p *fakeProvider) Chat(_ context.Context, _ []llm.Message, _ ...llm.Option) (llm.Response, error) {
	if p.err != nil {
		return llm.Response{}, p.err
	}
	if p.calls >= len(p.responses) {
		return llm.Response{}, errors.New("fakeProvider: no more scripted responses")
	}
	r := p.responses[p.calls]
	p.calls++
	return r, nil
}

func (p *fakeProvider) ChatStream(context.Context, []llm.Message, ...llm.Option) (llm.Stream, error) {
	return nil, errors.New("not implemented")
}

type fakeCommands struct{ called []string }

func (f *fakeCommands) Invoke(_ context.Context, name string, _ map[string]string) (string, error) {
	f.called = append(f.called, name)
	return "42", nil
}

func (f *fakeCommands) ListCommands() []string { return []string{"add"} }

func newService(t *testing.T, provider llm.Provider) *Service {
	t.Helper()
	s := storemem.New()
	tree := tenanttree.New(s.Tenants(), s.Memberships())
	gate := billing.New(s, tree, config.Billing{Paused: true})
	return New(llm.NewClient(provider), gate, s.Conversations(), logx.NewLogger(nil))
}

func TestRunReturnsModelResponseWithoutTools(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{responses: []llm.Response{
		{Message: llm.NewAssistantMessage("hi there"), Usage: llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}},
	}}
	svc := newService(t, provider)

	result, err := svc.Run(ctx, Request{
		TenantID:     kernel.NewTenantID("t1"),
		UserID:       kernel.UserID("u1"),
		SystemPrompt: "you are helpful",
		UserMessage:  "hello",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Choices) != 1 || result.Choices[0].Message.Content != "hi there" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Choices[0].FinishReason != "stop" {
		t.Fatalf("expected finish_reason stop, got %q", result.Choices[0].FinishReason)
	}
	if result.Usage.TotalTokens != 15 {
		t.Fatalf("expected usage to propagate, got %+v", result.Usage)
	}
}

func TestRunResolvesToolCallsBeforeFinalAnswer(t *testing.T) {
	ctx := context.Background()
	toolCallMsg := llm.NewAssistantMessage("")
	toolCallMsg.ToolCalls = []llm.ToolCall{{ID: "call-1", Type: "function", Function: llm.FunctionCall{Name: "add", Arguments: `{"a":1,"b":2}`}}}

	provider := &fakeProvider{responses: []llm.Response{
		{Message: toolCallMsg, Usage: llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}},
		{Message: llm.NewAssistantMessage("the answer is 42"), Usage: llm.Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15}},
	}}
	commands := &fakeCommands{}
	svc := newService(t, provider)

	result, err := svc.Run(ctx, Request{
		TenantID:    kernel.NewTenantID("t1"),
		UserID:      kernel.UserID("u1"),
		UserMessage: "what is 1+2?",
		Commands:    commands,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Choices[0].Message.Content != "the answer is 42" {
		t.Fatalf("unexpected final message: %+v", result.Choices[0].Message)
	}
	if result.Usage.TotalTokens != 30 {
		t.Fatalf("expected cumulative usage across both calls, got %+v", result.Usage)
	}
	if len(commands.called) != 1 || commands.called[0] != "add" {
		t.Fatalf("expected add command to be invoked, got %v", commands.called)
	}
}

func TestRunForcesStopAtIterationLimit(t *testing.T) {
	ctx := context.Background()
	toolCallMsg := llm.NewAssistantMessage("")
	toolCallMsg.ToolCalls = []llm.ToolCall{{ID: "call-1", Type: "function", Function: llm.FunctionCall{Name: "add", Arguments: "{}"}}}

	responses := make([]llm.Response, 0, 4)
	for i := 0; i < 3; i++ {
		responses = append(responses, llm.Response{Message: toolCallMsg})
	}
	responses = append(responses, llm.Response{Message: llm.NewAssistantMessage("giving up")})

	provider := &fakeProvider{responses: responses}
	commands := &fakeCommands{}
	svc := newService(t, provider)

	result, err := svc.Run(ctx, Request{
		TenantID:          kernel.NewTenantID("t1"),
		UserID:            kernel.UserID("u1"),
		UserMessage:       "loop forever",
		Commands:          commands,
		MaxToolIterations: 2,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Choices[0].FinishReason != "length" {
		t.Fatalf("expected finish_reason length, got %q", result.Choices[0].FinishReason)
	}
}

func TestRunPromptSatisfiesChainExecutorPromptRunner(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{responses: []llm.Response{
		{Message: llm.NewAssistantMessage("step output"), Usage: llm.Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2}},
	}}
	svc := newService(t, provider)

	text, usage, err := svc.RunPrompt(ctx, "Writer", "draft something")
	if err != nil {
		t.Fatalf("RunPrompt: %v", err)
	}
	if text != "step output" {
		t.Fatalf("unexpected text: %q", text)
	}
	if usage.TotalTokens != 2 {
		t.Fatalf("unexpected usage: %+v", usage)
	}
}

func TestRunSurfacesModelProviderError(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{err: errors.New("provider unavailable")}
	svc := newService(t, provider)

	_, err := svc.Run(ctx, Request{
		TenantID:    kernel.NewTenantID("t1"),
		UserID:      kernel.UserID("u1"),
		UserMessage: "hello",
	})
	if err == nil {
		t.Fatal("expected error from model provider failure")
	}
}
