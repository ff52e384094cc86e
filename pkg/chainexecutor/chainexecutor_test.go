package chainexecutor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/flowctl/core/pkg/ai/llm"
	"github.com/flowctl/core/pkg/billing"
	"github.com/flowctl/core/pkg/config"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/logx"
	"github.com/flowctl/core/pkg/store"
	"github.com/flowctl/core/pkg/store/storemem"
	"github.com/flowctl/core/pkg/tenanttree"
)

type fakePrompts struct {
	mu    sync.Mutex
	calls []string
	reply func(agentName, prompt string) (string, error)
	usage llm.Usage // reported on every successful call when set
}

func (f *fakePrompts) RunPrompt(_ context.Context, agentName, prompt string) (string, llm.Usage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, prompt)
	f.mu.Unlock()
	if f.reply != nil {
		text, err := f.reply(agentName, prompt)
		if err != nil {
			return text, llm.Usage{}, err
		}
		return text, f.usage, nil
	}
	return "ok:" + prompt, f.usage, nil
}

type fakeCommands struct{}

func (fakeCommands) Invoke(_ context.Context, name string, args map[string]string) (string, error) {
	if name != "echo" {
		return "", ErrUnknownCommand(name)
	}
	return args["text"], nil
}

func (fakeCommands) ListCommands() []string { return []string{"echo"} }

func newExecutor(t *testing.T, prompts PromptRunner) (*Executor, *storemem.MemoryStore) {
	t.Helper()
	s := storemem.New()
	return New(s.Chains(), s.Conversations(), prompts, fakeCommands{}, nil, logx.NewLogger(nil)), s
}

// newExecutorWithBilling wires an Executor whose usage is actually debited
// against tenantID, a per_token tenant seeded with enough balance to absorb
// the fake prompts' reported usage.
func newExecutorWithBilling(t *testing.T, prompts PromptRunner, tenantID kernel.TenantID) (*Executor, *storemem.MemoryStore) {
	t.Helper()
	s := storemem.New()
	if err := s.Tenants().Create(context.Background(), store.Tenant{ID: tenantID, Name: tenantID.String(), TokenBalance: 1_000_000}); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	tree := tenanttree.New(s.Tenants(), s.Memberships())
	gate := billing.New(s, tree, config.Billing{TokenPricePerMillion: 1})
	return New(s.Chains(), s.Conversations(), prompts, fakeCommands{}, gate, logx.NewLogger(nil)), s
}

func seedChain(t *testing.T, s *storemem.MemoryStore, tenantID kernel.TenantID, name string, steps []store.Step) *store.Chain {
	t.Helper()
	ctx := context.Background()
	chain := store.Chain{ID: name + "-id", TenantID: tenantID, Name: name}
	if err := s.Chains().Create(ctx, chain); err != nil {
		t.Fatalf("Create chain: %v", err)
	}
	for _, step := range steps {
		step.ChainID = chain.ID
		if err := s.Chains().AddStep(ctx, step); err != nil {
			t.Fatalf("AddStep: %v", err)
		}
	}
	return &chain
}

func TestRunSequentialSubstitutesStepOutputs(t *testing.T) {
	ctx := context.Background()
	prompts := &fakePrompts{}
	exec, s := newExecutor(t, prompts)
	tenantID := kernel.NewTenantID("t1")
	seedChain(t, s, tenantID, "greet", []store.Step{
		{StepNumber: 1, AgentName: "A", PromptType: store.PromptTypePrompt, PromptArgs: map[string]string{"prompt": "say hi"}},
		{StepNumber: 2, AgentName: "A", PromptType: store.PromptTypePrompt, PromptArgs: map[string]string{"prompt": "echo back: {STEP1}"}},
	})

	run, err := exec.Run(ctx, tenantID, "greet", RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", run.Status, run.FailureMessage)
	}
	if len(run.Steps) != 2 {
		t.Fatalf("expected 2 step results, got %d", len(run.Steps))
	}
	var step2 *StepResult
	for i := range run.Steps {
		if run.Steps[i].StepNumber == 2 {
			step2 = &run.Steps[i]
		}
	}
	if step2 == nil || !strings.Contains(step2.Response, "ok:say hi") {
		t.Fatalf("expected step 2 to embed step 1's output, got %+v", step2)
	}
}

func TestRunConcurrentStepDoesNotBlockIndependentNext(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})
	prompts := &fakePrompts{reply: func(agentName, prompt string) (string, error) {
		if prompt == "slow" {
			close(started)
			<-release
		}
		return "done:" + prompt, nil
	}}
	exec, s := newExecutor(t, prompts)
	tenantID := kernel.NewTenantID("t1")
	seedChain(t, s, tenantID, "parallel", []store.Step{
		{StepNumber: 1, AgentName: "A", PromptType: store.PromptTypePrompt, PromptArgs: map[string]string{"prompt": "slow"}, RunNextConcurrent: true},
		{StepNumber: 2, AgentName: "A", PromptType: store.PromptTypePrompt, PromptArgs: map[string]string{"prompt": "independent"}},
	})

	done := make(chan *Run, 1)
	go func() {
		run, err := exec.Run(ctx, tenantID, "parallel", RunOptions{})
		if err != nil {
			t.Errorf("Run: %v", err)
		}
		done <- run
	}()

	<-started
	close(release)
	run := <-done
	if run.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", run.Status, run.FailureMessage)
	}
}

func TestRunStepFailureShortCircuitsAndReportsMessage(t *testing.T) {
	ctx := context.Background()
	prompts := &fakePrompts{reply: func(agentName, prompt string) (string, error) {
		if prompt == "boom" {
			return "", fmt.Errorf("provider exploded")
		}
		return "ok", nil
	}}
	exec, s := newExecutor(t, prompts)
	tenantID := kernel.NewTenantID("t1")
	seedChain(t, s, tenantID, "fails", []store.Step{
		{StepNumber: 1, AgentName: "A", PromptType: store.PromptTypePrompt, PromptArgs: map[string]string{"prompt": "boom"}},
		{StepNumber: 2, AgentName: "A", PromptType: store.PromptTypePrompt, PromptArgs: map[string]string{"prompt": "should not run"}},
	})

	run, err := exec.Run(ctx, tenantID, "fails", RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", run.Status)
	}
	if !strings.HasPrefix(run.FailureMessage, "Chain failed to complete") {
		t.Fatalf("unexpected failure message %q", run.FailureMessage)
	}

	prompts.mu.Lock()
	calls := append([]string(nil), prompts.calls...)
	prompts.mu.Unlock()
	sort.Strings(calls)
	if len(calls) != 1 || calls[0] != "boom" {
		t.Fatalf("expected step 2 to be short-circuited, got calls %v", calls)
	}
}

func TestRunDispatchesCommandStep(t *testing.T) {
	ctx := context.Background()
	exec, s := newExecutor(t, &fakePrompts{})
	tenantID := kernel.NewTenantID("t1")
	seedChain(t, s, tenantID, "cmd", []store.Step{
		{StepNumber: 1, AgentName: "A", PromptType: store.PromptTypeCommand, PromptArgs: map[string]string{"command_name": "echo", "text": "hello"}},
	})

	run, err := exec.Run(ctx, tenantID, "cmd", RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != StatusCompleted || run.Steps[0].Response != "hello" {
		t.Fatalf("unexpected run %+v", run)
	}
}

func TestRunRejectsExcessiveSubChainDepth(t *testing.T) {
	ctx := context.Background()
	exec, s := newExecutor(t, &fakePrompts{})
	tenantID := kernel.NewTenantID("t1")
	seedChain(t, s, tenantID, "recurse", []store.Step{
		{StepNumber: 1, AgentName: "A", PromptType: store.PromptTypeChain, PromptArgs: map[string]string{"chain_name": "recurse"}},
	})

	_, err := exec.Run(ctx, tenantID, "recurse", RunOptions{depth: MaxChainDepth + 1})
	if err == nil {
		t.Fatal("expected recursion limit error")
	}
}

func TestRunRetryFromStepReusesPriorResponses(t *testing.T) {
	ctx := context.Background()
	prompts := &fakePrompts{}
	exec, s := newExecutor(t, prompts)
	tenantID := kernel.NewTenantID("t1")
	seedChain(t, s, tenantID, "retry", []store.Step{
		{StepNumber: 1, AgentName: "A", PromptType: store.PromptTypePrompt, PromptArgs: map[string]string{"prompt": "first"}},
		{StepNumber: 2, AgentName: "A", PromptType: store.PromptTypePrompt, PromptArgs: map[string]string{"prompt": "use {STEP1}"}},
	})

	run, err := exec.Run(ctx, tenantID, "retry", RunOptions{
		FromStep: 2,
		Prior:    map[int]string{1: "cached-output"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", run.Status)
	}
	if len(run.Steps) != 1 || !strings.Contains(run.Steps[0].Response, "cached-output") {
		t.Fatalf("expected step 2 to reuse prior step 1 output, got %+v", run.Steps)
	}

	prompts.mu.Lock()
	defer prompts.mu.Unlock()
	for _, c := range prompts.calls {
		if c == "first" {
			t.Fatal("expected step 1 not to be re-run")
		}
	}
}

func TestRunInvalidFromStepRejected(t *testing.T) {
	ctx := context.Background()
	exec, s := newExecutor(t, &fakePrompts{})
	tenantID := kernel.NewTenantID("t1")
	seedChain(t, s, tenantID, "single", []store.Step{
		{StepNumber: 1, AgentName: "A", PromptType: store.PromptTypePrompt, PromptArgs: map[string]string{"prompt": "hi"}},
	})

	_, err := exec.Run(ctx, tenantID, "single", RunOptions{FromStep: 99})
	if err == nil {
		t.Fatal("expected invalid from_step error")
	}
}

func TestRunDebitsOwnPromptUsageOnce(t *testing.T) {
	ctx := context.Background()
	tenantID := kernel.NewTenantID("billed")
	prompts := &fakePrompts{usage: llm.Usage{PromptTokens: 100, CompletionTokens: 50}}
	exec, s := newExecutorWithBilling(t, prompts, tenantID)
	seedChain(t, s, tenantID, "billed-chain", []store.Step{
		{StepNumber: 1, AgentName: "A", PromptType: store.PromptTypePrompt, PromptArgs: map[string]string{"prompt": "say hi"}},
		{StepNumber: 2, AgentName: "A", PromptType: store.PromptTypePrompt, PromptArgs: map[string]string{"prompt": "say bye"}},
	})

	run, err := exec.Run(ctx, tenantID, "billed-chain", RunOptions{UserID: kernel.NewUserID("u1")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", run.Status, run.FailureMessage)
	}

	tenant, err := s.Tenants().FindByID(ctx, tenantID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	wantDebit := int64(2 * (100 + 50))
	if got := int64(1_000_000) - tenant.TokenBalance; got != wantDebit {
		t.Fatalf("expected %d tokens debited across both steps, got %d", wantDebit, got)
	}
}

func TestRunDoesNotDoubleCountSubChainUsage(t *testing.T) {
	ctx := context.Background()
	tenantID := kernel.NewTenantID("nested")
	prompts := &fakePrompts{usage: llm.Usage{PromptTokens: 10, CompletionTokens: 5}}
	exec, s := newExecutorWithBilling(t, prompts, tenantID)
	seedChain(t, s, tenantID, "inner", []store.Step{
		{StepNumber: 1, AgentName: "A", PromptType: store.PromptTypePrompt, PromptArgs: map[string]string{"prompt": "inner step"}},
	})
	seedChain(t, s, tenantID, "outer", []store.Step{
		{StepNumber: 1, AgentName: "A", PromptType: store.PromptTypeChain, PromptArgs: map[string]string{"chain_name": "inner"}},
	})

	_, err := exec.Run(ctx, tenantID, "outer", RunOptions{UserID: kernel.NewUserID("u1")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	tenant, err := s.Tenants().FindByID(ctx, tenantID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	// The outer Run has no direct Prompt steps of its own; only the inner
	// sub-chain's Run call should debit, and only once.
	wantDebit := int64(10 + 5)
	if got := int64(1_000_000) - tenant.TokenBalance; got != wantDebit {
		t.Fatalf("expected sub-chain usage debited exactly once (%d), got %d", wantDebit, got)
	}
}
