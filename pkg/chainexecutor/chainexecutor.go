// Package chainexecutor is C13 ChainExecutor: it runs a Chain's ordered
// Steps, substituting `{STEPk}` and the other predefined tokens into each
// step's prompt_args, dispatching Prompt steps to a PromptRunner, Command
// steps to a CommandRegistry, and Chain steps to itself recursively.
//
// The execution loop is grounded on pkg/ai/llm/agentx's Agent: the same
// producer/consumer future shape agentx uses to bound its tool-call loop
// (resolve one step, feed its result into the next) generalizes cleanly to
// a step's run_next_concurrent flag, and the depth-limited recursion for
// sub-chains mirrors agentx's maxTotalIterations hard stop.
package chainexecutor

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/flowctl/core/pkg/ai/llm"
	"github.com/flowctl/core/pkg/billing"
	"github.com/flowctl/core/pkg/errx"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/logx"
	"github.com/flowctl/core/pkg/metrics"
	"github.com/flowctl/core/pkg/store"
)

var ErrRegistry = errx.NewRegistry("CHAINEXECUTOR")

var (
	CodeChainNotFound   = ErrRegistry.Register("CHAIN_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "chain not found")
	CodeRecursionLimit  = ErrRegistry.Register("RECURSION_LIMIT", errx.TypeValidation, http.StatusBadRequest, "sub-chain recursion depth exceeded")
	CodeUnknownCommand  = ErrRegistry.Register("UNKNOWN_COMMAND", errx.TypeValidation, http.StatusBadRequest, "unknown command")
	CodeInvalidFromStep = ErrRegistry.Register("INVALID_FROM_STEP", errx.TypeValidation, http.StatusBadRequest, "from_step does not name a step in this chain")
)

func ErrChainNotFound() *errx.Error  { return ErrRegistry.New(CodeChainNotFound) }
func ErrRecursionLimit() *errx.Error { return ErrRegistry.New(CodeRecursionLimit) }

func ErrUnknownCommand(name string) *errx.Error {
	return ErrRegistry.New(CodeUnknownCommand).WithDetail("command", name)
}

func ErrInvalidFromStep(step int) *errx.Error {
	return ErrRegistry.New(CodeInvalidFromStep).WithDetail("from_step", step)
}

// MaxChainDepth bounds sub-chain recursion (spec: reject > 16).
const MaxChainDepth = 16

// PromptRunner executes a single Prompt step against a model-backed agent.
// Implemented by pkg/promptagent.Service for a real deployment.
type PromptRunner interface {
	RunPrompt(ctx context.Context, agentName, prompt string) (text string, usage llm.Usage, err error)
}

// CommandRegistry executes a single Command step by name.
type CommandRegistry interface {
	Invoke(ctx context.Context, name string, args map[string]string) (string, error)
	ListCommands() []string
}

// EventType distinguishes the structural and token-level events a Run emits.
type EventType string

const (
	EventStepStart EventType = "step_start"
	EventStepText  EventType = "step_text"
	EventStepEnd   EventType = "step_end"
	EventError     EventType = "error"
)

// Event is one increment of a running chain: a structural step boundary or
// a token-level delta from the innermost Prompt step.
type Event struct {
	Type       EventType
	StepNumber int
	Text       string
	Err        error
}

// Handler receives Events as a Run progresses. May be nil.
type Handler func(Event)

// StepResult is the recorded output of one executed step (spec:
// StepResponse), kept substitutable for later steps via {STEPk}.
type StepResult struct {
	StepNumber int
	Response   string
	Err        error
}

// Status is a ChainRun lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Run is the outcome of one chain execution (spec: ChainRun).
type Run struct {
	ChainName      string
	Status         Status
	Steps          []StepResult
	FailureMessage string
}

// RunOptions parameterizes a single Run.
type RunOptions struct {
	// AgentNameOverride replaces every step's agent_name when non-empty.
	AgentNameOverride string
	// Context fills the {context} token.
	Context string
	// FromStep retries a previously failed run starting at this step
	// number; Prior supplies already-recorded StepResponses for steps
	// before it, so {STEPk} resolves for k < FromStep without re-running
	// them. Zero means run from the first step.
	FromStep int
	Prior    map[int]string
	// ConversationID, when set, receives a [SUBACTIVITY] message per step
	// and the terminal failure/cancellation message, for UI audit.
	ConversationID string
	Handler        Handler
	// UserID is debited for the token usage of this Run's own Prompt steps.
	// Required for billing to apply; a zero value just skips the debit.
	UserID kernel.UserID

	depth int // internal: sub-chain recursion depth, starts at 0
}

// Executor runs Chains loaded from a ChainRepository.
type Executor struct {
	chains        store.ChainRepository
	conversations store.ConversationRepository
	prompts       PromptRunner
	commands      CommandRegistry
	billing       *billing.Gate
	logger        *logx.Logger
}

// New wires an Executor. gate may be nil, in which case Run never debits
// usage (used by tests and any deployment that doesn't meter chains).
func New(chains store.ChainRepository, conversations store.ConversationRepository, prompts PromptRunner, commands CommandRegistry, gate *billing.Gate, logger *logx.Logger) *Executor {
	return &Executor{chains: chains, conversations: conversations, prompts: prompts, commands: commands, billing: gate, logger: logger}
}

// stepFuture resolves once its step finishes, so a later step's {STEPk}
// lookup can block on it without the executor having to eagerly wait.
type stepFuture struct {
	done     chan struct{}
	once     sync.Once
	response string
	err      error
}

func newStepFuture() *stepFuture {
	return &stepFuture{done: make(chan struct{})}
}

func (f *stepFuture) resolve(response string, err error) {
	f.once.Do(func() {
		f.response = response
		f.err = err
		close(f.done)
	})
}

func (f *stepFuture) wait(ctx context.Context) (string, error) {
	select {
	case <-f.done:
		return f.response, f.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Run executes chainName for tenantID and returns its outcome. It never
// returns a non-nil error for an ordinary step failure or cancellation —
// those are reported via Run.Status — only for setup problems (chain not
// found, recursion too deep, bad from_step).
func (e *Executor) Run(ctx context.Context, tenantID kernel.TenantID, chainName string, opts RunOptions) (*Run, error) {
	start := time.Now()
	if opts.depth > MaxChainDepth {
		return nil, ErrRecursionLimit()
	}

	chain, err := e.chains.FindByName(ctx, tenantID, chainName)
	if err != nil {
		return nil, errx.Wrap(err, "failed to load chain", errx.TypeInternal)
	}
	steps, err := e.chains.Steps(ctx, chain.ID)
	if err != nil {
		return nil, errx.Wrap(err, "failed to load chain steps", errx.TypeInternal)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].StepNumber < steps[j].StepNumber })

	if opts.FromStep > 0 {
		found := false
		for _, s := range steps {
			if s.StepNumber == opts.FromStep {
				found = true
				break
			}
		}
		if !found {
			return nil, ErrInvalidFromStep(opts.FromStep)
		}
	}

	futures := make(map[int]*stepFuture, len(steps))
	for _, s := range steps {
		futures[s.StepNumber] = newStepFuture()
	}
	for k, response := range opts.Prior {
		if f, ok := futures[k]; ok {
			f.resolve(response, nil)
		}
	}

	run := &Run{ChainName: chainName, Status: StatusRunning}

	var (
		mu       sync.Mutex
		failedAt int
		failErr  error
		usage    llm.Usage // this Run's own Prompt steps only; sub-chain Run calls bill themselves
	)
	recordFailure := func(stepNumber int, err error) {
		mu.Lock()
		defer mu.Unlock()
		if failErr == nil {
			failedAt = stepNumber
			failErr = err
		}
	}
	recordUsage := func(u llm.Usage) {
		mu.Lock()
		defer mu.Unlock()
		usage.PromptTokens += u.PromptTokens
		usage.CompletionTokens += u.CompletionTokens
	}

	runOne := func(step *store.Step) {
		f := futures[step.StepNumber]
		defer func() {
			if r := recover(); r != nil {
				f.resolve("", fmt.Errorf("panic in step %d: %v", step.StepNumber, r))
			}
		}()

		e.emit(opts.Handler, Event{Type: EventStepStart, StepNumber: step.StepNumber})
		e.announce(ctx, opts.ConversationID, fmt.Sprintf("[SUBACTIVITY] starting step %d (%s)", step.StepNumber, step.AgentName))

		if ctx.Err() != nil {
			f.resolve("", ctx.Err())
			return
		}

		agentName := step.AgentName
		if opts.AgentNameOverride != "" {
			agentName = opts.AgentNameOverride
		}

		args, err := e.resolveArgs(ctx, step.PromptArgs, agentName, opts.Context, futures)
		if err != nil {
			f.resolve("", err)
			return
		}

		var response string
		switch step.PromptType {
		case store.PromptTypePrompt:
			prompt := args["prompt"]
			var stepUsage llm.Usage
			response, stepUsage, err = e.runPrompt(ctx, agentName, prompt, step.StepNumber, opts.Handler)
			if err == nil {
				recordUsage(stepUsage)
			}
		case store.PromptTypeCommand:
			response, err = e.commands.Invoke(ctx, args["command_name"], args)
		case store.PromptTypeChain:
			subOpts := RunOptions{
				AgentNameOverride: agentName,
				Context:           opts.Context,
				ConversationID:    opts.ConversationID,
				Handler:           opts.Handler,
				UserID:            opts.UserID,
				depth:             opts.depth + 1,
			}
			var subRun *Run
			subRun, err = e.Run(ctx, tenantID, args["chain_name"], subOpts)
			if err == nil && subRun.Status != StatusCompleted {
				err = fmt.Errorf("sub-chain %q did not complete: %s", args["chain_name"], subRun.FailureMessage)
			}
			if err == nil && len(subRun.Steps) > 0 {
				response = subRun.Steps[len(subRun.Steps)-1].Response
			}
		default:
			err = fmt.Errorf("unknown prompt_type %q", step.PromptType)
		}

		f.resolve(response, err)
		e.emit(opts.Handler, Event{Type: EventStepEnd, StepNumber: step.StepNumber, Text: response, Err: err})
		if err != nil {
			recordFailure(step.StepNumber, err)
			e.announce(ctx, opts.ConversationID, fmt.Sprintf("[SUBACTIVITY] step %d failed: %v", step.StepNumber, err))
		}
	}

	var wg sync.WaitGroup
	for _, step := range steps {
		if opts.FromStep > 0 && step.StepNumber < opts.FromStep {
			continue
		}

		mu.Lock()
		stop := failErr != nil
		mu.Unlock()
		if stop || ctx.Err() != nil {
			break
		}

		s := step
		wg.Add(1)
		go func() {
			defer wg.Done()
			runOne(s)
		}()

		if !s.RunNextConcurrent {
			futures[s.StepNumber].wait(ctx)
		}
	}
	wg.Wait()

	for _, step := range steps {
		if opts.FromStep > 0 && step.StepNumber < opts.FromStep {
			continue
		}
		f := futures[step.StepNumber]
		select {
		case <-f.done:
			run.Steps = append(run.Steps, StepResult{StepNumber: step.StepNumber, Response: f.response, Err: f.err})
		default:
		}
	}

	switch {
	case ctx.Err() != nil:
		run.Status = StatusCancelled
		run.FailureMessage = "Chain cancelled"
		e.announce(ctx, opts.ConversationID, "[SUBACTIVITY] chain cancelled")
	case failErr != nil:
		run.Status = StatusFailed
		run.FailureMessage = fmt.Sprintf("Chain failed to complete: step %d: %v", failedAt, failErr)
		e.emit(opts.Handler, Event{Type: EventError, StepNumber: failedAt, Err: failErr})
	default:
		run.Status = StatusCompleted
	}

	if e.billing != nil && !opts.UserID.IsEmpty() && (usage.PromptTokens > 0 || usage.CompletionTokens > 0) {
		if err := e.billing.Debit(ctx, opts.UserID, tenantID, int64(usage.PromptTokens), int64(usage.CompletionTokens)); err != nil && e.logger != nil {
			e.logger.WithError(err).Warn("chainexecutor: failed to debit chain usage")
		}
	}

	metrics.ChainRunDuration.WithLabelValues(string(run.Status)).Observe(time.Since(start).Seconds())
	return run, nil
}

func (e *Executor) runPrompt(ctx context.Context, agentName, prompt string, stepNumber int, handler Handler) (string, llm.Usage, error) {
	text, usage, err := e.prompts.RunPrompt(ctx, agentName, prompt)
	if err != nil {
		return "", llm.Usage{}, err
	}
	e.emit(handler, Event{Type: EventStepText, StepNumber: stepNumber, Text: text})
	return text, usage, nil
}

// resolveArgs substitutes {STEPk}, {agent_name}, {context}, {date},
// {COMMANDS}, and {command_list} into every value of args.
func (e *Executor) resolveArgs(ctx context.Context, args map[string]string, agentName, chainContext string, futures map[int]*stepFuture) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for k, v := range args {
		resolved, err := e.substitute(ctx, v, agentName, chainContext, futures)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}

var stepToken = func(s string) (int, bool) {
	if !strings.HasPrefix(s, "STEP") {
		return 0, false
	}
	n, err := strconv.Atoi(s[len("STEP"):])
	if err != nil {
		return 0, false
	}
	return n, true
}

func (e *Executor) substitute(ctx context.Context, text, agentName, chainContext string, futures map[int]*stepFuture) (string, error) {
	var b strings.Builder
	for i := 0; i < len(text); {
		start := strings.IndexByte(text[i:], '{')
		if start == -1 {
			b.WriteString(text[i:])
			break
		}
		start += i
		end := strings.IndexByte(text[start:], '}')
		if end == -1 {
			b.WriteString(text[i:])
			break
		}
		end += start
		b.WriteString(text[i:start])
		token := text[start+1 : end]

		switch {
		case token == "agent_name":
			b.WriteString(agentName)
		case token == "context":
			b.WriteString(chainContext)
		case token == "date":
			b.WriteString(time.Now().Format("2006-01-02"))
		case token == "COMMANDS":
			b.WriteString(fmt.Sprintf("%v", e.commands.ListCommands()))
		case token == "command_list":
			b.WriteString(strings.Join(e.commands.ListCommands(), ", "))
		default:
			if n, ok := stepToken(token); ok {
				f, exists := futures[n]
				if !exists {
					b.WriteByte('{')
					b.WriteString(token)
					b.WriteByte('}')
					break
				}
				resp, err := f.wait(ctx)
				if err != nil {
					return "", fmt.Errorf("step %d (referenced via {%s}) failed: %w", n, token, err)
				}
				b.WriteString(resp)
			} else {
				b.WriteByte('{')
				b.WriteString(token)
				b.WriteByte('}')
			}
		}
		i = end + 1
	}
	return b.String(), nil
}

func (e *Executor) emit(handler Handler, ev Event) {
	if handler != nil {
		handler(ev)
	}
}

func (e *Executor) announce(ctx context.Context, conversationID string, text string) {
	if conversationID == "" {
		return
	}
	msg := store.Message{
		ID:             conversationID + "-" + strconv.FormatInt(time.Now().UnixNano(), 36),
		ConversationID: conversationID,
		Role:           llm.RoleSystem,
		Content:        text,
		CreatedAt:      time.Now(),
	}
	if err := e.conversations.AppendMessage(ctx, msg); err != nil && e.logger != nil {
		e.logger.WithError(err).Warn("chainexecutor: failed to append audit message")
	}
}
