// Package promptagent is C14 PromptAgent: a single conversational turn.
// It assembles context (injected memories, prior conversation results, a
// tool manifest, attached file URLs), dispatches to a model provider,
// resolves any tool calls the model emits through a CommandRegistry, debits
// usage through the billing gate, and returns a chat-completion-shaped
// result.
//
// The tool-call loop is grounded on pkg/ai/llm/agentx's Agent: structurally
// it is evaluateToolCallsWithLimit's shape (call the model, resolve tool
// calls, recurse with the results appended, stop at a hard iteration count)
// reused here because, unlike Agent.Run, it needs to carry cumulative Usage
// across iterations for billing — agentx.Agent discards per-iteration usage
// once it returns the final string, which this package cannot afford to do.
package promptagent

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/flowctl/core/pkg/ai/llm"
	"github.com/flowctl/core/pkg/ai/llm/memoryx"
	"github.com/flowctl/core/pkg/ai/llm/toolx"
	"github.com/flowctl/core/pkg/billing"
	"github.com/flowctl/core/pkg/errx"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/logx"
	"github.com/flowctl/core/pkg/metrics"
	"github.com/flowctl/core/pkg/store"
)

var ErrRegistry = errx.NewRegistry("PROMPTAGENT")

var CodeIterationLimit = ErrRegistry.Register("ITERATION_LIMIT", errx.TypeValidation, http.StatusBadRequest, "maximum tool call iterations exceeded")

func ErrIterationLimit(max int) *errx.Error {
	return ErrRegistry.New(CodeIterationLimit).WithDetail("max_iterations", max)
}

// DefaultMaxToolIterations bounds how many times the model may emit a fresh
// round of tool calls before a response is forced without tools.
const DefaultMaxToolIterations = 8

// CommandRegistry resolves a model-issued tool call to a concrete command
// and reports the commands available for the tool manifest. It mirrors
// pkg/chainexecutor's registry interface so a single concrete implementation
// can back both, but is declared independently to avoid a cross-package
// dependency between the two.
type CommandRegistry interface {
	Invoke(ctx context.Context, name string, args map[string]string) (string, error)
	ListCommands() []string
}

// Request is one conversational turn.
type Request struct {
	TenantID       kernel.TenantID
	UserID         kernel.UserID
	ConversationID string
	AgentName      string
	SystemPrompt   string
	UserMessage    string

	// InjectedMemories are pre-retrieved memory snippets folded into the
	// system context ahead of the live conversation.
	InjectedMemories []string
	// ConversationResults are prior-turn search/summary snippets folded in
	// alongside InjectedMemories.
	ConversationResults []string
	// FileURLs are attachments on the user message, surfaced to the model
	// as multimodal image parts when the URL looks like an image, and as a
	// plain reference line otherwise.
	FileURLs []string

	Commands          CommandRegistry
	MaxToolIterations int // 0 means DefaultMaxToolIterations
	Options           []llm.Option
}

// Choice is one chat-completion choice, mirroring the OpenAI response shape.
type Choice struct {
	Index        int         `json:"index"`
	Message      llm.Message `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// Result is the chat-completion-shaped outcome of a turn.
type Result struct {
	ID      string    `json:"id"`
	Created int64     `json:"created"`
	Model   string    `json:"model"`
	Choices []Choice  `json:"choices"`
	Usage   llm.Usage `json:"usage"`
}

// Service runs prompt turns against a model provider.
type Service struct {
	client  *llm.Client
	billing *billing.Gate
	convos  store.ConversationRepository
	logger  *logx.Logger
}

func New(client *llm.Client, billingGate *billing.Gate, conversations store.ConversationRepository, logger *logx.Logger) *Service {
	return &Service{client: client, billing: billingGate, convos: conversations, logger: logger}
}

// Run executes one turn and returns its chat-completion-shaped result. A
// non-nil error means the turn never produced a billable response (model
// error, cancellation, or the hard iteration cap); everything else is
// carried in Result, including a forced-stop response with
// finish_reason "length". Run always debits usage through the billing
// gate; use RunPrompt for a turn dispatched as a chain step, which shares
// everything else about this pipeline but is billed by whatever debits the
// chain as a whole, since pkg/chainexecutor's PromptRunner interface
// carries no tenant or user identity to debit against.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	result, err := s.runTurn(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.billing.Debit(ctx, req.UserID, req.TenantID, int64(result.Usage.PromptTokens), int64(result.Usage.CompletionTokens)); err != nil {
		return nil, errx.Wrap(err, "failed to debit usage", errx.TypeInternal)
	}
	metrics.PromptAgentTokensTotal.WithLabelValues("prompt").Add(float64(result.Usage.PromptTokens))
	metrics.PromptAgentTokensTotal.WithLabelValues("completion").Add(float64(result.Usage.CompletionTokens))

	s.appendAudit(ctx, req.ConversationID, result)
	return result, nil
}

func (s *Service) runTurn(ctx context.Context, req Request) (*Result, error) {
	maxIterations := req.MaxToolIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxToolIterations
	}

	systemPrompt := s.assembleSystemPrompt(req)
	memory := memoryx.NewInMemoryMemory(systemPrompt)
	if err := memory.Add(s.buildUserMessage(req)); err != nil {
		return nil, errx.Wrap(err, "failed to seed conversation memory", errx.TypeInternal)
	}

	var tools *toolx.ToolxClient
	if req.Commands != nil {
		tools = toolx.FromToolx(registryTools(req.Commands)...)
	}

	return s.loop(ctx, req, memory, tools, maxIterations)
}

func (s *Service) loop(ctx context.Context, req Request, memory memoryx.Memory, tools *toolx.ToolxClient, maxIterations int) (*Result, error) {
	var cumulative llm.Usage

	for iteration := 0; ; iteration++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		messages, err := memory.Messages()
		if err != nil {
			return nil, errx.Wrap(err, "failed to read conversation memory", errx.TypeInternal)
		}

		options := append([]llm.Option(nil), req.Options...)
		forcedStop := false
		if tools != nil {
			toolList := tools.GetTools()
			if len(toolList) > 0 {
				options = append(options, llm.WithTools(toolList))
				if iteration >= maxIterations {
					options = append(options, llm.WithToolChoice("none"))
					forcedStop = true
				} else {
					options = append(options, llm.WithToolChoice("auto"))
				}
			}
		}

		response, err := s.client.Chat(ctx, messages, options...)
		if err != nil {
			return nil, errx.Wrap(err, "model provider call failed", errx.TypeExternal)
		}
		cumulative.PromptTokens += response.Usage.PromptTokens
		cumulative.CompletionTokens += response.Usage.CompletionTokens
		cumulative.TotalTokens += response.Usage.TotalTokens

		if err := memory.Add(response.Message); err != nil {
			return nil, errx.Wrap(err, "failed to persist assistant response", errx.TypeInternal)
		}

		if len(response.Message.ToolCalls) == 0 || tools == nil {
			return &Result{
				ID:      turnID(req.ConversationID, iteration),
				Created: time.Now().Unix(),
				Choices: []Choice{{Message: response.Message, FinishReason: "stop"}},
				Usage:   cumulative,
			}, nil
		}

		if forcedStop {
			return &Result{
				ID:      turnID(req.ConversationID, iteration),
				Created: time.Now().Unix(),
				Choices: []Choice{{Message: response.Message, FinishReason: "length"}},
				Usage:   cumulative,
			}, nil
		}

		if iteration >= maxIterations {
			return nil, ErrIterationLimit(maxIterations)
		}

		for _, tc := range response.Message.ToolCalls {
			toolMsg, err := tools.Call(ctx, tc)
			if err != nil {
				return nil, errx.Wrap(err, "tool call failed", errx.TypeExternal)
			}
			if err := memory.Add(toolMsg); err != nil {
				return nil, errx.Wrap(err, "failed to persist tool result", errx.TypeInternal)
			}
		}
	}
}

// RunPrompt satisfies pkg/chainexecutor's PromptRunner interface, letting a
// ChainExecutor dispatch a Prompt step through the same pipeline a direct
// conversational turn uses, without either package importing the other.
func (s *Service) RunPrompt(ctx context.Context, agentName, prompt string) (string, llm.Usage, error) {
	result, err := s.runTurn(ctx, Request{AgentName: agentName, UserMessage: prompt})
	if err != nil {
		return "", llm.Usage{}, err
	}
	return result.Choices[0].Message.Content, result.Usage, nil
}

func (s *Service) assembleSystemPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(req.SystemPrompt)

	if len(req.InjectedMemories) > 0 {
		b.WriteString("\n\nRelevant memories:\n")
		for _, m := range req.InjectedMemories {
			b.WriteString("- ")
			b.WriteString(m)
			b.WriteByte('\n')
		}
	}

	if len(req.ConversationResults) > 0 {
		b.WriteString("\nRelevant prior conversation:\n")
		for _, c := range req.ConversationResults {
			b.WriteString("- ")
			b.WriteString(c)
			b.WriteByte('\n')
		}
	}

	if req.Commands != nil {
		names := req.Commands.ListCommands()
		if len(names) > 0 {
			b.WriteString("\nAvailable commands: ")
			b.WriteString(strings.Join(names, ", "))
			b.WriteByte('\n')
		}
	}

	return b.String()
}

func (s *Service) buildUserMessage(req Request) llm.Message {
	if len(req.FileURLs) == 0 {
		return llm.NewUserMessage(req.UserMessage)
	}

	parts := []llm.ContentPart{llm.TextPart(req.UserMessage)}
	for _, url := range req.FileURLs {
		if looksLikeImage(url) {
			parts = append(parts, llm.ImagePart(url))
		} else {
			parts = append(parts, llm.TextPart(fmt.Sprintf("attachment: %s", url)))
		}
	}
	return llm.NewMultimodalUserMessage(parts...)
}

func (s *Service) appendAudit(ctx context.Context, conversationID string, result *Result) {
	if conversationID == "" || s.convos == nil {
		return
	}
	msg := store.Message{
		ID:             result.ID,
		ConversationID: conversationID,
		Role:           result.Choices[0].Message.Role,
		Content:        result.Choices[0].Message.Content,
		CreatedAt:      time.Now(),
	}
	if err := s.convos.AppendMessage(ctx, msg); err != nil && s.logger != nil {
		s.logger.WithError(err).Warn("promptagent: failed to append conversation message")
	}
}

func looksLikeImage(url string) bool {
	lower := strings.ToLower(url)
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".gif", ".webp"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func turnID(conversationID string, iteration int) string {
	return conversationID + "-" + strconv.FormatInt(time.Now().UnixNano(), 36) + "-" + strconv.Itoa(iteration)
}

// registryTools wraps a CommandRegistry's named commands as individual
// toolx.Toolx implementations so they can be advertised and dispatched
// through the same tool-calling path as any other tool.
func registryTools(registry CommandRegistry) []toolx.Toolx {
	names := registry.ListCommands()
	out := make([]toolx.Toolx, 0, len(names))
	for _, name := range names {
		out = append(out, commandTool{name: name, registry: registry})
	}
	return out
}

type commandTool struct {
	name     string
	registry CommandRegistry
}

func (c commandTool) Name() string { return c.name }

func (c commandTool) GetTool() llm.Tool {
	return llm.Tool{
		Type: "function",
		Function: llm.Function{
			Name:        c.name,
			Description: fmt.Sprintf("Invoke the %q command.", c.name),
			Parameters: map[string]any{
				"type":                 "object",
				"additionalProperties": true,
			},
		},
	}
}

func (c commandTool) Call(ctx context.Context, input string) (any, error) {
	args := map[string]string{"input": input}
	return c.registry.Invoke(ctx, c.name, args)
}
