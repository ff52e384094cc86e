package llm

import "context"

// ChatOptions configures a single Chat/ChatStream call. Every field is
// optional; a zero value means "let the provider use its own default",
// which is why every provider checks for the zero value before mapping a
// field onto its own SDK's request shape.
type ChatOptions struct {
	Model               string
	Temperature         float64
	TopP                float64
	MaxTokens           int
	MaxCompletionTokens int
	PresencePenalty     float64
	FrequencyPenalty    float64
	Stop                []string
	Seed                int64
	User                string
	LogitBias           map[int]float64
	ReasoningEffort     string
	Tools               []Tool
	Functions           []Function
	ToolChoice          any
	JSONMode            bool
	ResponseFormat      *ResponseFormat
}

// DefaultOptions returns a ChatOptions with every field at its zero value;
// providers layer their own model default on top before applying the
// caller's Options.
func DefaultOptions() *ChatOptions {
	return &ChatOptions{}
}

// Option mutates a ChatOptions. Options compose: later options in a call
// override earlier ones for the same field.
type Option func(*ChatOptions)

func WithModel(model string) Option {
	return func(o *ChatOptions) { o.Model = model }
}

func WithTemperature(temperature float64) Option {
	return func(o *ChatOptions) { o.Temperature = temperature }
}

func WithTopP(topP float64) Option {
	return func(o *ChatOptions) { o.TopP = topP }
}

func WithMaxTokens(maxTokens int) Option {
	return func(o *ChatOptions) { o.MaxTokens = maxTokens }
}

func WithMaxCompletionTokens(maxTokens int) Option {
	return func(o *ChatOptions) { o.MaxCompletionTokens = maxTokens }
}

func WithPresencePenalty(penalty float64) Option {
	return func(o *ChatOptions) { o.PresencePenalty = penalty }
}

func WithFrequencyPenalty(penalty float64) Option {
	return func(o *ChatOptions) { o.FrequencyPenalty = penalty }
}

func WithStop(stop ...string) Option {
	return func(o *ChatOptions) { o.Stop = stop }
}

func WithSeed(seed int64) Option {
	return func(o *ChatOptions) { o.Seed = seed }
}

func WithUser(user string) Option {
	return func(o *ChatOptions) { o.User = user }
}

func WithLogitBias(bias map[int]float64) Option {
	return func(o *ChatOptions) { o.LogitBias = bias }
}

func WithReasoningEffort(effort string) Option {
	return func(o *ChatOptions) { o.ReasoningEffort = effort }
}

// WithTools attaches the callable tool list a model may invoke.
func WithTools(tools []Tool) Option {
	return func(o *ChatOptions) { o.Tools = tools }
}

func WithFunctions(functions []Function) Option {
	return func(o *ChatOptions) { o.Functions = functions }
}

// WithToolChoice controls whether/which tool the model must call. Accepts
// the provider-agnostic strings "auto"/"none"/"required" or a
// provider-specific forced-function shape; each provider's conversion
// function is responsible for interpreting it.
func WithToolChoice(choice any) Option {
	return func(o *ChatOptions) { o.ToolChoice = choice }
}

// Response is a single, non-streaming completion.
type Response struct {
	Message Message
	Usage   Usage
}

// Stream yields successive partial assistant Messages: Content carries only
// the incremental text delta for that tick, while ToolCalls carries the
// full accumulated-so-far snapshot (providers resynthesize tool-call
// arguments across multiple deltas before reporting them). Next returns
// io.EOF once the stream is exhausted. Close releases the underlying
// transport and must be called even after a read error.
type Stream interface {
	Next() (Message, error)
	Close() error
}

// Provider is the surface a concrete model backend (OpenAI, Anthropic,
// Azure, Bedrock, Gemini, ...) implements. Client wraps a Provider so
// callers depend on the stable llm package rather than on any one backend.
type Provider interface {
	Chat(ctx context.Context, messages []Message, opts ...Option) (Response, error)
	ChatStream(ctx context.Context, messages []Message, opts ...Option) (Stream, error)
}

// Client provides unified access to chat completion, delegating to whatever
// Provider it was built from.
type Client struct {
	provider Provider
}

// NewClient creates a client from a provider.
func NewClient(provider Provider) *Client {
	return &Client{provider: provider}
}

// Chat requests a single completion.
func (c *Client) Chat(ctx context.Context, messages []Message, opts ...Option) (Response, error) {
	return c.provider.Chat(ctx, messages, opts...)
}

// ChatStream requests a streamed completion.
func (c *Client) ChatStream(ctx context.Context, messages []Message, opts ...Option) (Stream, error) {
	return c.provider.ChatStream(ctx, messages, opts...)
}
