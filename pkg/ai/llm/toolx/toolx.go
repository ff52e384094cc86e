// Package toolx adapts concrete tool implementations into the llm.Tool
// schema an agent advertises to a model, and dispatches a model's tool
// calls back to those implementations.
package toolx

import (
	"context"
	"fmt"

	"github.com/flowctl/core/pkg/ai/llm"
)

// Toolx is a single callable tool. Name must match llm.Function.Name in
// GetTool, since that is what a model echoes back in a ToolCall.
type Toolx interface {
	Name() string
	GetTool() llm.Tool
	Call(ctx context.Context, input string) (any, error)
}

// ToolxClient dispatches ToolCalls to a fixed, named set of Toolx
// implementations.
type ToolxClient struct {
	tools map[string]Toolx
	order []string
}

// FromToolx builds a ToolxClient from one or more tools. Tools are kept in
// the order given, so GetTools reports them in a stable, predictable order.
func FromToolx(tools ...Toolx) *ToolxClient {
	c := &ToolxClient{tools: make(map[string]Toolx, len(tools))}
	for _, t := range tools {
		name := t.Name()
		if _, exists := c.tools[name]; exists {
			continue
		}
		c.tools[name] = t
		c.order = append(c.order, name)
	}
	return c
}

// GetTools returns the llm.Tool schema for every registered tool, in
// registration order.
func (c *ToolxClient) GetTools() []llm.Tool {
	out := make([]llm.Tool, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.tools[name].GetTool())
	}
	return out
}

// Call dispatches tc to the tool named tc.Function.Name and wraps its
// result as a tool-role Message carrying tc.ID, ready to append to a
// conversation. An unknown tool name or a tool error is itself returned as
// the tool's output content so the model can see and react to the failure
// rather than aborting the whole turn.
func (c *ToolxClient) Call(ctx context.Context, tc llm.ToolCall) (llm.Message, error) {
	tool, ok := c.tools[tc.Function.Name]
	if !ok {
		return llm.NewToolMessage(tc.ID, fmt.Sprintf("error: unknown tool %q", tc.Function.Name)), nil
	}

	result, err := tool.Call(ctx, tc.Function.Arguments)
	if err != nil {
		return llm.NewToolMessage(tc.ID, fmt.Sprintf("error: %v", err)), nil
	}

	return llm.NewToolMessage(tc.ID, fmt.Sprint(result)), nil
}
