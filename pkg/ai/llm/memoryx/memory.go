package memoryx

import "github.com/flowctl/core/pkg/ai/llm"

// Memory is the conversation history an Agent reads from and appends to.
// InMemoryMemory and ContextualMemory are the two implementations in this
// package; an Agent only ever depends on this interface.
type Memory interface {
	Messages() ([]llm.Message, error)
	Add(message llm.Message) error
	Clear() error
}
