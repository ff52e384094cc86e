// Package commandregistry is the concrete CommandRegistry shared by
// pkg/chainexecutor's Command steps and pkg/promptagent's tool-call
// dispatch. Grounded on original_source/agixt/commands/chain_commands.py's
// shape: a flat name -> callable map built once at startup, where a command
// name with no static definition (there "Run Chain: <name>") is simply
// absent from the map rather than special-cased.
package commandregistry

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"github.com/flowctl/core/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("COMMANDREGISTRY")

var CodeUnknownCommand = ErrRegistry.Register("UNKNOWN_COMMAND", errx.TypeValidation, http.StatusBadRequest, "unknown command")

func ErrUnknownCommand(name string) *errx.Error {
	return ErrRegistry.New(CodeUnknownCommand).WithDetail("command", name)
}

// Func runs one command invocation.
type Func func(ctx context.Context, args map[string]string) (string, error)

// Registry is a mutable name -> Func table, safe for concurrent registration
// and invocation. The zero value is not usable; use New.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Func
}

func New() *Registry {
	return &Registry{commands: make(map[string]Func)}
}

// Register adds or replaces the command named name. Replacing lets a tenant
// override a built-in (e.g. a "Run Chain: X" entry rebuilt after a chain is
// renamed) without restarting the process.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[name] = fn
}

// Unregister removes a command, if present.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.commands, name)
}

func (r *Registry) Invoke(ctx context.Context, name string, args map[string]string) (string, error) {
	r.mu.RLock()
	fn, ok := r.commands[name]
	r.mu.RUnlock()
	if !ok {
		return "", ErrUnknownCommand(name)
	}
	return fn(ctx, args)
}

func (r *Registry) ListCommands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
