package commandregistry

import (
	"context"
	"testing"
)

func TestInvokeDispatchesToRegisteredFunc(t *testing.T) {
	ctx := context.Background()
	r := New()
	r.Register("echo", func(_ context.Context, args map[string]string) (string, error) {
		return args["text"], nil
	})

	out, err := r.Invoke(ctx, "echo", map[string]string{"text": "hi"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != "hi" {
		t.Fatalf("expected hi, got %q", out)
	}
}

func TestInvokeUnknownCommandReturnsError(t *testing.T) {
	ctx := context.Background()
	r := New()

	if _, err := r.Invoke(ctx, "missing", nil); err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestListCommandsReturnsSortedNames(t *testing.T) {
	r := New()
	r.Register("zeta", func(context.Context, map[string]string) (string, error) { return "", nil })
	r.Register("alpha", func(context.Context, map[string]string) (string, error) { return "", nil })

	names := r.ListCommands()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Fatalf("expected sorted [alpha zeta], got %v", names)
	}
}

func TestRegisterReplacesExistingCommand(t *testing.T) {
	ctx := context.Background()
	r := New()
	r.Register("run", func(context.Context, map[string]string) (string, error) { return "v1", nil })
	r.Register("run", func(context.Context, map[string]string) (string, error) { return "v2", nil })

	out, err := r.Invoke(ctx, "run", nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != "v2" {
		t.Fatalf("expected replaced command to win, got %q", out)
	}
}

func TestUnregisterRemovesCommand(t *testing.T) {
	ctx := context.Background()
	r := New()
	r.Register("temp", func(context.Context, map[string]string) (string, error) { return "ok", nil })
	r.Unregister("temp")

	if _, err := r.Invoke(ctx, "temp", nil); err == nil {
		t.Fatal("expected error after unregister")
	}
}
