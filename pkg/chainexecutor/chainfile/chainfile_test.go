package chainfile

import (
	"context"
	"testing"

	"github.com/flowctl/core/pkg/fsx/fsxlocal"
	"github.com/flowctl/core/pkg/store"
)

func newImporter(t *testing.T) *Importer {
	t.Helper()
	fs, err := fsxlocal.NewLocalFileSystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFileSystem: %v", err)
	}
	return New(fs, ".")
}

func TestExportThenImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	im := newImporter(t)

	steps := []store.Step{
		{StepNumber: 1, AgentName: "Writer", PromptType: store.PromptTypePrompt, PromptArgs: map[string]string{"prompt": "draft an outline"}},
		{StepNumber: 2, AgentName: "Editor", PromptType: store.PromptTypePrompt, PromptArgs: map[string]string{"prompt": "polish {STEP1}"}},
	}

	if err := im.ExportChain(ctx, "blog-post", steps); err != nil {
		t.Fatalf("ExportChain: %v", err)
	}

	got, err := im.ImportChain(ctx, "blog-post")
	if err != nil {
		t.Fatalf("ImportChain: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(got))
	}
	if got[0].StepNumber != 1 || got[0].AgentName != "Writer" || got[0].PromptType != store.PromptTypePrompt {
		t.Fatalf("unexpected step 1: %+v", got[0])
	}
	if got[0].PromptArgs["prompt"] != "draft an outline" {
		t.Fatalf("unexpected step 1 prompt: %q", got[0].PromptArgs["prompt"])
	}
	if got[1].PromptArgs["prompt"] != "polish {STEP1}" {
		t.Fatalf("unexpected step 2 prompt: %q", got[1].PromptArgs["prompt"])
	}
}

func TestImportChainMissingDirectoryReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	im := newImporter(t)

	_, err := im.ImportChain(ctx, "does-not-exist")
	if err == nil {
		t.Fatal("expected error for missing chain directory")
	}
}

func TestExportStepReplacesStaleFileForSameStepNumber(t *testing.T) {
	ctx := context.Background()
	im := newImporter(t)

	if err := im.ExportStep(ctx, "pipeline", store.Step{
		StepNumber: 1, AgentName: "Alpha", PromptType: store.PromptTypePrompt,
		PromptArgs: map[string]string{"prompt": "first version"},
	}); err != nil {
		t.Fatalf("ExportStep: %v", err)
	}

	if err := im.ExportStep(ctx, "pipeline", store.Step{
		StepNumber: 1, AgentName: "Beta", PromptType: store.PromptTypeCommand,
		PromptArgs: map[string]string{"prompt": "second version"},
	}); err != nil {
		t.Fatalf("ExportStep: %v", err)
	}

	steps, err := im.ImportChain(ctx, "pipeline")
	if err != nil {
		t.Fatalf("ImportChain: %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("expected exactly 1 step file after replace, got %d: %+v", len(steps), steps)
	}
	if steps[0].AgentName != "Beta" || steps[0].PromptType != store.PromptTypeCommand {
		t.Fatalf("expected stale step file to be replaced, got %+v", steps[0])
	}
}

func TestDeleteStepRemovesOnlyThatStep(t *testing.T) {
	ctx := context.Background()
	im := newImporter(t)

	steps := []store.Step{
		{StepNumber: 1, AgentName: "A", PromptType: store.PromptTypePrompt, PromptArgs: map[string]string{"prompt": "one"}},
		{StepNumber: 2, AgentName: "B", PromptType: store.PromptTypePrompt, PromptArgs: map[string]string{"prompt": "two"}},
	}
	if err := im.ExportChain(ctx, "trim", steps); err != nil {
		t.Fatalf("ExportChain: %v", err)
	}
	if err := im.DeleteStep(ctx, "trim", 1); err != nil {
		t.Fatalf("DeleteStep: %v", err)
	}

	remaining, err := im.ImportChain(ctx, "trim")
	if err != nil {
		t.Fatalf("ImportChain: %v", err)
	}
	if len(remaining) != 1 || remaining[0].StepNumber != 2 {
		t.Fatalf("expected only step 2 to remain, got %+v", remaining)
	}
}

func TestRenameChainMovesAllSteps(t *testing.T) {
	ctx := context.Background()
	im := newImporter(t)

	steps := []store.Step{
		{StepNumber: 1, AgentName: "A", PromptType: store.PromptTypePrompt, PromptArgs: map[string]string{"prompt": "hello"}},
	}
	if err := im.ExportChain(ctx, "old-name", steps); err != nil {
		t.Fatalf("ExportChain: %v", err)
	}
	if err := im.RenameChain(ctx, "old-name", "new-name"); err != nil {
		t.Fatalf("RenameChain: %v", err)
	}

	if _, err := im.ImportChain(ctx, "old-name"); err == nil {
		t.Fatal("expected old chain directory to be gone")
	}
	got, err := im.ImportChain(ctx, "new-name")
	if err != nil {
		t.Fatalf("ImportChain new-name: %v", err)
	}
	if len(got) != 1 || got[0].PromptArgs["prompt"] != "hello" {
		t.Fatalf("unexpected steps after rename: %+v", got)
	}
}

func TestListChainsReturnsDirectoriesSorted(t *testing.T) {
	ctx := context.Background()
	im := newImporter(t)

	for _, name := range []string{"zeta", "alpha"} {
		if err := im.ExportChain(ctx, name, []store.Step{
			{StepNumber: 1, AgentName: "A", PromptType: store.PromptTypePrompt, PromptArgs: map[string]string{"prompt": "x"}},
		}); err != nil {
			t.Fatalf("ExportChain(%s): %v", name, err)
		}
	}

	names, err := im.ListChains(ctx)
	if err != nil {
		t.Fatalf("ListChains: %v", err)
	}
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Fatalf("expected sorted [alpha zeta], got %v", names)
	}
}
