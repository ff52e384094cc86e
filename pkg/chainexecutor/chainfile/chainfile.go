// Package chainfile imports and exports Chains to the legacy on-disk layout:
// one directory per chain under a root, one file per step named
// "<step_number>-<agent_name>-<prompt_type>.txt", whose content is that
// step's prompt text. pkg/store stays authoritative; this package exists
// purely so chains authored against the old flat-file convention can be
// brought in, and so a chain can be dumped back out for inspection or
// version control.
//
// The legacy format only ever carried a single prompt string per step, so a
// round trip through this package collapses a Step's prompt_args down to
// whatever is stored under the "prompt" key. Command and Chain steps that
// rely on other prompt_args keys (command_name, chain_name, ...) do not
// survive an export/import round trip losslessly; those chains should stay
// authored directly through pkg/store.
package chainfile

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/flowctl/core/pkg/errx"
	"github.com/flowctl/core/pkg/fsx"
	"github.com/flowctl/core/pkg/store"
)

var ErrRegistry = errx.NewRegistry("CHAINFILE")

var (
	CodeInvalidFileName = ErrRegistry.Register("INVALID_FILE_NAME", errx.TypeValidation, 400, "step file name does not match <step_number>-<agent_name>-<prompt_type>.txt")
	CodeChainNotFound   = ErrRegistry.Register("CHAIN_NOT_FOUND", errx.TypeNotFound, 404, "chain directory not found")
)

func ErrInvalidFileName(name string) *errx.Error {
	return ErrRegistry.New(CodeInvalidFileName).WithDetail("file_name", name)
}

func ErrChainNotFound(name string) *errx.Error {
	return ErrRegistry.New(CodeChainNotFound).WithDetail("chain_name", name)
}

const stepFileSuffix = ".txt"

// Importer reads and writes the legacy chain directory layout under Root.
type Importer struct {
	fs   fsx.FileSystem
	root string
}

func New(fs fsx.FileSystem, root string) *Importer {
	return &Importer{fs: fs, root: root}
}

// ListChains returns every chain directory name under Root.
func (im *Importer) ListChains(ctx context.Context) ([]string, error) {
	entries, err := im.fs.List(ctx, im.root)
	if err != nil {
		return nil, errx.Wrap(err, "failed to list chain directory", errx.TypeExternal)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir {
			names = append(names, e.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// ImportChain reads every step file under <root>/<chainName> and returns the
// Steps they describe, sorted by step number. The returned Steps have no
// ChainID set; the caller assigns one after creating the Chain row.
func (im *Importer) ImportChain(ctx context.Context, chainName string) ([]store.Step, error) {
	dir := im.fs.Join(im.root, chainName)
	exists, err := im.fs.Exists(ctx, dir)
	if err != nil {
		return nil, errx.Wrap(err, "failed to check chain directory", errx.TypeExternal)
	}
	if !exists {
		return nil, ErrChainNotFound(chainName)
	}

	entries, err := im.fs.List(ctx, dir)
	if err != nil {
		return nil, errx.Wrap(err, "failed to list chain steps", errx.TypeExternal)
	}

	steps := make([]store.Step, 0, len(entries))
	for _, e := range entries {
		if e.IsDir || !strings.HasSuffix(e.Name, stepFileSuffix) {
			continue
		}
		stepNumber, agentName, promptType, err := parseStepFileName(e.Name)
		if err != nil {
			return nil, err
		}

		content, err := im.fs.ReadFile(ctx, im.fs.Join(dir, e.Name))
		if err != nil {
			return nil, errx.Wrap(err, "failed to read step file", errx.TypeExternal)
		}

		steps = append(steps, store.Step{
			StepNumber: stepNumber,
			AgentName:  agentName,
			PromptType: promptType,
			PromptArgs: map[string]string{"prompt": string(content)},
		})
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].StepNumber < steps[j].StepNumber })
	return steps, nil
}

// ExportChain writes one file per step under <root>/<chainName>, creating the
// directory if needed. Every existing step file whose step number appears in
// steps is removed first and then written afresh; step files for other step
// numbers are left in place.
func (im *Importer) ExportChain(ctx context.Context, chainName string, steps []store.Step) error {
	dir := im.fs.Join(im.root, chainName)
	if err := im.fs.CreateDir(ctx, dir); err != nil {
		return errx.Wrap(err, "failed to create chain directory", errx.TypeExternal)
	}

	existing, err := im.fs.List(ctx, dir)
	if err != nil {
		return errx.Wrap(err, "failed to list existing chain steps", errx.TypeExternal)
	}
	for _, e := range existing {
		if e.IsDir || !strings.HasSuffix(e.Name, stepFileSuffix) {
			continue
		}
		stepNumber, _, _, err := parseStepFileName(e.Name)
		if err != nil {
			continue
		}
		if !hasStep(steps, stepNumber) {
			continue
		}
		if err := im.fs.DeleteFile(ctx, im.fs.Join(dir, e.Name)); err != nil {
			return errx.Wrap(err, "failed to remove stale step file", errx.TypeExternal)
		}
	}

	for _, step := range steps {
		if err := im.writeStep(ctx, dir, step); err != nil {
			return err
		}
	}
	return nil
}

// ExportStep writes a single step's file, replacing any existing file for
// the same step number regardless of its previous agent name or prompt type.
func (im *Importer) ExportStep(ctx context.Context, chainName string, step store.Step) error {
	dir := im.fs.Join(im.root, chainName)
	if err := im.fs.CreateDir(ctx, dir); err != nil {
		return errx.Wrap(err, "failed to create chain directory", errx.TypeExternal)
	}
	if err := im.DeleteStep(ctx, chainName, step.StepNumber); err != nil {
		return err
	}
	return im.writeStep(ctx, dir, step)
}

// DeleteStep removes whichever step file currently occupies stepNumber, if
// any. It is not an error for no such file to exist.
func (im *Importer) DeleteStep(ctx context.Context, chainName string, stepNumber int) error {
	dir := im.fs.Join(im.root, chainName)
	entries, err := im.fs.List(ctx, dir)
	if err != nil {
		return errx.Wrap(err, "failed to list chain steps", errx.TypeExternal)
	}
	prefix := strconv.Itoa(stepNumber) + "-"
	for _, e := range entries {
		if e.IsDir || !strings.HasPrefix(e.Name, prefix) {
			continue
		}
		if err := im.fs.DeleteFile(ctx, im.fs.Join(dir, e.Name)); err != nil {
			return errx.Wrap(err, "failed to delete step file", errx.TypeExternal)
		}
	}
	return nil
}

// RenameChain moves a chain directory to a new name by re-exporting its
// steps under the new name and deleting the old directory. fsx has no
// dedicated rename operation, so this reads every step before deleting
// anything to avoid losing data on a partial failure.
func (im *Importer) RenameChain(ctx context.Context, chainName, newName string) error {
	steps, err := im.ImportChain(ctx, chainName)
	if err != nil {
		return err
	}
	if err := im.ExportChain(ctx, newName, steps); err != nil {
		return err
	}
	return im.fs.DeleteDir(ctx, im.fs.Join(im.root, chainName), true)
}

func (im *Importer) writeStep(ctx context.Context, dir string, step store.Step) error {
	fileName := fmt.Sprintf("%d-%s-%s%s", step.StepNumber, step.AgentName, step.PromptType, stepFileSuffix)
	content := step.PromptArgs["prompt"]
	if err := im.fs.WriteFile(ctx, im.fs.Join(dir, fileName), []byte(content)); err != nil {
		return errx.Wrap(err, "failed to write step file", errx.TypeExternal)
	}
	return nil
}

func hasStep(steps []store.Step, stepNumber int) bool {
	for _, s := range steps {
		if s.StepNumber == stepNumber {
			return true
		}
	}
	return false
}

func parseStepFileName(name string) (stepNumber int, agentName string, promptType store.PromptType, err error) {
	base := strings.TrimSuffix(name, stepFileSuffix)
	parts := strings.SplitN(base, "-", 3)
	if len(parts) != 3 {
		return 0, "", "", ErrInvalidFileName(name)
	}
	n, convErr := strconv.Atoi(parts[0])
	if convErr != nil {
		return 0, "", "", ErrInvalidFileName(name)
	}
	return n, parts[1], store.PromptType(parts[2]), nil
}
