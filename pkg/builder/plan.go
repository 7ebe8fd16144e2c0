package builder

import (
	"context"
	"fmt"

	domainerrors "github.com/kilnbuild/kiln/pkg/builder/errors"
)

// Step IDs, also the step identities cache keys are derived from.
const (
	StepBase         = "base"
	StepPackages     = "packages"
	StepWorkdir      = "workdir"
	StepDepsManifest = "deps-manifest"
	StepDepsInstall  = "deps-install"
	StepSource       = "source"
	StepBrowser      = "browser"
	StepEntrypoint   = "entrypoint"
)

// Step is one provisioning step. Steps execute in strict plan order; the
// declared dependency edges exist for cache keying and validation, not for
// reordering.
type Step interface {
	// ID is the stable step identity.
	ID() string

	// Description is the human-readable progress line.
	Description() string

	// DependsOn lists the IDs of steps whose layers this step's cache
	// key must cover.
	DependsOn() []string

	// Inputs digests everything the step consumes from outside the
	// layer chain. It runs before Execute, so a missing input fails the
	// build before any later step runs.
	Inputs(bctx *BuildContext) (string, error)

	// Execute materializes the step's filesystem delta into dir.
	Execute(ctx context.Context, bctx *BuildContext, dir string) error
}

// PlanSteps derives the ordered provisioning plan from the manifest. The
// order is fixed: base, packages, workdir, deps-manifest, deps-install,
// source, browser (when enabled), entrypoint.
func PlanSteps(bctx *BuildContext) []Step {
	img := bctx.Manifest.Image

	steps := []Step{
		&baseStep{settings: img.Base},
		&packagesStep{packages: img.Packages},
		&workdirStep{path: img.WorkDir},
		&depsManifestStep{},
		&depsInstallStep{},
		&sourceStep{},
	}
	if bctx.InstallBrowser {
		steps = append(steps, &browserStep{
			engine:   img.BrowserEngine(),
			revision: img.Browser.Revision,
		})
	}
	steps = append(steps, &entrypointStep{})
	return steps
}

// ValidatePlan checks the declared dependency graph instead of trusting
// textual order: IDs must be unique, every edge must point to an earlier
// step, the plan must start from the base layer and end at the entrypoint,
// and the dependency install must hang off the dependency manifest so the
// cache contract holds.
func ValidatePlan(steps []Step) error {
	if len(steps) == 0 {
		return domainerrors.ErrInvalidPlan.WithCause(fmt.Errorf("empty plan"))
	}
	if steps[0].ID() != StepBase {
		return domainerrors.ErrInvalidPlan.WithCause(fmt.Errorf("plan must start with %s, got %s", StepBase, steps[0].ID()))
	}
	if steps[len(steps)-1].ID() != StepEntrypoint {
		return domainerrors.ErrInvalidPlan.WithCause(fmt.Errorf("plan must end with %s, got %s", StepEntrypoint, steps[len(steps)-1].ID()))
	}

	seen := make(map[string]int, len(steps))
	for i, step := range steps {
		if _, dup := seen[step.ID()]; dup {
			return domainerrors.ErrInvalidPlan.WithCause(fmt.Errorf("duplicate step %s", step.ID()))
		}
		for _, dep := range step.DependsOn() {
			pos, ok := seen[dep]
			if !ok {
				return domainerrors.ErrInvalidPlan.WithCause(fmt.Errorf("step %s depends on %s, which is not an earlier step", step.ID(), dep))
			}
			if pos >= i {
				return domainerrors.ErrInvalidPlan.WithCause(fmt.Errorf("step %s depends on later step %s", step.ID(), dep))
			}
		}
		seen[step.ID()] = i
	}

	if pos, ok := seen[StepDepsInstall]; ok {
		deps := steps[pos].DependsOn()
		if len(deps) != 1 || deps[0] != StepDepsManifest {
			return domainerrors.ErrInvalidPlan.WithCause(fmt.Errorf("%s must depend on %s alone", StepDepsInstall, StepDepsManifest))
		}
	}
	if pos, ok := seen[StepBrowser]; ok {
		for _, dep := range steps[pos].DependsOn() {
			if dep == StepSource {
				return domainerrors.ErrInvalidPlan.WithCause(fmt.Errorf("%s must not depend on %s; source changes may not invalidate the browser layer", StepBrowser, StepSource))
			}
		}
	}
	return nil
}
