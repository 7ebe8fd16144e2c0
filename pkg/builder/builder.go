// Package builder executes the provisioning pipeline: a strictly ordered
// sequence of steps, each materialized as an immutable content-addressed
// layer, with per-step cache reuse keyed on the declared dependency graph.
package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	domainerrors "github.com/kilnbuild/kiln/pkg/builder/errors"
	"github.com/kilnbuild/kiln/pkg/builder/logging"
	"github.com/kilnbuild/kiln/pkg/cache"
	"github.com/kilnbuild/kiln/pkg/layer"
	"github.com/kilnbuild/kiln/pkg/registry"
	"github.com/kilnbuild/kiln/pkg/types"
)

// ProgressFunc receives one line per step as the pipeline advances.
type ProgressFunc func(step, message string)

// Builder runs provisioning plans against a layer cache and layer store.
type Builder struct {
	cache    cache.Cache
	store    registry.LayerStore
	logger   logging.Logger
	stageDir string
	progress ProgressFunc
}

// Option configures a Builder.
type Option func(*Builder)

// WithProgress registers a per-step progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(b *Builder) { b.progress = fn }
}

// New creates a Builder. stageDir is where in-flight layer directories are
// staged; it is cleared per build, success or failure.
func New(layerCache cache.Cache, store registry.LayerStore, logger logging.Logger, stageDir string, opts ...Option) *Builder {
	b := &Builder{
		cache:    layerCache,
		store:    store,
		logger:   logger,
		stageDir: stageDir,
		progress: func(string, string) {},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build executes the full pipeline for bctx. The pipeline is linear and
// all-or-nothing: the first failing step aborts the build, staged work is
// discarded, and no image is produced. Individually completed layers stay
// in the content-addressed cache; nothing references them until a build
// succeeds.
func (b *Builder) Build(ctx context.Context, bctx *BuildContext) (*types.BuildResult, error) {
	started := time.Now()

	plan := PlanSteps(bctx)
	if err := ValidatePlan(plan); err != nil {
		return nil, err
	}

	progress := b.progress
	if bctx.Progress != nil {
		progress = bctx.Progress
	}

	stage, err := os.MkdirTemp(b.stageDir, "build-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stage)

	img := bctx.Manifest.Image
	imageName := img.Name
	if img.Namespace != "" {
		imageName = img.Namespace + "/" + img.Name
	}

	keys := make(map[string]string, len(plan))
	layers := make([]string, 0, len(plan))
	var totalSize int64
	cacheHits := 0

	for _, step := range plan {
		select {
		case <-ctx.Done():
			return nil, domainerrors.ErrBuildCancelled.WithStep(step.ID()).WithCause(ctx.Err())
		default:
		}

		inputs, err := step.Inputs(bctx)
		if err != nil {
			return nil, b.stepFailed(step, imageName, err)
		}

		key := cache.Key{
			StepID:  step.ID(),
			Inputs:  inputs,
			Parents: parentKeys(step, keys),
		}.Digest()

		cached, err := b.cache.Get(key)
		switch {
		case err == nil:
			progress(step.ID(), step.Description()+" (cached)")
			b.logger.Debugf("step %s: cache hit, layer %s", step.ID(), registry.TruncateDigest(cached.Digest, 12))
			keys[step.ID()] = key
			layers = append(layers, cached.Digest)
			totalSize += cached.Size
			cacheHits++
			continue
		case !errors.Is(err, cache.ErrEntryNotFound):
			return nil, domainerrors.Wrap(domainerrors.DomainCache, domainerrors.CodeCacheCorrupt,
				"cache lookup failed", err).WithStep(step.ID())
		}

		progress(step.ID(), step.Description())
		b.logger.Printf("step %s: %s", step.ID(), step.Description())

		dir := filepath.Join(stage, step.ID())
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create step directory: %w", err)
		}
		if err := step.Execute(ctx, bctx, dir); err != nil {
			return nil, b.stepFailed(step, imageName, err)
		}

		digest, size, err := b.store.Commit(dir)
		if err != nil {
			return nil, domainerrors.Wrap(domainerrors.DomainCache, domainerrors.CodeCacheCorrupt,
				"failed to commit layer", err).WithStep(step.ID())
		}
		committed := layer.Layer{
			Digest:    digest,
			StepID:    step.ID(),
			CacheKey:  key,
			Size:      size,
			CreatedAt: time.Now(),
		}
		if err := b.cache.Put(key, committed); err != nil {
			return nil, domainerrors.Wrap(domainerrors.DomainCache, domainerrors.CodeCacheCorrupt,
				"failed to index layer", err).WithStep(step.ID())
		}

		keys[step.ID()] = key
		layers = append(layers, digest)
		totalSize += size
	}

	config := ImageConfig(bctx)
	result := &types.BuildResult{
		Namespace: img.Namespace,
		Name:      img.Name,
		Digest:    imageDigest(layers, config),
		Layers:    layers,
		Config:    config,
		Steps:     len(plan),
		CacheHits: cacheHits,
		Size:      totalSize,
		Duration:  time.Since(started),
	}

	b.logger.Printf("built %s (%s): %d steps, %d cached, %d bytes",
		imageName, registry.TruncateDigest(result.Digest, 12), result.Steps, result.CacheHits, totalSize)
	return result, nil
}

func (b *Builder) stepFailed(step Step, imageName string, err error) error {
	b.logger.Errorf("step %s failed: %v", step.ID(), err)

	var de *domainerrors.DomainError
	if errors.As(err, &de) {
		if de.Step == "" {
			de = de.WithStep(step.ID())
		}
		if de.Image == "" {
			de = de.WithImage(imageName)
		}
		return de
	}
	return domainerrors.Wrap(domainerrors.DomainBuild, domainerrors.CodeStepFailed,
		"provisioning step failed", err).WithStep(step.ID()).WithImage(imageName)
}

func parentKeys(step Step, keys map[string]string) []string {
	deps := step.DependsOn()
	parents := make([]string, 0, len(deps))
	for _, dep := range deps {
		if key, ok := keys[dep]; ok {
			parents = append(parents, key)
		}
	}
	return parents
}

// imageDigest derives the image digest from its ordered layer digests and
// its runtime config.
func imageDigest(layers []string, config types.ImageConfig) string {
	material := strings.Join(layers, "\n") + "\n" + config.WorkDir + "\n" + strings.Join(config.Entrypoint, "\x00") + "\n" + strings.Join(config.Env, "\x00")
	return layer.DigestBytes([]byte(material))
}
