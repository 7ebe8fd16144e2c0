package builder_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/kilnbuild/kiln/internal/repository"
	"github.com/kilnbuild/kiln/pkg/builder"
	domainerrors "github.com/kilnbuild/kiln/pkg/builder/errors"
	"github.com/kilnbuild/kiln/pkg/builder/logging"
	buildertesting "github.com/kilnbuild/kiln/pkg/builder/testing"
	"github.com/kilnbuild/kiln/pkg/cache"
	localCache "github.com/kilnbuild/kiln/pkg/cache/local"
	"github.com/kilnbuild/kiln/pkg/manifest"
	"github.com/kilnbuild/kiln/pkg/registry"
	localRegistry "github.com/kilnbuild/kiln/pkg/registry/local"
	"github.com/kilnbuild/kiln/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSetup struct {
	builder *builder.Builder
	cache   cache.Cache
	store   registry.LayerStore
	mocks   *buildertesting.MockResolvers
	dir     string
	cleanup func()
}

func setupTestBuilder(t *testing.T) *testSetup {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "builder-test-*")
	require.NoError(t, err)

	opts := badger.DefaultOptions(filepath.Join(tmpDir, "db"))
	opts.Logger = nil // Disable logging for tests

	db, err := badger.Open(opts)
	require.NoError(t, err)

	store := localRegistry.NewLayerStore(filepath.Join(tmpDir, "layers"))
	layerCache := localCache.NewLocalCache(repository.NewBadgerDBRepository(db), store)

	stageDir := filepath.Join(tmpDir, "stage")
	require.NoError(t, os.MkdirAll(stageDir, 0755))

	contextDir := filepath.Join(tmpDir, "context")
	require.NoError(t, os.MkdirAll(contextDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(contextDir, "requirements.txt"), []byte("requests==2.31.0\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(contextDir, "app.py"), []byte("print('scrape')\n"), 0644))

	mocks := buildertesting.NewMockResolvers()
	mocks.Bases["python:3.11.9"] = buildertesting.TarballFromFiles(map[string]string{
		"usr/bin/python": "#!python",
	})
	mocks.Packages["libnss3"] = buildertesting.TarballFromFiles(map[string]string{
		"usr/lib/libnss3.so": "nss",
	})
	mocks.Dependencies["requests-2.31.0"] = buildertesting.TarballFromFiles(map[string]string{
		"requests/__init__.py": "# requests",
	})
	mocks.Browsers["chromium-1181205"] = buildertesting.TarballFromFiles(map[string]string{
		"chrome": "#!chrome",
	})

	return &testSetup{
		builder: builder.New(layerCache, store, logging.NopLogger{}, stageDir),
		cache:   layerCache,
		store:   store,
		mocks:   mocks,
		dir:     contextDir,
		cleanup: func() {
			db.Close()
			os.RemoveAll(tmpDir)
		},
	}
}

func testManifest() *manifest.BuildManifest {
	return &manifest.BuildManifest{
		Image: manifest.ImageSettings{
			Namespace: "test",
			Name:      "scraper",
			Base: manifest.BaseSettings{
				Runtime: "python",
				Version: "3.11.9",
			},
			WorkDir:  "/app",
			Packages: []string{"libnss3"},
			Browser: manifest.BrowserSettings{
				Revision: "1181205",
			},
			Entrypoint: []string{"python", "app.py"},
		},
	}
}

func (s *testSetup) buildContext() *builder.BuildContext {
	return &builder.BuildContext{
		Dir:            s.dir,
		Manifest:       testManifest(),
		Platform:       "linux/amd64",
		InstallBrowser: true,
		Resolvers:      s.mocks.Resolvers(),
	}
}

func TestBuild(t *testing.T) {
	setup := setupTestBuilder(t)
	defer setup.cleanup()

	result, err := setup.builder.Build(context.Background(), setup.buildContext())
	require.NoError(t, err)

	assert.Equal(t, "test", result.Namespace)
	assert.Equal(t, "scraper", result.Name)
	assert.NotEmpty(t, result.Digest)
	assert.Equal(t, 8, result.Steps)
	assert.Len(t, result.Layers, 8)
	assert.Zero(t, result.CacheHits)
	assert.Positive(t, result.Size)

	t.Run("layers are committed", func(t *testing.T) {
		for _, digest := range result.Layers {
			assert.True(t, setup.store.Exists(digest))
		}
	})

	t.Run("config records browser binary", func(t *testing.T) {
		assert.Equal(t, "/app", result.Config.WorkDir)
		assert.Equal(t, []string{"python", "app.py"}, result.Config.Entrypoint)
		assert.Equal(t, []string{"CHROMIUM_PATH=/opt/chromium-1181205/chrome"}, result.Config.Env)
	})

	t.Run("entrypoint layer carries image config", func(t *testing.T) {
		path, err := setup.store.Path(result.Layers[7])
		require.NoError(t, err)

		data, err := os.ReadFile(filepath.Join(path, "etc", "kiln", "image.json"))
		require.NoError(t, err)

		var config types.ImageConfig
		require.NoError(t, json.Unmarshal(data, &config))
		assert.Equal(t, result.Config, config)
	})

	t.Run("browser layer unpacks under install dir", func(t *testing.T) {
		path, err := setup.store.Path(result.Layers[6])
		require.NoError(t, err)

		_, err = os.Stat(filepath.Join(path, "opt", "chromium-1181205", "chrome"))
		assert.NoError(t, err)
	})
}

func TestBuildWithoutBrowser(t *testing.T) {
	setup := setupTestBuilder(t)
	defer setup.cleanup()

	bctx := setup.buildContext()
	bctx.InstallBrowser = false

	result, err := setup.builder.Build(context.Background(), bctx)
	require.NoError(t, err)

	assert.Equal(t, 7, result.Steps)
	assert.Len(t, result.Layers, 7)
	assert.Empty(t, result.Config.Env)
	assert.Empty(t, setup.mocks.Calls.Browsers)
}

func TestBuildCacheReuse(t *testing.T) {
	setup := setupTestBuilder(t)
	defer setup.cleanup()

	first, err := setup.builder.Build(context.Background(), setup.buildContext())
	require.NoError(t, err)
	require.Zero(t, first.CacheHits)

	fetches := len(setup.mocks.Calls.Bases) + len(setup.mocks.Calls.Packages) +
		len(setup.mocks.Calls.Dependencies) + len(setup.mocks.Calls.Browsers)

	second, err := setup.builder.Build(context.Background(), setup.buildContext())
	require.NoError(t, err)

	assert.Equal(t, second.Steps, second.CacheHits, "unchanged build replays entirely from cache")
	assert.Equal(t, first.Digest, second.Digest)
	assert.Equal(t, first.Layers, second.Layers)

	refetches := len(setup.mocks.Calls.Bases) + len(setup.mocks.Calls.Packages) +
		len(setup.mocks.Calls.Dependencies) + len(setup.mocks.Calls.Browsers)
	assert.Equal(t, fetches, refetches, "cached build fetches nothing")
}

func TestSourceChangeInvalidation(t *testing.T) {
	setup := setupTestBuilder(t)
	defer setup.cleanup()

	first, err := setup.builder.Build(context.Background(), setup.buildContext())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(setup.dir, "app.py"), []byte("print('v2')\n"), 0644))

	second, err := setup.builder.Build(context.Background(), setup.buildContext())
	require.NoError(t, err)

	// Only the source copy and the entrypoint behind it rebuild. The
	// browser layer hangs off deps-install, so it must survive untouched.
	assert.Equal(t, second.Steps-2, second.CacheHits)
	assert.Equal(t, first.Layers[:5], second.Layers[:5])
	assert.Equal(t, first.Layers[6], second.Layers[6], "browser layer survives a source edit")
	assert.NotEqual(t, first.Layers[5], second.Layers[5], "source layer changes")
	assert.NotEqual(t, first.Digest, second.Digest)
}

func TestDependencyChangeInvalidation(t *testing.T) {
	setup := setupTestBuilder(t)
	defer setup.cleanup()

	first, err := setup.builder.Build(context.Background(), setup.buildContext())
	require.NoError(t, err)

	setup.mocks.Dependencies["beautifulsoup4-4.12.3"] = buildertesting.TarballFromFiles(map[string]string{
		"bs4/__init__.py": "# bs4",
	})
	require.NoError(t, os.WriteFile(filepath.Join(setup.dir, "requirements.txt"),
		[]byte("requests==2.31.0\nbeautifulsoup4==4.12.3\n"), 0644))

	second, err := setup.builder.Build(context.Background(), setup.buildContext())
	require.NoError(t, err)

	// base, packages and workdir stay cached; everything downstream of the
	// dependency manifest rebuilds.
	assert.Equal(t, 3, second.CacheHits)
	assert.Equal(t, first.Layers[:3], second.Layers[:3])
	assert.NotEqual(t, first.Layers[4], second.Layers[4], "deps-install layer changes")
	assert.NotEqual(t, first.Layers[6], second.Layers[6], "browser layer re-keys off new deps")
}

func TestMissingDependencyManifest(t *testing.T) {
	setup := setupTestBuilder(t)
	defer setup.cleanup()

	require.NoError(t, os.Remove(filepath.Join(setup.dir, "requirements.txt")))

	_, err := setup.builder.Build(context.Background(), setup.buildContext())
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.DomainBuild, domainerrors.CodeDepsManifestGone))

	// The build dies at the manifest copy step, before any dependency or
	// browser fetch starts.
	assert.Empty(t, setup.mocks.Calls.Dependencies)
	assert.Empty(t, setup.mocks.Calls.Browsers)
}

func TestBuildCancelled(t *testing.T) {
	setup := setupTestBuilder(t)
	defer setup.cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := setup.builder.Build(ctx, setup.buildContext())
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrBuildCancelled)
}

func TestUnsupportedPlatform(t *testing.T) {
	setup := setupTestBuilder(t)
	defer setup.cleanup()

	bctx := setup.buildContext()
	bctx.Platform = "windows/amd64"

	_, err := setup.builder.Build(context.Background(), bctx)
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.DomainFetch, domainerrors.CodeBrowserUnsupported))
	assert.Empty(t, setup.mocks.Calls.Browsers, "no download is attempted for an unsupported platform")
}

func TestUnresolvablePackage(t *testing.T) {
	setup := setupTestBuilder(t)
	defer setup.cleanup()

	bctx := setup.buildContext()
	bctx.Manifest.Image.Packages = []string{"libnss3", "no-such-package"}

	_, err := setup.builder.Build(context.Background(), bctx)
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.DomainFetch, domainerrors.CodePackageUnresolved))

	var de *domainerrors.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "packages", de.Step)
	assert.Equal(t, "test/scraper", de.Image)
}

func TestBuildProgress(t *testing.T) {
	setup := setupTestBuilder(t)
	defer setup.cleanup()

	var steps []string
	bctx := setup.buildContext()
	bctx.Progress = func(step, message string) {
		steps = append(steps, step)
	}

	_, err := setup.builder.Build(context.Background(), bctx)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"base", "packages", "workdir", "deps-manifest",
		"deps-install", "source", "browser", "entrypoint",
	}, steps)
}

func TestIgnorePatterns(t *testing.T) {
	setup := setupTestBuilder(t)
	defer setup.cleanup()

	require.NoError(t, os.WriteFile(filepath.Join(setup.dir, "notes.md"), []byte("scratch"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(setup.dir, ".kilnignore"), []byte("*.md\n"), 0644))

	first, err := setup.builder.Build(context.Background(), setup.buildContext())
	require.NoError(t, err)

	path, err := setup.store.Path(first.Layers[5])
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(path, "app", "notes.md"))
	assert.True(t, os.IsNotExist(err), "ignored file stays out of the source layer")

	// Editing an ignored file must not invalidate the source layer.
	require.NoError(t, os.WriteFile(filepath.Join(setup.dir, "notes.md"), []byte("more scratch"), 0644))

	second, err := setup.builder.Build(context.Background(), setup.buildContext())
	require.NoError(t, err)
	assert.Equal(t, second.Steps, second.CacheHits)
}

func TestStateDirExcluded(t *testing.T) {
	setup := setupTestBuilder(t)
	defer setup.cleanup()

	blob := filepath.Join(setup.dir, ".kiln", "cache", "layers", "deadbeef")
	require.NoError(t, os.MkdirAll(blob, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(blob, "blob"), []byte("cached layer"), 0644))

	first, err := setup.builder.Build(context.Background(), setup.buildContext())
	require.NoError(t, err)

	path, err := setup.store.Path(first.Layers[5])
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(path, "app", ".kiln"), "state dir stays out of the source layer")

	// State-dir growth must not churn the source cache key either.
	require.NoError(t, os.WriteFile(filepath.Join(blob, "another"), []byte("more state"), 0644))

	second, err := setup.builder.Build(context.Background(), setup.buildContext())
	require.NoError(t, err)
	assert.Equal(t, second.Steps, second.CacheHits)
	assert.Equal(t, first.Layers[5], second.Layers[5])
}
