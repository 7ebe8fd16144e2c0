package runtime

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/kilnbuild/kiln/internal/repository"
	"github.com/kilnbuild/kiln/pkg/builder/logging"
	"github.com/kilnbuild/kiln/pkg/registry"
	localRegistry "github.com/kilnbuild/kiln/pkg/registry/local"
	"github.com/kilnbuild/kiln/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSetup struct {
	runner   *Runner
	registry registry.Registry
	store    registry.LayerStore
	tmpDir   string
	cleanup  func()
}

func setupTestRunner(t *testing.T) *testSetup {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "runtime-test-*")
	require.NoError(t, err)

	opts := badger.DefaultOptions(filepath.Join(tmpDir, "db"))
	opts.Logger = nil // Disable logging for tests

	db, err := badger.Open(opts)
	require.NoError(t, err)

	store := localRegistry.NewLayerStore(filepath.Join(tmpDir, "layers"))
	reg := localRegistry.NewLocalRegistryWithStore(repository.NewBadgerDBRepository(db), store)

	return &testSetup{
		runner:   NewRunner(reg, store, filepath.Join(tmpDir, "instances"), logging.NopLogger{}),
		registry: reg,
		store:    store,
		tmpDir:   tmpDir,
		cleanup: func() {
			db.Close()
			os.RemoveAll(tmpDir)
		},
	}
}

func (s *testSetup) commitLayer(t *testing.T, files map[string]string) string {
	t.Helper()

	src, err := os.MkdirTemp(s.tmpDir, "layer-src-*")
	require.NoError(t, err)
	for path, content := range files {
		full := filepath.Join(src, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}

	digest, _, err := s.store.Commit(src)
	require.NoError(t, err)
	return digest
}

// pushImage registers a two-layer image whose workdir exists in the rootfs.
func (s *testSetup) pushImage(t *testing.T, digest string, config types.ImageConfig) {
	t.Helper()

	base := s.commitLayer(t, map[string]string{
		"app/main.py": "original",
		"etc/motd":    "welcome",
	})
	source := s.commitLayer(t, map[string]string{
		"app/main.py": "overlaid",
	})

	err := s.registry.Push("test", "scraper", registry.PushRequest{
		Digest: digest,
		Layers: []string{base, source},
		Config: config,
	}, "latest")
	require.NoError(t, err)
}

func defaultConfig() types.ImageConfig {
	return types.ImageConfig{
		WorkDir:    "/app",
		Entrypoint: []string{"/bin/sh", "-c", "exit 0"},
	}
}

func TestCreate(t *testing.T) {
	setup := setupTestRunner(t)
	defer setup.cleanup()

	setup.pushImage(t, "image-digest-aaaa", defaultConfig())

	instance, err := setup.runner.Create(context.Background(), "test", "scraper", "latest")
	require.NoError(t, err)
	defer instance.Destroy()

	assert.NotEmpty(t, instance.ID)
	assert.Equal(t, "test/scraper:latest", instance.Image)
	assert.Equal(t, "/app", instance.Config.WorkDir)

	t.Run("later layer overlays earlier", func(t *testing.T) {
		data, err := os.ReadFile(filepath.Join(instance.RootFS, "app", "main.py"))
		require.NoError(t, err)
		assert.Equal(t, "overlaid", string(data))
	})

	t.Run("earlier layer files survive", func(t *testing.T) {
		data, err := os.ReadFile(filepath.Join(instance.RootFS, "etc", "motd"))
		require.NoError(t, err)
		assert.Equal(t, "welcome", string(data))
	})

	t.Run("unknown image", func(t *testing.T) {
		_, err := setup.runner.Create(context.Background(), "test", "ghost", "latest")
		assert.Error(t, err)
	})
}

func TestInstanceIsolation(t *testing.T) {
	setup := setupTestRunner(t)
	defer setup.cleanup()

	setup.pushImage(t, "image-digest-aaaa", defaultConfig())

	first, err := setup.runner.Create(context.Background(), "test", "scraper", "latest")
	require.NoError(t, err)
	defer first.Destroy()

	second, err := setup.runner.Create(context.Background(), "test", "scraper", "latest")
	require.NoError(t, err)
	defer second.Destroy()

	require.NotEqual(t, first.RootFS, second.RootFS)

	// A write in one instance's rootfs must not appear in the other, and
	// must not leak back into the layer store.
	require.NoError(t, os.WriteFile(filepath.Join(first.RootFS, "app", "scratch"), []byte("x"), 0644))
	assert.NoFileExists(t, filepath.Join(second.RootFS, "app", "scratch"))

	third, err := setup.runner.Create(context.Background(), "test", "scraper", "latest")
	require.NoError(t, err)
	defer third.Destroy()
	assert.NoFileExists(t, filepath.Join(third.RootFS, "app", "scratch"))
}

func TestRun(t *testing.T) {
	setup := setupTestRunner(t)
	defer setup.cleanup()

	t.Run("propagates exit code", func(t *testing.T) {
		config := defaultConfig()
		config.Entrypoint = []string{"/bin/sh", "-c", "exit 7"}
		setup.pushImage(t, "image-digest-bbbb", config)

		instance, err := setup.runner.Create(context.Background(), "test", "scraper", "latest")
		require.NoError(t, err)
		defer instance.Destroy()

		code, err := instance.Run(context.Background(), os.Stdout, os.Stderr)
		require.NoError(t, err)
		assert.Equal(t, 7, code)
	})

	t.Run("runs in the instance workdir", func(t *testing.T) {
		config := defaultConfig()
		config.Entrypoint = []string{"/bin/sh", "-c", "pwd"}
		setup.pushImage(t, "image-digest-cccc", config)

		instance, err := setup.runner.Create(context.Background(), "test", "scraper", "latest")
		require.NoError(t, err)
		defer instance.Destroy()

		var stdout bytes.Buffer
		code, err := instance.Run(context.Background(), &stdout, os.Stderr)
		require.NoError(t, err)
		assert.Zero(t, code)
		assert.Equal(t, filepath.Join(instance.RootFS, "app")+"\n", stdout.String())
	})

	t.Run("rewrites recorded paths into the rootfs", func(t *testing.T) {
		config := defaultConfig()
		config.Entrypoint = []string{"/bin/sh", "-c", "printf '%s' \"$CHROMIUM_PATH\""}
		config.Env = []string{"CHROMIUM_PATH=/opt/chromium-1181205/chrome"}
		setup.pushImage(t, "image-digest-dddd", config)

		instance, err := setup.runner.Create(context.Background(), "test", "scraper", "latest")
		require.NoError(t, err)
		defer instance.Destroy()

		var stdout bytes.Buffer
		code, err := instance.Run(context.Background(), &stdout, os.Stderr)
		require.NoError(t, err)
		assert.Zero(t, code)
		assert.Equal(t, filepath.Join(instance.RootFS, "opt", "chromium-1181205", "chrome"), stdout.String())
	})

	t.Run("missing entrypoint", func(t *testing.T) {
		instance := &Instance{
			Image:  "test/empty:latest",
			Config: types.ImageConfig{WorkDir: "/app"},
		}
		_, err := instance.Run(context.Background(), os.Stdout, os.Stderr)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no entrypoint")
	})

	t.Run("missing workdir", func(t *testing.T) {
		instance := &Instance{
			Image:  "test/broken:latest",
			RootFS: t.TempDir(),
			Config: types.ImageConfig{
				WorkDir:    "/nowhere",
				Entrypoint: []string{"/bin/sh", "-c", "exit 0"},
			},
		}
		_, err := instance.Run(context.Background(), os.Stdout, os.Stderr)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "workdir missing")
	})
}

func TestRewriteEnvPath(t *testing.T) {
	assert.Equal(t, "BIN=/root/fs/usr/bin", rewriteEnvPath("BIN=/usr/bin", "/root/fs"))
	assert.Equal(t, "MODE=headless", rewriteEnvPath("MODE=headless", "/root/fs"))
	assert.Equal(t, "NOVALUE", rewriteEnvPath("NOVALUE", "/root/fs"))
}

func TestDestroy(t *testing.T) {
	setup := setupTestRunner(t)
	defer setup.cleanup()

	setup.pushImage(t, "image-digest-aaaa", defaultConfig())

	instance, err := setup.runner.Create(context.Background(), "test", "scraper", "latest")
	require.NoError(t, err)

	require.DirExists(t, instance.RootFS)
	require.NoError(t, instance.Destroy())
	assert.NoDirExists(t, instance.RootFS)
}
