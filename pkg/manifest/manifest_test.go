package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYaml = `image:
  namespace: acme
  name: scraper
  base:
    runtime: python
    version: "3.11.9"
  workdir: /app
  packages:
    - libnss3
    - libgtk-3-0
  dependencies:
    manifest: requirements.txt
  browser:
    engine: chromium
    revision: "1181205"
  entrypoint:
    - python
    - app.py
`

const validToml = `[image]
namespace = "acme"
name = "scraper"
workdir = "/app"
packages = ["libnss3"]
entrypoint = ["python", "app.py"]

[image.base]
runtime = "python"
version = "3.11.9"

[image.browser]
engine = "chromium"
revision = "1181205"
`

func writeManifest(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		m, err := Load(writeManifest(t, "kiln.yaml", validYaml))
		require.NoError(t, err)
		assert.Equal(t, "acme", m.Image.Namespace)
		assert.Equal(t, "scraper", m.Image.Name)
		assert.Equal(t, "python", m.Image.Base.Runtime)
		assert.Equal(t, "3.11.9", m.Image.Base.Version)
		assert.Equal(t, "/app", m.Image.WorkDir)
		assert.Equal(t, []string{"libnss3", "libgtk-3-0"}, m.Image.Packages)
		assert.Equal(t, []string{"python", "app.py"}, m.Image.Entrypoint)
		assert.Equal(t, "1181205", m.Image.Browser.Revision)
	})

	t.Run("toml", func(t *testing.T) {
		m, err := Load(writeManifest(t, "kiln.toml", validToml))
		require.NoError(t, err)
		assert.Equal(t, "scraper", m.Image.Name)
		assert.Equal(t, "chromium", m.Image.Browser.Engine)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "kiln.yaml"))
		assert.ErrorIs(t, err, ErrManifestNotFound)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeManifest(t, "kiln.yaml", "image: [not: valid"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *BuildManifest {
		return &BuildManifest{Image: ImageSettings{
			Name:       "scraper",
			Base:       BaseSettings{Runtime: "python", Version: "3.11.9"},
			WorkDir:    "/app",
			Browser:    BrowserSettings{Revision: "1181205"},
			Entrypoint: []string{"python", "app.py"},
		}}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("floating base version rejected", func(t *testing.T) {
		m := valid()
		m.Image.Base.Version = "latest"
		err := m.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pinned")
	})

	t.Run("relative workdir rejected", func(t *testing.T) {
		m := valid()
		m.Image.WorkDir = "app"
		err := m.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "absolute")
	})

	t.Run("missing entrypoint rejected", func(t *testing.T) {
		m := valid()
		m.Image.Entrypoint = nil
		assert.Error(t, m.Validate())
	})

	t.Run("browser install without revision rejected", func(t *testing.T) {
		m := valid()
		m.Image.Browser.Revision = ""
		err := m.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "revision")
	})

	t.Run("browser disabled needs no revision", func(t *testing.T) {
		m := valid()
		off := false
		m.Image.Browser = BrowserSettings{Install: &off}
		assert.NoError(t, m.Validate())
	})
}

func TestDiscover(t *testing.T) {
	t.Run("finds kiln.yaml", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "kiln.yaml"), []byte(validYaml), 0644))

		m, path, err := Discover(dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "kiln.yaml"), path)
		assert.Equal(t, "scraper", m.Image.Name)
	})

	t.Run("prefers yaml over toml", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "kiln.yaml"), []byte(validYaml), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "kiln.toml"), []byte(validToml), 0644))

		_, path, err := Discover(dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "kiln.yaml"), path)
	})

	t.Run("no manifest", func(t *testing.T) {
		_, _, err := Discover(t.TempDir())
		assert.ErrorIs(t, err, ErrManifestNotFound)
	})
}

func TestDefaults(t *testing.T) {
	var s ImageSettings
	assert.Equal(t, "requirements.txt", s.DependencyManifest())
	assert.Equal(t, "chromium", s.BrowserEngine())

	s.Dependencies.Manifest = "deps.lock"
	s.Browser.Engine = "firefox"
	assert.Equal(t, "deps.lock", s.DependencyManifest())
	assert.Equal(t, "firefox", s.BrowserEngine())
}

func TestInstallEnabled(t *testing.T) {
	var b BrowserSettings
	assert.True(t, b.InstallEnabled(), "browser install defaults to on")

	off := false
	b.Install = &off
	assert.False(t, b.InstallEnabled())

	on := true
	b.Install = &on
	assert.True(t, b.InstallEnabled())
}
