package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequirements(t *testing.T) {
	t.Run("pins and bare names", func(t *testing.T) {
		reqs, err := ParseRequirements([]byte(`
# scraping stack
requests==2.31.0
beautifulsoup4 >= 4.12.0
lxml
selenium~=4.18  # pinned to the 4.x series
`))
		require.NoError(t, err)
		require.Len(t, reqs, 4)

		assert.Equal(t, Requirement{Name: "requests", Operator: "==", Version: "2.31.0", Raw: "requests==2.31.0"}, reqs[0])
		assert.Equal(t, "beautifulsoup4", reqs[1].Name)
		assert.Equal(t, ">=", reqs[1].Operator)
		assert.Equal(t, "4.12.0", reqs[1].Version)
		assert.Equal(t, Requirement{Name: "lxml", Raw: "lxml"}, reqs[2])
		assert.Equal(t, "~=", reqs[3].Operator)
	})

	t.Run("order preserved", func(t *testing.T) {
		reqs, err := ParseRequirements([]byte("b==1.0\na==2.0\nc==3.0\n"))
		require.NoError(t, err)
		names := make([]string, len(reqs))
		for i, r := range reqs {
			names[i] = r.Name
		}
		assert.Equal(t, []string{"b", "a", "c"}, names)
	})

	t.Run("canonical form", func(t *testing.T) {
		reqs, err := ParseRequirements([]byte("requests == 2.31.0\n"))
		require.NoError(t, err)
		assert.Equal(t, "requests==2.31.0", reqs[0].String())
	})

	t.Run("operator without version is an error", func(t *testing.T) {
		_, err := ParseRequirements([]byte("requests==\n"))
		assert.Error(t, err)
	})

	t.Run("malformed line is an error", func(t *testing.T) {
		_, err := ParseRequirements([]byte("requests=2.31.0\n"))
		assert.Error(t, err)
	})

	t.Run("empty manifest", func(t *testing.T) {
		reqs, err := ParseRequirements([]byte("# nothing pinned yet\n\n"))
		require.NoError(t, err)
		assert.Empty(t, reqs)
	})
}

func TestLoadRequirements(t *testing.T) {
	t.Run("reads file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "requirements.txt")
		require.NoError(t, os.WriteFile(path, []byte("requests==2.31.0\n"), 0644))

		reqs, err := LoadRequirements(path)
		require.NoError(t, err)
		assert.Len(t, reqs, 1)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadRequirements(filepath.Join(t.TempDir(), "requirements.txt"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}
