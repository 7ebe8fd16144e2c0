package fetch

import (
	"testing"

	"github.com/kilnbuild/kiln/pkg/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func req(name, operator, version string) manifest.Requirement {
	return manifest.Requirement{Name: name, Operator: operator, Version: version}
}

func TestPickVersion(t *testing.T) {
	available := []string{"2.28.0", "2.31.0", "2.32.3", "3.0.0"}

	t.Run("exact pin", func(t *testing.T) {
		version, err := PickVersion(available, req("requests", "==", "2.31.0"))
		require.NoError(t, err)
		assert.Equal(t, "2.31.0", version)
	})

	t.Run("bare requirement takes the highest", func(t *testing.T) {
		version, err := PickVersion(available, req("requests", "", ""))
		require.NoError(t, err)
		assert.Equal(t, "3.0.0", version)
	})

	t.Run("lower bound", func(t *testing.T) {
		version, err := PickVersion(available, req("requests", ">=", "2.31.0"))
		require.NoError(t, err)
		assert.Equal(t, "3.0.0", version)
	})

	t.Run("upper bound", func(t *testing.T) {
		version, err := PickVersion(available, req("requests", "<", "2.32.3"))
		require.NoError(t, err)
		assert.Equal(t, "2.31.0", version)
	})

	t.Run("exclusion", func(t *testing.T) {
		version, err := PickVersion([]string{"3.0.0"}, req("requests", "!=", "3.0.0"))
		assert.Error(t, err)
		assert.Empty(t, version)
	})

	t.Run("compatible release stays in series", func(t *testing.T) {
		version, err := PickVersion(available, req("requests", "~=", "2.31.0"))
		require.NoError(t, err)
		assert.Equal(t, "2.31.0", version, "3.0.0 and 2.32.x are outside the 2.31 series")
	})

	t.Run("no match", func(t *testing.T) {
		_, err := PickVersion(available, req("requests", ">", "3.0.0"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no version of requests")
	})

	t.Run("empty index", func(t *testing.T) {
		_, err := PickVersion(nil, req("requests", "", ""))
		assert.Error(t, err)
	})
}

func TestCompareVersions(t *testing.T) {
	assert.Equal(t, 0, compareVersions("2.31.0", "2.31.0"))
	assert.Equal(t, -1, compareVersions("2.31.0", "2.31.1"))
	assert.Equal(t, 1, compareVersions("2.31.10", "2.31.9"), "segments compare numerically, not lexically")
	assert.Equal(t, -1, compareVersions("2.31", "2.31.1"), "shorter version sorts first")
	assert.Equal(t, 1, compareVersions("10.0.0", "9.0.0"))
	assert.Equal(t, -1, compareVersions("1.0.0a", "1.0.0b"), "non-numeric segments compare lexically")
}
