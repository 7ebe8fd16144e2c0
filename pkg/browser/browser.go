// Package browser knows which pinned headless browser snapshots exist for
// which platforms and where the provisioned binary lands inside an image.
package browser

import (
	"fmt"
	"strings"

	domainerrors "github.com/kilnbuild/kiln/pkg/builder/errors"
)

// snapshotDirs maps os/arch platforms to the snapshot directory names the
// browser mirrors publish under.
var snapshotDirs = map[string]string{
	"linux/amd64":  "Linux_x64",
	"linux/arm64":  "Linux_arm64",
	"darwin/amd64": "Mac",
	"darwin/arm64": "Mac_Arm",
}

// binaryNames maps engine names to the executable inside a snapshot.
var binaryNames = map[string]string{
	"chromium": "chrome",
}

// SnapshotDir returns the mirror directory for a platform, or
// ErrBrowserPlatform for platforms no snapshot exists for.
func SnapshotDir(platform string) (string, error) {
	dir, ok := snapshotDirs[platform]
	if !ok {
		return "", domainerrors.ErrBrowserPlatform.WithDetails(map[string]interface{}{
			"platform": platform,
		})
	}
	return dir, nil
}

// Supported reports whether a snapshot exists for the platform.
func Supported(platform string) bool {
	_, ok := snapshotDirs[platform]
	return ok
}

// InstallDir is where a provisioned browser is unpacked inside an image.
func InstallDir(engine, revision string) string {
	return fmt.Sprintf("/opt/%s-%s", engine, revision)
}

// BinaryPath is the full in-image path of the provisioned browser binary.
func BinaryPath(engine, revision string) string {
	name, ok := binaryNames[engine]
	if !ok {
		name = engine
	}
	return InstallDir(engine, revision) + "/" + name
}

// EnvVar is the environment variable recorded into the image config so
// the entrypoint process can locate the provisioned binary.
func EnvVar(engine string) string {
	return strings.ToUpper(strings.ReplaceAll(engine, "-", "_")) + "_PATH"
}
