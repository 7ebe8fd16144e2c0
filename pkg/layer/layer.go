// Package layer defines the immutable filesystem delta produced by one
// provisioning step and the content digests used to address it.
package layer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Layer describes one immutable filesystem delta.
type Layer struct {
	// Digest is the content digest of the layer tree.
	Digest string `json:"digest"`

	// StepID identifies the provisioning step that produced the layer.
	StepID string `json:"step_id"`

	// CacheKey is the key the layer was committed under. It covers the
	// step identity, the step inputs, and the cache keys of the layers
	// the step depends on.
	CacheKey string `json:"cache_key"`

	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// DigestBytes returns the hex SHA-256 digest of data.
func DigestBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestFile returns the hex SHA-256 digest of the file at path.
func DigestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DigestDir returns the hex SHA-256 digest of the tree rooted at root,
// together with the total size of regular file content.
//
// The digest covers each entry's slash-separated relative path, its file
// mode, and, for regular files, its content; for symlinks the link target
// stands in for content. Entries are visited in sorted path order, so the
// digest is stable across platforms and directory read order.
func DigestDir(root string) (string, int64, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	sort.Strings(paths)

	h := sha256.New()
	var size int64
	for _, path := range paths {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return "", 0, err
		}
		info, err := os.Lstat(path)
		if err != nil {
			return "", 0, err
		}

		fmt.Fprintf(h, "%s\x00%o\x00", filepath.ToSlash(rel), info.Mode())

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return "", 0, err
			}
			io.WriteString(h, target)
		case info.Mode().IsRegular():
			f, err := os.Open(path)
			if err != nil {
				return "", 0, err
			}
			n, err := io.Copy(h, f)
			f.Close()
			if err != nil {
				return "", 0, err
			}
			size += n
		}
		io.WriteString(h, "\n")
	}

	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// CopyTree copies the tree rooted at src into dst, overlaying any entries
// that already exist. Later layers applied over earlier ones win, which is
// the assembly rule for both image push and instance rootfs creation.
func CopyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return os.MkdirAll(dst, 0755)
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode()&os.ModeSymlink != 0:
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return err
			}
			os.Remove(target)
			return os.Symlink(linkTarget, target)
		default:
			return copyFile(path, target, info.Mode().Perm())
		}
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
