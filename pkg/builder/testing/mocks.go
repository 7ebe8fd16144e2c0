// Package testing provides in-memory resolver fakes for exercising the
// build pipeline without a network.
package testing

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/kilnbuild/kiln/pkg/builder"
	"github.com/kilnbuild/kiln/pkg/manifest"
)

// TarballFromFiles builds a gzip tarball with the given path -> content
// entries, the shape every resolver hands the build engine.
func TarballFromFiles(files map[string]string) []byte {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		content := files[path]
		hdr := &tar.Header{
			Name: path,
			Mode: 0644,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			panic(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			panic(err)
		}
	}
	if err := tw.Close(); err != nil {
		panic(err)
	}
	if err := gz.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// MockResolvers serves bases, packages, dependencies and browsers from
// in-memory tarballs and tracks what was fetched for assertions.
type MockResolvers struct {
	mutex sync.Mutex

	Bases        map[string][]byte // "runtime:version" -> tarball
	Packages     map[string][]byte // name -> tarball
	Dependencies map[string][]byte // "name-version" -> tarball
	Versions     map[string][]string
	Browsers     map[string][]byte // "engine-revision" -> tarball

	// Fetch call tracking for assertions
	Calls struct {
		Bases        []string
		Packages     []string
		Dependencies []string
		Browsers     []string
	}
}

// NewMockResolvers returns empty resolvers; populate the maps per test.
func NewMockResolvers() *MockResolvers {
	return &MockResolvers{
		Bases:        make(map[string][]byte),
		Packages:     make(map[string][]byte),
		Dependencies: make(map[string][]byte),
		Versions:     make(map[string][]string),
		Browsers:     make(map[string][]byte),
	}
}

// Resolvers bundles the mock into the builder's resolver set.
func (m *MockResolvers) Resolvers() builder.Resolvers {
	return builder.Resolvers{
		Base:         m,
		Packages:     m,
		Dependencies: m,
		Browser:      m,
	}
}

func (m *MockResolvers) FetchBase(_ context.Context, runtime, version, _ string) (io.ReadCloser, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	key := runtime + ":" + version
	m.Calls.Bases = append(m.Calls.Bases, key)
	data, ok := m.Bases[key]
	if !ok {
		return nil, fmt.Errorf("no such base %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MockResolvers) FetchPackage(_ context.Context, name, _ string) (io.ReadCloser, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.Calls.Packages = append(m.Calls.Packages, name)
	data, ok := m.Packages[name]
	if !ok {
		return nil, fmt.Errorf("no such package %s", name)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MockResolvers) FetchDependency(_ context.Context, req manifest.Requirement) (io.ReadCloser, string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.Calls.Dependencies = append(m.Calls.Dependencies, req.String())

	version := req.Version
	if req.Operator != "==" {
		versions, ok := m.Versions[req.Name]
		if !ok || len(versions) == 0 {
			return nil, "", fmt.Errorf("no versions for %s", req.Name)
		}
		version = versions[len(versions)-1]
	}

	data, ok := m.Dependencies[req.Name+"-"+version]
	if !ok {
		return nil, "", fmt.Errorf("no such dependency %s-%s", req.Name, version)
	}
	return io.NopCloser(bytes.NewReader(data)), version, nil
}

func (m *MockResolvers) FetchBrowser(_ context.Context, engine, revision, _ string) (io.ReadCloser, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	key := engine + "-" + revision
	m.Calls.Browsers = append(m.Calls.Browsers, key)
	data, ok := m.Browsers[key]
	if !ok {
		return nil, fmt.Errorf("no such browser %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
