// Package fetch downloads build inputs: base runtime archives, OS
// packages, dependency archives and browser snapshots. Downloads are
// synchronous, timeout-bounded and never retried; a failed download fails
// the step that needed it.
package fetch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kilnbuild/kiln/pkg/browser"
	"github.com/kilnbuild/kiln/pkg/builder/config"
	"github.com/kilnbuild/kiln/pkg/manifest"
	"go.uber.org/zap"
)

// Client downloads archives from the configured mirrors. It implements
// the builder's resolver interfaces.
type Client struct {
	cfg    config.FetchConfig
	http   *http.Client
	logger *zap.Logger
}

// NewClient builds a Client from fetch configuration.
func NewClient(cfg config.FetchConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// FetchBase downloads the rootfs archive for a pinned base runtime.
func (c *Client) FetchBase(ctx context.Context, runtime, version, platform string) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s/%s/%s/%s.tar.gz", c.cfg.BaseURL, runtime, version, platformSegment(platform))
	return c.get(ctx, url)
}

// FetchPackage downloads one OS package archive.
func (c *Client) FetchPackage(ctx context.Context, name, platform string) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s/%s/%s.tar.gz", c.cfg.PackageURL, platformSegment(platform), name)
	return c.get(ctx, url)
}

// FetchDependency resolves a requirement against the index and downloads
// the matching archive. The index publishes the available versions of a
// package as a newline-separated list under <index>/<name>/versions.
func (c *Client) FetchDependency(ctx context.Context, req manifest.Requirement) (io.ReadCloser, string, error) {
	version := req.Version
	if req.Operator != "==" {
		available, err := c.availableVersions(ctx, req.Name)
		if err != nil {
			return nil, "", err
		}
		version, err = PickVersion(available, req)
		if err != nil {
			return nil, "", err
		}
	}

	url := fmt.Sprintf("%s/%s/%s-%s.tar.gz", c.cfg.IndexURL, req.Name, req.Name, version)
	rc, err := c.get(ctx, url)
	if err != nil {
		return nil, "", err
	}
	return rc, version, nil
}

// FetchBrowser downloads a pinned browser snapshot.
func (c *Client) FetchBrowser(ctx context.Context, engine, revision, platform string) (io.ReadCloser, error) {
	dir, err := browser.SnapshotDir(platform)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/%s/%s/%s.tar.gz", c.cfg.BrowserURL, dir, revision, engine)
	return c.get(ctx, url)
}

func (c *Client) availableVersions(ctx context.Context, name string) ([]string, error) {
	rc, err := c.get(ctx, fmt.Sprintf("%s/%s/versions", c.cfg.IndexURL, name))
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var versions []string
	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			versions = append(versions, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read version list for %s: %w", name, err)
	}
	return versions, nil
}

func (c *Client) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	c.logger.Debug("fetching", zap.String("url", url))
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}
	return resp.Body, nil
}

func platformSegment(platform string) string {
	return strings.ReplaceAll(platform, "/", "-")
}
