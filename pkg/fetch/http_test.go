package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kilnbuild/kiln/pkg/builder/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(config.FetchConfig{
		BaseURL:    srv.URL + "/bases",
		PackageURL: srv.URL + "/packages",
		IndexURL:   srv.URL + "/simple",
		BrowserURL: srv.URL + "/browsers",
	}, zap.NewNop())
	return client, srv
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestFetchBase(t *testing.T) {
	var requested string
	client, _ := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = r.URL.Path
		w.Write([]byte("rootfs"))
	}))

	rc, err := client.FetchBase(context.Background(), "python", "3.11.9", "linux/amd64")
	require.NoError(t, err)
	assert.Equal(t, "rootfs", readAll(t, rc))
	assert.Equal(t, "/bases/python/3.11.9/linux-amd64.tar.gz", requested)
}

func TestFetchPackage(t *testing.T) {
	var requested string
	client, _ := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = r.URL.Path
		w.Write([]byte("deb"))
	}))

	rc, err := client.FetchPackage(context.Background(), "libnss3", "linux/amd64")
	require.NoError(t, err)
	assert.Equal(t, "deb", readAll(t, rc))
	assert.Equal(t, "/packages/linux-amd64/libnss3.tar.gz", requested)
}

func TestFetchDependency(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/simple/requests/versions", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("2.28.0\n2.31.0\n2.32.3\n"))
	})
	mux.HandleFunc("/simple/requests/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("wheel"))
	})

	t.Run("exact pin skips the index", func(t *testing.T) {
		var requests []string
		client, _ := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests = append(requests, r.URL.Path)
			mux.ServeHTTP(w, r)
		}))

		rc, version, err := client.FetchDependency(context.Background(), req("requests", "==", "2.31.0"))
		require.NoError(t, err)
		assert.Equal(t, "2.31.0", version)
		assert.Equal(t, "wheel", readAll(t, rc))
		assert.Equal(t, []string{"/simple/requests/requests-2.31.0.tar.gz"}, requests)
	})

	t.Run("range resolves against the index", func(t *testing.T) {
		var requests []string
		client, _ := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests = append(requests, r.URL.Path)
			mux.ServeHTTP(w, r)
		}))

		rc, version, err := client.FetchDependency(context.Background(), req("requests", ">=", "2.31.0"))
		require.NoError(t, err)
		assert.Equal(t, "2.32.3", version)
		readAll(t, rc)
		assert.Equal(t, []string{
			"/simple/requests/versions",
			"/simple/requests/requests-2.32.3.tar.gz",
		}, requests)
	})

	t.Run("unsatisfiable range", func(t *testing.T) {
		client, _ := setupTestClient(t, mux)

		_, _, err := client.FetchDependency(context.Background(), req("requests", ">", "9.0.0"))
		assert.Error(t, err)
	})
}

func TestFetchBrowser(t *testing.T) {
	var requested string
	client, _ := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = r.URL.Path
		w.Write([]byte("snapshot"))
	}))

	t.Run("maps platform to snapshot dir", func(t *testing.T) {
		rc, err := client.FetchBrowser(context.Background(), "chromium", "1181205", "linux/amd64")
		require.NoError(t, err)
		assert.Equal(t, "snapshot", readAll(t, rc))
		assert.Equal(t, "/browsers/Linux_x64/1181205/chromium.tar.gz", requested)
	})

	t.Run("unsupported platform fails before any request", func(t *testing.T) {
		requested = ""
		_, err := client.FetchBrowser(context.Background(), "chromium", "1181205", "windows/amd64")
		require.Error(t, err)
		assert.Empty(t, requested)
	})
}

func TestFetchErrors(t *testing.T) {
	t.Run("non-200 status", func(t *testing.T) {
		client, _ := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))

		_, err := client.FetchBase(context.Background(), "python", "3.11.9", "linux/amd64")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected status")
	})

	t.Run("cancelled context", func(t *testing.T) {
		client, _ := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := client.FetchBase(ctx, "python", "3.11.9", "linux/amd64")
		assert.Error(t, err)
	})
}
