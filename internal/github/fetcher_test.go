package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/robotics-tutor/internal/config"
)

type entry struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	SHA      string `json:"sha,omitempty"`
	Encoding string `json:"encoding,omitempty"`
	Content  string `json:"content,omitempty"`
}

func fakeGitHub(t *testing.T) *httptest.Server {
	t.Helper()
	dirs := map[string][]entry{
		"web/docs": {
			{Type: "file", Name: "intro.md", Path: "web/docs/intro.md"},
			{Type: "dir", Name: "module-1-ros2", Path: "web/docs/module-1-ros2"},
			{Type: "file", Name: "logo.png", Path: "web/docs/logo.png"},
		},
		"web/docs/module-1-ros2": {
			{Type: "file", Name: "topics.mdx", Path: "web/docs/module-1-ros2/topics.mdx"},
			{Type: "file", Name: "_partial.md", Path: "web/docs/module-1-ros2/_partial.md"},
		},
	}
	files := map[string]entry{
		"web/docs/module-1-ros2/topics.mdx": {
			Type: "file", Name: "topics.mdx", Path: "web/docs/module-1-ros2/topics.mdx", SHA: "blob123",
			Encoding: "base64", Content: base64.StdEncoding.EncodeToString([]byte("# Topics\n\nBody.\n")),
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/course/contents/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "main", r.URL.Query().Get("ref"))
		p := r.URL.Path[len("/repos/acme/course/contents/"):]
		w.Header().Set("Content-Type", "application/json")
		if d, ok := dirs[p]; ok {
			_ = json.NewEncoder(w).Encode(d)
			return
		}
		if f, ok := files[p]; ok {
			_ = json.NewEncoder(w).Encode(f)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	})
	mux.HandleFunc("/repos/acme/course/commits", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "web/docs", r.URL.Query().Get("path"))
		assert.Equal(t, "main", r.URL.Query().Get("sha"))
		_, _ = w.Write([]byte(`[{"sha":"c0ffee"}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestFetcher(t *testing.T) *Fetcher {
	t.Helper()
	srv := fakeGitHub(t)
	cfg := config.GitHubConfig{Owner: "acme", Repo: "course", BasePath: "/web/docs/"}
	client, err := NewClient(cfg)
	require.NoError(t, err)
	client, err = client.WithBaseURL(srv.URL)
	require.NoError(t, err)
	return NewFetcher(client, cfg)
}

func TestListDocs(t *testing.T) {
	docs, err := newTestFetcher(t).ListDocs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"intro.md", "module-1-ros2/topics.mdx"}, docs)
}

func TestFetchDoc(t *testing.T) {
	doc, err := newTestFetcher(t).FetchDoc(context.Background(), "module-1-ros2/topics.mdx")
	require.NoError(t, err)

	assert.Equal(t, "# Topics\n\nBody.\n", doc.Content)
	assert.Equal(t, "module-1-ros2", doc.ModuleSlug)
	assert.Equal(t, "blob123", doc.SHA)
	assert.Equal(t, "https://raw.githubusercontent.com/acme/course/main/web/docs/module-1-ros2/topics.mdx", doc.URL)

	_, err = newTestFetcher(t).FetchDoc(context.Background(), "missing.md")
	assert.Error(t, err)
}

func TestGetLatestCommitSHA(t *testing.T) {
	sha, err := newTestFetcher(t).GetLatestCommitSHA(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "c0ffee", sha)
}

func TestModuleSlug(t *testing.T) {
	assert.Equal(t, "module-1-ros2", ModuleSlug("module-1-ros2/topics.md"))
	assert.Equal(t, "module-2", ModuleSlug("module-2/sub/deep.mdx"))
	assert.Equal(t, "", ModuleSlug("intro.md"))
}

func TestIsChapterFile(t *testing.T) {
	assert.True(t, IsChapterFile("a.md"))
	assert.True(t, IsChapterFile("a.MDX"))
	assert.False(t, IsChapterFile("_category_.md"))
	assert.False(t, IsChapterFile("logo.png"))
}
