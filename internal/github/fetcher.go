package github

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/go-github/v81/github"

	"github.com/bull/robotics-tutor/internal/config"
)

// FetchedDoc represents a chapter source file fetched from GitHub
type FetchedDoc struct {
	Path       string // Relative path within the docs directory
	ModuleSlug string // First path segment
	Content    string // Full markdown content
	SHA        string // File's Git blob SHA
	URL        string // GitHub raw URL
}

// Fetcher handles fetching course content from the repository.
type Fetcher struct {
	client   *Client
	owner    string
	repo     string
	basePath string
	ref      string
}

// NewFetcher creates a fetcher for the repository in cfg.
func NewFetcher(client *Client, cfg config.GitHubConfig) *Fetcher {
	ref := cfg.Ref
	if ref == "" {
		ref = "main"
	}
	return &Fetcher{
		client:   client,
		owner:    cfg.Owner,
		repo:     cfg.Repo,
		basePath: strings.Trim(cfg.BasePath, "/"),
		ref:      ref,
	}
}

// IsChapterFile reports whether name is a markdown or MDX source.
// Docusaurus partials (leading underscore) are skipped.
func IsChapterFile(name string) bool {
	if strings.HasPrefix(path.Base(name), "_") {
		return false
	}
	ext := strings.ToLower(path.Ext(name))
	return ext == ".md" || ext == ".mdx"
}

// ModuleSlug returns the module a chapter belongs to: the first directory
// of its relative path, or "" for files at the docs root.
func ModuleSlug(relativePath string) string {
	dir, _, found := strings.Cut(strings.TrimPrefix(relativePath, "/"), "/")
	if !found {
		return ""
	}
	return dir
}

// ListDocs recursively lists all chapter files under the docs directory.
func (f *Fetcher) ListDocs(ctx context.Context) ([]string, error) {
	return f.listDocsRecursive(ctx, f.basePath, "")
}

func (f *Fetcher) listDocsRecursive(ctx context.Context, fullPath, relativePath string) ([]string, error) {
	var docs []string

	_, dirContents, _, err := f.client.Repositories.GetContents(
		ctx, f.owner, f.repo, fullPath,
		&github.RepositoryContentGetOptions{Ref: f.ref},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %s: %w", fullPath, err)
	}

	for _, item := range dirContents {
		name := item.GetName()
		if name == "" {
			continue
		}
		itemRelPath := path.Join(relativePath, name)

		switch item.GetType() {
		case "file":
			if IsChapterFile(name) {
				docs = append(docs, itemRelPath)
			}
		case "dir":
			subDocs, err := f.listDocsRecursive(ctx, path.Join(fullPath, name), itemRelPath)
			if err != nil {
				return nil, err
			}
			docs = append(docs, subDocs...)
		}
	}

	return docs, nil
}

// FetchDoc fetches the content of one chapter file.
func (f *Fetcher) FetchDoc(ctx context.Context, relativePath string) (*FetchedDoc, error) {
	fullPath := path.Join(f.basePath, relativePath)

	fileContent, _, _, err := f.client.Repositories.GetContents(
		ctx, f.owner, f.repo, fullPath,
		&github.RepositoryContentGetOptions{Ref: f.ref},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get content of %s: %w", fullPath, err)
	}
	if fileContent == nil {
		return nil, fmt.Errorf("no file content returned for %s", fullPath)
	}

	content, err := fileContent.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode content of %s: %w", fullPath, err)
	}

	return &FetchedDoc{
		Path:       relativePath,
		ModuleSlug: ModuleSlug(relativePath),
		Content:    content,
		SHA:        fileContent.GetSHA(),
		URL:        fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s/%s", f.owner, f.repo, f.ref, fullPath),
	}, nil
}

// GetLatestCommitSHA retrieves the SHA of the most recent commit affecting
// the docs directory on the configured ref.
func (f *Fetcher) GetLatestCommitSHA(ctx context.Context) (string, error) {
	commits, _, err := f.client.Repositories.ListCommits(ctx, f.owner, f.repo, &github.CommitsListOptions{
		SHA:         f.ref,
		Path:        f.basePath,
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		return "", fmt.Errorf("failed to get latest commit: %w", err)
	}
	if len(commits) == 0 {
		return "", fmt.Errorf("no commits found for path %s", f.basePath)
	}
	if commits[0].SHA == nil {
		return "", fmt.Errorf("commit SHA is nil")
	}
	return *commits[0].SHA, nil
}
