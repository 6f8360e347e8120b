package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mike-a-ellis/pdf-rag/internal/github"
)

// Source lists and fetches PDFs for bulk indexing.
type Source interface {
	List(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context, name string) (*Upload, error)
}

// Revisioner is implemented by sources that can report the version of the
// content they serve.
type Revisioner interface {
	Revision(ctx context.Context) (string, error)
}

// LocalSource serves the PDFs below a directory.
type LocalSource struct {
	Dir string
}

// List returns the paths of all .pdf files below Dir, relative to it.
func (s LocalSource) List(ctx context.Context) ([]string, error) {
	var names []string
	err := filepath.WalkDir(s.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".pdf") {
			return nil
		}
		rel, err := filepath.Rel(s.Dir, path)
		if err != nil {
			return err
		}
		names = append(names, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.Dir, err)
	}
	sort.Strings(names)
	return names, nil
}

// Fetch reads one file returned by List.
func (s LocalSource) Fetch(_ context.Context, name string) (*Upload, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, name))
	if err != nil {
		return nil, err
	}
	return &Upload{Filename: filepath.Base(name), Data: data}, nil
}

// GitHubSource serves the PDFs below a path of a GitHub repository.
type GitHubSource struct {
	Fetcher *github.Fetcher
}

// List implements Source.
func (s GitHubSource) List(ctx context.Context) ([]string, error) {
	return s.Fetcher.ListPDFs(ctx)
}

// Fetch implements Source.
func (s GitHubSource) Fetch(ctx context.Context, name string) (*Upload, error) {
	fetched, err := s.Fetcher.FetchPDF(ctx, name)
	if err != nil {
		return nil, err
	}
	return &Upload{Filename: fetched.Name, Data: fetched.Content}, nil
}

// Revision returns the latest commit touching the configured path.
func (s GitHubSource) Revision(ctx context.Context) (string, error) {
	return s.Fetcher.GetLatestCommitSHA(ctx)
}
