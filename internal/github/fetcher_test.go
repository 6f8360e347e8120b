package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v81/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestFetcher points a fetcher for owner/repo at a fake API server.
func newTestFetcher(t *testing.T, mux *http.ServeMux) *Fetcher {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	gh := github.NewClient(nil)
	base, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	gh.BaseURL = base

	return NewFetcher(&Client{Client: gh}, "owner", "repo", "papers")
}

func TestFetcher_ListPDFs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/owner/repo/contents/papers", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"type":"file","name":"intro.pdf","path":"papers/intro.pdf"},
			{"type":"file","name":"README.md","path":"papers/README.md"},
			{"type":"dir","name":"biology","path":"papers/biology"}
		]`)
	})
	mux.HandleFunc("/repos/owner/repo/contents/papers/biology", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"type":"file","name":"Cells.PDF","path":"papers/biology/Cells.PDF"}]`)
	})

	pdfs, err := newTestFetcher(t, mux).ListPDFs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"intro.pdf", "biology/Cells.PDF"}, pdfs)
}

func TestFetcher_FetchPDF(t *testing.T) {
	body := []byte("%PDF-1.4 fake")
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/owner/repo/contents/papers/intro.pdf", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"type":"file","name":"intro.pdf","path":"papers/intro.pdf","sha":"abc123","encoding":"base64","content":%q}`,
			base64.StdEncoding.EncodeToString(body))
	})

	fetched, err := newTestFetcher(t, mux).FetchPDF(context.Background(), "intro.pdf")
	require.NoError(t, err)
	assert.Equal(t, body, fetched.Content)
	assert.Equal(t, "intro.pdf", fetched.Name)
	assert.Equal(t, "abc123", fetched.SHA)
}

func TestFetcher_GetLatestCommitSHA(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/owner/repo/commits", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "papers", r.URL.Query().Get("path"))
		fmt.Fprint(w, `[{"sha":"deadbeef"}]`)
	})

	sha, err := newTestFetcher(t, mux).GetLatestCommitSHA(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", sha)
}

func TestFetcher_ListError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/owner/repo/contents/papers", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	})

	_, err := newTestFetcher(t, mux).ListPDFs(context.Background())
	assert.Error(t, err)
}
