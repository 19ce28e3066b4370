package github

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	gh "github.com/google/go-github/v72/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solfixes/solfixes/pkg/config"
)

func newTestClient(t *testing.T, mux *http.ServeMux) (*Client, string) {
	t.Helper()

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ghc := gh.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	ghc.BaseURL = base

	client := &Client{
		config: &config.GitHubConfig{},
		gh:     ghc,
		logger: zap.NewNop(),
	}
	return client, srv.URL
}

func TestSearchRepositoriesPaginates(t *testing.T) {
	mux := http.NewServeMux()
	client, baseURL := newTestClient(t, mux)

	mux.HandleFunc("/search/repositories", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `{"total_count":2,"incomplete_results":false,"items":[
				{"full_name":"b/two","stargazers_count":25,"updated_at":"2020-05-06T07:08:09Z"}]}`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/search/repositories?page=2>; rel="next"`, baseURL))
		fmt.Fprint(w, `{"total_count":2,"incomplete_results":false,"items":[
			{"full_name":"a/one","stargazers_count":12,"updated_at":"2020-01-02T03:04:05Z"}]}`)
	})

	repos, err := client.SearchRepositories(context.Background(), "smart contract stars:>9")
	require.NoError(t, err)
	require.Len(t, repos, 2)

	assert.Equal(t, "a/one", repos[0].FullName)
	assert.Equal(t, 12, repos[0].Stars)
	assert.Equal(t, time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC), repos[0].LastActivity)
	assert.Equal(t, "b/two", repos[1].FullName)
}

func TestHasSolidityFile(t *testing.T) {
	mux := http.NewServeMux()
	client, _ := newTestClient(t, mux)

	mux.HandleFunc("/search/code", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.URL.Query().Get("q"), "repo:empty/repo") {
			fmt.Fprint(w, `{"total_count":0,"incomplete_results":false,"items":[]}`)
			return
		}
		fmt.Fprint(w, `{"total_count":3,"incomplete_results":false,"items":[]}`)
	})

	found, err := client.HasSolidityFile(context.Background(), "a/one")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = client.HasSolidityFile(context.Background(), "empty/repo")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSubscribers(t *testing.T) {
	mux := http.NewServeMux()
	client, _ := newTestClient(t, mux)

	mux.HandleFunc("/repos/a/one", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"full_name":"a/one","subscribers_count":42}`)
	})

	watchers, err := client.Subscribers(context.Background(), "a/one")
	require.NoError(t, err)
	assert.Equal(t, 42, watchers)
}

func TestIssuesSkipsPullRequests(t *testing.T) {
	mux := http.NewServeMux()
	client, _ := newTestClient(t, mux)

	mux.HandleFunc("/repos/a/one/issues", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "all", r.URL.Query().Get("state"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
			{"number":12,"title":"Reentrancy in withdraw","body":"details","comments":2},
			{"number":13,"title":"Fix reentrancy","pull_request":{"url":"https://example.com/pulls/13"}}]`)
	})

	issues, err := client.Issues(context.Background(), "a/one")
	require.NoError(t, err)
	require.Len(t, issues, 1)

	assert.Equal(t, 12, issues[0].Number)
	assert.Equal(t, "Reentrancy in withdraw", issues[0].Title)
	assert.Equal(t, "details", issues[0].Body)
	assert.Equal(t, 2, issues[0].Comments)
}

func TestIssueComments(t *testing.T) {
	mux := http.NewServeMux()
	client, _ := newTestClient(t, mux)

	mux.HandleFunc("/repos/a/one/issues/12/comments", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"body":"confirmed, see #40"},{"body":"fixed"}]`)
	})

	comments, err := client.IssueComments(context.Background(), "a/one", 12)
	require.NoError(t, err)
	assert.Equal(t, []string{"confirmed, see #40", "fixed"}, comments)
}

func TestPullRequestForCommit(t *testing.T) {
	mux := http.NewServeMux()
	client, _ := newTestClient(t, mux)

	mux.HandleFunc("/repos/a/one/commits/abc123/pulls", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"number":7},{"number":8,"merged_at":"2020-01-02T15:04:05Z"}]`)
	})
	mux.HandleFunc("/repos/a/one/commits/def456/pulls", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"number":9}]`)
	})

	number, merged, err := client.PullRequestForCommit(context.Background(), "a/one", "abc123")
	require.NoError(t, err)
	assert.True(t, merged)
	assert.Equal(t, 8, number)

	number, merged, err = client.PullRequestForCommit(context.Background(), "a/one", "def456")
	require.NoError(t, err)
	assert.False(t, merged)
	assert.Zero(t, number)
}
