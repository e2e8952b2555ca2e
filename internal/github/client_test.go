package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestClient(t *testing.T) (*http.ServeMux, string, *Client) {
	t.Helper()

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := NewClient(context.Background(), "test-token", WithBaseURL(server.URL))
	require.NoError(t, err)
	// Lift the proactive pacing so tests do not sleep between requests.
	client.rateLimiter.bucket.SetLimit(rate.Inf)
	return mux, server.URL, client
}

func TestNewClientInvalidBaseURL(t *testing.T) {
	t.Parallel()

	_, err := NewClient(context.Background(), "test-token", WithBaseURL("://not-a-url"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid base URL")
}

func TestListRepositoriesOrg(t *testing.T) {
	t.Parallel()

	mux, baseURL, client := newTestClient(t)

	var gotAuth string
	mux.HandleFunc("/orgs/acme/repos", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"id":2,"name":"beta","full_name":"acme/beta"}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/orgs/acme/repos?page=2>; rel="next"`, baseURL))
		fmt.Fprint(w, `[{"id":1,"name":"alpha","full_name":"acme/alpha"}]`)
	})

	repos, err := client.ListRepositories(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, "alpha", repos[0].GetName())
	assert.Equal(t, "beta", repos[1].GetName())
	assert.Equal(t, "Bearer test-token", gotAuth)
}

func TestListRepositoriesUserFallback(t *testing.T) {
	t.Parallel()

	mux, _, client := newTestClient(t)

	mux.HandleFunc("/orgs/jdoe/repos", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})
	mux.HandleFunc("/users/jdoe/repos", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `[{"id":7,"name":"dotfiles","full_name":"jdoe/dotfiles"}]`)
	})

	repos, err := client.ListRepositories(context.Background(), "jdoe")
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "dotfiles", repos[0].GetName())
}

func TestListRepositoriesServerError(t *testing.T) {
	t.Parallel()

	mux, _, client := newTestClient(t)

	mux.HandleFunc("/orgs/acme/repos", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"message":"server error"}`)
	})

	_, err := client.ListRepositories(context.Background(), "acme")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.False(t, IsNotFound(err))
}

func TestListIssuesSkipsPullRequests(t *testing.T) {
	t.Parallel()

	mux, _, client := newTestClient(t)

	mux.HandleFunc("/repos/acme/alpha/issues", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `[
			{"id":1,"number":10,"title":"real issue"},
			{"id":2,"number":11,"title":"a PR","pull_request":{"url":"https://api.github.com/repos/acme/alpha/pulls/11"}},
			{"id":3,"number":12,"title":"another issue"}
		]`)
	})

	issues, err := client.ListIssues(context.Background(), "acme", "alpha")
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, 10, issues[0].GetNumber())
	assert.Equal(t, 12, issues[1].GetNumber())
}

func TestListIssueEvents(t *testing.T) {
	t.Parallel()

	mux, _, client := newTestClient(t)

	mux.HandleFunc("/repos/acme/alpha/issues/10/events", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `[{"id":100,"event":"labeled"},{"id":101,"event":"closed"}]`)
	})

	events, err := client.ListIssueEvents(context.Background(), "acme", "alpha", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "labeled", events[0].GetEvent())
	assert.Equal(t, "closed", events[1].GetEvent())
}

func TestGetReadme(t *testing.T) {
	t.Parallel()

	mux, _, client := newTestClient(t)

	encoded := base64.StdEncoding.EncodeToString([]byte("# Alpha\n\nA test repository.\n"))
	mux.HandleFunc("/repos/acme/alpha/readme", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"type":"file","name":"README.md","path":"README.md","encoding":"base64","content":%q}`, encoded)
	})

	content, err := client.GetReadme(context.Background(), "acme", "alpha")
	require.NoError(t, err)
	assert.Equal(t, "# Alpha\n\nA test repository.\n", content)
}

func TestGetReadmeNotFound(t *testing.T) {
	t.Parallel()

	mux, _, client := newTestClient(t)

	mux.HandleFunc("/repos/acme/empty/readme", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})

	_, err := client.GetReadme(context.Background(), "acme", "empty")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestRateLimitErrorTranslation(t *testing.T) {
	t.Parallel()

	mux, _, client := newTestClient(t)

	resetAt := time.Now().Add(time.Hour)
	mux.HandleFunc("/orgs/acme/repos", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "60")
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message":"API rate limit exceeded"}`)
	})

	_, err := client.ListRepositories(context.Background(), "acme")
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))

	var rateLimitErr *RateLimitError
	require.ErrorAs(t, err, &rateLimitErr)
	assert.Equal(t, 60, rateLimitErr.Limit)
	assert.Equal(t, 0, rateLimitErr.Remaining)
	assert.Greater(t, rateLimitErr.RetryAfter, 50*time.Minute)
}

func TestWrapErrorPassthrough(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := wrapError(cause, "list repositories for organization acme")
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "list repositories for organization acme")
}
