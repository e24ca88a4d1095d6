package firehose

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sharmina-lina/livetweets-main/pkg/logging"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{
		BaseURL:     server.URL,
		BearerToken: "test-token",
		Logger:      logging.NewLogger(),
	})
}

func TestListRulesDecodesRuleSet(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/2/tweets/search/stream/rules", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"data": [
				{"id": "r1", "value": "#golang", "tag": "go"},
				{"id": "r2", "value": "@rob", "tag": "rob"}
			],
			"meta": {"sent": "2024-05-01T12:00:00Z"}
		}`))
	}))

	rules, err := client.ListRules(context.Background())

	require.NoError(t, err)
	require.Equal(t, []Rule{
		{ID: "r1", Pattern: "#golang", Tag: "go"},
		{ID: "r2", Pattern: "@rob", Tag: "rob"},
	}, rules)
}

func TestAddRulesSendsAddPayload(t *testing.T) {
	var received map[string][]RuleDefinition
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data": [{"id": "r1", "value": "#golang", "tag": "go"}]}`))
	}))

	created, err := client.AddRules(context.Background(), []RuleDefinition{
		{Pattern: "#golang", Tag: "go"},
	})

	require.NoError(t, err)
	require.Equal(t, []RuleDefinition{{Pattern: "#golang", Tag: "go"}}, received["add"])
	require.Len(t, created, 1)
	require.Equal(t, "r1", created[0].ID)
}

func TestDeleteRulesSendsIDBatch(t *testing.T) {
	var received struct {
		Delete struct {
			IDs []string `json:"ids"`
		} `json:"delete"`
	}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"meta": {"summary": {"deleted": 2}}}`))
	}))

	err := client.DeleteRules(context.Background(), []string{"r1", "r2"})

	require.NoError(t, err)
	require.Equal(t, []string{"r1", "r2"}, received.Delete.IDs)
}

func TestGetPostsRequestsEngagementFields(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/2/tweets", r.URL.Path)
		require.Equal(t, "p1,p2", r.URL.Query().Get("ids"))
		require.Equal(t, "public_metrics,referenced_tweets,created_at", r.URL.Query().Get("tweet.fields"))

		_, _ = w.Write([]byte(`{
			"data": [
				{"id": "p1", "text": "hello", "public_metrics": {"retweet_count": 3, "like_count": 7}}
			]
		}`))
	}))

	posts, err := client.GetPosts(context.Background(), []string{"p1", "p2"})

	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Equal(t, int64(3), posts[0].PublicMetrics.RetweetCount)
	require.Equal(t, int64(7), posts[0].PublicMetrics.LikeCount)
}

func TestGetPostsWithNoIDsSkipsTheCall(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("unexpected request")
	}))

	posts, err := client.GetPosts(context.Background(), nil)

	require.NoError(t, err)
	require.Nil(t, posts)
}

func TestNon2xxBecomesProviderError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"title": "Forbidden", "detail": "client not enrolled", "type": "about:blank"}`))
	}))

	_, err := client.ListRules(context.Background())

	require.Error(t, err)
	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	require.Equal(t, http.StatusForbidden, provErr.StatusCode)
	require.Equal(t, "Forbidden", provErr.Title)
	require.Equal(t, "client not enrolled", provErr.Detail)
}

func TestProviderErrorKeepsUnstructuredBody(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`Unauthorized`))
	}))

	_, err := client.ListRules(context.Background())

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	require.Equal(t, http.StatusUnauthorized, provErr.StatusCode)
	require.Equal(t, "Unauthorized", provErr.Detail)
}

func TestClientRetriesServerErrors(t *testing.T) {
	attempts := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data": []}`))
	}))

	rules, err := client.ListRules(context.Background())

	require.NoError(t, err)
	require.Empty(t, rules)
	require.Equal(t, 3, attempts)
}
