package firehose

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sharmina-lina/livetweets-main/pkg/logging"
)

func TestOpenStreamSendsFieldSelection(t *testing.T) {
	var query map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/2/tweets/search/stream", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		query = r.URL.Query()
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, BearerToken: "test-token", Logger: logging.NewLogger()})

	stream, err := client.OpenStream(context.Background(), DefaultStreamParams())
	require.NoError(t, err)
	defer stream.Close()

	require.Contains(t, query["tweet.fields"][0], "public_metrics")
	require.Contains(t, query["expansions"][0], "author_id")
	require.Contains(t, query["media.fields"][0], "preview_image_url")
}

func TestNextSkipsKeepAliveLines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "\r\n")
		_, _ = io.WriteString(w, "\r\n")
		_, _ = io.WriteString(w, `{"data": {"id": "p1", "text": "hello"}, "matching_rules": [{"id": "r1", "tag": "go"}]}`+"\n")
		_, _ = io.WriteString(w, "\r\n")
		_, _ = io.WriteString(w, `{"data": {"id": "p2", "text": "again"}}`+"\n")
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, BearerToken: "t", Logger: logging.NewLogger()})
	stream, err := client.OpenStream(context.Background(), StreamParams{})
	require.NoError(t, err)
	defer stream.Close()

	first, err := stream.Next()
	require.NoError(t, err)
	require.Equal(t, "p1", first.Data.ID)
	require.Equal(t, []MatchingRule{{ID: "r1", Tag: "go"}}, first.MatchingRules)

	second, err := stream.Next()
	require.NoError(t, err)
	require.Equal(t, "p2", second.Data.ID)

	_, err = stream.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestNextFailsOnMalformedEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "{not json}\n")
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, BearerToken: "t", Logger: logging.NewLogger()})
	stream, err := client.OpenStream(context.Background(), StreamParams{})
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Next()
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to decode stream event")
}

func TestOpenStreamRejectionBecomesProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"title": "Too Many Requests", "detail": "usage cap exceeded"}`)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, BearerToken: "t", Logger: logging.NewLogger()})

	_, err := client.OpenStream(context.Background(), StreamParams{})

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	require.Equal(t, http.StatusTooManyRequests, provErr.StatusCode)
	require.Equal(t, "Too Many Requests", provErr.Title)
}
