package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/sharmina-lina/livetweets-main/internal/events"
	"github.com/sharmina-lina/livetweets-main/internal/popularity"
	"github.com/sharmina-lina/livetweets-main/internal/stream"
	"github.com/sharmina-lina/livetweets-main/pkg/clients/firehose"
	"github.com/sharmina-lina/livetweets-main/pkg/logging"
	"github.com/sharmina-lina/livetweets-main/pkg/models"
)

type fakeRuleManager struct {
	added     []firehose.RuleDefinition
	addErr    error
	deleted   int
	deleteErr error
}

func (f *fakeRuleManager) AddRules(ctx context.Context, defs []firehose.RuleDefinition) error {
	f.added = append(f.added, defs...)
	return f.addErr
}

func (f *fakeRuleManager) DeleteAllActive(ctx context.Context) error {
	f.deleted++
	return f.deleteErr
}

func (f *fakeRuleManager) SyncFromRemote(ctx context.Context) ([]models.Rule, error) {
	return nil, nil
}

type fakeRanker struct {
	lists popularity.Lists
	err   error
}

func (f *fakeRanker) Top10(ctx context.Context) (popularity.Lists, error) {
	return f.lists, f.err
}

type fakeIngestor struct{}

func (fakeIngestor) Ingest(ctx context.Context, post *firehose.Post) error { return nil }

func (fakeIngestor) SaveIncludes(ctx context.Context, includes *firehose.Includes) {}

type fakeTracker struct{}

func (fakeTracker) Start(ctx context.Context, startTime time.Time) {}

func (fakeTracker) Stop() {}

func (fakeTracker) Tracking() bool { return false }

type dropPublisher struct{}

func (dropPublisher) Publish(events.Event) {}

type fakeHub struct {
	served int
}

func (f *fakeHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	f.served++
	w.WriteHeader(http.StatusSwitchingProtocols)
}

func newTestRouter(t *testing.T, rules *fakeRuleManager, ranker *fakeRanker) (*gin.Engine, *stream.Session) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	opener := stream.OpenerFunc(func(ctx context.Context, params firehose.StreamParams) (stream.EventStream, error) {
		return nil, &firehose.ProviderError{StatusCode: http.StatusServiceUnavailable, Title: "down"}
	})
	session := stream.NewSession(opener, rules, fakeIngestor{}, ranker, fakeTracker{}, dropPublisher{}, logging.NewLogger())

	router := gin.New()
	NewHandlers(session, rules, ranker, &fakeHub{}, logging.NewLogger()).Register(router)
	return router, session
}

func TestStartStreamTransitionsToConnecting(t *testing.T) {
	router, session := newTestRouter(t, &fakeRuleManager{}, &fakeRanker{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/stream/start", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, stream.StateConnecting, session.State())
}

func TestStartStreamTwiceConflicts(t *testing.T) {
	router, _ := newTestRouter(t, &fakeRuleManager{}, &fakeRanker{})

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/stream/start", nil))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/stream/start", nil))
	require.Equal(t, http.StatusConflict, second.Code)
	require.Contains(t, second.Body.String(), "Stream already initiated")
}

func TestOpenStreamMapsProviderErrorToBadGateway(t *testing.T) {
	router, _ := newTestRouter(t, &fakeRuleManager{}, &fakeRanker{})

	start := httptest.NewRecorder()
	router.ServeHTTP(start, httptest.NewRequest(http.MethodPost, "/stream/start", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/stream/open", nil))

	require.Equal(t, http.StatusBadGateway, w.Code)
	require.Contains(t, w.Body.String(), "503")
}

func TestStopStreamWithoutSessionConflicts(t *testing.T) {
	router, _ := newTestRouter(t, &fakeRuleManager{}, &fakeRanker{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/stream/stop", nil))

	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), "No active stream")
}

func TestStreamStateReportsPhase(t *testing.T) {
	router, _ := newTestRouter(t, &fakeRuleManager{}, &fakeRanker{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stream/state", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"state": "idle"}`, w.Body.String())
}

func TestAddRulesParsesProviderShapedBody(t *testing.T) {
	rules := &fakeRuleManager{}
	router, _ := newTestRouter(t, rules, &fakeRanker{})

	body := `{"rules": [{"value": "#golang lang:en", "tag": "go"}]}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/rules", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []firehose.RuleDefinition{{Pattern: "#golang lang:en", Tag: "go"}}, rules.added)
}

func TestAddRulesRejectsMalformedBody(t *testing.T) {
	rules := &fakeRuleManager{}
	router, _ := newTestRouter(t, rules, &fakeRanker{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/rules", strings.NewReader(`{"rules": "nope"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Empty(t, rules.added)
}

func TestDeleteRulesDelegatesToManager(t *testing.T) {
	rules := &fakeRuleManager{}
	router, _ := newTestRouter(t, rules, &fakeRanker{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/rules", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, rules.deleted)
}

func TestPopularityReturnsLists(t *testing.T) {
	ranker := &fakeRanker{
		lists: popularity.Lists{
			Hashtags: []models.HashtagCount{{Hashtag: "golang", Count: 42}},
			Mentions: []models.MentionCount{},
			Topics:   []models.TopicCount{},
		},
	}
	router, _ := newTestRouter(t, &fakeRuleManager{}, ranker)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/popularity", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var lists popularity.Lists
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lists))
	require.Equal(t, ranker.lists.Hashtags, lists.Hashtags)
}

func TestPopularityFailureIsServerError(t *testing.T) {
	router, _ := newTestRouter(t, &fakeRuleManager{}, &fakeRanker{err: errors.New("db down")})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/popularity", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
}
