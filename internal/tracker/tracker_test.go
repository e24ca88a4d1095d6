package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sharmina-lina/livetweets-main/internal/events"
	"github.com/sharmina-lina/livetweets-main/pkg/clients/firehose"
	"github.com/sharmina-lina/livetweets-main/pkg/logging"
	"github.com/sharmina-lina/livetweets-main/pkg/models"
)

type fakeTrackedStore struct {
	mu    sync.Mutex
	ids   []string
	err   error
	calls int
}

func (f *fakeTrackedStore) TrackedPostIDs(ctx context.Context, since time.Time, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.ids, f.err
}

type fakeSampleStore struct {
	appended []models.EngagementSample
	cutoff   time.Time
	series   map[string][]models.EngagementSample
}

func (f *fakeSampleStore) AppendSamples(ctx context.Context, samples []models.EngagementSample) error {
	f.appended = append(f.appended, samples...)
	return nil
}

func (f *fakeSampleStore) SamplesByPost(ctx context.Context, ids []string) (map[string][]models.EngagementSample, error) {
	return f.series, nil
}

func (f *fakeSampleStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	f.cutoff = cutoff
	return nil
}

type fakeEngagementAPI struct {
	posts []firehose.Post
	err   error
}

func (f *fakeEngagementAPI) GetPosts(ctx context.Context, ids []string) ([]firehose.Post, error) {
	return f.posts, f.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Publish(event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingPublisher) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func newTestTracker(store *fakeTrackedStore, samples *fakeSampleStore, api *fakeEngagementAPI, pub *recordingPublisher) *Tracker {
	tr := New(store, samples, api, pub, logging.NewLogger(), Config{
		Cadence:   30 * time.Second,
		Retention: 4 * time.Minute,
	})
	tr.now = func() time.Time {
		return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	}
	return tr
}

func TestNewRaisesRetentionBelowDeepestWindow(t *testing.T) {
	store := &fakeTrackedStore{}
	samples := &fakeSampleStore{}
	api := &fakeEngagementAPI{}
	pub := &recordingPublisher{}

	tr := New(store, samples, api, pub, logging.NewLogger(), Config{
		Cadence:   30 * time.Second,
		Retention: time.Minute,
	})

	// six-tick window at 30s cadence reads samples up to 3m old
	require.Equal(t, 210*time.Second, tr.retention)
}

func TestNewKeepsSufficientRetention(t *testing.T) {
	store := &fakeTrackedStore{}
	samples := &fakeSampleStore{}
	api := &fakeEngagementAPI{}
	pub := &recordingPublisher{}

	tr := New(store, samples, api, pub, logging.NewLogger(), Config{
		Cadence:   30 * time.Second,
		Retention: 4 * time.Minute,
	})

	require.Equal(t, 4*time.Minute, tr.retention)
}

func TestUpdateAppendsSamplesAndPublishesRankings(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeTrackedStore{ids: []string{"p1"}}
	samples := &fakeSampleStore{
		series: map[string][]models.EngagementSample{
			"p1": {
				{PostID: "p1", Timestamp: now, LikeCount: 30},
				{PostID: "p1", Timestamp: now.Add(-30 * time.Second), LikeCount: 10},
			},
		},
	}
	api := &fakeEngagementAPI{
		posts: []firehose.Post{
			{ID: "p1", PublicMetrics: &firehose.PublicMetrics{LikeCount: 30, ReplyCount: 2}},
		},
	}
	pub := &recordingPublisher{}
	tr := newTestTracker(store, samples, api, pub)

	tr.update(context.Background())

	require.Equal(t, []models.EngagementSample{
		{PostID: "p1", Timestamp: now, LikeCount: 30, ReplyCount: 2},
	}, samples.appended)
	require.Equal(t, now.Add(-4*time.Minute), samples.cutoff)

	published := pub.all()
	require.Len(t, published, 1)
	require.Equal(t, events.TypeMetrics, published[0].Type)
	require.Equal(t, []models.RankedDelta{{ID: "p1", Count: 20}}, published[0].Metrics.RankedDeltas["30"])
}

func TestUpdateSkipsPostsWithoutMetrics(t *testing.T) {
	store := &fakeTrackedStore{ids: []string{"p1", "p2"}}
	samples := &fakeSampleStore{series: map[string][]models.EngagementSample{}}
	api := &fakeEngagementAPI{
		posts: []firehose.Post{
			{ID: "p1"},
			{ID: "p2", PublicMetrics: &firehose.PublicMetrics{RetweetCount: 1}},
		},
	}
	pub := &recordingPublisher{}
	tr := newTestTracker(store, samples, api, pub)

	tr.update(context.Background())

	require.Len(t, samples.appended, 1)
	require.Equal(t, "p2", samples.appended[0].PostID)
}

func TestUpdateBroadcastsOnPollFailure(t *testing.T) {
	store := &fakeTrackedStore{ids: []string{"p1"}}
	samples := &fakeSampleStore{}
	api := &fakeEngagementAPI{err: errors.New("connection reset")}
	pub := &recordingPublisher{}
	tr := newTestTracker(store, samples, api, pub)

	tr.update(context.Background())

	published := pub.all()
	require.Len(t, published, 1)
	require.Equal(t, events.TypeStatus, published[0].Type)
	require.Equal(t, "Stream connection has errored or timed out", published[0].Status.Message)
	require.Empty(t, samples.appended)
}

func TestRunStopsAtTickBoundary(t *testing.T) {
	store := &fakeTrackedStore{}
	samples := &fakeSampleStore{}
	api := &fakeEngagementAPI{}
	pub := &recordingPublisher{}
	tr := newTestTracker(store, samples, api, pub)

	var ticks int
	tr.sleep = func(ctx context.Context, d time.Duration) error {
		ticks++
		if ticks == 2 {
			tr.Stop()
		}
		return nil
	}

	tr.tracking.Store(true)
	tr.run(context.Background())

	require.Equal(t, 2, ticks)
	require.Equal(t, 2, store.calls)
	require.False(t, tr.Tracking())
}

func TestRunExitsOnCancelledSleep(t *testing.T) {
	store := &fakeTrackedStore{}
	samples := &fakeSampleStore{}
	api := &fakeEngagementAPI{}
	pub := &recordingPublisher{}
	tr := newTestTracker(store, samples, api, pub)

	tr.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	tr.tracking.Store(true)
	tr.run(context.Background())

	// the in-flight poll finished before the loop exited
	require.Equal(t, 1, store.calls)
	require.False(t, tr.Tracking())
}

func TestStartIsIdempotent(t *testing.T) {
	store := &fakeTrackedStore{}
	samples := &fakeSampleStore{}
	api := &fakeEngagementAPI{}
	pub := &recordingPublisher{}
	tr := newTestTracker(store, samples, api, pub)

	blocked := make(chan struct{})
	tr.sleep = func(ctx context.Context, d time.Duration) error {
		<-blocked
		return context.Canceled
	}

	start := time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)
	tr.Start(context.Background(), start)
	tr.Start(context.Background(), start.Add(time.Hour))

	require.True(t, tr.Tracking())
	require.Equal(t, start, tr.startTime)
	close(blocked)
}
