// Package tracker polls engagement counts for tracked posts on a fixed
// cadence and broadcasts per-window rankings of the fastest movers.
package tracker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sharmina-lina/livetweets-main/internal/events"
	"github.com/sharmina-lina/livetweets-main/pkg/clients/firehose"
	"github.com/sharmina-lina/livetweets-main/pkg/logging"
	"github.com/sharmina-lina/livetweets-main/pkg/models"
)

const (
	defaultFetchLimit = 100
	defaultTopN       = 5
)

// trackedStore is the slice of the relational store the tracker needs
type trackedStore interface {
	TrackedPostIDs(ctx context.Context, since time.Time, limit int) ([]string, error)
}

// sampleStore is the slice of the sample store the tracker needs
type sampleStore interface {
	AppendSamples(ctx context.Context, samples []models.EngagementSample) error
	SamplesByPost(ctx context.Context, ids []string) (map[string][]models.EngagementSample, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) error
}

// engagementAPI is the slice of the remote API the tracker needs
type engagementAPI interface {
	GetPosts(ctx context.Context, ids []string) ([]firehose.Post, error)
}

// Metrics holds the tracker's Prometheus instruments
type Metrics struct {
	Samples  prometheus.Counter
	Duration *prometheus.HistogramVec
}

// Tracker samples engagement counts for every tracked post once per
// cadence tick and publishes one metrics event per tick. At most one
// tracker loop runs at a time.
type Tracker struct {
	store     trackedStore
	samples   sampleStore
	provider  engagementAPI
	publisher events.Publisher
	logger    logging.Logger
	metrics   *Metrics

	cadence    time.Duration
	retention  time.Duration
	fetchLimit int
	topN       int

	tracking  atomic.Bool
	startTime time.Time

	// injectable for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Config holds tracker construction parameters
type Config struct {
	Cadence   time.Duration
	Retention time.Duration
	Metrics   *Metrics
}

// New creates a tracker. The deepest ranking window needs samples up
// to six ticks old, so a retention shorter than seven ticks would evict
// samples that window still reads; such a retention is raised to the
// minimum.
func New(store trackedStore, samples sampleStore, provider engagementAPI, publisher events.Publisher, logger logging.Logger, cfg Config) *Tracker {
	retention := cfg.Retention
	minRetention := time.Duration(windowTicks[len(windowTicks)-1]+1) * cfg.Cadence
	if retention < minRetention {
		logger.WithFields(logging.Fields{
			"retention":     retention.String(),
			"min_retention": minRetention.String(),
		}).Warn("Sample retention shorter than the deepest ranking window, raising it")
		retention = minRetention
	}
	return &Tracker{
		store:      store,
		samples:    samples,
		provider:   provider,
		publisher:  publisher,
		logger:     logger,
		metrics:    cfg.Metrics,
		cadence:    cfg.Cadence,
		retention:  retention,
		fetchLimit: defaultFetchLimit,
		topN:       defaultTopN,
		now:        time.Now,
		sleep:      sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Tracking reports whether the polling loop is running
func (t *Tracker) Tracking() bool {
	return t.tracking.Load()
}

// Start launches the polling loop in its own goroutine. Posts created
// before startTime are ignored. Starting an already running tracker is
// a no-op.
func (t *Tracker) Start(ctx context.Context, startTime time.Time) {
	if !t.tracking.CompareAndSwap(false, true) {
		return
	}
	t.startTime = startTime
	t.logger.WithFields(logging.Fields{
		"cadence":    t.cadence.String(),
		"start_time": startTime,
	}).Info("Engagement tracking started")
	go t.run(ctx)
}

// Stop signals the loop to exit at the next tick boundary. An in-flight
// poll is allowed to finish.
func (t *Tracker) Stop() {
	if t.tracking.CompareAndSwap(true, false) {
		t.logger.Info("Engagement tracking stopped")
	}
}

// run executes one poll per cadence tick. The poll and the tick sleep
// run concurrently so a slow poll does not stretch the cadence; the
// loop waits for both before checking whether it should keep going.
func (t *Tracker) run(ctx context.Context) {
	for t.tracking.Load() {
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.update(ctx)
		}()

		if err := t.sleep(ctx, t.cadence); err != nil {
			wg.Wait()
			t.tracking.Store(false)
			return
		}
		wg.Wait()

		if ctx.Err() != nil {
			t.tracking.Store(false)
			return
		}
	}
}

// update performs one poll: fetch current engagement for tracked posts,
// append the samples, evict stale ones, and broadcast the per-window
// rankings.
func (t *Tracker) update(ctx context.Context) {
	start := t.now()

	ids, err := t.store.TrackedPostIDs(ctx, t.startTime, t.fetchLimit)
	if err != nil {
		t.logger.WithError(err).Error("Failed to load tracked posts")
		return
	}
	if len(ids) == 0 {
		return
	}

	posts, err := t.provider.GetPosts(ctx, ids)
	if err != nil {
		t.logger.WithError(err).Error("Engagement poll failed")
		t.publisher.Publish(events.Status("Stream connection has errored or timed out"))
		return
	}

	sampledAt := t.now()
	samples := make([]models.EngagementSample, 0, len(posts))
	for _, post := range posts {
		if post.PublicMetrics == nil {
			continue
		}
		samples = append(samples, models.EngagementSample{
			PostID:       post.ID,
			Timestamp:    sampledAt,
			RetweetCount: post.PublicMetrics.RetweetCount,
			ReplyCount:   post.PublicMetrics.ReplyCount,
			LikeCount:    post.PublicMetrics.LikeCount,
			QuoteCount:   post.PublicMetrics.QuoteCount,
		})
	}

	if err := t.samples.AppendSamples(ctx, samples); err != nil {
		t.logger.WithError(err).Error("Failed to append engagement samples")
		return
	}
	if t.metrics != nil && t.metrics.Samples != nil {
		t.metrics.Samples.Add(float64(len(samples)))
	}

	if err := t.samples.DeleteOlderThan(ctx, sampledAt.Add(-t.retention)); err != nil {
		t.logger.WithError(err).Warn("Failed to evict stale samples")
	}

	series, err := t.samples.SamplesByPost(ctx, ids)
	if err != nil {
		t.logger.WithError(err).Error("Failed to load sample series")
		return
	}

	windows := windowsForCadence(int(t.cadence / time.Second))
	ranked := rankDeltas(ids, series, windows, t.topN)
	t.publisher.Publish(events.Metrics(ranked))

	if t.metrics != nil && t.metrics.Duration != nil {
		t.metrics.Duration.WithLabelValues("poll").Observe(t.now().Sub(start).Seconds())
	}
}
