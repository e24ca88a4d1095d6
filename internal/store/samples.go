package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sharmina-lina/livetweets-main/pkg/database"
	"github.com/sharmina-lina/livetweets-main/pkg/models"
)

// SampleStore holds the append-only engagement sample series in
// ClickHouse, ordered by (post_id, timestamp desc) for windowing.
type SampleStore struct {
	conn database.ClickHouseNativeConn
}

// NewSampleStore creates a sample store over the given connection
func NewSampleStore(conn database.ClickHouseNativeConn) *SampleStore {
	return &SampleStore{conn: conn}
}

// AppendSamples inserts one batch of engagement samples
func (s *SampleStore) AppendSamples(ctx context.Context, samples []models.EngagementSample) error {
	if len(samples) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO engagement_samples
		(post_id, timestamp, retweet_count, reply_count, like_count, quote_count)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare sample batch: %w", err)
	}

	for _, sample := range samples {
		if err := batch.Append(
			sample.PostID,
			sample.Timestamp,
			uint64(sample.RetweetCount),
			uint64(sample.ReplyCount),
			uint64(sample.LikeCount),
			uint64(sample.QuoteCount),
		); err != nil {
			return fmt.Errorf("failed to append sample for %s: %w", sample.PostID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send sample batch: %w", err)
	}

	return nil
}

// SamplesByPost returns the samples of the given posts keyed by post id,
// newest first within each post.
func (s *SampleStore) SamplesByPost(ctx context.Context, ids []string) (map[string][]models.EngagementSample, error) {
	if len(ids) == 0 {
		return map[string][]models.EngagementSample{}, nil
	}

	rows, err := s.conn.Query(ctx, `
		SELECT post_id, timestamp, retweet_count, reply_count, like_count, quote_count
		FROM engagement_samples
		WHERE post_id IN ?
		ORDER BY post_id, timestamp DESC
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	samples := make(map[string][]models.EngagementSample)
	for rows.Next() {
		var (
			sample                           models.EngagementSample
			retweets, replies, likes, quotes uint64
		)
		if err := rows.Scan(&sample.PostID, &sample.Timestamp, &retweets, &replies, &likes, &quotes); err != nil {
			return nil, err
		}
		sample.RetweetCount = int64(retweets)
		sample.ReplyCount = int64(replies)
		sample.LikeCount = int64(likes)
		sample.QuoteCount = int64(quotes)
		samples[sample.PostID] = append(samples[sample.PostID], sample)
	}

	return samples, rows.Err()
}

// DeleteOlderThan evicts samples older than the cutoff to bound storage
// growth. The cutoff must stay at or beyond the deepest ranking window.
func (s *SampleStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	err := s.conn.Exec(ctx, `DELETE FROM engagement_samples WHERE timestamp <= ?`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to evict stale samples: %w", err)
	}
	return nil
}
