// Package store is the persistence layer: relational state in PostgreSQL,
// engagement samples in ClickHouse.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/sharmina-lina/livetweets-main/pkg/models"
)

// ErrNotFound is returned when a query matches no rows
var ErrNotFound = errors.New("record not found")

// Store provides access to the relational records: rules, posts, entity
// counters and tracked posts.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over the given connection
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// UpsertRule inserts or updates a rule by id
func (s *Store) UpsertRule(ctx context.Context, rule models.Rule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stream_rules (id, pattern, tag, active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET pattern = EXCLUDED.pattern, tag = EXCLUDED.tag, active = EXCLUDED.active
	`, rule.ID, rule.Pattern, rule.Tag, rule.Active)
	if err != nil {
		return fmt.Errorf("failed to upsert rule %s: %w", rule.ID, err)
	}
	return nil
}

// MarkAllRulesInactive flags every stored rule inactive. Used by the full
// resync: the remote rule set is authoritative.
func (s *Store) MarkAllRulesInactive(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `UPDATE stream_rules SET active = FALSE WHERE active = TRUE`)
	if err != nil {
		return fmt.Errorf("failed to mark rules inactive: %w", err)
	}
	return nil
}

// RuleIDsByTag returns the ids of all stored rules sharing the tag
func (s *Store) RuleIDsByTag(ctx context.Context, tag string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM stream_rules WHERE tag = $1`, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules by tag: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ActiveRules returns all currently active rules
func (s *Store) ActiveRules(ctx context.Context) ([]models.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, pattern, tag, active FROM stream_rules WHERE active = TRUE`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active rules: %w", err)
	}
	defer rows.Close()

	var rules []models.Rule
	for rows.Next() {
		var rule models.Rule
		if err := rows.Scan(&rule.ID, &rule.Pattern, &rule.Tag, &rule.Active); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// CreatePost inserts a post record. Duplicate ids are a hard error: post
// ids are globally unique and re-ingestion is not expected.
func (s *Store) CreatePost(ctx context.Context, post models.Post) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, text, author_id, conversation_id, created_at,
			in_reply_to_user_id, lang, possibly_sensitive, reply_settings, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, post.ID, post.Text, post.AuthorID, post.ConversationID, post.CreatedAt,
		post.InReplyToUserID, post.Lang, post.PossiblySensitive, post.ReplySettings, post.Source)
	if err != nil {
		return fmt.Errorf("failed to create post %s: %w", post.ID, err)
	}
	return nil
}

// CreateTrackedPost enrolls a post for engagement polling
func (s *Store) CreateTrackedPost(ctx context.Context, postID string, createdAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tracked_posts (post_id, created_at, sample_count)
		VALUES ($1, $2, 0)
	`, postID, createdAt)
	if err != nil {
		return fmt.Errorf("failed to create tracked post %s: %w", postID, err)
	}
	return nil
}

// TrackedPostIDs returns up to limit tracked post ids created at or after
// since, newest first.
func (s *Store) TrackedPostIDs(ctx context.Context, since time.Time, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT post_id FROM tracked_posts
		WHERE created_at >= $1
		ORDER BY created_at DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracked posts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IncrementHashtag atomically increments or creates the counter for a
// hashtag and returns its row id.
func (s *Store) IncrementHashtag(ctx context.Context, tag string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO hashtags (hashtag, count) VALUES ($1, 1)
		ON CONFLICT (hashtag) DO UPDATE SET count = hashtags.count + 1
		RETURNING id
	`, tag).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to increment hashtag %q: %w", tag, err)
	}
	return id, nil
}

// AssociateHashtag links a post to a hashtag, at most once
func (s *Store) AssociateHashtag(ctx context.Context, postID string, hashtagID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO post_hashtags (post_id, hashtag_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, postID, hashtagID)
	if err != nil {
		return fmt.Errorf("failed to associate hashtag: %w", err)
	}
	return nil
}

// IncrementMention atomically increments or creates the counter for a
// mentioned username and returns its row id.
func (s *Store) IncrementMention(ctx context.Context, username string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO mentions (mention, count) VALUES ($1, 1)
		ON CONFLICT (mention) DO UPDATE SET count = mentions.count + 1
		RETURNING id
	`, username).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to increment mention %q: %w", username, err)
	}
	return id, nil
}

// AssociateMention links a post to a mention, at most once
func (s *Store) AssociateMention(ctx context.Context, postID string, mentionID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO post_mentions (post_id, mention_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, postID, mentionID)
	if err != nil {
		return fmt.Errorf("failed to associate mention: %w", err)
	}
	return nil
}

// EnsureTopicDomain creates the topic domain if it does not exist yet
func (s *Store) EnsureTopicDomain(ctx context.Context, domainID, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO topic_domains (domain_id, name) VALUES ($1, $2)
		ON CONFLICT (domain_id) DO NOTHING
	`, domainID, name)
	if err != nil {
		return fmt.Errorf("failed to ensure topic domain %s: %w", domainID, err)
	}
	return nil
}

// IncrementTopicEntity atomically increments or creates the counter for a
// topic entity scoped to its domain.
func (s *Store) IncrementTopicEntity(ctx context.Context, entityID, name, domainID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO topic_entities (entity_id, name, domain_id, count) VALUES ($1, $2, $3, 1)
		ON CONFLICT (entity_id) DO UPDATE SET count = topic_entities.count + 1
	`, entityID, name, domainID)
	if err != nil {
		return fmt.Errorf("failed to increment topic entity %s: %w", entityID, err)
	}
	return nil
}

// AssociateTopic links a post to a topic entity, at most once
func (s *Store) AssociateTopic(ctx context.Context, postID, entityID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO post_topics (post_id, entity_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, postID, entityID)
	if err != nil {
		return fmt.Errorf("failed to associate topic: %w", err)
	}
	return nil
}

// TopHashtags returns all hashtag counters ordered by count descending
func (s *Store) TopHashtags(ctx context.Context) ([]models.HashtagCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT hashtag, count FROM hashtags ORDER BY count DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query hashtag counters: %w", err)
	}
	defer rows.Close()

	var counts []models.HashtagCount
	for rows.Next() {
		var c models.HashtagCount
		if err := rows.Scan(&c.Hashtag, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// TopMentions returns all mention counters ordered by count descending
func (s *Store) TopMentions(ctx context.Context) ([]models.MentionCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT mention, count FROM mentions ORDER BY count DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query mention counters: %w", err)
	}
	defer rows.Close()

	var counts []models.MentionCount
	for rows.Next() {
		var c models.MentionCount
		if err := rows.Scan(&c.Mention, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// TopTopics returns all topic-entity counters joined with their domain,
// ordered by count descending. Name is "{domainName}: {entityName}", ID
// "{domainId}.{entityId}".
func (s *Store) TopTopics(ctx context.Context) ([]models.TopicCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.name, e.name, d.domain_id, e.entity_id, e.count
		FROM topic_entities e
		JOIN topic_domains d ON d.domain_id = e.domain_id
		ORDER BY e.count DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query topic counters: %w", err)
	}
	defer rows.Close()

	var counts []models.TopicCount
	for rows.Next() {
		var domainName, entityName, domainID, entityID string
		var count int64
		if err := rows.Scan(&domainName, &entityName, &domainID, &entityID, &count); err != nil {
			return nil, err
		}
		counts = append(counts, models.TopicCount{
			Name:  fmt.Sprintf("%s: %s", domainName, entityName),
			ID:    fmt.Sprintf("%s.%s", domainID, entityID),
			Count: count,
		})
	}
	return counts, rows.Err()
}

// SaveUser upserts a user side-object
func (s *Store) SaveUser(ctx context.Context, user models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, username, created_at, description, location,
			pinned_post_id, profile_image_url, protected, url, verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, username = EXCLUDED.username,
			description = EXCLUDED.description, location = EXCLUDED.location,
			pinned_post_id = EXCLUDED.pinned_post_id,
			profile_image_url = EXCLUDED.profile_image_url,
			protected = EXCLUDED.protected, url = EXCLUDED.url,
			verified = EXCLUDED.verified
	`, user.ID, user.Name, user.Username, user.CreatedAt, user.Description,
		user.Location, user.PinnedPostID, user.ProfileImageURL, user.Protected,
		user.URL, user.Verified)
	if err != nil {
		return fmt.Errorf("failed to save user %s: %w", user.ID, err)
	}
	return nil
}

// SaveMedia upserts a media side-object
func (s *Store) SaveMedia(ctx context.Context, media models.Media) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO media (media_key, type, url, duration_ms, height,
			preview_image_url, width, alt_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (media_key) DO UPDATE
		SET type = EXCLUDED.type, url = EXCLUDED.url,
			duration_ms = EXCLUDED.duration_ms, height = EXCLUDED.height,
			preview_image_url = EXCLUDED.preview_image_url,
			width = EXCLUDED.width, alt_text = EXCLUDED.alt_text
	`, media.MediaKey, media.Type, media.URL, media.DurationMS, media.Height,
		media.PreviewImageURL, media.Width, media.AltText)
	if err != nil {
		return fmt.Errorf("failed to save media %s: %w", media.MediaKey, err)
	}
	return nil
}

// IsUniqueViolation reports whether the error is a Postgres unique
// constraint violation, e.g. a duplicate post id.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
