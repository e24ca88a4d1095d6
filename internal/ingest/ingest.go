// Package ingest persists arrived posts and their derived entity signal.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/sharmina-lina/livetweets-main/internal/metrics"
	"github.com/sharmina-lina/livetweets-main/internal/store"
	"github.com/sharmina-lina/livetweets-main/pkg/clients/firehose"
	"github.com/sharmina-lina/livetweets-main/pkg/logging"
	"github.com/sharmina-lina/livetweets-main/pkg/models"
)

// entityStore is the slice of the persistent store the pipeline needs
type entityStore interface {
	CreatePost(ctx context.Context, post models.Post) error
	CreateTrackedPost(ctx context.Context, postID string, createdAt time.Time) error
	IncrementHashtag(ctx context.Context, tag string) (int64, error)
	AssociateHashtag(ctx context.Context, postID string, hashtagID int64) error
	IncrementMention(ctx context.Context, username string) (int64, error)
	AssociateMention(ctx context.Context, postID string, mentionID int64) error
	EnsureTopicDomain(ctx context.Context, domainID, name string) error
	IncrementTopicEntity(ctx context.Context, entityID, name, domainID string) error
	AssociateTopic(ctx context.Context, postID, entityID string) error
	SaveUser(ctx context.Context, user models.User) error
	SaveMedia(ctx context.Context, media models.Media) error
}

// Pipeline turns one raw post event into persisted records: the post
// itself, its tracking row, and its entity counters.
type Pipeline struct {
	store   entityStore
	logger  logging.Logger
	metrics *metrics.Metrics
}

// NewPipeline creates an ingestion pipeline
func NewPipeline(store entityStore, logger logging.Logger, serviceMetrics *metrics.Metrics) *Pipeline {
	return &Pipeline{
		store:   store,
		logger:  logger,
		metrics: serviceMetrics,
	}
}

// Ingest persists the post, enrolls it for engagement tracking, and
// updates entity counters. Post persistence fails loudly, except a
// duplicate id which means the post was already ingested; entity
// extraction is best-effort per entity so one bad entity never aborts
// its siblings.
func (p *Pipeline) Ingest(ctx context.Context, post *firehose.Post) error {
	record := models.Post{
		ID:                post.ID,
		Text:              post.Text,
		AuthorID:          post.AuthorID,
		ConversationID:    post.ConversationID,
		CreatedAt:         post.CreatedAt,
		InReplyToUserID:   post.InReplyToUserID,
		Lang:              post.Lang,
		PossiblySensitive: post.PossiblySensitive,
		ReplySettings:     post.ReplySettings,
		Source:            post.Source,
	}

	if err := p.store.CreatePost(ctx, record); err != nil {
		// the provider occasionally redelivers posts; a duplicate id is
		// already fully ingested, not a failure
		if store.IsUniqueViolation(err) {
			if p.metrics != nil {
				p.metrics.PostsIngested.WithLabelValues("duplicate").Inc()
			}
			p.logger.WithField("post_id", post.ID).Debug("Post already stored, skipping")
			return nil
		}
		if p.metrics != nil {
			p.metrics.PostsIngested.WithLabelValues("error").Inc()
		}
		return fmt.Errorf("failed to persist post: %w", err)
	}

	if err := p.store.CreateTrackedPost(ctx, post.ID, post.CreatedAt); err != nil {
		p.logger.WithError(err).WithField("post_id", post.ID).Error("Failed to enroll post for tracking")
	}

	if post.Entities != nil {
		p.ingestHashtags(ctx, post.ID, post.Entities.Hashtags)
		p.ingestMentions(ctx, post.ID, post.Entities.Mentions)
	}
	p.ingestTopics(ctx, post.ID, post.ContextAnnotations)

	if p.metrics != nil {
		p.metrics.PostsIngested.WithLabelValues("ok").Inc()
	}
	return nil
}

func (p *Pipeline) ingestHashtags(ctx context.Context, postID string, hashtags []firehose.HashtagEntity) {
	for _, hashtag := range hashtags {
		id, err := p.store.IncrementHashtag(ctx, hashtag.Tag)
		if err != nil {
			p.logger.WithError(err).WithField("hashtag", hashtag.Tag).Warn("Failed to count hashtag")
			continue
		}
		if err := p.store.AssociateHashtag(ctx, postID, id); err != nil {
			p.logger.WithError(err).WithField("hashtag", hashtag.Tag).Warn("Failed to associate hashtag")
		}
		if p.metrics != nil {
			p.metrics.EntitiesExtracted.WithLabelValues("hashtag").Inc()
		}
	}
}

func (p *Pipeline) ingestMentions(ctx context.Context, postID string, mentions []firehose.MentionEntity) {
	for _, mention := range mentions {
		id, err := p.store.IncrementMention(ctx, mention.Username)
		if err != nil {
			p.logger.WithError(err).WithField("mention", mention.Username).Warn("Failed to count mention")
			continue
		}
		if err := p.store.AssociateMention(ctx, postID, id); err != nil {
			p.logger.WithError(err).WithField("mention", mention.Username).Warn("Failed to associate mention")
		}
		if p.metrics != nil {
			p.metrics.EntitiesExtracted.WithLabelValues("mention").Inc()
		}
	}
}

func (p *Pipeline) ingestTopics(ctx context.Context, postID string, annotations []firehose.ContextAnnotation) {
	for _, annotation := range annotations {
		if err := p.store.EnsureTopicDomain(ctx, annotation.Domain.ID, annotation.Domain.Name); err != nil {
			p.logger.WithError(err).WithField("domain_id", annotation.Domain.ID).Warn("Failed to resolve topic domain")
			continue
		}
		if err := p.store.IncrementTopicEntity(ctx, annotation.Entity.ID, annotation.Entity.Name, annotation.Domain.ID); err != nil {
			p.logger.WithError(err).WithField("entity_id", annotation.Entity.ID).Warn("Failed to count topic entity")
			continue
		}
		if err := p.store.AssociateTopic(ctx, postID, annotation.Entity.ID); err != nil {
			p.logger.WithError(err).WithField("entity_id", annotation.Entity.ID).Warn("Failed to associate topic entity")
		}
		if p.metrics != nil {
			p.metrics.EntitiesExtracted.WithLabelValues("topic").Inc()
		}
	}
}

// SaveIncludes persists the side-objects of a stream event verbatim.
// Best-effort: failures are logged and never fatal to the stream.
func (p *Pipeline) SaveIncludes(ctx context.Context, includes *firehose.Includes) {
	if includes == nil {
		return
	}

	for _, user := range includes.Users {
		record := models.User{
			ID:              user.ID,
			Name:            user.Name,
			Username:        user.Username,
			CreatedAt:       user.CreatedAt,
			Description:     user.Description,
			Location:        user.Location,
			PinnedPostID:    user.PinnedPostID,
			ProfileImageURL: user.ProfileImageURL,
			Protected:       user.Protected,
			URL:             user.URL,
			Verified:        user.Verified,
		}
		if err := p.store.SaveUser(ctx, record); err != nil {
			p.logger.WithError(err).WithField("user_id", user.ID).Warn("Failed to save included user")
		}
	}

	for _, media := range includes.Media {
		record := models.Media{
			MediaKey:        media.MediaKey,
			Type:            media.Type,
			URL:             media.URL,
			DurationMS:      media.DurationMS,
			Height:          media.Height,
			PreviewImageURL: media.PreviewImageURL,
			Width:           media.Width,
			AltText:         media.AltText,
		}
		if err := p.store.SaveMedia(ctx, record); err != nil {
			p.logger.WithError(err).WithField("media_key", media.MediaKey).Warn("Failed to save included media")
		}
	}
}
