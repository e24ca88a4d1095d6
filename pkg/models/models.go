// Package models holds the records persisted by the trend service and the
// payload shapes broadcast to subscribers.
package models

import "time"

// Rule is a filter rule registered with the remote streaming API.
// The id is assigned remotely; tags are not unique across rules.
type Rule struct {
	ID      string `json:"id"`
	Pattern string `json:"value"`
	Tag     string `json:"tag"`
	Active  bool   `json:"active"`
}

// Post is one ingested post. Immutable once stored.
type Post struct {
	ID                string    `json:"id"`
	Text              string    `json:"text"`
	AuthorID          string    `json:"author_id"`
	ConversationID    string    `json:"conversation_id"`
	CreatedAt         time.Time `json:"created_at"`
	InReplyToUserID   string    `json:"in_reply_to_user_id,omitempty"`
	Lang              string    `json:"lang,omitempty"`
	PossiblySensitive bool      `json:"possibly_sensitive"`
	ReplySettings     string    `json:"reply_settings,omitempty"`
	Source            string    `json:"source,omitempty"`
}

// TrackedPost enrolls a post for periodic engagement polling.
type TrackedPost struct {
	PostID      string    `json:"post_id"`
	CreatedAt   time.Time `json:"created_at"`
	SampleCount int       `json:"sample_count"`
}

// EngagementSample is one point-in-time snapshot of a tracked post's
// engagement counts. Append-only, ordered newest-first per post.
type EngagementSample struct {
	PostID       string    `json:"post_id"`
	Timestamp    time.Time `json:"timestamp"`
	RetweetCount int64     `json:"retweet_count"`
	ReplyCount   int64     `json:"reply_count"`
	LikeCount    int64     `json:"like_count"`
	QuoteCount   int64     `json:"quote_count"`
}

// Total sums the four engagement counts of a sample.
func (s EngagementSample) Total() int64 {
	return s.RetweetCount + s.ReplyCount + s.LikeCount + s.QuoteCount
}

// HashtagCount is a hashtag occurrence counter.
type HashtagCount struct {
	Hashtag string `json:"hashtag"`
	Count   int64  `json:"count"`
}

// MentionCount is a mention occurrence counter.
type MentionCount struct {
	Mention string `json:"mention"`
	Count   int64  `json:"count"`
}

// TopicCount is a topic-entity occurrence counter. Name is the display
// identity "{domainName}: {entityName}", ID the sort/filter key
// "{domainId}.{entityId}".
type TopicCount struct {
	Name  string `json:"name"`
	ID    string `json:"id"`
	Count int64  `json:"count"`
}

// RankedDelta is one entry of a per-window engagement ranking.
type RankedDelta struct {
	ID    string `json:"id"`
	Count int64  `json:"count"`
}

// User is a side-object delivered in stream includes.
type User struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Username        string     `json:"username"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
	Description     string     `json:"description,omitempty"`
	Location        string     `json:"location,omitempty"`
	PinnedPostID    string     `json:"pinned_tweet_id,omitempty"`
	ProfileImageURL string     `json:"profile_image_url,omitempty"`
	Protected       bool       `json:"protected"`
	URL             string     `json:"url,omitempty"`
	Verified        bool       `json:"verified"`
}

// Media is a media side-object delivered in stream includes.
type Media struct {
	MediaKey        string `json:"media_key"`
	Type            string `json:"type"`
	URL             string `json:"url,omitempty"`
	DurationMS      int    `json:"duration_ms,omitempty"`
	Height          int    `json:"height,omitempty"`
	PreviewImageURL string `json:"preview_image_url,omitempty"`
	Width           int    `json:"width,omitempty"`
	AltText         string `json:"alt_text,omitempty"`
}
