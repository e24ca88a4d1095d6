package firehose

import (
	"encoding/json"
	"fmt"
	"time"
)

// RuleDefinition is a rule submitted to the provider. The id is assigned
// remotely on creation.
type RuleDefinition struct {
	Pattern string `json:"value"`
	Tag     string `json:"tag,omitempty"`
}

// Rule is a filter rule as returned by the provider.
type Rule struct {
	ID      string `json:"id"`
	Pattern string `json:"value"`
	Tag     string `json:"tag"`
}

// RulesResponse is the provider's rule listing/mutation response.
type RulesResponse struct {
	Data []Rule `json:"data"`
	Meta struct {
		ResultCount int `json:"result_count"`
		Summary     struct {
			Created    int `json:"created"`
			NotCreated int `json:"not_created"`
			Deleted    int `json:"deleted"`
			NotDeleted int `json:"not_deleted"`
		} `json:"summary"`
	} `json:"meta"`
}

// PublicMetrics carries the engagement counts of a post.
type PublicMetrics struct {
	RetweetCount int64 `json:"retweet_count"`
	ReplyCount   int64 `json:"reply_count"`
	LikeCount    int64 `json:"like_count"`
	QuoteCount   int64 `json:"quote_count"`
}

// HashtagEntity is one hashtag occurrence inside a post's entities.
type HashtagEntity struct {
	Tag string `json:"tag"`
}

// MentionEntity is one mention occurrence inside a post's entities.
type MentionEntity struct {
	Username string `json:"username"`
}

// Entities holds the extracted entities of a post.
type Entities struct {
	Hashtags []HashtagEntity `json:"hashtags,omitempty"`
	Mentions []MentionEntity `json:"mentions,omitempty"`
}

// IDName is an id+name pair used by the topic annotation taxonomy.
type IDName struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ContextAnnotation is one topical annotation: a domain (category) and an
// entity (specific topic within it).
type ContextAnnotation struct {
	Domain IDName `json:"domain"`
	Entity IDName `json:"entity"`
}

// ReferencedPost points at a post this post replies to, quotes or reposts.
type ReferencedPost struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Post is a post object as delivered by the provider.
type Post struct {
	ID                 string              `json:"id"`
	Text               string              `json:"text"`
	AuthorID           string              `json:"author_id"`
	ConversationID     string              `json:"conversation_id"`
	CreatedAt          time.Time           `json:"created_at"`
	InReplyToUserID    string              `json:"in_reply_to_user_id,omitempty"`
	Lang               string              `json:"lang,omitempty"`
	PossiblySensitive  bool                `json:"possibly_sensitive"`
	ReplySettings      string              `json:"reply_settings,omitempty"`
	Source             string              `json:"source,omitempty"`
	Entities           *Entities           `json:"entities,omitempty"`
	ContextAnnotations []ContextAnnotation `json:"context_annotations,omitempty"`
	PublicMetrics      *PublicMetrics      `json:"public_metrics,omitempty"`
	ReferencedPosts    []ReferencedPost    `json:"referenced_tweets,omitempty"`
}

// IncludedUser is a user side-object delivered in stream includes.
type IncludedUser struct {
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

// IncludedMedia is a media side-object delivered in stream includes.
type IncludedMedia struct {
	MediaKey        string `json:"media_key"`
	Type            string `json:"type"`
	URL             string `json:"url,omitempty"`
	DurationMS      int    `json:"duration_ms,omitempty"`
	Height          int    `json:"height,omitempty"`
	PreviewImageURL string `json:"preview_image_url,omitempty"`
	Width           int    `json:"width,omitempty"`
	AltText         string `json:"alt_text,omitempty"`
}

// Includes carries side-objects referenced by a stream event.
type Includes struct {
	Users []IncludedUser  `json:"users,omitempty"`
	Media []IncludedMedia `json:"media,omitempty"`
}

// MatchingRule identifies a rule that matched a streamed post.
type MatchingRule struct {
	ID  string `json:"id"`
	Tag string `json:"tag"`
}

// PostEvent is one event delivered on the filtered stream.
type PostEvent struct {
	Data          *Post          `json:"data,omitempty"`
	Includes      *Includes      `json:"includes,omitempty"`
	MatchingRules []MatchingRule `json:"matching_rules,omitempty"`
}

// PostsResponse is the bulk post lookup response.
type PostsResponse struct {
	Data   []Post            `json:"data"`
	Errors []json.RawMessage `json:"errors,omitempty"`
}

// ProviderError is a typed failure carrying the provider's error payload.
type ProviderError struct {
	StatusCode int               `json:"-"`
	Title      string            `json:"title"`
	Detail     string            `json:"detail"`
	Type       string            `json:"type,omitempty"`
	Errors     []json.RawMessage `json:"errors,omitempty"`
}

func (e *ProviderError) Error() string {
	switch {
	case e.Title != "":
		return fmt.Sprintf("provider error (HTTP %d): %s: %s", e.StatusCode, e.Title, e.Detail)
	case e.Detail != "":
		return fmt.Sprintf("provider error (HTTP %d): %s", e.StatusCode, e.Detail)
	default:
		return fmt.Sprintf("provider error (HTTP %d)", e.StatusCode)
	}
}
