// Package events defines the typed broadcast events fanned out to
// subscribers, one variant per event shape, consumed by a single
// dispatcher on each sink.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/sharmina-lina/livetweets-main/pkg/models"
)

// Type identifies a broadcast event kind
type Type string

const (
	TypeStatus     Type = "status"
	TypeRule       Type = "rule"
	TypePost       Type = "post"
	TypePopularity Type = "popularity"
	TypeMetrics    Type = "metrics"
)

// StatusPayload carries a human-readable stream status message
type StatusPayload struct {
	Message string `json:"message"`
}

// RulePayload announces one synced filter rule
type RulePayload struct {
	ID      string `json:"id"`
	Pattern string `json:"value"`
	Tag     string `json:"tag"`
}

// PostPayload announces an arrived post. Sent before persistence:
// consumers must treat it as "arrived", not "durably stored".
type PostPayload struct {
	ID          string `json:"id"`
	MatchedTags string `json:"matched_tags"`
}

// PopularityPayload carries the refreshed top-10 rankings
type PopularityPayload struct {
	Hashtags []models.HashtagCount `json:"hashtags"`
	Mentions []models.MentionCount `json:"mentions"`
	Topics   []models.TopicCount   `json:"topics"`
}

// MetricsPayload carries the per-window ranked engagement deltas
type MetricsPayload struct {
	RankedDeltas map[string][]models.RankedDelta `json:"ranked_deltas"`
}

// Event is one broadcast event. Exactly one payload field is set,
// matching Type.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Status     *StatusPayload     `json:"status,omitempty"`
	Rule       *RulePayload       `json:"rule,omitempty"`
	Post       *PostPayload       `json:"post,omitempty"`
	Popularity *PopularityPayload `json:"popularity,omitempty"`
	Metrics    *MetricsPayload    `json:"metrics,omitempty"`
}

func newEvent(t Type) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now().UTC(),
	}
}

// Status builds a status event
func Status(message string) Event {
	ev := newEvent(TypeStatus)
	ev.Status = &StatusPayload{Message: message}
	return ev
}

// RuleSynced builds a rule event
func RuleSynced(rule models.Rule) Event {
	ev := newEvent(TypeRule)
	ev.Rule = &RulePayload{ID: rule.ID, Pattern: rule.Pattern, Tag: rule.Tag}
	return ev
}

// PostArrived builds a post event
func PostArrived(id, matchedTags string) Event {
	ev := newEvent(TypePost)
	ev.Post = &PostPayload{ID: id, MatchedTags: matchedTags}
	return ev
}

// Popularity builds a popularity event
func Popularity(hashtags []models.HashtagCount, mentions []models.MentionCount, topics []models.TopicCount) Event {
	ev := newEvent(TypePopularity)
	ev.Popularity = &PopularityPayload{Hashtags: hashtags, Mentions: mentions, Topics: topics}
	return ev
}

// Metrics builds a metrics event
func Metrics(rankedDeltas map[string][]models.RankedDelta) Event {
	ev := newEvent(TypeMetrics)
	ev.Metrics = &MetricsPayload{RankedDeltas: rankedDeltas}
	return ev
}

// Publisher delivers events to subscribers. Publish is fire-and-forget
// and must never block the caller on subscriber delivery.
type Publisher interface {
	Publish(event Event)
}

// Bus fans an event out to multiple publishers
type Bus struct {
	sinks []Publisher
}

// NewBus creates a bus over the given sinks
func NewBus(sinks ...Publisher) *Bus {
	return &Bus{sinks: sinks}
}

// Publish delivers the event to every sink
func (b *Bus) Publish(event Event) {
	for _, sink := range b.sinks {
		sink.Publish(event)
	}
}
