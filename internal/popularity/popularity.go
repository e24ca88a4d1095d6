// Package popularity ranks the most counted hashtags, mentions, and
// topics, excluding whatever the active filter rules already track.
package popularity

import (
	"context"
	"strings"

	"github.com/sharmina-lina/livetweets-main/pkg/logging"
	"github.com/sharmina-lina/livetweets-main/pkg/models"
)

const topSize = 10

// counterStore is the slice of the persistent store the ranker needs
type counterStore interface {
	ActiveRules(ctx context.Context) ([]models.Rule, error)
	TopHashtags(ctx context.Context) ([]models.HashtagCount, error)
	TopMentions(ctx context.Context) ([]models.MentionCount, error)
	TopTopics(ctx context.Context) ([]models.TopicCount, error)
}

// Lists holds one popularity snapshot
type Lists struct {
	Hashtags []models.HashtagCount `json:"hashtags"`
	Mentions []models.MentionCount `json:"mentions"`
	Topics   []models.TopicCount   `json:"topics"`
}

// Ranker builds popularity snapshots from the entity counters
type Ranker struct {
	store  counterStore
	logger logging.Logger
}

// NewRanker creates a popularity ranker
func NewRanker(store counterStore, logger logging.Logger) *Ranker {
	return &Ranker{store: store, logger: logger}
}

// Top10 returns the ten most counted hashtags, mentions, and topics
// that are not already tracked by an active filter rule. Exclusion
// happens after the count-ordered scan so the lists stay full.
func (r *Ranker) Top10(ctx context.Context) (Lists, error) {
	rules, err := r.store.ActiveRules(ctx)
	if err != nil {
		return Lists{}, err
	}
	tracked := trackedTokens(rules)

	hashtags, err := r.store.TopHashtags(ctx)
	if err != nil {
		return Lists{}, err
	}
	mentions, err := r.store.TopMentions(ctx)
	if err != nil {
		return Lists{}, err
	}
	topics, err := r.store.TopTopics(ctx)
	if err != nil {
		return Lists{}, err
	}

	lists := Lists{
		Hashtags: make([]models.HashtagCount, 0, topSize),
		Mentions: make([]models.MentionCount, 0, topSize),
		Topics:   make([]models.TopicCount, 0, topSize),
	}

	for _, h := range hashtags {
		if len(lists.Hashtags) == topSize {
			break
		}
		if tracked.hashtags[strings.ToLower(h.Hashtag)] {
			continue
		}
		lists.Hashtags = append(lists.Hashtags, h)
	}

	for _, m := range mentions {
		if len(lists.Mentions) == topSize {
			break
		}
		if tracked.mentions[strings.ToLower(m.Mention)] {
			continue
		}
		lists.Mentions = append(lists.Mentions, m)
	}

	for _, t := range topics {
		if len(lists.Topics) == topSize {
			break
		}
		if tracked.topics[t.ID] {
			continue
		}
		lists.Topics = append(lists.Topics, t)
	}

	return lists, nil
}

// tokens holds the entities claimed by active filter rules, keyed by
// their sigil-stripped identity.
type tokens struct {
	hashtags map[string]bool
	mentions map[string]bool
	topics   map[string]bool
}

// trackedTokens parses the patterns of the active rules into the entity
// identities they track. Patterns are whitespace-tokenized with grouping
// parentheses stripped; "#" claims a hashtag, "@" a mention, and
// "context:" a topic key of the form domainId.entityId.
func trackedTokens(rules []models.Rule) tokens {
	tracked := tokens{
		hashtags: make(map[string]bool),
		mentions: make(map[string]bool),
		topics:   make(map[string]bool),
	}

	for _, rule := range rules {
		for _, raw := range strings.Fields(rule.Pattern) {
			token := strings.Trim(raw, "()")
			switch {
			case strings.HasPrefix(token, "#"):
				tracked.hashtags[strings.ToLower(token[1:])] = true
			case strings.HasPrefix(token, "@"):
				tracked.mentions[strings.ToLower(token[1:])] = true
			case strings.HasPrefix(token, "context:"):
				tracked.topics[token[len("context:"):]] = true
			}
		}
	}

	return tracked
}
