// Package rules keeps the locally stored filter rules in sync with the
// remote streaming API's authoritative rule set.
package rules

import (
	"context"

	"github.com/sharmina-lina/livetweets-main/internal/events"
	"github.com/sharmina-lina/livetweets-main/pkg/clients/firehose"
	"github.com/sharmina-lina/livetweets-main/pkg/logging"
	"github.com/sharmina-lina/livetweets-main/pkg/models"
)

// provider is the slice of the remote API the rule manager needs
type provider interface {
	ListRules(ctx context.Context) ([]firehose.Rule, error)
	AddRules(ctx context.Context, defs []firehose.RuleDefinition) ([]firehose.Rule, error)
	DeleteRules(ctx context.Context, ids []string) error
}

// ruleStore is the slice of the persistent store the rule manager needs
type ruleStore interface {
	UpsertRule(ctx context.Context, rule models.Rule) error
	MarkAllRulesInactive(ctx context.Context) error
	RuleIDsByTag(ctx context.Context, tag string) ([]string, error)
}

// Manager syncs and deduplicates filter rules
type Manager struct {
	provider  provider
	store     ruleStore
	publisher events.Publisher
	logger    logging.Logger
}

// NewManager creates a rule manager
func NewManager(provider provider, store ruleStore, publisher events.Publisher, logger logging.Logger) *Manager {
	return &Manager{
		provider:  provider,
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// DuplicateRuleIDs returns the ids of all stored rules sharing the tag.
// Tags are not unique; duplicate detection is an explicit operation.
func (m *Manager) DuplicateRuleIDs(ctx context.Context, tag string) ([]string, error) {
	return m.store.RuleIDsByTag(ctx, tag)
}

// SyncFromRemote pulls the authoritative rule set from the provider,
// marks every stored rule inactive, then upserts each remote rule as
// active, broadcasting one rule event per rule. An empty remote set
// completes as a no-op resync rather than failing.
func (m *Manager) SyncFromRemote(ctx context.Context) ([]models.Rule, error) {
	remote, err := m.provider.ListRules(ctx)
	if err != nil {
		// Degrade to "no rules changed": the stream must not crash on
		// a failed sync.
		m.logger.WithError(err).Warn("Rule sync failed, keeping local rule state")
		return nil, err
	}

	if err := m.store.MarkAllRulesInactive(ctx); err != nil {
		return nil, err
	}

	synced := make([]models.Rule, 0, len(remote))
	for _, remoteRule := range remote {
		rule := models.Rule{
			ID:      remoteRule.ID,
			Pattern: remoteRule.Pattern,
			Tag:     remoteRule.Tag,
			Active:  true,
		}
		m.publisher.Publish(events.RuleSynced(rule))
		if err := m.store.UpsertRule(ctx, rule); err != nil {
			return nil, err
		}
		synced = append(synced, rule)
	}

	m.logger.WithField("rule_count", len(synced)).Info("Rules synced from remote")
	return synced, nil
}

// AddRules deletes stored duplicates by tag from the provider, submits
// the new rule batch, then resyncs so local state reflects the
// authoritative remote set. Rules with an empty pattern are skipped.
func (m *Manager) AddRules(ctx context.Context, defs []firehose.RuleDefinition) error {
	var (
		batch []firehose.RuleDefinition
		dupes []string
	)

	for _, def := range defs {
		if def.Pattern == "" {
			continue
		}
		ids, err := m.DuplicateRuleIDs(ctx, def.Tag)
		if err != nil {
			return err
		}
		dupes = append(dupes, ids...)
		batch = append(batch, def)
	}

	if len(batch) == 0 {
		return nil
	}

	if len(dupes) > 0 {
		if err := m.provider.DeleteRules(ctx, dupes); err != nil {
			return err
		}
	}

	if _, err := m.provider.AddRules(ctx, batch); err != nil {
		return err
	}

	_, err := m.SyncFromRemote(ctx)
	return err
}

// DeleteAllActive removes every rule from the provider, confirms the
// remote set is empty, then marks all local rules inactive and announces
// the empty rule set.
func (m *Manager) DeleteAllActive(ctx context.Context) error {
	remote, err := m.provider.ListRules(ctx)
	if err != nil {
		return err
	}

	if len(remote) > 0 {
		ids := make([]string, 0, len(remote))
		for _, rule := range remote {
			ids = append(ids, rule.ID)
		}
		if err := m.provider.DeleteRules(ctx, ids); err != nil {
			return err
		}
		remote, err = m.provider.ListRules(ctx)
		if err != nil {
			return err
		}
	}

	if len(remote) == 0 {
		if err := m.store.MarkAllRulesInactive(ctx); err != nil {
			return err
		}
		m.publisher.Publish(events.Status("No rules stored in stream"))
	}

	return nil
}
