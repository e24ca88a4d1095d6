package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/sharmina-lina/livetweets-main/pkg/models"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestIncrementHashtagUpsertsAndReturnsID(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO hashtags \(hashtag, count\) VALUES \(\$1, 1\)\s+ON CONFLICT \(hashtag\) DO UPDATE SET count = hashtags\.count \+ 1\s+RETURNING id`).
		WithArgs("golang").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := store.IncrementHashtag(context.Background(), "golang")
	if err != nil {
		t.Fatalf("IncrementHashtag: %v", err)
	}
	if id != 7 {
		t.Fatalf("unexpected id: %d", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestAssociateHashtagIgnoresDuplicates(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO post_hashtags \(post_id, hashtag_id\) VALUES \(\$1, \$2\)\s+ON CONFLICT DO NOTHING`).
		WithArgs("p1", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.AssociateHashtag(context.Background(), "p1", 7); err != nil {
		t.Fatalf("AssociateHashtag: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestMarkAllRulesInactiveTouchesOnlyActiveRows(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE stream_rules SET active = FALSE WHERE active = TRUE`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	if err := store.MarkAllRulesInactive(context.Background()); err != nil {
		t.Fatalf("MarkAllRulesInactive: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestTrackedPostIDsFiltersBySinceAndLimit(t *testing.T) {
	store, mock := newMockStore(t)
	since := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT post_id FROM tracked_posts\s+WHERE created_at >= \$1\s+ORDER BY created_at DESC\s+LIMIT \$2`).
		WithArgs(since, 100).
		WillReturnRows(sqlmock.NewRows([]string{"post_id"}).AddRow("p2").AddRow("p1"))

	ids, err := store.TrackedPostIDs(context.Background(), since, 100)
	if err != nil {
		t.Fatalf("TrackedPostIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != "p2" {
		t.Fatalf("unexpected ids: %v", ids)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestTopTopicsFormatsDisplayNameAndKey(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"d.name", "e.name", "d.domain_id", "e.entity_id", "e.count"}).
		AddRow("Interests", "Programming", "66", "898", int64(12)).
		AddRow("Sports", "Football", "11", "733", int64(4))
	mock.ExpectQuery(`FROM topic_entities e\s+JOIN topic_domains d ON d\.domain_id = e\.domain_id\s+ORDER BY e\.count DESC`).
		WillReturnRows(rows)

	topics, err := store.TopTopics(context.Background())
	if err != nil {
		t.Fatalf("TopTopics: %v", err)
	}
	want := []models.TopicCount{
		{Name: "Interests: Programming", ID: "66.898", Count: 12},
		{Name: "Sports: Football", ID: "11.733", Count: 4},
	}
	if len(topics) != len(want) {
		t.Fatalf("unexpected topic count: %d", len(topics))
	}
	for i := range want {
		if topics[i] != want[i] {
			t.Fatalf("topic %d: got %+v want %+v", i, topics[i], want[i])
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestActiveRulesScansAllColumns(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, pattern, tag, active FROM stream_rules WHERE active = TRUE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "pattern", "tag", "active"}).
			AddRow("r1", "#golang", "go", true))

	rules, err := store.ActiveRules(context.Background())
	if err != nil {
		t.Fatalf("ActiveRules: %v", err)
	}
	if len(rules) != 1 || rules[0].Pattern != "#golang" || !rules[0].Active {
		t.Fatalf("unexpected rules: %+v", rules)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !IsUniqueViolation(&pq.Error{Code: "23505"}) {
		t.Fatal("expected unique violation to be detected")
	}
	if IsUniqueViolation(&pq.Error{Code: "23503"}) {
		t.Fatal("foreign key violation misclassified")
	}
	if IsUniqueViolation(context.Canceled) {
		t.Fatal("non-pq error misclassified")
	}
}
