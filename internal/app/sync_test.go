package app_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/Abyoshii/review-refinery/internal/app"
	"github.com/Abyoshii/review-refinery/internal/domain"
)

func TestSync_InsertsNewReviews(t *testing.T) {
	client := &fakeClient{feedbacks: []map[string]any{
		feedback("E1", 5, "great", "2024-03-01T10:00:00Z", "ART1"),
		feedback("E2", 2, "broken", "2024-03-02T10:00:00Z", "ART2"),
	}}
	repo := newFakeRepo()
	s := app.NewSyncService(client, repo, nil)

	res, err := s.Sync(context.Background(), 10)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if res.Saved != 2 || res.Fetched != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}

	rv := repo.byExternalID("E1")
	if rv.ID == 0 || rv.Rating != 5 || rv.ArticleID != "ART1" || rv.Processed || rv.Response != nil || !rv.CanEdit {
		t.Fatalf("unexpected review: %+v", rv)
	}
}

func TestSync_IdempotentRerun(t *testing.T) {
	client := &fakeClient{feedbacks: []map[string]any{
		feedback("E1", 5, "great", "2024-03-01T10:00:00Z", "ART1"),
		answeredFeedback("E2", 3, "meh", "2024-03-02T10:00:00Z", "ART1", "thanks"),
	}}
	repo := newFakeRepo()
	s := app.NewSyncService(client, repo, nil)

	if _, err := s.Sync(context.Background(), 10); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	first := repo.snapshot()

	res, err := s.Sync(context.Background(), 10)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if res.Saved != 2 {
		t.Fatalf("second sync result: %+v", res)
	}
	second := repo.snapshot()

	if len(second) != 2 {
		t.Fatalf("expected 2 records, got %d", len(second))
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("store drifted between identical syncs:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestSync_PullsInExternalAnswerOnResync(t *testing.T) {
	client := &fakeClient{feedbacks: []map[string]any{
		feedback("E123", 4, "good", "2024-03-01T10:00:00Z", "ART1"),
	}}
	repo := newFakeRepo()
	s := app.NewSyncService(client, repo, nil)

	if _, err := s.Sync(context.Background(), 10); err != nil {
		t.Fatalf("sync: %v", err)
	}
	inserted := repo.byExternalID("E123")
	if inserted.Processed {
		t.Fatalf("expected unprocessed after first sync: %+v", inserted)
	}

	// an answer appears on the source, e.g. submitted from another channel
	client.feedbacks[0] = answeredFeedback("E123", 4, "good", "2024-03-01T10:00:00Z", "ART1", "appreciated")

	if _, err := s.Sync(context.Background(), 10); err != nil {
		t.Fatalf("resync: %v", err)
	}
	updated := repo.byExternalID("E123")
	if updated.ID != inserted.ID {
		t.Fatalf("resync must update the same record, got id %d then %d", inserted.ID, updated.ID)
	}
	if !updated.Processed || deref(updated.Response) != "appreciated" {
		t.Fatalf("answer not pulled in: %+v", updated)
	}
	if snap := repo.snapshot(); len(snap) != 1 {
		t.Fatalf("expected single record, got %d", len(snap))
	}
}

func TestSync_SkipsMalformedRecords(t *testing.T) {
	missingArticle := feedback("E2", 4, "ok", "2024-03-02T10:00:00Z", "ART1")
	delete(missingArticle, "nmId")
	client := &fakeClient{feedbacks: []map[string]any{
		feedback("E1", 5, "great", "2024-03-01T10:00:00Z", "ART1"),
		missingArticle,
		feedback("E3", 1, "bad", "2024-03-03T10:00:00Z", "ART2"),
	}}
	repo := newFakeRepo()
	s := app.NewSyncService(client, repo, nil)

	res, err := s.Sync(context.Background(), 10)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if res.Fetched != 3 || res.Saved != 2 {
		t.Fatalf("expected 2 of 3 saved, got %+v", res)
	}
	if rv := repo.byExternalID("E2"); rv.ID != 0 {
		t.Fatalf("malformed record must not be stored: %+v", rv)
	}
}

func TestSync_SkipsOutOfRangeValuation(t *testing.T) {
	client := &fakeClient{feedbacks: []map[string]any{
		feedback("E9", 0, "zeroed payload", "2024-03-01T10:00:00Z", "ART1"),
		feedback("E10", 7, "inflated payload", "2024-03-02T10:00:00Z", "ART1"),
		feedback("E11", 5, "fine", "2024-03-03T10:00:00Z", "ART1"),
	}}
	repo := newFakeRepo()
	s := app.NewSyncService(client, repo, nil)

	res, err := s.Sync(context.Background(), 10)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if res.Fetched != 3 || res.Saved != 1 {
		t.Fatalf("expected only the in-range record saved, got %+v", res)
	}
	for _, ext := range []string{"E9", "E10"} {
		if rv := repo.byExternalID(ext); rv.ID != 0 {
			t.Fatalf("out-of-range valuation must not be stored: %+v", rv)
		}
	}
	if rv := repo.byExternalID("E11"); rv.ID == 0 || rv.Rating != 5 {
		t.Fatalf("valid record missing: %+v", rv)
	}
}

func TestSync_SkipsFailedUpserts(t *testing.T) {
	client := &fakeClient{feedbacks: []map[string]any{
		feedback("E1", 5, "great", "2024-03-01T10:00:00Z", "ART1"),
		feedback("E2", 4, "ok", "2024-03-02T10:00:00Z", "ART1"),
	}}
	repo := newFakeRepo()
	repo.failUpsert = map[string]error{"E1": errors.New("deadlock")}
	s := app.NewSyncService(client, repo, nil)

	res, err := s.Sync(context.Background(), 10)
	if err != nil {
		t.Fatalf("sync must not abort on a single upsert failure: %v", err)
	}
	if res.Fetched != 2 || res.Saved != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if rv := repo.byExternalID("E2"); rv.ID == 0 {
		t.Fatalf("remaining record must still be saved")
	}
}

func TestSync_SourceUnavailable(t *testing.T) {
	client := &fakeClient{listErr: errors.New("connection refused")}
	repo := newFakeRepo()
	s := app.NewSyncService(client, repo, nil)

	_, err := s.Sync(context.Background(), 10)
	if err == nil {
		t.Fatalf("expected error when source is unreachable")
	}
	if len(repo.snapshot()) != 0 {
		t.Fatalf("store must stay untouched when fetch fails")
	}
}

func TestSync_DeclinedStateStaysLocked(t *testing.T) {
	declined := answeredFeedback("E1", 1, "awful", "2024-03-01T10:00:00Z", "ART1", "sorry")
	declined["state"] = "declined"
	client := &fakeClient{feedbacks: []map[string]any{declined}}
	repo := newFakeRepo()
	s := app.NewSyncService(client, repo, nil)

	if _, err := s.Sync(context.Background(), 10); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if rv := repo.byExternalID("E1"); rv.CanEdit {
		t.Fatalf("declined review must not be editable: %+v", rv)
	}

	// a later payload missing the state tag must not unlock it
	relaxed := answeredFeedback("E1", 1, "awful", "2024-03-01T10:00:00Z", "ART1", "sorry")
	client.mu.Lock()
	client.feedbacks[0] = relaxed
	client.mu.Unlock()

	if _, err := s.Sync(context.Background(), 10); err != nil {
		t.Fatalf("resync: %v", err)
	}
	if rv := repo.byExternalID("E1"); rv.CanEdit {
		t.Fatalf("can_edit flipped back to true after resync: %+v", rv)
	}
}

func TestSync_InvalidatesCaches(t *testing.T) {
	client := &fakeClient{feedbacks: []map[string]any{
		feedback("E1", 5, "great", "2024-03-01T10:00:00Z", "ART1"),
	}}
	repo := newFakeRepo()
	cache := &fakeCache{}
	_ = cache.Set(context.Background(), "reviews:unanswered_count", map[string]int64{"count": 0}, 60)

	s := app.NewSyncService(client, repo, cache)
	if _, err := s.Sync(context.Background(), 10); err != nil {
		t.Fatalf("sync: %v", err)
	}

	var stale map[string]int64
	if ok, _ := cache.Get(context.Background(), "reviews:unanswered_count", &stale); ok {
		t.Fatalf("count cache must be invalidated after a sync that saved records")
	}
}

var _ domain.ReviewRepository = (*fakeRepo)(nil)
var _ domain.FeedbackClient = (*fakeClient)(nil)
var _ domain.Cache = (*fakeCache)(nil)
