package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/Abyoshii/review-refinery/internal/adapters/observability"
	"github.com/Abyoshii/review-refinery/internal/domain"
)

// Responder submits supplier replies to the marketplace, one independent
// call per review. A batch never commits atomically: each review succeeds or
// fails on its own and the result says which did what.
type Responder struct {
	client        domain.FeedbackClient
	repo          domain.ReviewRepository
	cache         domain.Cache
	workers       int64
	submitTimeout time.Duration
}

func NewResponder(c domain.FeedbackClient, r domain.ReviewRepository, cache domain.Cache, workers int, submitTimeout time.Duration) *Responder {
	if workers <= 0 {
		workers = 4
	}
	if submitTimeout <= 0 {
		submitTimeout = 15 * time.Second
	}
	return &Responder{client: c, repo: r, cache: cache, workers: int64(workers), submitTimeout: submitTimeout}
}

// Reply is the single-review path over the same per-review pipeline.
func (r *Responder) Reply(ctx context.Context, id int64, text string) error {
	res, err := r.SubmitBatch(ctx, []int64{id}, "", map[int64]string{id: text})
	if err != nil {
		return err
	}
	if len(res.Failed) > 0 {
		f := res.Failed[0]
		return fmt.Errorf("reply to review %d (%s): %w", f.ReviewID, f.Stage, f.Err)
	}
	return nil
}

// SubmitBatch sends one reply per review id. Exactly one of shared (one text
// for every id) or perReview (a distinct text per id) must be supplied.
// Submissions run concurrently under a bounded semaphore, each capped by the
// submit timeout. Only a failure before any submission starts (bad arguments,
// unreachable store) returns a non-nil error; everything per-review lands in
// the BatchResult.
func (r *Responder) SubmitBatch(ctx context.Context, ids []int64, shared string, perReview map[int64]string) (domain.BatchResult, error) {
	if (shared != "") == (len(perReview) > 0) {
		return domain.BatchResult{}, errors.New("exactly one of shared text or per-review texts must be set")
	}
	if len(ids) == 0 {
		return domain.BatchResult{}, errors.New("no review ids selected")
	}

	reviews, err := r.repo.GetByIDs(ctx, ids)
	if err != nil {
		return domain.BatchResult{}, fmt.Errorf("resolve reviews: %w", err)
	}
	byID := make(map[int64]domain.Review, len(reviews))
	for _, rv := range reviews {
		byID[rv.ID] = rv
	}

	var (
		mu  sync.Mutex
		res domain.BatchResult
	)
	fail := func(id int64, stage domain.ReplyStage, err error) {
		mu.Lock()
		res.Failed = append(res.Failed, domain.ReplyFailure{ReviewID: id, Stage: stage, Err: err})
		mu.Unlock()
		observability.ObserveBatchReply(string(stage))
	}
	succeed := func(id int64) {
		mu.Lock()
		res.Succeeded = append(res.Succeeded, id)
		mu.Unlock()
		observability.ObserveBatchReply("ok")
	}

	sem := semaphore.NewWeighted(r.workers)
	var wg sync.WaitGroup

	// ids form a selection set: a repeated id must not post the same reply
	// twice, so only the first occurrence is submitted.
	seen := make(map[int64]struct{}, len(ids))

	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		rv, ok := byID[id]
		if !ok {
			fail(id, domain.StageResolve, domain.ErrNotFound)
			continue
		}
		if rv.ExternalID == "" {
			fail(id, domain.StageResolve, domain.ErrNoExternalID)
			continue
		}
		if rv.Processed && !rv.CanEdit {
			fail(id, domain.StageResolve, domain.ErrNotEditable)
			continue
		}
		text := shared
		if len(perReview) > 0 {
			text = perReview[id]
		}
		if text == "" {
			fail(id, domain.StageResolve, errors.New("no response text for review"))
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			fail(id, domain.StageSubmit, err)
			continue
		}
		wg.Add(1)
		go func(rv domain.Review, text string) {
			defer wg.Done()
			defer sem.Release(1)

			sctx, cancel := context.WithTimeout(ctx, r.submitTimeout)
			defer cancel()
			if err := r.client.SubmitReply(sctx, rv.ExternalID, text); err != nil {
				fail(rv.ID, domain.StageSubmit, err)
				return
			}
			if err := r.repo.UpdateReply(ctx, rv.ID, text); err != nil {
				// The reply is live on the marketplace but not recorded
				// locally. Resubmitting would duplicate it; the next sync
				// pulls the answer back in.
				log.Error().Err(err).Int64("id", rv.ID).Str("external_id", rv.ExternalID).
					Msg("reply sent but local update failed")
				fail(rv.ID, domain.StageStore, err)
				return
			}
			succeed(rv.ID)
		}(rv, text)
	}

	wg.Wait()

	if len(res.Succeeded) > 0 && r.cache != nil {
		invalidateReviewCaches(ctx, r.cache)
	}
	return res, nil
}
