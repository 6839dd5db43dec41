package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Abyoshii/review-refinery/internal/adapters/observability"
	"github.com/Abyoshii/review-refinery/internal/domain"
)

// SyncService reconciles one page of marketplace feedbacks into the local
// store. Upserts are keyed by external id, so rerunning a sync is a no-op
// until the source changes.
type SyncService struct {
	client domain.FeedbackClient
	repo   domain.ReviewRepository
	cache  domain.Cache
}

func NewSyncService(c domain.FeedbackClient, r domain.ReviewRepository, cache domain.Cache) *SyncService {
	return &SyncService{client: c, repo: r, cache: cache}
}

// Sync pulls up to pageSize feedbacks, most recent first, and upserts each.
// Per-record failures (malformed payload, failed upsert) are skipped and show
// up as Saved < Fetched; only a failure to reach the source at all aborts.
func (s *SyncService) Sync(ctx context.Context, pageSize int) (domain.SyncResult, error) {
	if pageSize <= 0 {
		pageSize = 100
	}

	raw, err := s.client.ListFeedbacks(ctx, domain.ListQuery{
		Take:  pageSize,
		Skip:  0,
		Order: domain.OrderDateDesc,
	})
	if err != nil {
		return domain.SyncResult{}, fmt.Errorf("fetch feedbacks: %w", err)
	}

	res := domain.SyncResult{Fetched: len(raw)}
	for _, f := range raw {
		rv, err := mapFeedback(f)
		if err != nil {
			log.Warn().Err(err).Msg("skipping malformed feedback")
			observability.ObserveSyncRecord("skipped_invalid")
			continue
		}
		if err := s.repo.UpsertByExternalID(ctx, rv); err != nil {
			log.Warn().Err(err).Str("external_id", rv.ExternalID).Msg("feedback upsert failed")
			observability.ObserveSyncRecord("skipped_store")
			continue
		}
		observability.ObserveSyncRecord("saved")
		res.Saved++
	}

	if res.Saved > 0 && s.cache != nil {
		invalidateReviewCaches(ctx, s.cache)
	}
	log.Info().Int("saved", res.Saved).Int("fetched", res.Fetched).Msg("sync completed")
	return res, nil
}
