package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Abyoshii/review-refinery/internal/domain"
)

type QueryService struct {
	repo     domain.ReviewRepository
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(r domain.ReviewRepository, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{repo: r, cache: c, cacheTTL: ttl}
}

/********** cache keys **********/

const unansweredCountKey = "reviews:unanswered_count"

func listKey(f domain.ReviewFilter, pg domain.Page, order string) string {
	answered := "any"
	if f.Answered != nil {
		answered = fmt.Sprintf("%t", *f.Answered)
	}
	// date-range queries bypass the cache; the keyspace would be unbounded
	return fmt.Sprintf("reviews:list:%s:%s:%d:%d:%s", answered, f.ArticleID, pg.Take, pg.Skip, order)
}

// invalidateReviewCaches drops the unanswered counter and the list variants
// the dashboard actually requests (default page sizes, first page).
func invalidateReviewCaches(ctx context.Context, cache domain.Cache) {
	_ = cache.Del(ctx, unansweredCountKey)
	for _, answered := range []string{"any", "true", "false"} {
		for _, take := range []int{10, 50, 100} {
			key := fmt.Sprintf("reviews:list:%s:%s:%d:%d:%s", answered, "", take, 0, domain.OrderDateDesc)
			_ = cache.Del(ctx, key)
		}
	}
}

/********** reads **********/

func (s *QueryService) ListReviews(ctx context.Context, f domain.ReviewFilter, pg domain.Page, order string) ([]domain.Review, error) {
	if order == "" {
		order = domain.OrderDateDesc
	}
	cacheable := s.cache != nil && f.From == nil && f.To == nil

	key := listKey(f, pg, order)
	if cacheable {
		var cached []domain.Review
		if ok, _ := s.cache.Get(ctx, key, &cached); ok {
			return cached, nil
		}
	}

	items, err := s.repo.List(ctx, f, pg, order)
	if err != nil {
		return nil, err
	}

	if cacheable {
		// copy to avoid aliasing the repo's backing array
		cp := make([]domain.Review, len(items))
		copy(cp, items)
		_ = s.cache.Set(ctx, key, cp, int(s.cacheTTL.Seconds()))
	}
	return items, nil
}

// UnansweredCount backs the live unprocessed indicator, which polls on a
// fixed interval; the short TTL keeps that polling off the database.
func (s *QueryService) UnansweredCount(ctx context.Context) (int64, error) {
	type counted struct {
		Count int64 `json:"count"`
	}
	if s.cache != nil {
		var c counted
		if ok, _ := s.cache.Get(ctx, unansweredCountKey, &c); ok {
			return c.Count, nil
		}
	}

	answered := false
	n, err := s.repo.Count(ctx, domain.ReviewFilter{Answered: &answered})
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, unansweredCountKey, counted{Count: n}, int(s.cacheTTL.Seconds()))
	}
	return n, nil
}

// DraftResponses produces a generated answer per selected review, keyed by
// review id. Unknown ids are silently absent from the result; the operator
// sees drafts only for reviews that still exist.
func (s *QueryService) DraftResponses(ctx context.Context, ids []int64) (map[int64]string, error) {
	reviews, err := s.repo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]string, len(reviews))
	for _, rv := range reviews {
		out[rv.ID] = GenerateResponse(rv.Rating)
	}
	return out, nil
}
