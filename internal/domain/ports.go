package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("review not found")
	ErrNoExternalID = errors.New("review has no external id")
	ErrNotEditable  = errors.New("review reply can no longer be edited")
)

// Sort orders accepted by the store and by the feedbacks API.
const (
	OrderDateDesc = "dateDesc"
	OrderDateAsc  = "dateAsc"
)

type ReviewFilter struct {
	Answered  *bool
	ArticleID string
	From, To  *time.Time
}

type Page struct {
	Take int
	Skip int
}

type ReviewRepository interface {
	// Write paths
	UpsertByExternalID(ctx context.Context, r Review) error
	UpdateReply(ctx context.Context, id int64, response string) error

	// Read paths
	GetByID(ctx context.Context, id int64) (Review, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Review, error)
	List(ctx context.Context, f ReviewFilter, pg Page, order string) ([]Review, error)
	Count(ctx context.Context, f ReviewFilter) (int64, error)
}

// ListQuery mirrors the feedbacks API list parameters.
type ListQuery struct {
	Take      int
	Skip      int
	Order     string
	Answered  *bool
	ArticleID string
}

type FeedbackClient interface {
	ListFeedbacks(ctx context.Context, q ListQuery) ([]map[string]any, error)
	SubmitReply(ctx context.Context, externalID, text string) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}
