package domain

import "time"

// Review is the locally stored projection of one marketplace feedback.
// The marketplace stays authoritative for Text, Date, ArticleID and Rating;
// Processed/Response also flip locally when this system submits a reply.
type Review struct {
	ID         int64
	ExternalID string
	Rating     int
	Text       string
	Date       time.Time
	ArticleID  string
	IsAnswered bool
	Processed  bool
	Response   *string
	CanEdit    bool
}

// SyncResult reports one synchronization pass. Saved < Fetched means some
// records were skipped (malformed payload or a failed upsert).
type SyncResult struct {
	Saved   int
	Fetched int
}

// ReplyStage tells at which point a batch submission for one review failed.
type ReplyStage string

const (
	// StageResolve: the review could not even be submitted (unknown id,
	// no external counterpart, or the reply is no longer editable).
	StageResolve ReplyStage = "resolve"
	// StageSubmit: the marketplace rejected or never acknowledged the reply.
	StageSubmit ReplyStage = "submit"
	// StageStore: the reply was accepted externally but the local update
	// failed. External and local state have diverged; do not blind-retry.
	StageStore ReplyStage = "store"
)

type ReplyFailure struct {
	ReviewID int64
	Stage    ReplyStage
	Err      error
}

// BatchResult carries per-review outcomes of a batch submission.
type BatchResult struct {
	Succeeded []int64
	Failed    []ReplyFailure
}

func (b BatchResult) FailedIDs() []int64 {
	out := make([]int64, 0, len(b.Failed))
	for _, f := range b.Failed {
		out = append(out, f.ReviewID)
	}
	return out
}

func (b BatchResult) AllOK() bool { return len(b.Failed) == 0 }
