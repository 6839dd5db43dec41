package app_test

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/Abyoshii/review-refinery/internal/domain"
)

/********** fake feedbacks client **********/

// feedback builds a raw record the way the live API ships it.
func feedback(id string, rating int, text, date, nmID string) map[string]any {
	return map[string]any{
		"id":               id,
		"text":             text,
		"productValuation": float64(rating),
		"createDate":       date,
		"nmId":             nmID,
		"state":            "none",
	}
}

func answeredFeedback(id string, rating int, text, date, nmID, answer string) map[string]any {
	f := feedback(id, rating, text, date, nmID)
	f["hasSupplierFeedbackAnswer"] = true
	f["supplierFeedbackAnswer"] = answer
	return f
}

type fakeClient struct {
	mu          sync.Mutex
	feedbacks   []map[string]any
	listErr     error
	failFor     map[string]error // externalID -> submit error
	submitted   map[string]string
	submitCalls map[string]int
}

func (c *fakeClient) ListFeedbacks(ctx context.Context, q domain.ListQuery) ([]map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	n := len(c.feedbacks)
	if q.Take > 0 && q.Take < n {
		n = q.Take
	}
	out := make([]map[string]any, 0, n)
	for _, f := range c.feedbacks[:n] {
		cp := make(map[string]any, len(f))
		for k, v := range f {
			cp[k] = v
		}
		out = append(out, cp)
	}
	return out, nil
}

// SubmitReply records the answer and flips the source record to answered, so
// a following sync pulls the reply back in.
func (c *fakeClient) SubmitReply(ctx context.Context, externalID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitCalls == nil {
		c.submitCalls = map[string]int{}
	}
	c.submitCalls[externalID]++
	if err := c.failFor[externalID]; err != nil {
		return err
	}
	if c.submitted == nil {
		c.submitted = map[string]string{}
	}
	c.submitted[externalID] = text
	for _, f := range c.feedbacks {
		if f["id"] == externalID {
			f["hasSupplierFeedbackAnswer"] = true
			f["supplierFeedbackAnswer"] = text
		}
	}
	return nil
}

/********** fake repository **********/

// fakeRepo keeps reviews in memory with the same merge rules as the MySQL
// upsert: source fields follow the latest write, reply state merges monotone,
// can_edit is sticky false.
type fakeRepo struct {
	mu         sync.Mutex
	nextID     int64
	byExt      map[string]*domain.Review
	failUpsert map[string]error // externalID -> error
	failUpdate map[int64]error  // id -> error
	getErr     error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byExt: map[string]*domain.Review{}}
}

func (r *fakeRepo) UpsertByExternalID(ctx context.Context, rv domain.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failUpsert[rv.ExternalID]; err != nil {
		return err
	}
	if cur, ok := r.byExt[rv.ExternalID]; ok {
		cur.Rating = rv.Rating
		cur.Text = rv.Text
		cur.Date = rv.Date
		cur.ArticleID = rv.ArticleID
		cur.IsAnswered = cur.IsAnswered || rv.IsAnswered
		cur.Processed = cur.Processed || rv.Processed
		cur.CanEdit = cur.CanEdit && rv.CanEdit
		if rv.Response != nil {
			s := *rv.Response
			cur.Response = &s
		}
		return nil
	}
	r.nextID++
	rv.ID = r.nextID
	r.byExt[rv.ExternalID] = &rv
	return nil
}

func (r *fakeRepo) UpdateReply(ctx context.Context, id int64, response string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failUpdate[id]; err != nil {
		return err
	}
	for _, rv := range r.byExt {
		if rv.ID == id {
			rv.Processed = true
			rv.IsAnswered = true
			s := response
			rv.Response = &s
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *fakeRepo) GetByID(ctx context.Context, id int64) (domain.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rv := range r.byExt {
		if rv.ID == id {
			return *rv, nil
		}
	}
	return domain.Review{}, domain.ErrNotFound
}

func (r *fakeRepo) GetByIDs(ctx context.Context, ids []int64) ([]domain.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []domain.Review
	for _, rv := range r.byExt {
		if want[rv.ID] {
			out = append(out, *rv)
		}
	}
	return out, nil
}

func (r *fakeRepo) List(ctx context.Context, f domain.ReviewFilter, pg domain.Page, order string) ([]domain.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Review
	for _, rv := range r.byExt {
		if f.Answered != nil && rv.IsAnswered != *f.Answered {
			continue
		}
		if f.ArticleID != "" && rv.ArticleID != f.ArticleID {
			continue
		}
		out = append(out, *rv)
	}
	sort.Slice(out, func(i, j int) bool {
		if order == domain.OrderDateAsc {
			return out[i].Date.Before(out[j].Date)
		}
		return out[j].Date.Before(out[i].Date)
	})
	if pg.Skip > 0 {
		if pg.Skip >= len(out) {
			return nil, nil
		}
		out = out[pg.Skip:]
	}
	if pg.Take > 0 && pg.Take < len(out) {
		out = out[:pg.Take]
	}
	return out, nil
}

func (r *fakeRepo) Count(ctx context.Context, f domain.ReviewFilter) (int64, error) {
	items, err := r.List(ctx, f, domain.Page{}, "")
	return int64(len(items)), err
}

// snapshot copies the whole store for before/after comparisons.
func (r *fakeRepo) snapshot() map[string]domain.Review {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]domain.Review, len(r.byExt))
	for k, v := range r.byExt {
		cp := *v
		if v.Response != nil {
			s := *v.Response
			cp.Response = &s
		}
		out[k] = cp
	}
	return out
}

func (r *fakeRepo) byExternalID(ext string) domain.Review {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rv, ok := r.byExt[ext]; ok {
		return *rv
	}
	return domain.Review{}
}

/********** fake cache **********/

// fakeCache mirrors the real adapter: values round-trip through JSON.
type fakeCache struct {
	mu    sync.Mutex
	store map[string][]byte
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.store[key] = b
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	return nil
}

func ptr[T any](v T) *T { return &v }

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
