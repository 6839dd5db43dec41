package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Abyoshii/review-refinery/internal/domain"
)

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func valResponse(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func (r *Repo) UpsertByExternalID(ctx context.Context, rv domain.Review) error {
	if rv.ExternalID == "" {
		return domain.ErrNoExternalID
	}
	_, err := r.db.ExecContext(ctx, upsertReviewSQL,
		rv.ExternalID,
		rv.Rating,
		rv.Text,
		rv.Date,
		rv.ArticleID,
		rv.IsAnswered,
		rv.Processed,
		rv.CanEdit,
		valResponse(rv.Response),
	)
	return err
}

func (r *Repo) UpdateReply(ctx context.Context, id int64, response string) error {
	res, err := r.db.ExecContext(ctx, updateReplySQL, response, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// MySQL also reports 0 when the row already holds these exact
		// values, so confirm absence before declaring not-found.
		if _, gerr := r.GetByID(ctx, id); gerr != nil {
			return gerr
		}
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id int64) (domain.Review, error) {
	row := r.db.QueryRowContext(ctx, selectReviewColumns+" WHERE id = ?", id)
	rv, err := scanReview(row)
	if err == sql.ErrNoRows {
		return domain.Review{}, domain.ErrNotFound
	}
	return rv, err
}

func (r *Repo) GetByIDs(ctx context.Context, ids []int64) ([]domain.Review, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = "?"
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx,
		selectReviewColumns+" WHERE id IN ("+strings.Join(ph, ",")+")", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReviews(rows)
}

func (r *Repo) List(ctx context.Context, f domain.ReviewFilter, pg domain.Page, order string) ([]domain.Review, error) {
	where, args := buildWhere(f)
	dir := "DESC"
	if order == domain.OrderDateAsc {
		dir = "ASC"
	}
	if pg.Take <= 0 {
		pg.Take = 50
	}
	q := fmt.Sprintf("%s%s ORDER BY `date` %s, id %s LIMIT ? OFFSET ?", selectReviewColumns, where, dir, dir)
	args = append(args, pg.Take, pg.Skip)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReviews(rows)
}

func (r *Repo) Count(ctx context.Context, f domain.ReviewFilter) (int64, error) {
	where, args := buildWhere(f)
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reviews"+where, args...).Scan(&n)
	return n, err
}

func buildWhere(f domain.ReviewFilter) (string, []any) {
	var conds []string
	var args []any
	if f.Answered != nil {
		conds = append(conds, "is_answered = ?")
		args = append(args, *f.Answered)
	}
	if f.ArticleID != "" {
		conds = append(conds, "article_id = ?")
		args = append(args, f.ArticleID)
	}
	if f.From != nil {
		conds = append(conds, "`date` >= ?")
		args = append(args, *f.From)
	}
	if f.To != nil {
		conds = append(conds, "`date` <= ?")
		args = append(args, *f.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface{ Scan(dest ...any) error }

func scanReview(row rowScanner) (domain.Review, error) {
	var rv domain.Review
	var response sql.NullString
	if err := row.Scan(
		&rv.ID,
		&rv.ExternalID,
		&rv.Rating,
		&rv.Text,
		&rv.Date,
		&rv.ArticleID,
		&rv.IsAnswered,
		&rv.Processed,
		&rv.CanEdit,
		&response,
	); err != nil {
		return domain.Review{}, err
	}
	if response.Valid {
		s := response.String
		rv.Response = &s
	}
	return rv, nil
}

func collectReviews(rows *sql.Rows) ([]domain.Review, error) {
	var out []domain.Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
