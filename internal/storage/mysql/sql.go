package mysql

// Note: `text` and `date` are reserved-ish; keep them quoted everywhere.
//
// The upsert is keyed by the unique external_id. Source-owned fields (rating,
// text, date, article_id) follow the latest sync. Reply state merges monotone
// instead of overwriting, so a sync racing a just-submitted local reply can
// not clear it: processed/is_answered only ever go true, response keeps the
// stored value when the source has none yet, and can_edit is sticky false
// once the source reported the declined state.
const upsertReviewSQL = "INSERT INTO reviews\n" +
	"  (external_id, rating, `text`, `date`, article_id, is_answered, processed, can_edit, response)\n" +
	"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)\n" +
	"ON DUPLICATE KEY UPDATE\n" +
	"  rating      = VALUES(rating),\n" +
	"  `text`      = VALUES(`text`),\n" +
	"  `date`      = VALUES(`date`),\n" +
	"  article_id  = VALUES(article_id),\n" +
	"  is_answered = reviews.is_answered OR VALUES(is_answered),\n" +
	"  processed   = reviews.processed OR VALUES(processed),\n" +
	"  can_edit    = reviews.can_edit AND VALUES(can_edit),\n" +
	"  response    = COALESCE(VALUES(response), reviews.response),\n" +
	"  updated_at  = CURRENT_TIMESTAMP\n"

// Field-level update for the reply path: never touches the source-owned
// columns, so it cannot clobber a concurrent sync.
const updateReplySQL = `
UPDATE reviews
SET processed = 1, is_answered = 1, response = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?
`

const selectReviewColumns = "SELECT id, external_id, rating, `text`, `date`, article_id, is_answered, processed, can_edit, response FROM reviews"
