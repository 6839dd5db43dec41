package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/Abyoshii/review-refinery/internal/app"
	"github.com/Abyoshii/review-refinery/internal/domain"
)

type Handlers struct {
	Q    *app.QueryService
	Sync *app.SyncService
	R    *app.Responder

	// SyncPageSize is the default take for POST /v1/sync.
	SyncPageSize int
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Get("/v1/reviews", h.listReviews)
	s.mux.Get("/v1/reviews/stats", h.stats)
	s.mux.Post("/v1/sync", h.syncNow)
	s.mux.Post("/v1/reviews/{id}/reply", h.reply)
	s.mux.Post("/v1/reviews/reply-batch", h.replyBatch)
	s.mux.Post("/v1/reviews/drafts", h.drafts)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

/********** wire shapes **********/

type reviewJSON struct {
	ID         int64   `json:"id"`
	ExternalID string  `json:"externalId"`
	Rating     int     `json:"rating"`
	Text       string  `json:"text"`
	Date       string  `json:"date"`
	ArticleID  string  `json:"articleId"`
	Processed  bool    `json:"processed"`
	Response   *string `json:"response,omitempty"`
	CanEdit    bool    `json:"canEdit"`
}

func toReviewJSON(rv domain.Review) reviewJSON {
	return reviewJSON{
		ID:         rv.ID,
		ExternalID: rv.ExternalID,
		Rating:     rv.Rating,
		Text:       rv.Text,
		Date:       rv.Date.UTC().Format(time.RFC3339),
		ArticleID:  rv.ArticleID,
		Processed:  rv.Processed,
		Response:   rv.Response,
		CanEdit:    rv.CanEdit,
	}
}

type batchFailureJSON struct {
	ID    int64  `json:"id"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

type batchResultJSON struct {
	Succeeded []int64            `json:"succeeded"`
	Failed    []batchFailureJSON `json:"failed"`
}

func toBatchJSON(res domain.BatchResult) batchResultJSON {
	out := batchResultJSON{Succeeded: res.Succeeded, Failed: []batchFailureJSON{}}
	if out.Succeeded == nil {
		out.Succeeded = []int64{}
	}
	for _, f := range res.Failed {
		out.Failed = append(out.Failed, batchFailureJSON{ID: f.ReviewID, Stage: string(f.Stage), Error: f.Err.Error()})
	}
	return out
}

/********** handlers **********/

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var f domain.ReviewFilter
	switch q.Get("answered") {
	case "":
	case "true":
		v := true
		f.Answered = &v
	case "false":
		v := false
		f.Answered = &v
	default:
		writeProblem(w, http.StatusBadRequest, "Invalid filter", "answered must be true or false")
		return
	}
	f.ArticleID = q.Get("nmId")
	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		if s := q.Get(name); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid filter", name+" must be RFC3339")
				return
			}
			*dst = &t
		}
	}

	take := 50
	if ts := q.Get("take"); ts != "" {
		n, err := strconv.Atoi(ts)
		if err != nil || n <= 0 || n > 200 {
			writeProblem(w, http.StatusBadRequest, "Invalid take", "take must be an integer between 1 and 200")
			return
		}
		take = n
	}
	skip := 0
	if ss := q.Get("skip"); ss != "" {
		n, err := strconv.Atoi(ss)
		if err != nil || n < 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid skip", "skip must be a non-negative integer")
			return
		}
		skip = n
	}
	order := q.Get("order")
	if order != "" && order != domain.OrderDateDesc && order != domain.OrderDateAsc {
		writeProblem(w, http.StatusBadRequest, "Invalid order", "order must be dateDesc or dateAsc")
		return
	}

	items, err := h.Q.ListReviews(r.Context(), f, domain.Page{Take: take, Skip: skip}, order)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Store Error", "failed to list reviews")
		return
	}
	out := make([]reviewJSON, 0, len(items))
	for _, rv := range items {
		out = append(out, toReviewJSON(rv))
	}

	etag, body := calcETagAndBody(struct {
		Reviews []reviewJSON `json:"reviews"`
	}{Reviews: out})
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write listReviews body")
	}
}

func (h *Handlers) stats(w http.ResponseWriter, r *http.Request) {
	n, err := h.Q.UnansweredCount(r.Context())
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Store Error", "failed to count reviews")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"unanswered": n})
}

func (h *Handlers) syncNow(w http.ResponseWriter, r *http.Request) {
	take := h.SyncPageSize
	if ts := r.URL.Query().Get("take"); ts != "" {
		n, err := strconv.Atoi(ts)
		if err != nil || n <= 0 || n > 5000 {
			writeProblem(w, http.StatusBadRequest, "Invalid take", "take must be an integer between 1 and 5000")
			return
		}
		take = n
	}
	res, err := h.Sync.Sync(r.Context(), take)
	if err != nil {
		writeProblem(w, http.StatusBadGateway, "Sync Failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"saved": res.Saved, "fetched": res.Fetched})
}

func (h *Handlers) reply(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "text is required")
		return
	}
	if err := h.R.Reply(r.Context(), id, req.Text); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, domain.ErrNotFound) {
			status = http.StatusNotFound
		} else if errors.Is(err, domain.ErrNoExternalID) || errors.Is(err, domain.ErrNotEditable) {
			status = http.StatusConflict
		}
		writeProblem(w, status, "Reply Failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handlers) replyBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs       []int64          `json:"ids"`
		Text      string           `json:"text"`
		Responses map[int64]string `json:"responses"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "malformed JSON")
		return
	}
	res, err := h.R.SubmitBatch(r.Context(), req.IDs, req.Text, req.Responses)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Batch Rejected", err.Error())
		return
	}
	// partial failure is a first-class result, not an HTTP error
	writeJSON(w, http.StatusOK, toBatchJSON(res))
}

func (h *Handlers) drafts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []int64 `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "ids are required")
		return
	}
	out, err := h.Q.DraftResponses(r.Context(), req.IDs)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Store Error", "failed to load reviews")
		return
	}
	writeJSON(w, http.StatusOK, map[string]map[int64]string{"responses": out})
}
