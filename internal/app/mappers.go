package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Abyoshii/review-refinery/internal/domain"
)

/********** alias registries (single source of truth) **********/

// The feedbacks API has shipped several payload shapes over time; nested
// paths use dots.
var feedbackAliases = map[string][]string{
	"external_id": {"id", "feedbackId", "feedback_id"},
	"text":        {"text", "review", "comment", "body"},
	"rating":      {"productValuation", "valuation", "rating", "score"},
	"date":        {"createDate", "createdDate", "date", "created_at"},
	"article":     {"nmId", "productDetails.nmId", "articleId", "article_id"},
	"answer_text": {"answer.text", "supplierFeedbackAnswer", "answerText"},
	"state":       {"answer.state", "state"},
}

var answeredFlagPaths = []string{"hasSupplierFeedbackAnswer", "isAnswered", "answered"}

// stateDeclined is the terminal state tag: once the source reports it, the
// reply can never be edited again.
const stateDeclined = "declined"

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// lookupStr returns string at path or "".
func lookupStr(m map[string]any, path string) string {
	if v := lookupAny(m, path); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// firstNonEmptyAlias: first non-empty string for a named alias set.
func firstNonEmptyAlias(m map[string]any, key string) string {
	for _, p := range feedbackAliases[key] {
		if s := lookupStr(m, p); s != "" {
			return s
		}
	}
	return ""
}

// firstStringish accepts strings or numbers at any alias (nmId is numeric
// in most payloads).
func firstStringish(m map[string]any, key string) string {
	for _, p := range feedbackAliases[key] {
		switch v := lookupAny(m, p).(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatInt(int64(v), 10)
		case int:
			return strconv.Itoa(v)
		case int64:
			return strconv.FormatInt(v, 10)
		}
	}
	return ""
}

// firstIntFlexible: int from several paths (float64/int/string).
func firstIntFlexible(m map[string]any, paths ...string) (int, bool) {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case float64:
			return int(v), true
		case int:
			return v, true
		case int64:
			return int(v), true
		case string:
			s := strings.TrimSpace(v)
			if s == "" {
				continue
			}
			if n, err := strconv.Atoi(s); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func firstBool(m map[string]any, paths ...string) bool {
	for _, k := range paths {
		if b, ok := lookupAny(m, k).(bool); ok && b {
			return true
		}
	}
	return false
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseFeedbackDate(s string) (time.Time, bool) {
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

/********** feedback mapper **********/

// mapFeedback converts one raw feedback record into the store schema.
// A record that cannot be keyed or attributed is a validation error; the
// caller skips it and keeps going.
func mapFeedback(f map[string]any) (domain.Review, error) {
	extID := firstStringish(f, "external_id")
	if extID == "" {
		return domain.Review{}, fmt.Errorf("feedback without external id")
	}

	article := firstStringish(f, "article")
	if article == "" {
		return domain.Review{}, fmt.Errorf("feedback %s: missing product id", extID)
	}

	rating, ok := firstIntFlexible(f, feedbackAliases["rating"]...)
	if !ok {
		return domain.Review{}, fmt.Errorf("feedback %s: missing valuation", extID)
	}
	if rating < 1 || rating > 5 {
		return domain.Review{}, fmt.Errorf("feedback %s: valuation %d out of range", extID, rating)
	}

	rv := domain.Review{
		ExternalID: extID,
		Rating:     rating,
		Text:       firstNonEmptyAlias(f, "text"),
		ArticleID:  article,
		CanEdit:    !strings.EqualFold(firstNonEmptyAlias(f, "state"), stateDeclined),
	}

	if ds := firstNonEmptyAlias(f, "date"); ds != "" {
		if t, ok := parseFeedbackDate(ds); ok {
			rv.Date = t.UTC()
		}
	}
	if rv.Date.IsZero() {
		return domain.Review{}, fmt.Errorf("feedback %s: missing create date", extID)
	}

	answer := firstNonEmptyAlias(f, "answer_text")
	answered := answer != "" || firstBool(f, answeredFlagPaths...)
	rv.IsAnswered = answered
	rv.Processed = answered
	if answered {
		// processed implies a response value; an answered feedback with no
		// text still records presence.
		rv.Response = &answer
	}
	return rv, nil
}
