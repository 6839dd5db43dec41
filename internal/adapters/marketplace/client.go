package marketplace

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Abyoshii/review-refinery/internal/adapters/observability"
	"github.com/Abyoshii/review-refinery/internal/domain"
)

// TokenSource yields the current bearer token. It is consulted on every
// request so rotated credentials take effect immediately.
type TokenSource func() (string, error)

type Client struct {
	base  string
	hc    *http.Client
	token TokenSource
	rl    *rate.Limiter
}

func New(base string, token TokenSource, rps int) (*Client, error) {
	if token == nil {
		return nil, fmt.Errorf("token source is required")
	}
	if rps <= 0 {
		rps = 3
	}
	return &Client{
		base:  strings.TrimRight(base, "/"),
		hc:    &http.Client{Timeout: 20 * time.Second},
		token: token,
		rl:    rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

var (
	ErrNotFound     = errors.New("feedbacks: not found")
	ErrUnauthorized = errors.New("feedbacks: unauthorized")
	ErrForbidden    = errors.New("feedbacks: forbidden")
)

// The feedbacks API wraps list responses in {data:{feedbacks:[...]}} and
// signals application errors via errorText even on HTTP 200.
type listEnvelope struct {
	Data struct {
		Feedbacks []map[string]any `json:"feedbacks"`
	} `json:"data"`
	Error            bool   `json:"error"`
	ErrorText        string `json:"errorText"`
	AdditionalErrors any    `json:"additionalErrors"`
}

func (c *Client) ListFeedbacks(ctx context.Context, q domain.ListQuery) ([]map[string]any, error) {
	params := url.Values{}
	if q.Take <= 0 {
		q.Take = 100
	}
	params.Set("take", strconv.Itoa(q.Take))
	params.Set("skip", strconv.Itoa(q.Skip))
	order := q.Order
	if order == "" {
		order = domain.OrderDateDesc
	}
	params.Set("order", order)
	if q.Answered != nil {
		params.Set("isAnswered", strconv.FormatBool(*q.Answered))
	}
	if q.ArticleID != "" {
		params.Set("nmId", q.ArticleID)
	}

	var env listEnvelope
	if err := c.get(ctx, c.base+"/feedbacks?"+params.Encode(), &env); err != nil {
		return nil, err
	}
	if env.Error {
		return nil, fmt.Errorf("feedbacks api: %s", env.ErrorText)
	}
	return env.Data.Feedbacks, nil
}

// SubmitReply posts one supplier answer. A single attempt only: on an
// ambiguous failure the reply may have landed, so the caller must re-check
// processed state instead of resubmitting.
func (c *Client) SubmitReply(ctx context.Context, externalID, text string) error {
	if externalID == "" {
		return domain.ErrNoExternalID
	}
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	u := fmt.Sprintf("%s/feedbacks/%s/reply", c.base, url.PathEscape(externalID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if err := c.authorize(req); err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		observability.ObserveExternal("feedbacks", "reply", 0, time.Since(start))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	defer resp.Body.Close()
	observability.ObserveExternal("feedbacks", "reply", resp.StatusCode, time.Since(start))

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		io.Copy(io.Discard, resp.Body)
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("reply rejected: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
}

func (c *Client) authorize(req *http.Request) error {
	tok, err := c.token()
	if err != nil {
		return fmt.Errorf("resolve token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "review-refinery/1.0")
	return nil
}

// get performs a GET with client-side rate limiting, retries, and JSON decode
// into out. Retries on 429 and transient 5xx, honoring Retry-After.
func (c *Client) get(ctx context.Context, u string, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		if err := c.authorize(req); err != nil {
			return err
		}

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal("feedbacks", "list", 0, time.Since(start))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}
		observability.ObserveExternal("feedbacks", "list", resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			return err

		case http.StatusNotFound:
			resp.Body.Close()
			return ErrNotFound

		case http.StatusUnauthorized:
			resp.Body.Close()
			return ErrUnauthorized

		case http.StatusForbidden:
			resp.Body.Close()
			return ErrForbidden

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("remote %d", resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return lastErr
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After (seconds or HTTP-date). 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff doubles per attempt (200ms, 400ms, 800ms...) with up to +50%
// jitter from crypto/rand so concurrent callers do not herd.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	j := time.Duration(0.5 * f * float64(base))
	return base + j
}
