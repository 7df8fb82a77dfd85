// internal/adapters/anyplace/client.go
package anyplace

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"anyplace_viewer/internal/adapters/observability"
	"anyplace_viewer/internal/domain"
)

const (
	pathSignAccount = "/anyplace/mapping/accounts/sign"
	pathBuildings   = "/anyplace/mapping/building/all"
	pathPois        = "/anyplace/navigation/pois/all_pois"
)

type Client struct {
	base     string
	hc       *http.Client
	rl       *rate.Limiter
	inflight *semaphore.Weighted
}

func New(base string, rps, maxInFlight int) (*Client, error) {
	if base == "" {
		return nil, fmt.Errorf("anyplace base URL is required")
	}
	if rps <= 0 {
		rps = 10
	}
	if maxInFlight <= 0 {
		maxInFlight = 16
	}
	return &Client{
		base:     strings.TrimRight(base, "/"),
		hc:       &http.Client{Timeout: 20 * time.Second},
		rl:       rate.NewLimiter(rate.Limit(rps), rps),
		inflight: semaphore.NewWeighted(int64(maxInFlight)),
	}, nil
}

// ---- Public API ----

func (c *Client) RegisterAccount(ctx context.Context, a domain.AccountRegistration) error {
	req := signAccountReq{Name: a.Name, Type: a.Provider, AccessToken: a.AccessToken}
	return c.post(ctx, pathSignAccount, req, nil)
}

func (c *Client) ListBuildings(ctx context.Context, campus string) (domain.BuildingList, error) {
	var out buildingsResp
	if err := c.post(ctx, pathBuildings, buildingsReq{Campus: campus}, &out); err != nil {
		return domain.BuildingList{}, err
	}
	return mapBuildings(out), nil
}

func (c *Client) SearchPois(ctx context.Context, q domain.PoiQuery) ([]domain.POI, error) {
	req := poisReq{Campus: q.Campus, Letters: q.Letters, Greeklish: strconv.FormatBool(q.Greeklish)}
	var out poisResp
	if err := c.post(ctx, pathPois, req, &out); err != nil {
		return nil, err
	}
	return mapPois(out.Pois), nil
}

// ---- Internals ----

var (
	ErrNotFound     = fmt.Errorf("anyplace: %w", domain.ErrNotFound)
	ErrUnauthorized = fmt.Errorf("anyplace: %w", domain.ErrUnauthorized)
	ErrForbidden    = fmt.Errorf("anyplace: %w", domain.ErrForbidden)
)

// post sends a JSON body with client-side rate limiting, an in-flight bound,
// retries, and JSON decode into out (out may be nil).
// Retries on 429 and transient 5xx, honoring Retry-After when provided.
func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("anyplace: encode %s: %w", path, err)
	}
	if err := c.inflight.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.inflight.Release(1)

	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		// build a fresh request each attempt
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "anyplace-viewer/1.0")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal("anyplace", path, 0, time.Since(start))
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
		observability.ObserveExternal("anyplace", path, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated, http.StatusAccepted:
			defer resp.Body.Close()
			if out == nil {
				io.Copy(io.Discard, resp.Body)
				return nil
			}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("anyplace: decode %s: %w", path, err)
			}
			return nil

		case http.StatusNoContent:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil

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
			lastErr = statusError(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			err := statusError(resp)
			resp.Body.Close()
			return err
		}
	}

	return lastErr
}

// statusError folds the Anyplace error envelope ({status, message, status_code})
// into the error when the body carries one.
func statusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var env errorEnvelope
	if err := json.Unmarshal(b, &env); err == nil && env.Message != "" {
		return &StatusError{Code: resp.StatusCode, Message: env.Message}
	}
	return &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(b))}
}

type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("anyplace: bad status %d", e.Code)
	}
	return fmt.Sprintf("anyplace: bad status %d: %s", e.Code, e.Message)
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
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

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
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

// backoff returns an exponential delay (200ms, 400ms, 800ms...) with up to
// +50% jitter.
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
