/*
This file provides the network execution cost used by the eligibility cost gate.

Two sources exist: a static value for local and test networks, and an HTTP endpoint polled on
demand with a short cache so a burst of trades does not hammer the endpoint. Failures are cached
for the same TTL, and concurrent callers share one in-flight fetch.
*/

package netcost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/elys-network/autocompound/internal/logger"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

var ErrInvalidCostData = errors.New("invalid network cost data received")

const (
	MAX_RETRIES     = 3
	TIMEOUT_SECONDS = 10
	RETRY_BACKOFF   = 500 * time.Millisecond
)

// Oracle reports the current network execution cost.
type Oracle interface {
	CurrentCost(ctx context.Context) (uint64, error)
}

// Static always reports the same cost.
type Static uint64

func (s Static) CurrentCost(context.Context) (uint64, error) {
	return uint64(s), nil
}

// costResponse is the body served by the cost endpoint, e.g. {"cost": 42}.
type costResponse struct {
	Cost *uint64 `json:"cost"`
}

// HTTPOracle fetches the cost from an HTTP endpoint and caches the outcome for a TTL.
// The mutex only guards the cache; network I/O happens outside it.
type HTTPOracle struct {
	url     string
	client  *http.Client
	ttl     time.Duration
	retries int
	clock   clockwork.Clock
	limiter *rate.Limiter
	logger  zerolog.Logger
	flight  singleflight.Group

	mu        sync.Mutex
	cached    uint64
	lastErr   error
	fetchedAt time.Time
	hasResult bool
}

type HTTPOracleConfig struct {
	URL     string
	TTL     time.Duration
	Clock   clockwork.Clock // Defaults to the real clock
	Client  *http.Client    // Defaults to a client with TIMEOUT_SECONDS timeout
	RPS     float64         // Outbound request rate limit, defaults to 2
	Retries int             // Attempts per fetch, defaults to MAX_RETRIES
}

func NewHTTPOracle(cfg HTTPOracleConfig) (*HTTPOracle, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("cost oracle URL cannot be empty")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("cost oracle TTL must be positive")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: TIMEOUT_SECONDS * time.Second}
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 2
	}
	if cfg.Retries <= 0 {
		cfg.Retries = MAX_RETRIES
	}
	return &HTTPOracle{
		url:     cfg.URL,
		client:  cfg.Client,
		ttl:     cfg.TTL,
		retries: cfg.Retries,
		clock:   cfg.Clock,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), 1),
		logger:  logger.GetForComponent("cost_oracle"),
	}, nil
}

// CurrentCost returns the cached outcome while it is fresh, otherwise joins or starts a fetch.
// The fetch outlives a caller whose context ends first, so its result still lands in the cache.
func (o *HTTPOracle) CurrentCost(ctx context.Context) (uint64, error) {
	if cost, ok, err := o.fresh(); ok {
		return cost, err
	}

	ch := o.flight.DoChan("cost", func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.fetchBudget())
		defer cancel()
		cost, err := o.fetchWithRetry(fctx)
		o.store(cost, err)
		return cost, err
	})
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(uint64), nil
	}
}

func (o *HTTPOracle) fresh() (uint64, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.hasResult || o.clock.Since(o.fetchedAt) >= o.ttl {
		return 0, false, nil
	}
	return o.cached, true, o.lastErr
}

func (o *HTTPOracle) store(cost uint64, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cached, o.lastErr = cost, err
	o.fetchedAt = o.clock.Now()
	o.hasResult = true
}

// fetchBudget bounds one fetch including its retries and backoff.
func (o *HTTPOracle) fetchBudget() time.Duration {
	budget := time.Duration(o.retries) * TIMEOUT_SECONDS * time.Second
	for attempt := 1; attempt < o.retries; attempt++ {
		budget += time.Duration(attempt) * RETRY_BACKOFF
	}
	return budget
}

func (o *HTTPOracle) fetchWithRetry(ctx context.Context) (uint64, error) {
	var lastErr error
	for attempt := 1; attempt <= o.retries; attempt++ {
		if err := o.limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("waiting for cost oracle rate limit: %w", err)
		}
		cost, err := o.fetch(ctx)
		if err == nil {
			o.logger.Debug().Uint64("cost", cost).Int("attempt", attempt).Msg("Network cost fetched")
			return cost, nil
		}
		lastErr = err
		o.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("maxRetries", o.retries).
			Msg("Network cost fetch failed, will retry if attempts remain")

		if attempt < o.retries {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-o.clock.After(time.Duration(attempt) * RETRY_BACKOFF):
			}
		}
	}
	return 0, fmt.Errorf("failed to fetch network cost after %d attempts: %w", o.retries, lastErr)
}

func (o *HTTPOracle) fetch(ctx context.Context) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url, nil)
	if err != nil {
		return 0, fmt.Errorf("building cost request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("cost request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("cost endpoint returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return 0, fmt.Errorf("reading cost response: %w", err)
	}

	var parsed costResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCostData, err)
	}
	if parsed.Cost == nil {
		return 0, fmt.Errorf("%w: missing cost field", ErrInvalidCostData)
	}
	return *parsed.Cost, nil
}
