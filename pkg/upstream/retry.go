package upstream

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v5"

	"github.com/wilhg/shopmcp/pkg/errmodel"
)

// RetryPolicy holds the retry constants from configuration.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// Retrying wraps a Caller and retries safe reads.
// Only GET requests are retried, and only on network failures or a 502/503/504
// status. Writes pass straight through so side effects never repeat.
type Retrying struct {
	next   Caller
	policy RetryPolicy
	logger *slog.Logger
}

// NewRetrying wraps next with the given policy.
func NewRetrying(next Caller, policy RetryPolicy, logger *slog.Logger) *Retrying {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrying{next: next, policy: policy, logger: logger}
}

func (r *Retrying) Do(ctx context.Context, req *Request) (*Envelope, error) {
	if r.policy.MaxRetries <= 0 || req == nil || (req.Method != http.MethodGet && req.Method != "") {
		return r.next.Do(ctx, req)
	}
	attempt := 0
	env, err := backoff.Retry(ctx, func() (*Envelope, error) {
		attempt++
		env, err := r.next.Do(ctx, req)
		if err != nil && !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return env, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(r.policy.Delay)),
		backoff.WithMaxTries(uint(r.policy.MaxRetries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.logger.Warn("retrying upstream read", "path", req.Path, "attempt", attempt, "wait", wait, "error", err)
		}),
	)
	if err != nil {
		if ce := errmodel.From(err); ce.Category != errmodel.CategorySystem {
			return nil, ce
		}
		return nil, errmodel.Network("canceled", "upstream retry aborted", err)
	}
	return env, nil
}

func retryable(err error) bool {
	ce := errmodel.From(err)
	switch ce.Category {
	case errmodel.CategoryNetwork:
		return ce.Code != "malformed_envelope"
	case errmodel.CategoryUpstream:
		switch ce.Context["status"] {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}
