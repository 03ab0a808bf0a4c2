package llm

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/antoniostano/finchat/internal/reliability"
)

// CallObserver receives the latency and outcome of every attempt.
type CallObserver interface {
	ObserveLLMCall(d time.Duration, err error)
}

// RetryingClient bounds each attempt with a timeout and retries transient
// transport failures with exponential backoff. Exhausted retries are terminal.
type RetryingClient struct {
	next        Client
	timeout     time.Duration
	maxAttempts int
	backoffBase time.Duration
	observer    CallObserver
	logger      zerolog.Logger
}

type RetryOptions struct {
	Timeout     time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	Observer    CallObserver
	Logger      zerolog.Logger
}

func NewRetryingClient(next Client, opts RetryOptions) *RetryingClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 2
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 300 * time.Millisecond
	}
	return &RetryingClient{
		next:        next,
		timeout:     opts.Timeout,
		maxAttempts: opts.MaxAttempts,
		backoffBase: opts.BackoffBase,
		observer:    opts.Observer,
		logger:      opts.Logger,
	}
}

func (c *RetryingClient) Generate(ctx context.Context, req Request) (Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			wait := reliability.ExponentialBackoff(attempt-1, c.backoffBase, 8*c.backoffBase)
			if err := reliability.Sleep(ctx, wait); err != nil {
				return Response{}, &Error{Kind: KindTransport, Op: "generate", Err: err}
			}
		}

		resp, err := c.attempt(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !c.retryable(ctx, err) {
			break
		}
		c.logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", c.maxAttempts).
			Msg("llm call failed, retrying")
	}

	var le *Error
	if errors.As(lastErr, &le) {
		return Response{}, lastErr
	}
	return Response{}, &Error{Kind: KindTransport, Op: "generate", Err: lastErr}
}

func (c *RetryingClient) attempt(ctx context.Context, req Request) (Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.next.Generate(attemptCtx, req)
	if c.observer != nil {
		c.observer.ObserveLLMCall(time.Since(start), err)
	}
	return resp, err
}

func (c *RetryingClient) retryable(parent context.Context, err error) bool {
	if parent.Err() != nil {
		return false
	}
	var le *Error
	if errors.As(err, &le) {
		switch le.Kind {
		case KindConfiguration, KindParse:
			return false
		}
		if le.Status > 0 {
			return reliability.IsRetryableHTTPStatus(le.Status)
		}
		return true
	}
	return reliability.IsTransientError(parent, err)
}
