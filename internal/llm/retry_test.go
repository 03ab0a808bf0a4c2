package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingObserver struct{ calls atomic.Int32 }

func (o *countingObserver) ObserveLLMCall(time.Duration, error) { o.calls.Add(1) }

func newTestRetrying(next Client, obs CallObserver) *RetryingClient {
	return NewRetryingClient(next, RetryOptions{
		Timeout:     time.Second,
		MaxAttempts: 2,
		BackoffBase: time.Millisecond,
		Observer:    obs,
		Logger:      zerolog.Nop(),
	})
}

func TestRetryingClientRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	next := ClientFunc(func(context.Context, Request) (Response, error) {
		if calls.Add(1) == 1 {
			return Response{}, &Error{Kind: KindTransport, Op: "test", Status: 503, Err: errors.New("unavailable")}
		}
		return textResponse("ok"), nil
	})
	obs := &countingObserver{}

	resp, err := newTestRetrying(next, obs).Generate(context.Background(), TextRequest("hi"))
	require.NoError(t, err)
	text, _ := FirstText(resp)
	assert.Equal(t, "ok", text)
	assert.EqualValues(t, 2, calls.Load())
	assert.EqualValues(t, 2, obs.calls.Load())
}

func TestRetryingClientStopsAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	next := ClientFunc(func(context.Context, Request) (Response, error) {
		calls.Add(1)
		return Response{}, &Error{Kind: KindTransport, Op: "test", Status: 500, Err: errors.New("boom")}
	})

	_, err := newTestRetrying(next, nil).Generate(context.Background(), TextRequest("hi"))
	require.Error(t, err)
	assert.Equal(t, KindTransport, KindOf(err))
	assert.EqualValues(t, 2, calls.Load())
}

func TestRetryingClientDoesNotRetryConfiguration(t *testing.T) {
	var calls atomic.Int32
	next := ClientFunc(func(context.Context, Request) (Response, error) {
		calls.Add(1)
		return Response{}, &Error{Kind: KindConfiguration, Op: "test", Err: ErrMissingAPIKey}
	})

	_, err := newTestRetrying(next, nil).Generate(context.Background(), TextRequest("hi"))
	require.ErrorIs(t, err, ErrMissingAPIKey)
	assert.EqualValues(t, 1, calls.Load())
}

func TestRetryingClientDoesNotRetryClientStatus(t *testing.T) {
	var calls atomic.Int32
	next := ClientFunc(func(context.Context, Request) (Response, error) {
		calls.Add(1)
		return Response{}, &Error{Kind: KindTransport, Op: "test", Status: 400, Err: errors.New("bad request")}
	})

	_, err := newTestRetrying(next, nil).Generate(context.Background(), TextRequest("hi"))
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestRetryingClientAttemptTimeout(t *testing.T) {
	var calls atomic.Int32
	next := ClientFunc(func(ctx context.Context, _ Request) (Response, error) {
		calls.Add(1)
		<-ctx.Done()
		return Response{}, ctx.Err()
	})
	c := NewRetryingClient(next, RetryOptions{
		Timeout:     10 * time.Millisecond,
		MaxAttempts: 2,
		BackoffBase: time.Millisecond,
		Logger:      zerolog.Nop(),
	})

	_, err := c.Generate(context.Background(), TextRequest("hi"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, KindTransport, KindOf(err))
	assert.EqualValues(t, 2, calls.Load())
}
