package rpcClient

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	initialInterval = 500 * time.Millisecond
	maxInterval     = 5 * time.Second
	multiplier      = 1.5
	maxElapsedTime  = 2 * time.Minute
)

// RetryConfig controls the exponential backoff used for idempotent reads.
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxElapsedTime  time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: initialInterval,
		MaxInterval:     maxInterval,
		Multiplier:      multiplier,
		MaxElapsedTime:  maxElapsedTime,
	}
}

func retry[T any](ctx context.Context, c *Client, logMessage string, operation func() (T, error)) (T, error) {
	retries := 0
	wrappedOperation := func() (T, error) {
		c.logger.Sugar().Debugw(logMessage, "retries", retries)
		retries++
		return operation()
	}

	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = c.retry.InitialInterval
	exponentialBackoff.MaxInterval = c.retry.MaxInterval
	exponentialBackoff.Multiplier = c.retry.Multiplier

	return backoff.Retry(
		ctx,
		wrappedOperation,
		backoff.WithBackOff(exponentialBackoff),
		backoff.WithMaxElapsedTime(c.retry.MaxElapsedTime),
	)
}

// classify marks errors that retrying cannot fix as permanent: JSON-RPC
// errors returned by the node and HTTP 4xx responses.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return backoff.Permanent(err)
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode < http.StatusInternalServerError {
		return backoff.Permanent(err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backoff.Permanent(err)
	}
	return err
}
