package llm

import (
	"fmt"
	"time"

	"github.com/umputun/newsvault/pkg/domain"
)

// empty response reasons
const (
	ReasonRateLimit     = "rate_limit"
	ReasonContentFilter = "content_filter"
	ReasonLength        = "length"
	ReasonNoSignal      = "no_signal"
)

// RetryPolicy defines attempts and backoff of summarization calls
type RetryPolicy struct {
	MaxAttempts     int
	StandardBackoff time.Duration // base for transient errors and empty responses
	ExtendedBackoff time.Duration // base for rate limited responses
	MaxBackoff      time.Duration
}

// Outcome is the result of a single LLM call. The set of outcomes is closed,
// each one decides whether and when the call is retried.
type Outcome interface {
	retryDelay(p RetryPolicy, attempt int) (time.Duration, bool)
	String() string
}

// Success is a valid summary
type Success struct {
	Summary domain.Summary
}

// EmptyResponse is a response without content
type EmptyResponse struct {
	Reason string
}

// ParseError is a response which is not a valid summary. It is never retried.
type ParseError struct {
	Err error
	Raw string
}

// TransientError is a timeout, network or server failure
type TransientError struct {
	Err error
}

// RejectedRequest is a request the endpoint refused as invalid (400, 422), e.g. context length exceeded.
// Repeating the same prompt gets the same answer, so it is never retried.
type RejectedRequest struct {
	Code int
	Err  error
}

func (Success) retryDelay(RetryPolicy, int) (time.Duration, bool) { return 0, false }

func (e EmptyResponse) retryDelay(p RetryPolicy, attempt int) (time.Duration, bool) {
	if attempt >= p.MaxAttempts {
		return 0, false
	}
	if e.Reason == ReasonRateLimit {
		return backoff(p.ExtendedBackoff, attempt, p.MaxBackoff), true
	}
	return backoff(p.StandardBackoff, attempt, p.MaxBackoff), true
}

func (ParseError) retryDelay(RetryPolicy, int) (time.Duration, bool) { return 0, false }

func (RejectedRequest) retryDelay(RetryPolicy, int) (time.Duration, bool) { return 0, false }

func (e TransientError) retryDelay(p RetryPolicy, attempt int) (time.Duration, bool) {
	if attempt >= p.MaxAttempts {
		return 0, false
	}
	return backoff(p.StandardBackoff, attempt, p.MaxBackoff), true
}

func (Success) String() string { return "success" }

func (e EmptyResponse) String() string { return fmt.Sprintf("empty response (%s)", e.Reason) }

func (e ParseError) String() string { return fmt.Sprintf("parse error: %v", e.Err) }

func (e TransientError) String() string { return fmt.Sprintf("transient error: %v", e.Err) }

func (e RejectedRequest) String() string { return fmt.Sprintf("rejected request (status %d): %v", e.Code, e.Err) }

// backoff returns base * 2^(attempt-1) capped by maxDelay
func backoff(base time.Duration, attempt int, maxDelay time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if maxDelay > 0 && d >= maxDelay {
			return maxDelay
		}
	}
	if maxDelay > 0 && d > maxDelay {
		return maxDelay
	}
	return d
}
