package platform

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

type ErrorKind int

const (
	// KindInvalidCredential: 401-class. Not retryable; the account must be
	// reconnected.
	KindInvalidCredential ErrorKind = iota + 1
	// KindRateLimited: 429-class. Retryable after the platform's period.
	KindRateLimited
	// KindTransientNetwork: transport failures and 5xx. Retryable.
	KindTransientNetwork
	// KindPermanentRequest: any other 4xx. Not retryable; surfaced to the user.
	KindPermanentRequest
)

// PublishError is the typed failure every adapter call returns. Step names
// the protocol step that failed so a step-2 or step-3 failure is never
// reported as step-1's success.
type PublishError struct {
	Kind       ErrorKind
	Platform   string
	Step       string
	Status     int
	RetryAfter time.Duration
	Message    string
}

func (e *PublishError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: status %d: %s", e.Platform, e.Step, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Platform, e.Step, e.Message)
}

// Retryable reports whether the job queue should attempt this job again.
func (e *PublishError) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindTransientNetwork
}

// IsRetryable classifies an arbitrary error for the dispatch worker. Unknown
// errors count as retryable so an infrastructure hiccup gets a second chance.
func IsRetryable(err error) bool {
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return true
}

// IsCredentialError reports a 401-class failure, terminal for the platform
// branch that hit it.
func IsCredentialError(err error) bool {
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe.Kind == KindInvalidCredential
	}
	return false
}

func statusError(platform, step string, resp *http.Response, message string) *PublishError {
	e := &PublishError{
		Platform: platform,
		Step:     step,
		Status:   resp.StatusCode,
		Message:  message,
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		e.Kind = KindInvalidCredential
	case resp.StatusCode == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.Atoi(s); err == nil {
				e.RetryAfter = time.Duration(secs) * time.Second
			}
		}
	case resp.StatusCode >= 500:
		e.Kind = KindTransientNetwork
	default:
		e.Kind = KindPermanentRequest
	}

	return e
}

func transportError(platform, step string, err error) *PublishError {
	return &PublishError{
		Kind:     KindTransientNetwork,
		Platform: platform,
		Step:     step,
		Message:  err.Error(),
	}
}
