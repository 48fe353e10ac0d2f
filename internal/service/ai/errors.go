package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Upstream failure kinds. Unavailable and Throttled are transient and worth
// one retry; Rejected means the request or credentials are wrong and a retry
// cannot help.
var (
	ErrUnavailable = errors.New("upstream provider unavailable")
	ErrThrottled   = errors.New("upstream provider throttled")
	ErrRejected    = errors.New("upstream provider rejected request")
)

// classifyUpstream maps a raw provider failure onto the internal taxonomy.
// The wrapped detail is for logs only; clients never see upstream error
// bodies.
func classifyUpstream(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: deadline exceeded", ErrUnavailable)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "status code: 429", "429 too many requests",
		"rate limit", "rate_limit", "quota", "overloaded"):
		return fmt.Errorf("%w: %v", ErrThrottled, err)
	// Only anchored status lines or explicit credential phrases mark a
	// failure non-retryable; a bare numeric match would turn harmless text
	// like "4000 tokens" into a configuration fault.
	case containsAny(msg, "status code: 400", "status code: 401", "status code: 403",
		"invalid api key", "incorrect api key", "invalid x-api-key",
		"authentication_error", "permission_error", "invalid_request_error"):
		return fmt.Errorf("%w: %v", ErrRejected, err)
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
