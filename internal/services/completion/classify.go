package completion

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// Kind is the closed set of failure classes the retry loop distinguishes.
// Only the specific gateway/timeout conditions below are retryable;
// everything else, including client-side validation and context
// cancellation, fails fast.
type Kind int

const (
	// KindFatal covers every failure outside the retryable set.
	KindFatal Kind = iota
	// KindGateway covers HTTP 502, 503 and 504 responses.
	KindGateway
	// KindRequestTimeout covers HTTP 408 responses.
	KindRequestTimeout
	// KindRateLimited covers HTTP 429 responses.
	KindRateLimited
	// KindConnectionReset covers ECONNRESET and ECONNABORTED.
	KindConnectionReset
	// KindNetworkTimeout covers ETIMEDOUT and timed-out net errors.
	KindNetworkTimeout
	// KindDiagnostic covers error text carrying a timeout/gateway keyword.
	KindDiagnostic
)

func (k Kind) String() string {
	switch k {
	case KindGateway:
		return "gateway"
	case KindRequestTimeout:
		return "request_timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindConnectionReset:
		return "connection_reset"
	case KindNetworkTimeout:
		return "network_timeout"
	case KindDiagnostic:
		return "diagnostic"
	default:
		return "fatal"
	}
}

// Retryable reports whether the retry loop should attempt the call again.
func (k Kind) Retryable() bool {
	return k != KindFatal
}

// Classify maps a completion failure onto the closed Kind set. It inspects
// only the error value, never the network, so it is testable in isolation.
func Classify(err error) Kind {
	if err == nil {
		return KindFatal
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case 502, 503, 504:
			return KindGateway
		case 408:
			return KindRequestTimeout
		case 429:
			return KindRateLimited
		default:
			return KindFatal
		}
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED) {
		return KindConnectionReset
	}
	if errors.Is(err, syscall.ETIMEDOUT) {
		return KindNetworkTimeout
	}

	// A single request timing out is retryable; the caller's context being
	// done is not. The latter surfaces as a plain context error because the
	// retry loop also checks ctx.Err before continuing.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindNetworkTimeout
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindFatal
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "gateway") {
		return KindDiagnostic
	}
	return KindFatal
}
