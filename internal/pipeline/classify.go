package pipeline

import "strings"

// permanentFailures are substrings that identify failures no retry can fix.
// Checked first and in order; first match wins. The list is matched against
// the lower-cased error text coming off the chain client.
var permanentFailures = []string{
	"expired",
	"invalid signature",
	"unauthorized",
	"insufficient funds",
	"nonce too low",
	"already submitted",
	"execution reverted",
	"vm exception",
}

// retryableFailures are substrings that identify transient failures worth
// another attempt after backoff.
var retryableFailures = []string{
	"network error",
	"timeout",
	"connection reset",
	"temporary",
	"service unavailable",
	"gateway error",
	"rate limit",
}

// Classify maps an error description to a FailureType by substring matching
// against the permanent list first, then the retryable list.
//
// Unrecognized messages default to retryable: preferring a bounded number of
// wasted retries over silently abandoning work whose failure we simply did
// not recognize. The attempt cap still terminalizes truly permanent but
// unrecognized failures.
func Classify(errMsg string) FailureType {
	msg := strings.ToLower(errMsg)

	for _, s := range permanentFailures {
		if strings.Contains(msg, s) {
			return FailurePermanent
		}
	}
	for _, s := range retryableFailures {
		if strings.Contains(msg, s) {
			return FailureRetryable
		}
	}
	return FailureRetryable
}
