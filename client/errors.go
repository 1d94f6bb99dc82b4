package client

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum"
)

// ErrSubscriptionUnsupported is returned by SubscribeNewHeads when the
// provider has no websocket endpoint configured.
var ErrSubscriptionUnsupported = errors.New("push subscriptions not supported by provider")

// rateLimitMarkers are substrings seen in rate-limit responses across
// providers. JSON-RPC has no standard code for this; -32005 and HTTP 429 are
// the common ones.
var rateLimitMarkers = []string{
	"429",
	"too many requests",
	"rate limit",
	"rate-limit",
	"request limit",
	"-32005",
}

// IsRateLimited reports whether err is a rate-limit-class upstream error.
// These are the only errors worth retrying; everything else propagates.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err means the requested block, transaction or
// receipt does not exist upstream.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ethereum.NotFound) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}
