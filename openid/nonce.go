package openid

import (
	"fmt"
	"time"
)

const nonceTimeLayout = "2006-01-02T15:04:05Z"

// parseNonceTime returns the timestamp a response nonce starts with.
func parseNonceTime(nonce string) (time.Time, error) {
	const op = "openid.parseNonceTime"
	if len(nonce) < len(nonceTimeLayout) {
		return time.Time{}, fmt.Errorf("%s: nonce %q is too short: %w", op, nonce, ErrInvalidNonce)
	}
	ts, err := time.Parse(nonceTimeLayout, nonce[:len(nonceTimeLayout)])
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: nonce %q has no timestamp: %w", op, nonce, ErrInvalidNonce)
	}
	return ts, nil
}

// checkNonce verifies the nonce's timestamp is within maxAge of now, in
// either direction to allow for clock skew.
func checkNonce(nonce string, now time.Time, maxAge time.Duration) error {
	const op = "openid.checkNonce"
	ts, err := parseNonceTime(nonce)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	d := now.Sub(ts)
	if d < 0 {
		d = -d
	}
	if d > maxAge {
		return fmt.Errorf("%s: nonce issued at %s is outside the allowed window of %s: %w", op, ts.Format(time.RFC3339), maxAge, ErrInvalidNonce)
	}
	return nil
}

func newNonceTimestamp(now time.Time) string {
	return now.UTC().Format(nonceTimeLayout)
}
