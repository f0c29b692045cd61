package openid

import "errors"

var (
	ErrInvalidParameter   = errors.New("invalid parameter")
	ErrNilParameter       = errors.New("nil parameter")
	ErrInvalidCACert      = errors.New("invalid CA certificate")
	ErrDiscoveryFailed    = errors.New("discovery failed")
	ErrInvalidAssertion   = errors.New("invalid assertion")
	ErrInvalidReturnTo    = errors.New("return_to mismatch")
	ErrInvalidNonce       = errors.New("invalid response nonce")
	ErrProviderError      = errors.New("provider error")
	ErrVerificationFailed = errors.New("direct verification failed")
	ErrMalformedKeyValue  = errors.New("malformed key-value form")
)
