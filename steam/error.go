package steam

import "errors"

// The error kinds returned by this package.  Use errors.Is to distinguish
// them; messages are descriptive and not meant to be matched.
var (
	// ErrConfiguration means the Config is missing a required value.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrAuthentication means the OpenID assertion could not be obtained or
	// was not trusted.
	ErrAuthentication = errors.New("authentication failed")

	// ErrNotFound means the Steam Web API has no player for the identifier.
	ErrNotFound = errors.New("not found")

	// ErrUpstream means the Steam Web API request failed or its response
	// was unusable.
	ErrUpstream = errors.New("steam server error")
)
