package callback

import (
	"errors"
	"net/http"

	"github.com/hashicorp/steamcap/steam"
)

// SuccessResponseFunc is used by Return to create a http response once the
// user is authenticated and their profile is fetched.  The function should
// use the http.ResponseWriter to send back whatever content (headers, html,
// JSON, etc) it wishes, typically after starting a session for p.ID.
type SuccessResponseFunc func(p *steam.UserProfile, w http.ResponseWriter, req *http.Request)

// ErrorResponseFunc is used by Login and Return to create a http response
// when they fail.  StatusCode maps e to an appropriate status code.
type ErrorResponseFunc func(e error, w http.ResponseWriter, req *http.Request)

// StatusCode returns the http status code matching the kind of err:
//
//   - steam.ErrAuthentication: 401
//   - steam.ErrNotFound: 404
//   - steam.ErrUpstream: 502
//   - anything else: 500
func StatusCode(err error) int {
	switch {
	case errors.Is(err, steam.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, steam.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, steam.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// DefaultErrorResponse writes the status code for e with its status text as
// the body.  Error details aren't written since they may describe internals
// the user agent shouldn't see.
func DefaultErrorResponse(e error, w http.ResponseWriter, _ *http.Request) {
	code := StatusCode(e)
	http.Error(w, http.StatusText(code), code)
}
