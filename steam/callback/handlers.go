package callback

import (
	"fmt"
	"net/http"

	"github.com/hashicorp/steamcap/steam"
)

// Login creates a handler which redirects the user agent to Steam to sign
// in.  The ErrorResponseFunc is used to create a response when no redirect
// URL can be obtained.
func Login(a *steam.Authenticator, eFn ErrorResponseFunc) http.HandlerFunc {
	if eFn == nil {
		eFn = DefaultErrorResponse
	}
	return func(w http.ResponseWriter, req *http.Request) {
		const op = "callback.Login"
		if a == nil {
			eFn(fmt.Errorf("%s: authenticator is nil: %w", op, steam.ErrConfiguration), w, req)
			return
		}
		u, err := a.RedirectURL(req.Context())
		if err != nil {
			eFn(fmt.Errorf("%s: %w", op, err), w, req)
			return
		}
		http.Redirect(w, req, u, http.StatusFound)
	}
}

// Return creates a handler for the return URL Steam redirects the user agent
// to.  It authenticates the request and passes the user's profile to the
// SuccessResponseFunc, or any error to the ErrorResponseFunc.
func Return(a *steam.Authenticator, sFn SuccessResponseFunc, eFn ErrorResponseFunc) http.HandlerFunc {
	if eFn == nil {
		eFn = DefaultErrorResponse
	}
	return func(w http.ResponseWriter, req *http.Request) {
		const op = "callback.Return"
		switch {
		case a == nil:
			eFn(fmt.Errorf("%s: authenticator is nil: %w", op, steam.ErrConfiguration), w, req)
			return
		case sFn == nil:
			eFn(fmt.Errorf("%s: success response func is nil: %w", op, steam.ErrConfiguration), w, req)
			return
		}
		p, err := a.Authenticate(req.Context(), req)
		if err != nil {
			eFn(fmt.Errorf("%s: %w", op, err), w, req)
			return
		}
		sFn(p, w, req)
	}
}
