package openid

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/steamcap/internal/strutils"
)

const maxVerificationBody = 64 << 10

// Assertion is the result of verifying an authentication response.
type Assertion struct {
	// Authenticated is true only for a positive assertion the OP confirmed
	// via direct verification.
	Authenticated bool

	// Mode is the openid.mode of the response.
	Mode string

	// ClaimedID is the identifier the OP asserts belongs to the user.
	ClaimedID string

	// Identity is the OP-local identifier.
	Identity string

	// OPEndpoint is the endpoint that issued the assertion.
	OPEndpoint string

	// ResponseNonce is the nonce of the positive assertion.
	ResponseNonce string

	// Params are the openid.* parameters as they were received.
	Params url.Values
}

// Verify verifies the authentication response carried by req, which is the
// request the user agent made to the return_to URL.  Both GET (query) and
// POST (form) responses are accepted.
//
// A negative assertion (cancel or setup_needed) is returned with
// Authenticated false and no error.  Everything else that is not a positive
// assertion confirmed by the OP is an error.
//
// The URL the request was received at is rebuilt from the request, honoring
// X-Forwarded-Proto and X-Forwarded-Host; use VerifyValues when it must be
// derived some other way.
func (rp *RelyingParty) Verify(ctx context.Context, req *http.Request) (*Assertion, error) {
	const op = "openid.(RelyingParty).Verify"
	if req == nil {
		return nil, fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	if err := req.ParseForm(); err != nil {
		return nil, fmt.Errorf("%s: unable to parse request: %v: %w", op, err, ErrInvalidAssertion)
	}
	return rp.VerifyValues(ctx, receivedURL(req), req.Form)
}

// VerifyValues verifies the authentication response params which were
// received at receivedURL.  See Verify.
func (rp *RelyingParty) VerifyValues(ctx context.Context, receivedURL string, params url.Values) (*Assertion, error) {
	const op = "openid.(RelyingParty).VerifyValues"
	a, err := rp.verify(ctx, receivedURL, params)
	if err != nil {
		rp.logger.Warn("assertion rejected", "op", op, "error", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !a.Authenticated {
		rp.logger.Debug("assertion not authenticated", "op", op, "mode", a.Mode, "claimed_id", a.ClaimedID)
	}
	return a, nil
}

func (rp *RelyingParty) verify(ctx context.Context, received string, params url.Values) (*Assertion, error) {
	a := &Assertion{
		Mode:   params.Get("openid.mode"),
		Params: openIDParams(params),
	}
	switch a.Mode {
	case modeCancel, modeSetupNeeded:
		return a, nil
	case modeError:
		return nil, fmt.Errorf("OP returned an error %q: %w", params.Get("openid.error"), ErrProviderError)
	case modeIDRes:
	case "":
		return nil, fmt.Errorf("response has no openid.mode: %w", ErrInvalidAssertion)
	default:
		return nil, fmt.Errorf("unexpected openid.mode %q: %w", a.Mode, ErrInvalidAssertion)
	}

	if ns := params.Get("openid.ns"); ns != NS {
		return nil, fmt.Errorf("unsupported openid.ns %q: %w", ns, ErrInvalidAssertion)
	}
	a.ClaimedID = params.Get("openid.claimed_id")
	a.Identity = params.Get("openid.identity")
	a.OPEndpoint = params.Get("openid.op_endpoint")
	a.ResponseNonce = params.Get("openid.response_nonce")
	if a.OPEndpoint == "" {
		return nil, fmt.Errorf("response has no openid.op_endpoint: %w", ErrInvalidAssertion)
	}
	if (a.ClaimedID == "") != (a.Identity == "") {
		return nil, fmt.Errorf("claimed_id and identity must both be present or absent: %w", ErrInvalidAssertion)
	}

	if rp.config.Strict {
		if err := checkReturnTo(params.Get("openid.return_to"), received, rp.config.ReturnTo); err != nil {
			return nil, err
		}
	}
	for _, f := range prefixableFields {
		prefixes, ok := rp.config.RequiredPrefixes[f]
		if !ok {
			continue
		}
		if v := params.Get("openid." + f); !strutils.HasAnyPrefix(v, prefixes) {
			return nil, fmt.Errorf("openid.%s %q is not allowed: %w", f, v, ErrInvalidAssertion)
		}
	}
	if err := checkSigned(params); err != nil {
		return nil, err
	}
	if err := checkNonce(a.ResponseNonce, rp.config.Now(), rp.config.MaxNonceAge); err != nil {
		return nil, err
	}
	if _, ok := rp.config.RequiredPrefixes[FieldOPEndpoint]; !ok && a.ClaimedID != "" {
		if err := rp.checkDiscoveredEndpoint(ctx, a.ClaimedID, a.OPEndpoint); err != nil {
			return nil, err
		}
	}

	valid, err := rp.checkAuthentication(ctx, a.OPEndpoint, params)
	if err != nil {
		return nil, err
	}
	a.Authenticated = valid
	return a, nil
}

// checkReturnTo verifies the assertion's return_to against the URL it was
// received on and the configured return_to.  Scheme, host and path must be
// equal, and query parameters of return_to must be present in the received
// URL.
func checkReturnTo(returnTo, received, configured string) error {
	if returnTo == "" {
		return fmt.Errorf("response has no openid.return_to: %w", ErrInvalidReturnTo)
	}
	rt, err := url.Parse(returnTo)
	if err != nil {
		return fmt.Errorf("openid.return_to %q is invalid: %w", returnTo, ErrInvalidReturnTo)
	}
	recv, err := url.Parse(received)
	if err != nil {
		return fmt.Errorf("received URL %q is invalid: %w", received, ErrInvalidReturnTo)
	}
	conf, err := url.Parse(configured)
	if err != nil {
		return fmt.Errorf("configured return_to %q is invalid: %w", configured, ErrInvalidReturnTo)
	}
	if !sameEndpoint(rt, recv) || !queryContains(rt.Query(), recv.Query()) {
		return fmt.Errorf("openid.return_to %q does not match received URL %q: %w", returnTo, received, ErrInvalidReturnTo)
	}
	if !sameEndpoint(rt, conf) || !queryContains(conf.Query(), rt.Query()) {
		return fmt.Errorf("openid.return_to %q does not match %q: %w", returnTo, configured, ErrInvalidReturnTo)
	}
	return nil
}

func sameEndpoint(a, b *url.URL) bool {
	pathOf := func(u *url.URL) string {
		if u.Path == "" {
			return "/"
		}
		return u.Path
	}
	return strings.EqualFold(a.Scheme, b.Scheme) &&
		strings.EqualFold(a.Host, b.Host) &&
		pathOf(a) == pathOf(b)
}

// queryContains reports whether every parameter of sub has the same values
// in super.
func queryContains(sub, super url.Values) bool {
	for k, want := range sub {
		got := super[k]
		if len(got) != len(want) {
			return false
		}
		for i := range want {
			if got[i] != want[i] {
				return false
			}
		}
	}
	return true
}

// checkSigned verifies the signature covers every field a positive
// assertion must have signed.
func checkSigned(params url.Values) error {
	if params.Get("openid.sig") == "" {
		return fmt.Errorf("response has no openid.sig: %w", ErrInvalidAssertion)
	}
	signed := strings.Split(params.Get("openid.signed"), ",")
	required := []string{"op_endpoint", "return_to", "response_nonce", "assoc_handle"}
	if params.Get("openid.claimed_id") != "" {
		required = append(required, "claimed_id", "identity")
	}
	for _, f := range required {
		if !strutils.StrListContains(signed, f) {
			return fmt.Errorf("openid.%s is not signed: %w", f, ErrInvalidAssertion)
		}
		if params.Get("openid."+f) == "" {
			return fmt.Errorf("signed field openid.%s is missing: %w", f, ErrInvalidAssertion)
		}
	}
	return nil
}

// checkDiscoveredEndpoint performs discovery on the claimed identifier and
// verifies the OP endpoint of the assertion is authorized to make assertions
// about it.
func (rp *RelyingParty) checkDiscoveredEndpoint(ctx context.Context, claimedID, opEndpoint string) error {
	ep, err := rp.Discover(ctx, claimedID)
	if err != nil {
		return fmt.Errorf("unable to verify discovered information for %q: %w", claimedID, err)
	}
	if ep.OPIdentifier || ep.URL != opEndpoint {
		return fmt.Errorf("OP endpoint %q is not authorized for %q: %w", opEndpoint, claimedID, ErrInvalidAssertion)
	}
	return nil
}

// checkAuthentication asks the OP to confirm the assertion it issued.
func (rp *RelyingParty) checkAuthentication(ctx context.Context, opEndpoint string, params url.Values) (bool, error) {
	form := openIDParams(params)
	form.Set("openid.mode", modeCheckAuth)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("unable to create check_authentication request: %v: %w", err, ErrVerificationFailed)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rp.logger.Debug("check_authentication request", "op_endpoint", opEndpoint)
	resp, err := rp.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("check_authentication request failed: %v: %w", err, ErrVerificationFailed)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxVerificationBody))
	if err != nil {
		return false, fmt.Errorf("unable to read check_authentication response: %v: %w", err, ErrVerificationFailed)
	}
	kv, err := parseKeyValue(body)
	if err != nil {
		return false, fmt.Errorf("check_authentication response: %v: %w", err, ErrVerificationFailed)
	}
	if resp.StatusCode != http.StatusOK {
		if msg, ok := kv["error"]; ok {
			return false, fmt.Errorf("check_authentication error %q: %w", msg, ErrProviderError)
		}
		return false, fmt.Errorf("check_authentication returned status %d: %w", resp.StatusCode, ErrVerificationFailed)
	}
	if ns, ok := kv["ns"]; ok && ns != NS {
		return false, fmt.Errorf("check_authentication response has ns %q: %w", ns, ErrVerificationFailed)
	}
	return kv["is_valid"] == "true", nil
}

// openIDParams returns a copy of the openid.* parameters.
func openIDParams(params url.Values) url.Values {
	out := url.Values{}
	for k, v := range params {
		if strings.HasPrefix(k, "openid.") {
			out[k] = append([]string(nil), v...)
		}
	}
	return out
}

// receivedURL reconstructs the absolute URL a request was made to.  The
// first X-Forwarded-Proto and X-Forwarded-Host values are honored, so a proxy
// in front of the return URL must set them (or drop them) consistently.
func receivedURL(req *http.Request) string {
	if req.URL.IsAbs() {
		return req.URL.String()
	}
	scheme := "http"
	if req.TLS != nil {
		scheme = "https"
	}
	if p := req.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = strings.TrimSpace(strings.Split(p, ",")[0])
	}
	host := req.Host
	if h := req.Header.Get("X-Forwarded-Host"); h != "" {
		host = strings.TrimSpace(strings.Split(h, ",")[0])
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     req.URL.Path,
		RawPath:  req.URL.RawPath,
		RawQuery: req.URL.RawQuery,
	}
	return u.String()
}
