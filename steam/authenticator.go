package steam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp/steamcap/openid"
)

const (
	playerSummariesPath = "/ISteamUser/GetPlayerSummaries/v0002/"
	maxResponseBody     = 1 << 20
)

var claimedIDPattern = regexp.MustCompile(`^https?://steamcommunity\.com/openid/id/\d+$`)

// RelyingParty is the OpenID 2.0 protocol engine an Authenticator delegates
// to.  *openid.RelyingParty implements it.
type RelyingParty interface {
	// AuthURL returns the URL to redirect the user agent to in order to
	// authenticate with the OP identified by identifier.
	AuthURL(ctx context.Context, identifier string, immediate bool) (string, error)

	// Verify verifies the assertion carried by a request to the return URL.
	Verify(ctx context.Context, req *http.Request) (*openid.Assertion, error)
}

var _ RelyingParty = (*openid.RelyingParty)(nil)

// Authenticator signs users in with Steam and looks up their profile.  It
// holds no per-request state and is safe for concurrent use.
type Authenticator struct {
	config *Config
	rp     RelyingParty
	client *http.Client
	logger hclog.Logger
}

// NewAuthenticator creates an Authenticator.  The config is validated before
// anything else is created.
//
// Supported options: WithHTTPClient, WithRelyingParty
func NewAuthenticator(c *Config, opt ...Option) (*Authenticator, error) {
	const op = "steam.NewAuthenticator"
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrConfiguration)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	conf := c.clone()
	opts := getAuthenticatorOpts(opt...)

	client := opts.withHTTPClient
	if isNil(client) {
		var err error
		if client, err = conf.HTTPClient(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	rp := opts.withRelyingParty
	if isNil(rp) {
		oc, err := openid.NewConfig(
			conf.Realm,
			conf.ReturnURL,
			openid.WithStrict(true),
			openid.WithRequiredPrefixes(openid.FieldNS, openid.NS),
			openid.WithRequiredPrefixes(openid.FieldClaimedID, ClaimedIDPrefix),
			openid.WithRequiredPrefixes(openid.FieldIdentity, ClaimedIDPrefix),
			openid.WithRequiredPrefixes(openid.FieldOPEndpoint, conf.OPEndpoint),
			openid.WithLogger(conf.Logger.Named("openid")),
		)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrConfiguration, err)
		}
		if rp, err = openid.NewRelyingParty(oc, openid.WithHTTPClient(client)); err != nil {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrConfiguration, err)
		}
	}

	return &Authenticator{
		config: conf,
		rp:     rp,
		client: client,
		logger: conf.Logger,
	}, nil
}

// RedirectURL returns the Steam sign in URL the user agent must be
// redirected to.
func (a *Authenticator) RedirectURL(ctx context.Context) (string, error) {
	const op = "steam.(Authenticator).RedirectURL"
	u, err := a.rp.AuthURL(ctx, a.config.OpenIDURL, false)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, ErrAuthentication, err)
	}
	if u == "" {
		return "", fmt.Errorf("%s: no redirect URL: %w", op, ErrAuthentication)
	}
	return u, nil
}

// Authenticate verifies the assertion carried by req, the request Steam
// redirected the user agent to the return URL with, and returns the
// signed in user's profile.
//
// The profile is only fetched once the assertion is verified and its
// claimed identity is a Steam identity.
func (a *Authenticator) Authenticate(ctx context.Context, req *http.Request) (*UserProfile, error) {
	const op = "steam.(Authenticator).Authenticate"
	assertion, err := a.rp.Verify(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to authenticate user: %w: %w", op, ErrAuthentication, err)
	}
	if assertion == nil || !assertion.Authenticated {
		return nil, fmt.Errorf("%s: failed to authenticate user: %w", op, ErrAuthentication)
	}
	if !claimedIDPattern.MatchString(assertion.ClaimedID) {
		a.logger.Warn("rejected claimed identity", "op", op, "claimed_id", assertion.ClaimedID)
		return nil, fmt.Errorf("%s: claimed identity %q is not valid: %w", op, assertion.ClaimedID, ErrAuthentication)
	}
	return a.FetchIdentifier(ctx, assertion.ClaimedID)
}

// AuthenticateURL is Authenticate for callers that only have the URL the
// user agent was redirected to.
func (a *Authenticator) AuthenticateURL(ctx context.Context, callbackURL string) (*UserProfile, error) {
	const op = "steam.(Authenticator).AuthenticateURL"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, callbackURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid callback URL: %w: %w", op, ErrAuthentication, err)
	}
	return a.Authenticate(ctx, req)
}

// FetchIdentifier returns the profile of the user with the claimed
// identifier, which is expected to be of the form ClaimedIDPrefix<steamid>.
func (a *Authenticator) FetchIdentifier(ctx context.Context, claimedID string) (*UserProfile, error) {
	const op = "steam.(Authenticator).FetchIdentifier"
	steamID := strings.TrimPrefix(claimedID, ClaimedIDPrefix)
	steamID = strings.TrimPrefix(steamID, "http://"+strings.TrimPrefix(ClaimedIDPrefix, "https://"))

	q := url.Values{}
	q.Set("key", string(a.config.APIKey))
	q.Set("steamids", steamID)
	endpoint := strings.TrimSuffix(a.config.APIURL, "/") + playerSummariesPath + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrUpstream, redactURLError(err))
	}
	req.Header.Set("Accept", "application/json")
	a.logger.Debug("fetching player summary", "op", op, "steamid", steamID)
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrUpstream, redactURLError(err))
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s: %w: unexpected status code %d", op, ErrUpstream, resp.StatusCode)
	}

	var body playerSummariesResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrUpstream, err)
	}
	if len(body.Response.Players) == 0 {
		return nil, fmt.Errorf("%s: no players found for the given SteamID %q: %w", op, steamID, ErrNotFound)
	}
	p, err := newUserProfile(steamID, body.Response.Players[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrUpstream, err)
	}
	return p, nil
}

// redactURLError removes the api key from the URL carried by a *url.Error.
func redactURLError(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	u, perr := url.Parse(ue.URL)
	if perr != nil {
		ue.URL = "[REDACTED: unparsable url]"
		return err
	}
	q := u.Query()
	if q.Has("key") {
		q.Set("key", RedactedAPIKey)
		u.RawQuery = q.Encode()
	}
	ue.URL = u.String()
	return err
}
