package openid

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-hclog"
)

const (
	modeCheckIDSetup     = "checkid_setup"
	modeCheckIDImmediate = "checkid_immediate"
	modeIDRes            = "id_res"
	modeCancel           = "cancel"
	modeSetupNeeded      = "setup_needed"
	modeError            = "error"
	modeCheckAuth        = "check_authentication"
)

// RelyingParty performs OpenID 2.0 authentication using stateless
// verification.
type RelyingParty struct {
	config *Config
	client *http.Client
	logger hclog.Logger
}

// NewRelyingParty creates a RelyingParty from a valid config.
//
// Supported options: WithHTTPClient
func NewRelyingParty(c *Config, opt ...Option) (*RelyingParty, error) {
	const op = "openid.NewRelyingParty"
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: config is invalid: %w", op, err)
	}
	opts := getRPOpts(opt...)
	client := opts.withHTTPClient
	if client == nil {
		var err error
		if client, err = c.HTTPClient(); err != nil {
			return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
		}
	}
	logger := c.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &RelyingParty{
		config: c,
		client: client,
		logger: logger,
	}, nil
}

// Config returns the relying party's config.
func (rp *RelyingParty) Config() *Config {
	return rp.config
}

// AuthURL performs discovery on the identifier and returns the URL the user
// agent must be redirected to in order to authenticate.  When immediate is
// true a checkid_immediate request is built, which asks the OP not to
// interact with the user.
func (rp *RelyingParty) AuthURL(ctx context.Context, identifier string, immediate bool) (string, error) {
	const op = "openid.(RelyingParty).AuthURL"
	ep, err := rp.Discover(ctx, identifier)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	u, err := url.Parse(ep.URL)
	if err != nil {
		return "", fmt.Errorf("%s: OP endpoint %q is invalid: %v: %w", op, ep.URL, err, ErrDiscoveryFailed)
	}

	claimedID, identity := IdentifierSelect, IdentifierSelect
	if !ep.OPIdentifier {
		claimedID, identity = ep.ClaimedID, ep.ClaimedID
		if ep.LocalID != "" {
			identity = ep.LocalID
		}
	}
	mode := modeCheckIDSetup
	if immediate {
		mode = modeCheckIDImmediate
	}

	q := u.Query()
	q.Set("openid.ns", NS)
	q.Set("openid.mode", mode)
	q.Set("openid.claimed_id", claimedID)
	q.Set("openid.identity", identity)
	q.Set("openid.return_to", rp.config.ReturnTo)
	q.Set("openid.realm", rp.config.Realm)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
