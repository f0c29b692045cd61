package steam

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	sdkHttp "github.com/hashicorp/steamcap/sdk/http"
)

const (
	// DefaultOpenIDURL is the Steam OP identifier.
	DefaultOpenIDURL = "https://steamcommunity.com/openid"

	// DefaultOPEndpoint is the Steam OP endpoint.
	DefaultOPEndpoint = "https://steamcommunity.com/openid/login"

	// DefaultAPIURL is the base URL of the Steam Web API.
	DefaultAPIURL = "https://api.steampowered.com"

	// ClaimedIDPrefix prefixes every claimed identifier Steam asserts; the
	// remainder is the user's 64-bit SteamID.
	ClaimedIDPrefix = "https://steamcommunity.com/openid/id/"
)

// APIKey is a Steam Web API key.
type APIKey string

// RedactedAPIKey is the redacted string or json for an APIKey.
const RedactedAPIKey = "[REDACTED: steam api key]"

// String will redact the key.
func (k APIKey) String() string {
	return RedactedAPIKey
}

// MarshalJSON will redact the key.
func (k APIKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedAPIKey)
}

// Config represents the configuration of an Authenticator.
type Config struct {
	// Realm is the URL Steam shows the user as the site they are signing in
	// to. (required)
	Realm string

	// ReturnURL is the URL Steam redirects the user back to with its
	// assertion. (required)
	ReturnURL string

	// APIKey is the Steam Web API key used for player summaries. (required)
	APIKey APIKey

	// APIURL is the base URL of the Steam Web API.  Defaults to DefaultAPIURL.
	APIURL string

	// OpenIDURL is the OP identifier.  Defaults to DefaultOpenIDURL.
	OpenIDURL string

	// OPEndpoint is the only OP endpoint assertions are accepted from.
	// Defaults to DefaultOPEndpoint.
	OPEndpoint string

	// ProviderCA is an optional CA cert to use for outbound requests.
	ProviderCA string

	// Logger is an optional logger.
	Logger hclog.Logger
}

// NewConfig composes a new config.  Realm, returnURL and apiKey must not be
// empty.
//
// Supported options: WithLogger, WithProviderCA, WithAPIURL, WithOpenIDURL,
// WithOPEndpoint
func NewConfig(realm, returnURL string, apiKey APIKey, opt ...Option) (*Config, error) {
	const op = "steam.NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		Realm:      realm,
		ReturnURL:  returnURL,
		APIKey:     apiKey,
		APIURL:     opts.withAPIURL,
		OpenIDURL:  opts.withOpenIDURL,
		OPEndpoint: opts.withOPEndpoint,
		ProviderCA: opts.withProviderCA,
		Logger:     opts.withLogger,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

// Validate the config.  Realm, ReturnURL and APIKey are required; every
// missing one is reported.  Values are not otherwise checked, so
// whitespace-only values are accepted.
func (c *Config) Validate() error {
	const op = "steam.(Config).Validate"
	if c == nil {
		return fmt.Errorf("%s: config is nil: %w", op, ErrConfiguration)
	}
	var result *multierror.Error
	if c.Realm == "" {
		result = multierror.Append(result, fmt.Errorf("%s: realm is empty: %w", op, ErrConfiguration))
	}
	if c.ReturnURL == "" {
		result = multierror.Append(result, fmt.Errorf("%s: return URL is empty: %w", op, ErrConfiguration))
	}
	if c.APIKey == "" {
		result = multierror.Append(result, fmt.Errorf("%s: api key is empty: %w", op, ErrConfiguration))
	}
	return result.ErrorOrNil()
}

// HTTPClient creates a new http client using the optional ProviderCA.
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "steam.(Config).HTTPClient"
	client, err := sdkHttp.NewClient(c.ProviderCA)
	if err != nil {
		if errors.Is(err, sdkHttp.ErrInvalidCertificatePem) {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrConfiguration)
		}
		return nil, fmt.Errorf("%s: could not get an http client: %w", op, err)
	}
	return client, nil
}

// clone returns a copy of the config with defaults filled in.
func (c *Config) clone() *Config {
	cp := *c
	if cp.APIURL == "" {
		cp.APIURL = DefaultAPIURL
	}
	if cp.OpenIDURL == "" {
		cp.OpenIDURL = DefaultOpenIDURL
	}
	if cp.OPEndpoint == "" {
		cp.OPEndpoint = DefaultOPEndpoint
	}
	if cp.Logger == nil {
		cp.Logger = hclog.NewNullLogger()
	}
	return &cp
}

type configOptions struct {
	withLogger     hclog.Logger
	withProviderCA string
	withAPIURL     string
	withOpenIDURL  string
	withOPEndpoint string
}

func configDefaults() configOptions {
	return configOptions{
		withAPIURL:     DefaultAPIURL,
		withOpenIDURL:  DefaultOpenIDURL,
		withOPEndpoint: DefaultOPEndpoint,
	}
}

func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
