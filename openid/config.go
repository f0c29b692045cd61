package openid

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/hashicorp/steamcap/internal/strutils"
	sdkHttp "github.com/hashicorp/steamcap/sdk/http"
)

// DefaultMaxNonceAge is the default window in which a response nonce's
// timestamp must fall.
const DefaultMaxNonceAge = 5 * time.Minute

// Assertion fields that may be constrained with WithRequiredPrefixes.
const (
	FieldNS         = "ns"
	FieldClaimedID  = "claimed_id"
	FieldIdentity   = "identity"
	FieldOPEndpoint = "op_endpoint"
)

var prefixableFields = []string{FieldNS, FieldClaimedID, FieldIdentity, FieldOPEndpoint}

// Config represents the configuration for an OpenID 2.0 relying party.
type Config struct {
	// Realm is the URL pattern the OP asks the end user to trust. (required)
	Realm string

	// ReturnTo is the URL the OP redirects the user agent to with its
	// assertion. (required)
	ReturnTo string

	// Strict requires an assertion's return_to to match both ReturnTo and the
	// URL the assertion was received on.  Defaults to true.
	Strict bool

	// RequiredPrefixes constrains assertion fields (without the "openid."
	// prefix) to begin with one of the listed values.
	RequiredPrefixes map[string][]string

	// MaxNonceAge is the largest allowed difference between now and the
	// timestamp of a response nonce.
	MaxNonceAge time.Duration

	// ProviderCA is an optional CA cert to use when sending requests to the
	// OP.
	ProviderCA string

	// NowFunc is an optional function that returns the current time.
	NowFunc func() time.Time

	// Logger is an optional logger.
	Logger hclog.Logger
}

// NewConfig composes a new relying party config.
//
// Supported options: WithStrict, WithRequiredPrefixes, WithMaxNonceAge,
// WithProviderCA, WithNow, WithLogger
func NewConfig(realm, returnTo string, opt ...Option) (*Config, error) {
	const op = "openid.NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		Realm:            realm,
		ReturnTo:         returnTo,
		Strict:           opts.withStrict,
		RequiredPrefixes: opts.withRequiredPrefixes,
		MaxNonceAge:      opts.withMaxNonceAge,
		ProviderCA:       opts.withProviderCA,
		NowFunc:          opts.withNowFunc,
		Logger:           opts.withLogger,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid relying party config: %w", op, err)
	}
	return c, nil
}

// Validate the relying party configuration.  Every problem found is
// reported.
func (c *Config) Validate() error {
	const op = "openid.(Config).Validate"
	if c == nil {
		return fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	var result *multierror.Error
	if c.Realm == "" {
		result = multierror.Append(result, fmt.Errorf("%s: realm is empty: %w", op, ErrInvalidParameter))
	} else if _, err := url.Parse(c.Realm); err != nil {
		result = multierror.Append(result, fmt.Errorf("%s: realm %q is invalid: %w", op, c.Realm, ErrInvalidParameter))
	}
	if c.ReturnTo == "" {
		result = multierror.Append(result, fmt.Errorf("%s: return_to is empty: %w", op, ErrInvalidParameter))
	} else if _, err := url.Parse(c.ReturnTo); err != nil {
		result = multierror.Append(result, fmt.Errorf("%s: return_to %q is invalid: %w", op, c.ReturnTo, ErrInvalidParameter))
	}
	if c.MaxNonceAge < 0 {
		result = multierror.Append(result, fmt.Errorf("%s: max nonce age %s is negative: %w", op, c.MaxNonceAge, ErrInvalidParameter))
	}
	fields := make([]string, 0, len(c.RequiredPrefixes))
	for f := range c.RequiredPrefixes {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		if !strutils.StrListContains(prefixableFields, f) {
			result = multierror.Append(result, fmt.Errorf("%s: %q cannot be constrained by prefix: %w", op, f, ErrInvalidParameter))
			continue
		}
		if len(c.RequiredPrefixes[f]) == 0 {
			result = multierror.Append(result, fmt.Errorf("%s: no prefixes for %q: %w", op, f, ErrInvalidParameter))
		}
	}
	return result.ErrorOrNil()
}

// Now returns the current time using the optional NowFunc.
func (c *Config) Now() time.Time {
	if c.NowFunc != nil {
		return c.NowFunc()
	}
	return time.Now()
}

// HTTPClient creates a new http client for the configured OP.
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "openid.(Config).HTTPClient"
	client, err := sdkHttp.NewClient(c.ProviderCA)
	if err != nil {
		if errors.Is(err, sdkHttp.ErrInvalidCertificatePem) {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		return nil, fmt.Errorf("%s: could not get an http client: %w", op, err)
	}
	return client, nil
}

type configOptions struct {
	withStrict           bool
	withRequiredPrefixes map[string][]string
	withMaxNonceAge      time.Duration
	withProviderCA       string
	withNowFunc          func() time.Time
	withLogger           hclog.Logger
}

func configDefaults() configOptions {
	return configOptions{
		withStrict:      true,
		withMaxNonceAge: DefaultMaxNonceAge,
	}
}

func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithStrict sets whether return_to is checked against the configured
// ReturnTo and the URL an assertion was received on.
func WithStrict(strict bool) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withStrict = strict
		}
	}
}

// WithRequiredPrefixes requires the assertion field (one of FieldNS,
// FieldClaimedID, FieldIdentity, FieldOPEndpoint) to begin with one of the
// prefixes.  It may be given once per field; prefixes accumulate.
func WithRequiredPrefixes(field string, prefixes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			if o.withRequiredPrefixes == nil {
				o.withRequiredPrefixes = map[string][]string{}
			}
			o.withRequiredPrefixes[field] = strutils.RemoveDuplicatesStable(
				append(o.withRequiredPrefixes[field], prefixes...), false)
		}
	}
}

// WithMaxNonceAge overrides DefaultMaxNonceAge.
func WithMaxNonceAge(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withMaxNonceAge = d
		}
	}
}

// WithProviderCA provides an optional CA cert for requests to the OP.
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}
