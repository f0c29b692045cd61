package steam

import (
	"net/http"

	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// WithLogger provides an optional logger.  Supported by NewConfig.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withLogger = l
		}
	}
}

// WithProviderCA provides an optional CA cert used for requests to the
// OpenID provider and the Web API.  Supported by NewConfig.
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithAPIURL overrides DefaultAPIURL.  Supported by NewConfig.
func WithAPIURL(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAPIURL = u
		}
	}
}

// WithOpenIDURL overrides DefaultOpenIDURL, the OP identifier discovery is
// performed on.  Supported by NewConfig.
func WithOpenIDURL(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withOpenIDURL = u
		}
	}
}

// WithOPEndpoint overrides DefaultOPEndpoint, the only OP endpoint
// assertions are accepted from.  Supported by NewConfig.
func WithOPEndpoint(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withOPEndpoint = u
		}
	}
}

// WithHTTPClient provides an optional http client for OpenID and Web API
// requests.  Supported by NewAuthenticator.
func WithHTTPClient(c *http.Client) Option {
	return func(o interface{}) {
		if o, ok := o.(*authenticatorOptions); ok {
			o.withHTTPClient = c
		}
	}
}

// WithRelyingParty provides the OpenID relying party to use instead of one
// built from the Config.  Supported by NewAuthenticator.
func WithRelyingParty(rp RelyingParty) Option {
	return func(o interface{}) {
		if o, ok := o.(*authenticatorOptions); ok {
			o.withRelyingParty = rp
		}
	}
}

type authenticatorOptions struct {
	withHTTPClient   *http.Client
	withRelyingParty RelyingParty
}

func authenticatorDefaults() authenticatorOptions {
	return authenticatorOptions{}
}

func getAuthenticatorOpts(opt ...Option) authenticatorOptions {
	opts := authenticatorDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
