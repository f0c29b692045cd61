package openid

import (
	"net/http"
	"time"

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

// WithNow provides an optional func for determining what the current time it
// is.  Supported by NewConfig.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withNowFunc = now
		}
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

// WithHTTPClient provides an optional http client which is used for discovery
// and direct verification instead of one built from the config's ProviderCA.
// Supported by NewRelyingParty.
func WithHTTPClient(c *http.Client) Option {
	return func(o interface{}) {
		if o, ok := o.(*rpOptions); ok {
			o.withHTTPClient = c
		}
	}
}

type rpOptions struct {
	withHTTPClient *http.Client
}

func rpDefaults() rpOptions {
	return rpOptions{}
}

func getRPOpts(opt ...Option) rpOptions {
	opts := rpDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
