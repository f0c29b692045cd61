package openid

import (
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	t.Parallel()
	tp := StartTestProvider(t)
	testNow := func() time.Time { return time.Unix(1700000000, 0) }
	logger := hclog.NewNullLogger()

	tests := []struct {
		name      string
		realm     string
		returnTo  string
		opt       []Option
		want      *Config
		wantErr   bool
		wantIsErr error
	}{
		{
			name:     "valid-defaults",
			realm:    "https://example.com/",
			returnTo: "https://example.com/auth/return",
			want: &Config{
				Realm:       "https://example.com/",
				ReturnTo:    "https://example.com/auth/return",
				Strict:      true,
				MaxNonceAge: DefaultMaxNonceAge,
			},
		},
		{
			name:     "valid-all-opts",
			realm:    "https://example.com/",
			returnTo: "https://example.com/auth/return",
			opt: []Option{
				WithStrict(false),
				WithRequiredPrefixes(FieldClaimedID, "https://steamcommunity.com/openid/id/"),
				WithRequiredPrefixes(FieldClaimedID, "https://steamcommunity.com/openid/id/", "http://steamcommunity.com/openid/id/"),
				WithRequiredPrefixes(FieldNS, NS),
				WithMaxNonceAge(time.Minute),
				WithProviderCA(tp.CACert()),
				WithNow(testNow),
				WithLogger(logger),
			},
			want: &Config{
				Realm:    "https://example.com/",
				ReturnTo: "https://example.com/auth/return",
				Strict:   false,
				RequiredPrefixes: map[string][]string{
					FieldClaimedID: {"https://steamcommunity.com/openid/id/", "http://steamcommunity.com/openid/id/"},
					FieldNS:        {NS},
				},
				MaxNonceAge: time.Minute,
				ProviderCA:  tp.CACert(),
				Logger:      logger,
			},
		},
		{
			name:      "missing-realm",
			returnTo:  "https://example.com/auth/return",
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:      "missing-return-to",
			realm:     "https://example.com/",
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:      "negative-nonce-age",
			realm:     "https://example.com/",
			returnTo:  "https://example.com/auth/return",
			opt:       []Option{WithMaxNonceAge(-time.Second)},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:      "unknown-prefix-field",
			realm:     "https://example.com/",
			returnTo:  "https://example.com/auth/return",
			opt:       []Option{WithRequiredPrefixes("assoc_handle", "x")},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:      "empty-prefixes",
			realm:     "https://example.com/",
			returnTo:  "https://example.com/auth/return",
			opt:       []Option{WithRequiredPrefixes(FieldIdentity)},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewConfig(tt.realm, tt.returnTo, tt.opt...)
			if tt.wantErr {
				require.Error(err)
				assert.Nil(got)
				if tt.wantIsErr != nil {
					assert.ErrorIs(err, tt.wantIsErr)
				}
				return
			}
			require.NoError(err)
			if got.NowFunc != nil {
				assert.Equal(testNow(), got.Now())
				got.NowFunc = nil
			}
			assert.Equal(tt.want, got)
		})
	}
}

func TestConfig_Validate_reportsEveryProblem(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	c := &Config{MaxNonceAge: -1}
	err := c.Validate()
	assert.ErrorIs(err, ErrInvalidParameter)
	assert.Contains(err.Error(), "realm is empty")
	assert.Contains(err.Error(), "return_to is empty")
	assert.Contains(err.Error(), "is negative")

	var nilConfig *Config
	assert.ErrorIs(nilConfig.Validate(), ErrNilParameter)
}

func TestConfig_HTTPClient(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := StartTestProvider(t)

	c, err := NewConfig("https://example.com/", "https://example.com/return", WithProviderCA(tp.CACert()))
	require.NoError(err)
	client, err := c.HTTPClient()
	require.NoError(err)
	resp, err := client.Get(tp.DiscoveryURL())
	require.NoError(err)
	defer resp.Body.Close()
	assert.Equal(200, resp.StatusCode)

	c.ProviderCA = "not-a-pem"
	_, err = c.HTTPClient()
	assert.ErrorIs(err, ErrInvalidCACert)
}
