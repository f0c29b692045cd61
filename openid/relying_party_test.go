package openid

import (
	"context"
	"net/url"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRealm    = "https://example.com/"
	testReturnTo = "https://example.com/auth/return"
)

func testNewRelyingParty(t *testing.T, tp *TestProvider, opt ...Option) *RelyingParty {
	t.Helper()
	require := require.New(t)
	opts := append([]Option{
		WithProviderCA(tp.CACert()),
		WithLogger(hclog.New(&hclog.LoggerOptions{
			Name:  "test-logger",
			Level: hclog.Error,
		})),
	}, opt...)
	c, err := NewConfig(testRealm, testReturnTo, opts...)
	require.NoError(err)
	rp, err := NewRelyingParty(c)
	require.NoError(err)
	return rp
}

func TestNewRelyingParty(t *testing.T) {
	t.Parallel()
	tp := StartTestProvider(t)
	valid, err := NewConfig(testRealm, testReturnTo, WithProviderCA(tp.CACert()))
	require.NoError(t, err)

	tests := []struct {
		name      string
		c         *Config
		opt       []Option
		wantIsErr error
	}{
		{name: "valid", c: valid},
		{name: "valid-with-client", c: valid, opt: []Option{WithHTTPClient(tp.Client())}},
		{name: "nil-config", c: nil, wantIsErr: ErrNilParameter},
		{name: "invalid-config", c: &Config{Realm: testRealm}, wantIsErr: ErrInvalidParameter},
		{name: "bad-ca", c: &Config{Realm: testRealm, ReturnTo: testReturnTo, ProviderCA: "bad"}, wantIsErr: ErrInvalidCACert},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewRelyingParty(tt.c, tt.opt...)
			if tt.wantIsErr != nil {
				require.ErrorIs(err, tt.wantIsErr)
				assert.Nil(got)
				return
			}
			require.NoError(err)
			assert.Equal(tt.c, got.Config())
			assert.NotNil(got.client)
			assert.NotNil(got.logger)
		})
	}
}

func TestRelyingParty_AuthURL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tp := StartTestProvider(t)
	rp := testNewRelyingParty(t, tp)

	tests := []struct {
		name          string
		identifier    string
		immediate     bool
		wantMode      string
		wantClaimedID string
		wantErr       bool
	}{
		{
			name:          "op-identifier-setup",
			identifier:    tp.DiscoveryURL(),
			wantMode:      "checkid_setup",
			wantClaimedID: IdentifierSelect,
		},
		{
			name:          "op-identifier-immediate",
			identifier:    tp.DiscoveryURL(),
			immediate:     true,
			wantMode:      "checkid_immediate",
			wantClaimedID: IdentifierSelect,
		},
		{
			name:          "claimed-identifier",
			identifier:    tp.Addr() + "/openid/id/42",
			wantMode:      "checkid_setup",
			wantClaimedID: tp.Addr() + "/openid/id/42",
		},
		{
			name:       "empty-identifier",
			identifier: "",
			wantErr:    true,
		},
		{
			name:       "not-found",
			identifier: tp.Addr() + "/nope",
			wantErr:    true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := rp.AuthURL(ctx, tt.identifier, tt.immediate)
			if tt.wantErr {
				require.Error(err)
				assert.Empty(got)
				return
			}
			require.NoError(err)
			u, err := url.Parse(got)
			require.NoError(err)
			assert.Equal(tp.OPEndpoint(), u.Scheme+"://"+u.Host+u.Path)
			q := u.Query()
			assert.Equal(NS, q.Get("openid.ns"))
			assert.Equal(tt.wantMode, q.Get("openid.mode"))
			assert.Equal(tt.wantClaimedID, q.Get("openid.claimed_id"))
			assert.Equal(tt.wantClaimedID, q.Get("openid.identity"))
			assert.Equal(testReturnTo, q.Get("openid.return_to"))
			assert.Equal(testRealm, q.Get("openid.realm"))
		})
	}
}
