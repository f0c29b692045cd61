package openid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testCallbackURL runs the authentication request against the TestProvider
// and returns the URL the user agent is sent back to.
func testCallbackURL(t *testing.T, tp *TestProvider, rp *RelyingParty) string {
	t.Helper()
	require := require.New(t)
	authURL, err := rp.AuthURL(context.Background(), tp.DiscoveryURL(), false)
	require.NoError(err)
	loc, err := tp.Login(authURL)
	require.NoError(err)
	require.True(strings.HasPrefix(loc, testReturnTo+"?"), "unexpected callback %q", loc)
	return loc
}

func testModifyQuery(t *testing.T, rawURL string, fn func(url.Values)) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	q := u.Query()
	fn(q)
	u.RawQuery = q.Encode()
	return u.String()
}

func TestRelyingParty_Verify(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pinned := func(tp *TestProvider) Option {
		return WithRequiredPrefixes(FieldOPEndpoint, tp.OPEndpoint())
	}

	tests := []struct {
		name          string
		setup         func(tp *TestProvider)
		rpOpts        func(tp *TestProvider) []Option
		callback      func(t *testing.T, loc string) string
		wantAuthn     bool
		wantMode      string
		wantClaimedID func(tp *TestProvider) string
		wantIsErr     error
		wantCheckAuth int
	}{
		{
			name:          "valid",
			rpOpts:        func(tp *TestProvider) []Option { return []Option{pinned(tp)} },
			wantAuthn:     true,
			wantMode:      "id_res",
			wantClaimedID: func(*TestProvider) string { return TestDefaultClaimedID },
			wantCheckAuth: 1,
		},
		{
			name:   "valid-discovered-claimed-id",
			setup:  func(tp *TestProvider) { tp.SetClaimedID(tp.Addr() + "/openid/id/42") },
			rpOpts: func(tp *TestProvider) []Option { return nil },
			wantAuthn: true,
			wantMode:  "id_res",
			wantClaimedID: func(tp *TestProvider) string {
				return tp.Addr() + "/openid/id/42"
			},
			wantCheckAuth: 1,
		},
		{
			name: "undiscoverable-op-endpoint",
			setup: func(tp *TestProvider) {
				tp.SetClaimedID(tp.Addr() + "/openid/id/42")
				tp.SetOPEndpoint("https://127.0.0.1:1/openid/login")
			},
			rpOpts:    func(tp *TestProvider) []Option { return nil },
			wantIsErr: ErrInvalidAssertion,
		},
		{
			name:      "cancel",
			setup:     func(tp *TestProvider) { tp.SetCancel(true) },
			rpOpts:    func(tp *TestProvider) []Option { return []Option{pinned(tp)} },
			wantMode:  "cancel",
			wantAuthn: false,
		},
		{
			name:      "provider-error",
			setup:     func(tp *TestProvider) { tp.SetProviderError("server is tired") },
			rpOpts:    func(tp *TestProvider) []Option { return []Option{pinned(tp)} },
			wantIsErr: ErrProviderError,
		},
		{
			name:          "rejected-by-op",
			setup:         func(tp *TestProvider) { tp.SetRejectAll(true) },
			rpOpts:        func(tp *TestProvider) []Option { return []Option{pinned(tp)} },
			wantMode:      "id_res",
			wantAuthn:     false,
			wantClaimedID: func(*TestProvider) string { return TestDefaultClaimedID },
			wantCheckAuth: 1,
		},
		{
			name:          "check-auth-error",
			setup:         func(tp *TestProvider) { tp.SetCheckAuthError("unknown handle") },
			rpOpts:        func(tp *TestProvider) []Option { return []Option{pinned(tp)} },
			wantIsErr:     ErrProviderError,
			wantCheckAuth: 1,
		},
		{
			name:   "op-endpoint-not-allowed",
			setup:  func(tp *TestProvider) { tp.SetOPEndpoint("https://evil.example/openid/login") },
			rpOpts: func(tp *TestProvider) []Option { return []Option{pinned(tp)} },
			wantIsErr: ErrInvalidAssertion,
		},
		{
			name:  "claimed-id-not-allowed",
			setup: func(tp *TestProvider) { tp.SetClaimedID("https://evil.example/openid/id/1") },
			rpOpts: func(tp *TestProvider) []Option {
				return []Option{pinned(tp), WithRequiredPrefixes(FieldClaimedID, "https://steamcommunity.com/openid/id/")}
			},
			wantIsErr: ErrInvalidAssertion,
		},
		{
			name:   "stale-nonce",
			rpOpts: func(tp *TestProvider) []Option {
				return []Option{pinned(tp), WithNow(func() time.Time { return time.Now().Add(time.Hour) })}
			},
			wantIsErr: ErrInvalidNonce,
		},
		{
			name:   "received-on-other-path",
			rpOpts: func(tp *TestProvider) []Option { return []Option{pinned(tp)} },
			callback: func(t *testing.T, loc string) string {
				return strings.Replace(loc, testReturnTo, "https://example.com/elsewhere", 1)
			},
			wantIsErr: ErrInvalidReturnTo,
		},
		{
			name: "received-on-other-path-not-strict",
			rpOpts: func(tp *TestProvider) []Option {
				return []Option{pinned(tp), WithStrict(false)}
			},
			callback: func(t *testing.T, loc string) string {
				return strings.Replace(loc, testReturnTo, "https://example.com/elsewhere", 1)
			},
			wantAuthn:     true,
			wantMode:      "id_res",
			wantClaimedID: func(*TestProvider) string { return TestDefaultClaimedID },
			wantCheckAuth: 1,
		},
		{
			name:   "tampered-claimed-id",
			rpOpts: func(tp *TestProvider) []Option { return []Option{pinned(tp)} },
			callback: func(t *testing.T, loc string) string {
				return testModifyQuery(t, loc, func(q url.Values) {
					q.Set("openid.claimed_id", "https://steamcommunity.com/openid/id/1")
					q.Set("openid.identity", "https://steamcommunity.com/openid/id/1")
				})
			},
			wantMode:      "id_res",
			wantAuthn:     false,
			wantClaimedID: func(*TestProvider) string { return "https://steamcommunity.com/openid/id/1" },
			wantCheckAuth: 1,
		},
		{
			name:   "return-to-not-signed",
			rpOpts: func(tp *TestProvider) []Option { return []Option{pinned(tp)} },
			callback: func(t *testing.T, loc string) string {
				return testModifyQuery(t, loc, func(q url.Values) {
					q.Set("openid.signed", "op_endpoint,claimed_id,identity,response_nonce,assoc_handle")
				})
			},
			wantIsErr: ErrInvalidAssertion,
		},
		{
			name:   "missing-sig",
			rpOpts: func(tp *TestProvider) []Option { return []Option{pinned(tp)} },
			callback: func(t *testing.T, loc string) string {
				return testModifyQuery(t, loc, func(q url.Values) { q.Del("openid.sig") })
			},
			wantIsErr: ErrInvalidAssertion,
		},
		{
			name:   "wrong-ns",
			rpOpts: func(tp *TestProvider) []Option { return []Option{pinned(tp)} },
			callback: func(t *testing.T, loc string) string {
				return testModifyQuery(t, loc, func(q url.Values) { q.Set("openid.ns", "http://openid.net/signon/1.1") })
			},
			wantIsErr: ErrInvalidAssertion,
		},
		{
			name:   "missing-mode",
			rpOpts: func(tp *TestProvider) []Option { return []Option{pinned(tp)} },
			callback: func(t *testing.T, loc string) string {
				return testModifyQuery(t, loc, func(q url.Values) { q.Del("openid.mode") })
			},
			wantIsErr: ErrInvalidAssertion,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			tp := StartTestProvider(t)
			if tt.setup != nil {
				tt.setup(tp)
			}
			rp := testNewRelyingParty(t, tp, tt.rpOpts(tp)...)
			loc := testCallbackURL(t, tp, rp)
			if tt.callback != nil {
				loc = tt.callback(t, loc)
			}

			got, err := rp.Verify(ctx, httptest.NewRequest(http.MethodGet, loc, nil))
			assert.Equal(tt.wantCheckAuth, tp.CheckAuthCalls())
			if tt.wantIsErr != nil {
				require.ErrorIs(err, tt.wantIsErr)
				assert.Nil(got)
				return
			}
			require.NoError(err)
			assert.Equal(tt.wantAuthn, got.Authenticated)
			assert.Equal(tt.wantMode, got.Mode)
			if tt.wantClaimedID != nil {
				assert.Equal(tt.wantClaimedID(tp), got.ClaimedID)
				assert.Equal(tt.wantClaimedID(tp), got.Identity)
			}
			if got.Authenticated {
				assert.NotEmpty(got.ResponseNonce)
				assert.NotEmpty(got.OPEndpoint)
				assert.Equal(got.ClaimedID, got.Params.Get("openid.claimed_id"))
			}
		})
	}
}

func TestRelyingParty_Verify_replay(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	tp := StartTestProvider(t)
	rp := testNewRelyingParty(t, tp, WithRequiredPrefixes(FieldOPEndpoint, tp.OPEndpoint()))
	loc := testCallbackURL(t, tp, rp)

	first, err := rp.Verify(ctx, httptest.NewRequest(http.MethodGet, loc, nil))
	require.NoError(err)
	assert.True(first.Authenticated)

	second, err := rp.Verify(ctx, httptest.NewRequest(http.MethodGet, loc, nil))
	require.NoError(err)
	assert.False(second.Authenticated)
}

func TestRelyingParty_Verify_post(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	tp := StartTestProvider(t)
	rp := testNewRelyingParty(t, tp, WithRequiredPrefixes(FieldOPEndpoint, tp.OPEndpoint()))
	loc := testCallbackURL(t, tp, rp)
	u, err := url.Parse(loc)
	require.NoError(err)

	req := httptest.NewRequest(http.MethodPost, testReturnTo, strings.NewReader(u.RawQuery))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	got, err := rp.Verify(ctx, req)
	require.NoError(err)
	assert.True(got.Authenticated)
	assert.Equal(TestDefaultClaimedID, got.ClaimedID)
}

func TestRelyingParty_Verify_nilRequest(t *testing.T) {
	t.Parallel()
	tp := StartTestProvider(t)
	rp := testNewRelyingParty(t, tp)
	_, err := rp.Verify(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilParameter)
}

func Test_checkReturnTo(t *testing.T) {
	t.Parallel()
	const conf = "https://example.com/auth/return?tenant=a"
	tests := []struct {
		name     string
		returnTo string
		received string
		wantErr  bool
	}{
		{
			name:     "match",
			returnTo: "https://example.com/auth/return?tenant=a",
			received: "https://EXAMPLE.com/auth/return?tenant=a&openid.mode=id_res",
		},
		{
			name:     "received-missing-return-to-param",
			returnTo: "https://example.com/auth/return?tenant=a",
			received: "https://example.com/auth/return?openid.mode=id_res",
			wantErr:  true,
		},
		{
			name:     "return-to-missing-configured-param",
			returnTo: "https://example.com/auth/return",
			received: "https://example.com/auth/return?openid.mode=id_res",
			wantErr:  true,
		},
		{
			name:     "scheme-mismatch",
			returnTo: "https://example.com/auth/return?tenant=a",
			received: "http://example.com/auth/return?tenant=a",
			wantErr:  true,
		},
		{
			name:     "host-mismatch",
			returnTo: "https://evil.example/auth/return?tenant=a",
			received: "https://evil.example/auth/return?tenant=a",
			wantErr:  true,
		},
		{
			name:     "empty",
			returnTo: "",
			received: "https://example.com/auth/return?tenant=a",
			wantErr:  true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := checkReturnTo(tt.returnTo, tt.received, conf)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidReturnTo)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func Test_receivedURL(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	abs := httptest.NewRequest(http.MethodGet, "https://example.com/return?a=1", nil)
	assert.Equal("https://example.com/return?a=1", receivedURL(abs))

	rel := &http.Request{Host: "example.com", URL: &url.URL{Path: "/return", RawQuery: "a=1"}, Header: http.Header{}}
	assert.Equal("http://example.com/return?a=1", receivedURL(rel))

	rel.Header.Set("X-Forwarded-Proto", "https, http")
	assert.Equal("https://example.com/return?a=1", receivedURL(rel))

	rel.Header.Set("X-Forwarded-Host", "public.example.com, internal:8080")
	assert.Equal("https://public.example.com/return?a=1", receivedURL(rel))
}
