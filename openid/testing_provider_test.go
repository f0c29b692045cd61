package openid

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestProvider_Login(t *testing.T) {
	t.Parallel()
	tp := StartTestProvider(t)
	rp := testNewRelyingParty(t, tp)

	t.Run("returns-redirect-without-following", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		authURL, err := rp.AuthURL(context.Background(), tp.DiscoveryURL(), false)
		require.NoError(err)
		// the return URL isn't served by anything, so following it would fail
		loc, err := tp.Login(authURL)
		require.NoError(err)
		require.True(strings.HasPrefix(loc, testReturnTo+"?"), loc)
		u, err := url.Parse(loc)
		require.NoError(err)
		assert.Equal(modeIDRes, u.Query().Get("openid.mode"))
		assert.Equal(TestDefaultClaimedID, u.Query().Get("openid.claimed_id"))
	})
	t.Run("missing-return-to", func(t *testing.T) {
		assert := assert.New(t)
		loc, err := tp.Login(tp.OPEndpoint() + "?openid.mode=checkid_setup")
		assert.Error(err)
		assert.Empty(loc)
	})
}
