// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package openid is an OpenID 2.0 relying party.

It performs discovery (Yadis/XRDS with an HTML fallback), builds
checkid_setup and checkid_immediate authentication requests, and verifies
positive assertions statelessly.  Stateless verification means no
associations are established with the OP and no per-session state is kept
by the relying party: every assertion is checked with a direct
check_authentication request to the OP endpoint named in the assertion.

Before that request is made, the assertion must name the OpenID 2.0
namespace, its return_to must match the URL it was received on (see
WithStrict), its response nonce must be fresh (see WithMaxNonceAge), the
signature must cover the fields the protocol requires, and any configured
required prefixes (see WithRequiredPrefixes) must match.

A RelyingParty is immutable once created and safe for concurrent use.

Example:

	c, err := openid.NewConfig(
		"https://example.com/",
		"https://example.com/auth/return",
		openid.WithRequiredPrefixes("op_endpoint", "https://steamcommunity.com/openid/login"),
	)
	if err != nil {
		// handle error
	}
	rp, err := openid.NewRelyingParty(c)
	if err != nil {
		// handle error
	}
	authURL, err := rp.AuthURL(ctx, "https://steamcommunity.com/openid", false)
	...
	assertion, err := rp.Verify(ctx, req)
	if err != nil {
		// handle error
	}
	if assertion.Authenticated {
		fmt.Println(assertion.ClaimedID)
	}

TestProvider is an OP for use in tests; see StartTestProvider.
*/
package openid
