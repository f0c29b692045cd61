// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
steam is a package for signing users in with Steam.

Steam is an OpenID 2.0 provider.  An Authenticator redirects the user agent
to Steam, verifies the assertion Steam sends the user agent back with, and
looks up the signed in user's public profile with the Steam Web API.

Primary types provided by the package

* Config: the realm, return URL and Steam Web API key of a site.

* Authenticator: provides RedirectURL, Authenticate and FetchIdentifier.
Assertions are verified directly with Steam (stateless mode), only from
Steam's OP endpoint, only for Steam identifiers, and only for the configured
return URL.

* UserProfile: the user's SteamID and public profile.

Errors

Every error returned wraps one of ErrConfiguration, ErrAuthentication,
ErrNotFound or ErrUpstream; use errors.Is to tell them apart.

The steam.callback package

The callback package provides http.HandlerFunc(s) for the sign in redirect
and the return URL.

Testing

TestWebAPI and MockRelyingParty, together with openid.TestProvider, allow
testing an integration without reaching Steam.
*/
package steam
