// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// steamcap provides packages which enable signing users in with Steam: an
// OpenID 2.0 relying party (openid), and an authenticator which verifies
// Steam's assertions and enriches them with the user's public profile from
// the Steam Web API (steam).
package steamcap
