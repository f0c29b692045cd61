// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
callback is a package that provides handlers (in the form of http.HandlerFunc)
for both legs of a Steam sign in: redirecting the user agent to Steam, and
handling the response Steam redirects it back to the return URL with.
*/
package callback
