// Package site serves the bridge's small browser front end.
//
// The pages are embedded with go:embed and served from an explicit sitemap
// with fixed content types. p1.html asks for a device address, access code
// and API key, keeps them in the URL fragment and polls POST /v1/p1 once a
// second for the latest frame.
package site
