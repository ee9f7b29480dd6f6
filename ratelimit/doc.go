// Package ratelimit bounds how often a client may ask for a passcode.
//
// The window state travels with the client (a signed cookie) rather than
// living on the server, so [Policy.Check] is a pure function of the record
// and the clock. A client that drops its cookie starts a fresh window; the
// optional [IPThrottle] is a coarse server-side guard against that.
package ratelimit
