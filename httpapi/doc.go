// Package httpapi mounts the authentication endpoints on a gin router.
//
// End users and administrators each have a request/verify pair. The
// per-client rate-limit record travels in a signed cookie that every OTP
// request endpoint reads and rewrites, denied requests included. Tokens are
// returned in the body and set as HttpOnly cookies; end users also receive
// a session cookie.
package httpapi
