// Package middleware adapts authcore token verification to net/http.
//
// # Guards
//
//   - [Guard] verifies the request token under a [jwt.Policy].
//   - [RequireUser], [RequireAdmin] and [RequireAny] are presets.
//   - [RequireCapability] layers an access-matrix check on top of a guard.
//
// Tokens are read by [TokenFromRequest]: a bearer Authorization header wins,
// then the named cookies in order. The httpapi package uses the same
// extraction so both surfaces accept the same credentials.
//
// This package translates HTTP semantics into Engine calls and makes no
// authentication decision of its own.
package middleware
