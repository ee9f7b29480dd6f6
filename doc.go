// Package authcore is the authentication and access core of an event
// registration platform.
//
// End users and administrators both sign in with a six-digit code sent by
// email. The Engine rate-limits code requests, stores only a hash of each
// code, bounds wrong guesses, and on success mints a signed token scoped to
// the principal kind (and, for end users, a server-side session). Outbound
// mail is spread over a pool of accounts with per-account quotas. The access
// package decides what each administrator level may do.
//
// Build an Engine with New:
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithPrincipalStore(users).
//		WithMailSender(sender).
//		Build()
//
// Shared state (codes, sessions, the mail counter) lives in explicitly
// constructed stores owned by the Engine; nothing is package-global. The
// default backends are in memory; WithRedis switches them to Redis.
package authcore
