// Package internal holds helpers private to authcore: passcode and session
// identifier generation.
package internal
