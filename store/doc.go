// Package store holds the short-lived credential state: hashed one-time
// passcode records and end-user session records.
//
// Two backends implement the same interfaces. The memory backend is the
// default for single-process deployments and serializes mutation per key.
// The Redis backend uses WATCH/MULTI optimistic transactions so the same
// per-key guarantee holds across processes.
package store
