// Package gormstore is a gorm-backed authcore.PrincipalStore. SQLite
// (pure Go, via glebarez/sqlite) and PostgreSQL are supported.
package gormstore
