// Package access maps administrator access levels to capabilities and
// scopes society-bound administrators to their own records.
//
// Everything here is a pure function of the level and, for level 1, the
// administrator's society. Society matching is exact and case-sensitive.
package access
