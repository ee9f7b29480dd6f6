// Package mail chooses which outbound account sends the next message.
//
// A pool of accounts is filled one account at a time: a single monotonically
// increasing counter picks slot floor(counter/quota) mod poolSize, so each
// account sends quota messages before the next one takes over, and the
// rotation wraps around. Delivery itself is done by a [Sender].
package mail
