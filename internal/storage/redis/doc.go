// Package redis records which mentions have already been claimed for a reply.
// Claims are opt-in: with the "none" driver New returns a nil Claimer and every
// delivery is answered; "memory" and "redis" make a mention re-delivered after
// a stream reconnect get answered once.
package redis
