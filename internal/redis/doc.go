// Package redis implements the shared-substrate ports on Redis: the atomic
// per-user active-connection counter and the chat-keyed broadcast bus.
package redis
