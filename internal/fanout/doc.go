// Package fanout bridges the cross-process broadcast bus and the local
// connection registry: refcounted per-chat bus subscriptions on the way in,
// best-effort publishes on the way out.
package fanout
