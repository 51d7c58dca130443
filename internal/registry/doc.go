// Package registry owns the per-process connection state: which user a live
// connection belongs to, its active/away flag, and its chat subscriptions.
// All mutations are serialized under one lock; counter updates feed the
// presence aggregator with the post-operation global count.
package registry
