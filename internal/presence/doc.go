// Package presence computes the broadcast-visible online/offline status per
// user from the global active-connection count, deduplicates transitions, and
// applies the privacy policy before anything reaches the bus.
package presence
