// Package domain holds the core presence types, the wire event payloads, and
// the ports implemented by infrastructure adapters and external collaborators.
package domain
