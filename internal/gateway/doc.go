// Package gateway terminates one WebSocket per client and drives the
// presence subsystem from parsed JSON frames. Connections start
// unauthenticated; a valid auth frame within the auth window promotes them,
// anything else closes the socket.
package gateway
