// Package server implements the HTTP server using Echo framework.
//
// Routes: /ws (WebSocket upgrade), /health/* (probes), /metrics (Prometheus).
package server
