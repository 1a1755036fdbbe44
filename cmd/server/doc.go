// Package main is the entry point for the module verifier service.
//
// The service sits between a trusted process and closed-source capability
// modules fetched over HTTP. A module is only instantiated after static
// analysis proves it cannot reach outside the process; every decision is
// audited.
//
// The server provides:
//   - REST API for header generation backed by admitted modules
//   - On-demand capability analysis of submitted source
//   - Audit trail queries and WebSocket streaming
//   - Prometheus metrics
//
// Configuration:
//   - Environment variables with the MODGUARD prefix (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Default configuration
//	./server
//
//	# Explicit port and policy overlay
//	./server -port 8100 -policy /etc/modguard/policy.yaml
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
