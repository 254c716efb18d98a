// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Workflow storage (create, list, get, delete)
//   - Synchronous and background executions, status and cancellation
//   - Worker pool status
//   - Health checks
//   - Prometheus metrics
package http
