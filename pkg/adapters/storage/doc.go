// Package storage provides workflow and execution storage implementations.
//
// Implementations:
//   - redis: Redis with JSON serialization, TTL on execution records
//   - memory: In-memory for testing and single-process deployments
package storage
