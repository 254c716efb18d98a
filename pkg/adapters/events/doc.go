// Package events provides event bus implementations.
//
// Implementations:
//   - redis: Redis Streams, one consumer group per subscription
//   - memory: In-memory for testing and single-process deployments
//
// Every subscription receives every event published after it was made,
// in publish order, until its context is cancelled.
package events
