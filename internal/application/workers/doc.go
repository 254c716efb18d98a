// Package workers implements the bounded worker pool used to run workflow
// steps concurrently.
//
// The pool manages a fixed number of goroutines that:
//   - Take tasks from a bounded queue fed by Submit
//   - Run each task with the pool context, recovering panics
//   - Release queued tasks with a cancelled context on shutdown
//
// The health monitor tracks worker status, logs it and records metrics.
package workers
