// Package orchestrator implements the service layer around the workflow
// engine.
//
// The orchestrator manager coordinates workflow execution by:
//   - Validating and persisting workflow configs
//   - Managing execution lifecycle (run, submit, monitor, cancel)
//   - Publishing workflow and step events to the event bus
//   - Tracking execution records via the execution store
package orchestrator
