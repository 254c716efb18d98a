// Package domain holds the workflow graph model, execution results and the
// error taxonomy shared by the engine, the orchestration service and the
// adapters.
package domain
