// Package ports declares the interfaces between the engine, the
// orchestration service and the adapters (completion provider, event bus,
// storage, metrics).
package ports
