// Package websocket provides real-time event streaming via WebSocket.
//
// Clients connect to /api/v1/executions/:id/ws and first receive a
// snapshot of the execution record, followed by its step and workflow
// events. The server closes the stream once the workflow finishes.
package websocket
