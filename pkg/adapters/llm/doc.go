// Package llm provides completion clients for workflow steps.
//
// The factory creates a ports.Completer based on provider configuration.
// Currently supports:
//   - anthropic: Claude through the Messages API
//   - echo: returns the prompt unchanged, for local runs and tests
package llm
