// Package engine executes workflow graphs.
//
// An execution validates the graph, checks that it can produce a result,
// orders the step nodes topologically and runs each step by rendering its
// prompt template against upstream results and calling the completion
// provider. The first failing step stops the run; the partial log is kept.
//
// Steps run one at a time by default. With a Dispatcher configured,
// independent steps run concurrently once their dependencies complete.
package engine
