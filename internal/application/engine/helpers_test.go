package engine_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/aescanero/stepchain/pkg/domain"
)

func inputNode(id string) domain.Node {
	return domain.Node{ID: id, Kind: domain.NodeKindInput, Label: id, Placeholder: "Type here"}
}

func stepNode(id, label, prompt string) domain.Node {
	return domain.Node{ID: id, Kind: domain.NodeKindStep, Label: label, PromptTemplate: prompt}
}

func outputNode(id string) domain.Node {
	return domain.Node{ID: id, Kind: domain.NodeKindOutput, Label: id}
}

func edge(from, to string) domain.Edge {
	return domain.Edge{ID: from + "->" + to, SourceID: from, TargetID: to}
}

func workflow(nodes []domain.Node, edges ...domain.Edge) domain.WorkflowConfig {
	return domain.WorkflowConfig{ID: "wf-test", Name: "test", Nodes: nodes, Edges: edges}
}

// linearWorkflow builds I -> S1 -> ... -> Sn -> O where each step echoes
// its predecessor
func linearWorkflow(steps int) domain.WorkflowConfig {
	nodes := []domain.Node{inputNode("I")}
	var edges []domain.Edge
	prev := "I"
	for i := 1; i <= steps; i++ {
		id := fmt.Sprintf("S%d", i)
		nodes = append(nodes, stepNode(id, "Step "+id, fmt.Sprintf("%s({%s})", id, prev)))
		edges = append(edges, edge(prev, id))
		prev = id
	}
	nodes = append(nodes, outputNode("O"))
	edges = append(edges, edge(prev, "O"))
	return workflow(nodes, edges...)
}

// summarizeTranslate is the two-step reference scenario
func summarizeTranslate() domain.WorkflowConfig {
	return workflow(
		[]domain.Node{
			inputNode("I"),
			stepNode("S1", "Summary", "Summarize: {I}"),
			stepNode("S2", "French", "Translate to French: {S1}"),
			outputNode("O"),
		},
		edge("I", "S1"), edge("S1", "S2"), edge("S2", "O"),
	)
}

type stubCompleter struct {
	mu      sync.Mutex
	prompts []string
	respond func(ctx context.Context, prompt string) (string, error)
}

func newStub(respond func(ctx context.Context, prompt string) (string, error)) *stubCompleter {
	return &stubCompleter{respond: respond}
}

func echoStub() *stubCompleter {
	return newStub(func(_ context.Context, prompt string) (string, error) {
		return prompt, nil
	})
}

func (s *stubCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	return s.respond(ctx, prompt)
}

func (s *stubCompleter) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

func (s *stubCompleter) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// goDispatcher runs each task on its own goroutine
type goDispatcher struct{}

func (goDispatcher) Submit(ctx context.Context, task func(context.Context)) error {
	go task(ctx)
	return nil
}

// recordingObserver keeps every event it receives
type recordingObserver struct {
	mu     sync.Mutex
	events []domain.StepEvent
}

func (o *recordingObserver) OnStepEvent(_ context.Context, event domain.StepEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

func (o *recordingObserver) Types() []domain.EventType {
	o.mu.Lock()
	defer o.mu.Unlock()
	types := make([]domain.EventType, len(o.events))
	for i, ev := range o.events {
		types[i] = ev.Type
	}
	return types
}
