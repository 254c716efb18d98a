package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aescanero/stepchain/pkg/domain"
)

// ValidationResult lists every structural violation found in a graph
type ValidationResult struct {
	Violations []domain.Violation
}

// Valid reports whether no violation was found
func (r ValidationResult) Valid() bool {
	return len(r.Violations) == 0
}

// Err returns a *domain.ValidationError, or nil for a valid graph
func (r ValidationResult) Err() error {
	if r.Valid() {
		return nil
	}
	return &domain.ValidationError{Violations: r.Violations}
}

// Validator validates graph structures
type Validator struct{}

// NewValidator creates a new graph validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks, in order: node kinds and counts, edge references, step
// connectivity and cycles. Every violation is collected.
func (v *Validator) Validate(g *domain.Graph) ValidationResult {
	var res ValidationResult
	add := func(viol domain.Violation) {
		res.Violations = append(res.Violations, viol)
	}

	v.checkNodes(g, add)
	v.checkEdges(g, add)
	v.checkSteps(g, add)
	v.checkCycles(g, add)

	return res
}

func (v *Validator) checkNodes(g *domain.Graph, add func(domain.Violation)) {
	if n := len(g.NodesOfKind(domain.NodeKindInput)); n != 1 {
		add(domain.Violation{
			Kind:    domain.ViolationInputCount,
			Message: fmt.Sprintf("expected exactly one input node, found %d", n),
		})
	}
	if n := len(g.NodesOfKind(domain.NodeKindOutput)); n != 1 {
		add(domain.Violation{
			Kind:    domain.ViolationOutputCount,
			Message: fmt.Sprintf("expected exactly one output node, found %d", n),
		})
	}

	for _, id := range g.DuplicateIDs() {
		add(domain.Violation{
			Kind:    domain.ViolationDuplicateNode,
			NodeID:  id,
			Message: fmt.Sprintf("duplicate node id %q", id),
		})
	}

	for _, node := range g.Nodes() {
		switch node.Kind {
		case domain.NodeKindInput, domain.NodeKindStep, domain.NodeKindOutput:
		default:
			add(domain.Violation{
				Kind:    domain.ViolationUnknownKind,
				NodeID:  node.ID,
				Message: fmt.Sprintf("node %q has unknown kind %q", node.ID, node.Kind),
			})
		}
	}
}

func (v *Validator) checkEdges(g *domain.Graph, add func(domain.Violation)) {
	for _, edge := range g.Edges() {
		for _, end := range []string{edge.SourceID, edge.TargetID} {
			if _, ok := g.Node(end); ok {
				continue
			}
			add(domain.Violation{
				Kind:    domain.ViolationDanglingEdge,
				EdgeID:  edge.ID,
				NodeID:  end,
				Message: fmt.Sprintf("edge %q references unknown node %q", edge.ID, end),
			})
		}
	}
}

func (v *Validator) checkSteps(g *domain.Graph, add func(domain.Violation)) {
	for _, node := range g.NodesOfKind(domain.NodeKindStep) {
		connected := false
		for _, edge := range g.Incoming(node.ID) {
			if _, ok := g.Node(edge.SourceID); ok {
				connected = true
				break
			}
		}
		if !connected {
			add(domain.Violation{
				Kind:    domain.ViolationOrphanStep,
				NodeID:  node.ID,
				Message: fmt.Sprintf("step %q has no incoming edge", node.ID),
			})
		}
	}
}

// checkCycles walks from the input node first and then from every node not
// yet visited, so cycles disconnected from the input are found too
func (v *Validator) checkCycles(g *domain.Graph, add func(domain.Violation)) {
	colors := make(map[string]color, g.Len())
	seen := make(map[string]bool)

	onBack := func(path []string) bool {
		key := cycleKey(path)
		if seen[key] {
			return true
		}
		seen[key] = true
		add(domain.Violation{
			Kind:    domain.ViolationCycle,
			NodeID:  path[0],
			Message: fmt.Sprintf("cycle detected: %s", strings.Join(path, " -> ")),
		})
		return true
	}

	var starts []string
	for _, node := range g.NodesOfKind(domain.NodeKindInput) {
		starts = append(starts, node.ID)
	}
	for _, node := range g.Nodes() {
		starts = append(starts, node.ID)
	}

	for _, id := range starts {
		walk(g, id, colors, visitor{back: onBack})
	}
}

// CheckRunnable verifies that a structurally valid graph can produce a
// final output: the output node needs exactly one predecessor and no
// successors, and every step must be reachable from the input node.
func (v *Validator) CheckRunnable(g *domain.Graph) error {
	outputs := g.NodesOfKind(domain.NodeKindOutput)
	if len(outputs) != 1 {
		return &domain.ConfigError{Msg: "graph must have exactly one output node"}
	}
	output := outputs[0]

	if n := len(g.Predecessors(output.ID)); n != 1 {
		return &domain.ConfigError{
			NodeID: output.ID,
			Msg:    fmt.Sprintf("output node must have exactly one predecessor, found %d", n),
		}
	}
	if len(g.Outgoing(output.ID)) > 0 {
		return &domain.ConfigError{
			NodeID: output.ID,
			Msg:    "output node must not have outgoing edges",
		}
	}

	order, err := TopologicalOrder(g)
	if err != nil {
		return err
	}
	reachable := make(map[string]bool, len(order))
	for _, id := range order {
		reachable[id] = true
	}
	for _, node := range g.NodesOfKind(domain.NodeKindStep) {
		if !reachable[node.ID] {
			return &domain.ConfigError{
				NodeID: node.ID,
				Msg:    "step is not reachable from the input node",
			}
		}
	}

	return nil
}

// cycleKey identifies a cycle independently of where the walk entered it
func cycleKey(path []string) string {
	nodes := append([]string(nil), path[:len(path)-1]...)
	sort.Strings(nodes)
	return strings.Join(nodes, "\x00")
}
