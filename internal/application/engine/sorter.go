package engine

import (
	"github.com/aescanero/stepchain/pkg/domain"
)

type color int

const (
	white color = iota
	gray
	black
)

type frame struct {
	id   string
	succ []string
	next int
}

// visitor receives post-order nodes and back edges from walk. Returning
// false from back aborts the walk.
type visitor struct {
	post func(id string)
	back func(path []string) bool
}

// walk runs an iterative depth-first traversal from start, following
// outgoing edges in insertion order and skipping dangling targets. It
// reports false when aborted by the visitor.
func walk(g *domain.Graph, start string, colors map[string]color, v visitor) bool {
	if colors[start] != white {
		return true
	}

	colors[start] = gray
	stack := []frame{{id: start, succ: g.Successors(start)}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(top.succ) {
			next := top.succ[top.next]
			top.next++

			if _, ok := g.Node(next); !ok {
				continue
			}

			switch colors[next] {
			case white:
				colors[next] = gray
				stack = append(stack, frame{id: next, succ: g.Successors(next)})
			case gray:
				if v.back != nil && !v.back(cyclePath(stack, next)) {
					return false
				}
			}
			continue
		}

		colors[top.id] = black
		if v.post != nil {
			v.post(top.id)
		}
		stack = stack[:len(stack)-1]
	}

	return true
}

func cyclePath(stack []frame, to string) []string {
	start := 0
	for i, f := range stack {
		if f.id == to {
			start = i
			break
		}
	}
	path := make([]string, 0, len(stack)-start+1)
	for _, f := range stack[start:] {
		path = append(path, f.id)
	}
	return append(path, to)
}

// Sort returns the step node ids reachable from the input node in an order
// where every step follows the steps it depends on. Independent branches
// are ordered by edge insertion. A cycle yields a *domain.CycleError.
func Sort(g *domain.Graph) ([]string, error) {
	order, err := TopologicalOrder(g)
	if err != nil {
		return nil, err
	}

	steps := make([]string, 0, len(order))
	for _, id := range order {
		if node, _ := g.Node(id); node.IsStep() {
			steps = append(steps, id)
		}
	}
	return steps, nil
}

// TopologicalOrder returns every node reachable from the input node,
// including the input and output nodes, in dependency order
func TopologicalOrder(g *domain.Graph) ([]string, error) {
	inputs := g.NodesOfKind(domain.NodeKindInput)
	if len(inputs) != 1 {
		return nil, &domain.ConfigError{Msg: "graph must have exactly one input node"}
	}

	var (
		post  []string
		cycle *domain.CycleError
	)

	colors := make(map[string]color, g.Len())
	walk(g, inputs[0].ID, colors, visitor{
		post: func(id string) { post = append(post, id) },
		back: func(path []string) bool {
			cycle = &domain.CycleError{Path: path}
			return false
		},
	})
	if cycle != nil {
		return nil, cycle
	}

	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post, nil
}
