package domain

// Graph is an immutable structural view over a WorkflowConfig. It offers
// lookups only; validation and ordering live in the engine.
type Graph struct {
	nodes      map[string]*Node
	order      []string
	edges      []Edge
	incoming   map[string][]Edge
	outgoing   map[string][]Edge
	duplicates []string
}

// NewGraph indexes the nodes and edges of a workflow config. When two nodes
// share an id the first one is kept and the id is reported by DuplicateIDs.
func NewGraph(cfg WorkflowConfig) *Graph {
	g := &Graph{
		nodes:    make(map[string]*Node, len(cfg.Nodes)),
		order:    make([]string, 0, len(cfg.Nodes)),
		edges:    make([]Edge, len(cfg.Edges)),
		incoming: make(map[string][]Edge),
		outgoing: make(map[string][]Edge),
	}

	for i := range cfg.Nodes {
		node := cfg.Nodes[i]
		if _, exists := g.nodes[node.ID]; exists {
			g.duplicates = append(g.duplicates, node.ID)
			continue
		}
		g.nodes[node.ID] = &node
		g.order = append(g.order, node.ID)
	}

	copy(g.edges, cfg.Edges)
	for _, edge := range g.edges {
		g.outgoing[edge.SourceID] = append(g.outgoing[edge.SourceID], edge)
		g.incoming[edge.TargetID] = append(g.incoming[edge.TargetID], edge)
	}

	return g
}

// Node returns the node with the given id
func (g *Graph) Node(id string) (*Node, bool) {
	node, ok := g.nodes[id]
	return node, ok
}

// Nodes returns every node in config order
func (g *Graph) Nodes() []*Node {
	nodes := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		nodes = append(nodes, g.nodes[id])
	}
	return nodes
}

// NodesOfKind returns the nodes of a kind in config order
func (g *Graph) NodesOfKind(kind NodeKind) []*Node {
	var nodes []*Node
	for _, id := range g.order {
		if g.nodes[id].Kind == kind {
			nodes = append(nodes, g.nodes[id])
		}
	}
	return nodes
}

// Edges returns every edge in insertion order
func (g *Graph) Edges() []Edge {
	edges := make([]Edge, len(g.edges))
	copy(edges, g.edges)
	return edges
}

// Incoming returns the edges targeting a node in insertion order
func (g *Graph) Incoming(id string) []Edge {
	return g.incoming[id]
}

// Outgoing returns the edges leaving a node in insertion order
func (g *Graph) Outgoing(id string) []Edge {
	return g.outgoing[id]
}

// Predecessors returns the ids of a node's direct upstream nodes in edge
// order. An id appears once even when several edges connect the same pair.
func (g *Graph) Predecessors(id string) []string {
	return uniqueEnds(g.incoming[id], func(e Edge) string { return e.SourceID })
}

// Successors returns the ids of a node's direct downstream nodes in edge order
func (g *Graph) Successors(id string) []string {
	return uniqueEnds(g.outgoing[id], func(e Edge) string { return e.TargetID })
}

// DuplicateIDs lists node ids that appeared more than once in the config
func (g *Graph) DuplicateIDs() []string {
	return g.duplicates
}

// Len returns the number of distinct nodes
func (g *Graph) Len() int {
	return len(g.order)
}

func uniqueEnds(edges []Edge, end func(Edge) string) []string {
	if len(edges) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(edges))
	ids := make([]string, 0, len(edges))
	for _, edge := range edges {
		id := end(edge)
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}
