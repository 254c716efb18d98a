package domain

// NodeKind identifies the role of a node in a workflow graph
type NodeKind string

const (
	NodeKindInput  NodeKind = "input"
	NodeKindStep   NodeKind = "step"
	NodeKindOutput NodeKind = "output"
)

// Node is a single unit of a workflow graph
type Node struct {
	ID    string   `json:"id"`
	Kind  NodeKind `json:"kind"`
	Label string   `json:"label"`

	// PromptTemplate is only meaningful for step nodes
	PromptTemplate string `json:"prompt_template,omitempty"`

	// Placeholder is only meaningful for input nodes
	Placeholder string `json:"placeholder,omitempty"`
}

// Edge is a directed dependency between two nodes
type Edge struct {
	ID       string `json:"id"`
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
}

// WorkflowConfig is the deserialized output of the workflow editor
type WorkflowConfig struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// IsStep reports whether the node is an AI step
func (n *Node) IsStep() bool {
	return n.Kind == NodeKindStep
}
