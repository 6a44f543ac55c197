// Package graph holds the interview decision graph: question nodes keyed by
// id, each with a transition table from triage signal to the next node id.
// A Graph is immutable once built and safe to share between sessions.
package graph

import (
	"errors"
	"fmt"
	"sort"
)

// DefaultTransition is the transition key used when a node has no entry for
// the observed signal.
const DefaultTransition = "default"

// ErrNodeNotFound is returned by Node for ids the graph does not contain.
var ErrNodeNotFound = errors.New("node not found")

// Node is one interview question.
type Node struct {
	ID          string            `yaml:"-" json:"id"`
	Prompt      string            `yaml:"question_text" json:"question_text"`
	Skill       string            `yaml:"skill" json:"skill"`
	Difficulty  string            `yaml:"difficulty" json:"difficulty"`
	Transitions map[string]string `yaml:"transitions" json:"transitions"`
}

// Terminal reports whether the node ends the interview.
func (n Node) Terminal() bool { return len(n.Transitions) == 0 }

// Next returns the target for signal, falling back to the default transition.
func (n Node) Next(signal string) (string, bool) {
	if target, ok := n.Transitions[signal]; ok && target != "" {
		return target, true
	}
	if target, ok := n.Transitions[DefaultTransition]; ok && target != "" {
		return target, true
	}
	return "", false
}

func (n Node) clone() Node {
	out := n
	if n.Transitions != nil {
		out.Transitions = make(map[string]string, len(n.Transitions))
		for k, v := range n.Transitions {
			out.Transitions[k] = v
		}
	}
	return out
}

// Definition is the serialised form of a graph.
type Definition struct {
	Name  string          `yaml:"name" json:"name"`
	Start string          `yaml:"start_node" json:"start_node"`
	End   string          `yaml:"end_node,omitempty" json:"end_node,omitempty"`
	Nodes map[string]Node `yaml:"nodes" json:"nodes"`
}

// Graph is a validated, read-only interview graph.
type Graph struct {
	name     string
	start    string
	terminal string
	nodes    map[string]Node
}

// New validates def and builds a Graph from a private copy of it.
func New(def Definition) (*Graph, error) {
	if len(def.Nodes) == 0 {
		return nil, errors.New("graph has no nodes")
	}
	nodes := make(map[string]Node, len(def.Nodes))
	for id, n := range def.Nodes {
		if id == "" {
			return nil, errors.New("node id must not be empty")
		}
		n = n.clone()
		n.ID = id
		nodes[id] = n
	}

	if def.Start == "" {
		return nil, errors.New("start_node is required")
	}
	if _, ok := nodes[def.Start]; !ok {
		return nil, fmt.Errorf("start_node %q: %w", def.Start, ErrNodeNotFound)
	}

	for _, id := range sortedIDs(nodes) {
		for signal, target := range nodes[id].Transitions {
			if _, ok := nodes[target]; !ok {
				return nil, fmt.Errorf("node %q transition %q -> %q: %w", id, signal, target, ErrNodeNotFound)
			}
		}
	}

	terminal := def.End
	if terminal != "" {
		n, ok := nodes[terminal]
		if !ok {
			return nil, fmt.Errorf("end_node %q: %w", terminal, ErrNodeNotFound)
		}
		if !n.Terminal() {
			return nil, fmt.Errorf("end_node %q must not have transitions", terminal)
		}
	} else {
		for _, id := range sortedIDs(nodes) {
			if nodes[id].Terminal() {
				terminal = id
				break
			}
		}
		if terminal == "" {
			return nil, errors.New("graph has no terminal node")
		}
	}

	g := &Graph{name: def.Name, start: def.Start, terminal: terminal, nodes: nodes}
	if !g.reachable(def.Start, terminal) {
		return nil, fmt.Errorf("end_node %q is not reachable from %q", terminal, def.Start)
	}
	return g, nil
}

func (g *Graph) reachable(from, to string) bool {
	seen := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if id == to {
			return true
		}
		for _, target := range g.nodes[id].Transitions {
			if !seen[target] {
				seen[target] = true
				queue = append(queue, target)
			}
		}
	}
	return false
}

// Name is the optional human readable graph name.
func (g *Graph) Name() string { return g.name }

// Start returns the id every new session begins at.
func (g *Graph) Start() string { return g.start }

// Terminal returns the id of the node fail-closed paths are routed to.
func (g *Graph) Terminal() string { return g.terminal }

// Node looks up a node by id.
func (g *Graph) Node(id string) (Node, error) {
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("%q: %w", id, ErrNodeNotFound)
	}
	return n.clone(), nil
}

// Has reports whether id exists.
func (g *Graph) Has(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// IsTerminal reports whether id names a node without outgoing transitions.
// Unknown ids count as terminal.
func (g *Graph) IsTerminal(id string) bool {
	n, ok := g.nodes[id]
	return !ok || n.Terminal()
}

// Nodes returns all nodes sorted by id.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.nodes))
	for _, id := range sortedIDs(g.nodes) {
		out = append(out, g.nodes[id].clone())
	}
	return out
}

func sortedIDs(nodes map[string]Node) []string {
	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
