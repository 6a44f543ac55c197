package interview

import (
	"github.com/loqalabs/loqa-interview/internal/graph"
	"github.com/loqalabs/loqa-interview/internal/session"
)

// SelectNext picks the node that follows the session's current node for the
// given triage result and moves the session there. The lookup order is the
// signal's own transition, then "default", then the graph's terminal node.
// An error signal is an ordinary key, so a node with neither an "error" nor
// a "default" transition ends the interview.
func SelectNext(g *graph.Graph, st *session.State, res session.TriageResult) graph.Node {
	next := g.Terminal()
	if cur, err := g.Node(st.CurrentNodeID()); err == nil {
		if target, ok := cur.Next(string(res.Signal)); ok && g.Has(target) {
			next = target
		}
	}
	node, err := g.Node(next)
	if err != nil {
		// Terminal is validated at construction.
		panic(err)
	}
	st.SetCurrentNodeID(node.ID)
	return node
}
