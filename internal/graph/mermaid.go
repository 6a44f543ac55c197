package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Mermaid renders g as a mermaid flowchart.
func Mermaid(g *Graph) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	for _, n := range g.Nodes() {
		label := n.ID
		if n.Skill != "" {
			label = fmt.Sprintf("%s<br/>%s (%s)", n.ID, n.Skill, n.Difficulty)
		}
		shape := "[\"%s\"]"
		if n.Terminal() {
			shape = "([\"%s\"])"
		}
		fmt.Fprintf(&b, "    %s"+shape+"\n", mermaidID(n.ID), label)
	}
	for _, n := range g.Nodes() {
		signals := make([]string, 0, len(n.Transitions))
		for s := range n.Transitions {
			signals = append(signals, s)
		}
		sort.Strings(signals)
		for _, s := range signals {
			fmt.Fprintf(&b, "    %s -->|%s| %s\n", mermaidID(n.ID), s, mermaidID(n.Transitions[s]))
		}
	}
	return b.String()
}

func mermaidID(id string) string {
	return strings.NewReplacer("-", "_", " ", "_", ".", "_").Replace(id)
}
