package graph

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultGraph(t *testing.T) {
	g := Default()
	assert.Equal(t, "node_1", g.Start())
	assert.Equal(t, "end_node", g.Terminal())
	assert.True(t, g.IsTerminal("end_node"))
	assert.False(t, g.IsTerminal("node_1"))
	assert.Len(t, g.Nodes(), 5)

	n, err := g.Node("node_1")
	require.NoError(t, err)
	assert.Equal(t, "Python Fundamentals", n.Skill)
	assert.Equal(t, "node_2", n.Transitions["correct"])
}

func TestNodeNotFound(t *testing.T) {
	_, err := Default().Node("nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNodeNotFound))
}

func TestNodeReturnsCopy(t *testing.T) {
	g := Default()
	n, err := g.Node("node_1")
	require.NoError(t, err)
	n.Transitions["correct"] = "end_node"

	again, err := g.Node("node_1")
	require.NoError(t, err)
	assert.Equal(t, "node_2", again.Transitions["correct"])
}

func TestNodeNext(t *testing.T) {
	n := Node{Transitions: map[string]string{"correct": "B", DefaultTransition: "C"}}

	next, ok := n.Next("correct")
	assert.True(t, ok)
	assert.Equal(t, "B", next)

	next, ok = n.Next("incorrect")
	assert.True(t, ok)
	assert.Equal(t, "C", next)

	_, ok = Node{Transitions: map[string]string{"correct": "B"}}.Next("partial")
	assert.False(t, ok)
}

func TestNewValidation(t *testing.T) {
	cases := map[string]Definition{
		"no nodes":      {Start: "a"},
		"missing start": {Start: "x", Nodes: map[string]Node{"a": {}}},
		"empty start":   {Nodes: map[string]Node{"a": {}}},
		"dangling target": {Start: "a", Nodes: map[string]Node{
			"a": {Transitions: map[string]string{"correct": "ghost"}},
			"b": {},
		}},
		"end has transitions": {Start: "a", End: "a", Nodes: map[string]Node{
			"a": {Transitions: map[string]string{DefaultTransition: "b"}},
			"b": {},
		}},
		"no terminal": {Start: "a", Nodes: map[string]Node{
			"a": {Transitions: map[string]string{DefaultTransition: "a"}},
		}},
		"unreachable end": {Start: "a", End: "c", Nodes: map[string]Node{
			"a": {Transitions: map[string]string{DefaultTransition: "b"}},
			"b": {},
			"c": {},
		}},
	}
	for name, def := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(def)
			assert.Error(t, err)
		})
	}
}

func TestTerminalInferred(t *testing.T) {
	g, err := New(Definition{Start: "a", Nodes: map[string]Node{
		"a": {Transitions: map[string]string{DefaultTransition: "z"}},
		"z": {Prompt: "bye"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "z", g.Terminal())
}

func TestParseYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.yaml")
	data := `
name: tiny
start_node: q1
end_node: done
nodes:
  q1:
    question_text: What is a goroutine?
    skill: Go
    difficulty: easy
    transitions:
      correct: done
      default: q2
  q2:
    question_text: What is a channel?
    skill: Go
    difficulty: easy
    transitions:
      default: done
  done:
    question_text: Thanks!
    skill: end
    difficulty: none
    transitions: {}
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	g, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tiny", g.Name())
	assert.Equal(t, "q1", g.Start())

	n, err := g.Node("q1")
	require.NoError(t, err)
	assert.Equal(t, "q1", n.ID)
	assert.Equal(t, "What is a goroutine?", n.Prompt)
}

func TestLoadOrDefault(t *testing.T) {
	g, err := LoadOrDefault("  ")
	require.NoError(t, err)
	assert.Equal(t, "node_1", g.Start())

	_, err = LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMermaid(t *testing.T) {
	out := Mermaid(Default())
	assert.True(t, strings.HasPrefix(out, "flowchart TD\n"))
	assert.Contains(t, out, "node_1 -->|correct| node_2")
	assert.Contains(t, out, "node_2 -->|default| end_node")
}
