package graph

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a graph definition from a YAML (or JSON) file and validates it.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a graph definition.
func Parse(data []byte) (*Graph, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse graph: %w", err)
	}
	g, err := New(def)
	if err != nil {
		return nil, fmt.Errorf("validate graph: %w", err)
	}
	return g, nil
}

// LoadOrDefault loads path, or returns the built-in graph when path is empty.
func LoadOrDefault(path string) (*Graph, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	return Load(path)
}

// Default returns the built-in junior Python backend interview.
func Default() *Graph {
	g, err := New(DefaultDefinition())
	if err != nil {
		panic(fmt.Sprintf("built-in graph invalid: %v", err))
	}
	return g
}

// DefaultDefinition is the definition behind Default.
func DefaultDefinition() Definition {
	return Definition{
		Name:  "python_backend_junior",
		Start: "node_1",
		End:   "end_node",
		Nodes: map[string]Node{
			"node_1": {
				Prompt:     "Hello, let's begin. Please explain the difference between a list and a tuple in Python.",
				Skill:      "Python Fundamentals",
				Difficulty: "easy",
				Transitions: map[string]string{
					"correct":   "node_2",
					"partial":   "node_1_followup",
					"incorrect": "node_1_clarify",
				},
			},
			"node_1_followup": {
				Prompt:      "You mentioned one is mutable and the other is not. Can you give a practical example of when you would choose a tuple over a list?",
				Skill:       "Python Fundamentals",
				Difficulty:  "easy",
				Transitions: map[string]string{DefaultTransition: "node_2"},
			},
			"node_1_clarify": {
				Prompt:      "Let's break it down. What does it mean for an object to be 'mutable' in Python?",
				Skill:       "Python Fundamentals",
				Difficulty:  "easy",
				Transitions: map[string]string{DefaultTransition: "node_2"},
			},
			"node_2": {
				Prompt:      "Great. Now, can you explain what a decorator is in Python and provide a simple use case?",
				Skill:       "Python Intermediate",
				Difficulty:  "medium",
				Transitions: map[string]string{DefaultTransition: "end_node"},
			},
			"end_node": {
				Prompt:      "Thank you, that concludes our interview.",
				Skill:       "end",
				Difficulty:  "none",
				Transitions: map[string]string{},
			},
		},
	}
}
