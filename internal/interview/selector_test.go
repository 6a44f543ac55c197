package interview

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-interview/internal/graph"
	"github.com/loqalabs/loqa-interview/internal/session"
)

func tableGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.New(graph.Definition{
		Start: "A",
		End:   "T",
		Nodes: map[string]graph.Node{
			"A": {Prompt: "a", Transitions: map[string]string{"correct": "B", graph.DefaultTransition: "C"}},
			"B": {Prompt: "b", Transitions: map[string]string{"correct": "C"}},
			"C": {Prompt: "c", Transitions: map[string]string{graph.DefaultTransition: "T"}},
			"T": {Prompt: "bye"},
		},
	})
	require.NoError(t, err)
	return g
}

func result(sig session.Signal) session.TriageResult {
	return session.TriageResult{Signal: sig, Confidence: 0.5}
}

func TestSelectNextTransitionTable(t *testing.T) {
	g := tableGraph(t)
	cases := []struct {
		from string
		sig  session.Signal
		want string
	}{
		{"A", session.SignalCorrect, "B"},
		{"A", session.SignalIncorrect, "C"},
		{"A", session.SignalError, "C"},
		{"B", session.SignalCorrect, "C"},
		{"B", session.SignalPartial, "T"},
		{"B", session.SignalError, "T"},
		{"C", session.SignalCorrect, "T"},
	}
	for _, tc := range cases {
		t.Run(tc.from+"/"+string(tc.sig), func(t *testing.T) {
			st := session.NewStore(tc.from, nil).GetOrCreate("s")
			node := SelectNext(g, st, result(tc.sig))
			assert.Equal(t, tc.want, node.ID)
			assert.Equal(t, tc.want, st.CurrentNodeID())
		})
	}
}

func TestSelectNextUnknownCurrentRoutesToTerminal(t *testing.T) {
	g := tableGraph(t)
	st := session.NewStore("ghost", nil).GetOrCreate("s")
	node := SelectNext(g, st, result(session.SignalCorrect))
	assert.Equal(t, "T", node.ID)
	assert.Equal(t, "T", st.CurrentNodeID())
}

func TestSelectNextFromTerminalStaysTerminal(t *testing.T) {
	g := tableGraph(t)
	st := session.NewStore("T", nil).GetOrCreate("s")
	assert.Equal(t, "T", SelectNext(g, st, result(session.SignalCorrect)).ID)
}

func TestSelectNextDoesNotTouchHistory(t *testing.T) {
	st := session.NewStore("node_1", nil).GetOrCreate("s")
	SelectNext(graph.Default(), st, result(session.SignalCorrect))
	assert.Equal(t, 0, st.Turns())
}

func TestSelectNextAlwaysLandsOnValidNode(t *testing.T) {
	signals := []session.Signal{session.SignalCorrect, session.SignalPartial, session.SignalIncorrect, session.SignalError}
	rng := rand.New(rand.NewSource(7))
	for _, g := range []*graph.Graph{graph.Default(), tableGraph(t)} {
		for run := 0; run < 200; run++ {
			st := session.NewStore(g.Start(), nil).GetOrCreate("s")
			for step := 0; step < 10; step++ {
				require.True(t, g.Has(st.CurrentNodeID()))
				SelectNext(g, st, result(signals[rng.Intn(len(signals))]))
				require.True(t, g.Has(st.CurrentNodeID()))
			}
		}
	}
}

func TestDefaultGraphScenario(t *testing.T) {
	g := graph.Default()
	st := session.NewStore(g.Start(), nil).GetOrCreate("s")

	assert.Equal(t, "node_2", SelectNext(g, st, result(session.SignalCorrect)).ID)
	next := SelectNext(g, st, result(session.SignalPartial))
	assert.Equal(t, "end_node", next.ID)
	assert.True(t, g.IsTerminal(next.ID))
}

func TestStateTransitions(t *testing.T) {
	legal := [][2]State{
		{AwaitAnswer, Transcribing},
		{Transcribing, Triaging},
		{Transcribing, Synthesizing},
		{Triaging, Selecting},
		{Selecting, Synthesizing},
		{Synthesizing, AwaitAnswer},
		{AwaitAnswer, Ended},
		{Triaging, Ended},
	}
	for _, p := range legal {
		assert.True(t, CanTransition(p[0], p[1]), "%s -> %s", p[0], p[1])
	}
	illegal := [][2]State{
		{AwaitAnswer, Triaging},
		{Triaging, AwaitAnswer},
		{Selecting, AwaitAnswer},
		{Ended, AwaitAnswer},
		{Ended, Ended},
	}
	for _, p := range illegal {
		assert.False(t, CanTransition(p[0], p[1]), "%s -> %s", p[0], p[1])
	}

	m := &machine{state: AwaitAnswer}
	assert.Error(t, m.to(Selecting))
	assert.Equal(t, AwaitAnswer, m.state)
	assert.NoError(t, m.to(Transcribing))
	assert.Equal(t, "transcribing", m.state.String())
}
