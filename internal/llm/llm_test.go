package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/loqalabs/loqa-interview/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockJSON(t *testing.T) {
	out, err := Collect(context.Background(), NewMockGenerator(), Request{Prompt: "hi", Format: FormatJSON})
	require.NoError(t, err)
	assert.Equal(t, MockResponse, out)

	out, err = Collect(context.Background(), NewMockGenerator(), Request{Prompt: " hi "})
	require.NoError(t, err)
	assert.Equal(t, "[mock completion for hi]", out)
}

func TestOllamaGenerate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"triage","response":"{\"signal\":\"correct\"}","done":true,"prompt_eval_count":12,"eval_count":4}` + "\n"))
	}))
	t.Cleanup(srv.Close)

	gen, err := NewOllamaGenerator(srv.URL, "fallback", srv.Client())
	require.NoError(t, err)

	var chunks []Chunk
	err = gen.Generate(context.Background(), Request{Prompt: "judge", Model: "triage", Format: FormatJSON, MaxTokens: 64}, func(c Chunk) error {
		chunks = append(chunks, c)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, `{"signal":"correct"}`, chunks[0].Content)
	assert.False(t, chunks[0].Partial)
	assert.Equal(t, 12, chunks[0].PromptTokens)
	assert.Equal(t, 4, chunks[0].CompletionTokens)

	assert.Equal(t, "triage", got["model"])
	assert.Equal(t, "judge", got["prompt"])
	assert.Equal(t, false, got["stream"])
	assert.Equal(t, "json", got["format"])
}

func TestOllamaServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"model not loaded"}`))
	}))
	t.Cleanup(srv.Close)

	gen, err := NewOllamaGenerator(srv.URL, "m", srv.Client())
	require.NoError(t, err)
	_, err = Collect(context.Background(), gen, Request{Prompt: "x"})
	assert.Error(t, err)
}

func TestOllamaEndpointValidation(t *testing.T) {
	_, err := NewOllamaGenerator("localhost", "m", nil)
	assert.Error(t, err)
}

func TestFactory(t *testing.T) {
	cfg := config.Default().LLM
	gen, err := New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &mockGenerator{}, gen)

	cfg.Enabled = false
	gen, err = New(cfg)
	require.NoError(t, err)
	_, err = Collect(context.Background(), gen, Request{})
	assert.True(t, errors.Is(err, ErrDisabled))

	cfg.Enabled = true
	cfg.Mode = "exec"
	cfg.Command = ""
	_, err = New(cfg)
	assert.Error(t, err)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "judge.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestExecGeneratorPassesRequestAndReadsReply(t *testing.T) {
	dir := t.TempDir()
	seen := filepath.Join(dir, "request.json")
	script := writeScript(t, "cat > "+seen+"\nprintf '%s\\n' '{\"content\":\"{\\\"signal\\\":\\\"correct\\\"}\",\"prompt_tokens\":7}'\n")

	gen, err := NewExecGenerator(script)
	require.NoError(t, err)
	var chunk Chunk
	err = gen.Generate(context.Background(), Request{
		SessionID: "cand-1",
		TraceID:   "trace-1",
		Model:     "llama3",
		Prompt:    "Question: ...",
		Format:    FormatJSON,
	}, func(c Chunk) error {
		chunk = c
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, `{"signal":"correct"}`, chunk.Content)
	assert.Equal(t, 7, chunk.PromptTokens)
	assert.Equal(t, "cand-1", chunk.SessionID)
	assert.Equal(t, "trace-1", chunk.TraceID)

	raw, err := os.ReadFile(seen)
	require.NoError(t, err)
	var req map[string]any
	require.NoError(t, json.Unmarshal(raw, &req))
	assert.Equal(t, "cand-1", req["session_id"])
	assert.Equal(t, "llama3", req["model"])
	assert.Equal(t, "json", req["format"])
}

func TestExecGeneratorAcceptsOllamaReply(t *testing.T) {
	script := writeScript(t, "cat >/dev/null\necho '{\"response\":\"ok\",\"prompt_eval_count\":3,\"eval_count\":2}'\n")
	gen, err := NewExecGenerator(script)
	require.NoError(t, err)

	var chunk Chunk
	require.NoError(t, gen.Generate(context.Background(), Request{Prompt: "p"}, func(c Chunk) error {
		chunk = c
		return nil
	}))
	assert.Equal(t, "ok", chunk.Content)
	assert.Equal(t, 3, chunk.PromptTokens)
	assert.Equal(t, 2, chunk.CompletionTokens)
}

func TestExecGeneratorReportsStderr(t *testing.T) {
	script := writeScript(t, "cat >/dev/null\necho 'model not loaded' >&2\nexit 3\n")
	gen, err := NewExecGenerator(script)
	require.NoError(t, err)

	_, err = Collect(context.Background(), gen, Request{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestExecGeneratorRejectsGarbage(t *testing.T) {
	script := writeScript(t, "cat >/dev/null\necho 'not json'\n")
	gen, err := NewExecGenerator(script)
	require.NoError(t, err)

	_, err = Collect(context.Background(), gen, Request{Prompt: "p"})
	assert.ErrorContains(t, err, "decode judge reply")
}
