package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"nats://localhost:4222"}, cfg.Bus.Servers)
	assert.Equal(t, 10000, cfg.LLM.TriageTimeoutMS)
	assert.Equal(t, 60000, cfg.LLM.AnalysisTimeoutMS)
	assert.Equal(t, "ephemeral", cfg.EventStore.RetentionMode)
	assert.Equal(t, DefaultRepromptText, cfg.Interview.RepromptText)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("INTERVIEW_BUS_ENABLED", "true")
	t.Setenv("INTERVIEW_BUS_EMBEDDED", "false")
	t.Setenv("INTERVIEW_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("INTERVIEW_BUS_USERNAME", "alice")
	t.Setenv("INTERVIEW_BUS_PASSWORD", "secret")
	t.Setenv("INTERVIEW_BUS_TLS_INSECURE", "true")
	t.Setenv("INTERVIEW_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("INTERVIEW_EVENT_STORE_PATH", "./tmp.db")
	t.Setenv("INTERVIEW_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("INTERVIEW_EVENT_STORE_RETENTION_DAYS", "7")
	t.Setenv("INTERVIEW_EVENT_STORE_MAX_SESSIONS", "123")
	t.Setenv("INTERVIEW_EVENT_STORE_VACUUM_ON_START", "true")
	t.Setenv("INTERVIEW_LLM_MODE", "ollama")
	t.Setenv("INTERVIEW_LLM_TRIAGE_MODEL", "tiny")
	t.Setenv("INTERVIEW_LLM_TEMPERATURE", "0.5")
	t.Setenv("INTERVIEW_ANALYSIS_WORKERS", "8")
	t.Setenv("INTERVIEW_GRAPH_PATH", "graphs/python.yaml")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Len(t, cfg.Bus.Servers, 2)
	assert.True(t, cfg.Bus.Enabled)
	assert.False(t, cfg.Bus.Embedded)
	assert.Equal(t, "alice", cfg.Bus.Username)
	assert.Equal(t, "secret", cfg.Bus.Password)
	assert.True(t, cfg.Bus.TLSInsecure)
	assert.Equal(t, 5000, cfg.Bus.ConnectTimeout)

	assert.Equal(t, "./tmp.db", cfg.EventStore.Path)
	assert.Equal(t, "persistent", cfg.EventStore.RetentionMode)
	assert.Equal(t, 7, cfg.EventStore.RetentionDays)
	assert.Equal(t, 123, cfg.EventStore.MaxSessions)
	assert.True(t, cfg.EventStore.VacuumOnStart)

	assert.Equal(t, "ollama", cfg.LLM.Mode)
	assert.Equal(t, "tiny", cfg.LLM.TriageModel)
	assert.InDelta(t, 0.5, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 8, cfg.Interview.AnalysisWorkers)
	assert.Equal(t, "graphs/python.yaml", cfg.Interview.GraphPath)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interview.yaml")
	data := []byte(`
http:
  port: 9000
llm:
  mode: exec
  command: ./bin/llm --json
interview:
  reprompt_text: "  "
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, "./bin/llm --json", cfg.LLM.Command)
	assert.Equal(t, DefaultRepromptText, cfg.Interview.RepromptText, "blank reprompt text falls back to default")
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"port":           func(c *Config) { c.HTTP.Port = 0 },
		"retention":      func(c *Config) { c.EventStore.RetentionMode = "forever" },
		"llm mode":       func(c *Config) { c.LLM.Mode = "gpt" },
		"llm exec":       func(c *Config) { c.LLM.Mode = "exec"; c.LLM.Command = "" },
		"triage timeout": func(c *Config) { c.LLM.TriageTimeoutMS = 0 },
		"tts mode":       func(c *Config) { c.TTS.Mode = "piper" },
		"stt exec":       func(c *Config) { c.STT.Mode = "exec" },
		"workers":        func(c *Config) { c.Interview.AnalysisWorkers = 0 },
		"bus servers": func(c *Config) {
			c.Bus.Enabled = true
			c.Bus.Embedded = false
			c.Bus.Servers = nil
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, validate(&cfg))
		})
	}
}

func TestMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
