package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	StdoutTraces   bool   `yaml:"stdout_traces"`
	PrometheusPath string `yaml:"prometheus_path"`
}

type HTTPConfig struct {
	Bind      string `yaml:"bind"`
	Port      int    `yaml:"port"`
	StaticDir string `yaml:"static_dir"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	STT         STTConfig        `yaml:"stt"`
	LLM         LLMConfig        `yaml:"llm"`
	TTS         TTSConfig        `yaml:"tts"`
	Interview   InterviewConfig  `yaml:"interview"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type STTConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Mode       string `yaml:"mode"`
	Command    string `yaml:"command"`
	ModelPath  string `yaml:"model_path"`
	Language   string `yaml:"language"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	TimeoutMS  int    `yaml:"timeout_ms"`
}

type LLMConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Mode              string  `yaml:"mode"` // mock, ollama, exec
	Endpoint          string  `yaml:"endpoint"`
	Command           string  `yaml:"command"`
	TriageModel       string  `yaml:"triage_model"`
	AnalysisModel     string  `yaml:"analysis_model"`
	TriageTimeoutMS   int     `yaml:"triage_timeout_ms"`
	AnalysisTimeoutMS int     `yaml:"analysis_timeout_ms"`
	MaxTokens         int     `yaml:"max_tokens"`
	Temperature       float64 `yaml:"temperature"`
}

type TTSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Mode       string `yaml:"mode"`
	Command    string `yaml:"command"`
	Voice      string `yaml:"voice"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	TimeoutMS  int    `yaml:"timeout_ms"`
}

type InterviewConfig struct {
	GraphPath       string `yaml:"graph_path"`
	RepromptText    string `yaml:"reprompt_text"`
	AnalysisWorkers int    `yaml:"analysis_workers"`
	AnalysisQueue   int    `yaml:"analysis_queue"`
	MaxAudioBytes   int    `yaml:"max_audio_bytes"`
}

const DefaultRepromptText = "I'm sorry, I didn't catch that. Could you please repeat your answer?"

func Default() Config {
	return Config{
		RuntimeName: "loqa-interview",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8000,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusPath: "/metrics",
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/interview-events.db",
			RetentionMode: "ephemeral",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		STT: STTConfig{
			Enabled:    true,
			Mode:       "mock",
			SampleRate: 16000,
			Channels:   1,
			TimeoutMS:  45000,
		},
		LLM: LLMConfig{
			Enabled:           true,
			Mode:              "mock",
			Endpoint:          "http://localhost:11434",
			TriageModel:       "llama3:8b-instruct-q4_K_M",
			AnalysisModel:     "mixtral:8x7b-instruct-q5_K_M",
			TriageTimeoutMS:   10000,
			AnalysisTimeoutMS: 60000,
			MaxTokens:         512,
			Temperature:       0.2,
		},
		TTS: TTSConfig{
			Enabled:    true,
			Mode:       "mock",
			Voice:      "en_US-lessac-high",
			SampleRate: 22050,
			Channels:   1,
			TimeoutMS:  45000,
		},
		Interview: InterviewConfig{
			RepromptText:    DefaultRepromptText,
			AnalysisWorkers: 2,
			AnalysisQueue:   64,
			MaxAudioBytes:   10 << 20,
		},
	}
}

// Load reads the YAML file at path (if any), applies INTERVIEW_* environment
// overrides and validates the result. A .env file in the working directory is
// loaded first when present; variables already set in the environment win.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("failed to load .env: %w", err)
	}

	applyEnvOverrides(&cfg)
	if err := validate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "INTERVIEW_RUNTIME_NAME")
	overrideString(&cfg.Environment, "INTERVIEW_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "INTERVIEW_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "INTERVIEW_HTTP_PORT")
	overrideString(&cfg.HTTP.StaticDir, "INTERVIEW_HTTP_STATIC_DIR")
	overrideString(&cfg.Telemetry.LogLevel, "INTERVIEW_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "INTERVIEW_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "INTERVIEW_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.StdoutTraces, "INTERVIEW_TELEMETRY_STDOUT_TRACES")
	overrideString(&cfg.Telemetry.PrometheusPath, "INTERVIEW_TELEMETRY_PROMETHEUS_PATH")
	overrideBool(&cfg.Bus.Enabled, "INTERVIEW_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "INTERVIEW_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "INTERVIEW_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "INTERVIEW_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "INTERVIEW_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "INTERVIEW_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "INTERVIEW_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "INTERVIEW_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "INTERVIEW_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "INTERVIEW_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "INTERVIEW_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "INTERVIEW_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "INTERVIEW_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "INTERVIEW_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "INTERVIEW_EVENT_STORE_VACUUM_ON_START")
	overrideBool(&cfg.STT.Enabled, "INTERVIEW_STT_ENABLED")
	overrideString(&cfg.STT.Mode, "INTERVIEW_STT_MODE")
	overrideString(&cfg.STT.Command, "INTERVIEW_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "INTERVIEW_STT_MODEL_PATH")
	overrideString(&cfg.STT.Language, "INTERVIEW_STT_LANGUAGE")
	overrideInt(&cfg.STT.SampleRate, "INTERVIEW_STT_SAMPLE_RATE")
	overrideInt(&cfg.STT.Channels, "INTERVIEW_STT_CHANNELS")
	overrideInt(&cfg.STT.TimeoutMS, "INTERVIEW_STT_TIMEOUT_MS")
	overrideBool(&cfg.LLM.Enabled, "INTERVIEW_LLM_ENABLED")
	overrideString(&cfg.LLM.Mode, "INTERVIEW_LLM_MODE")
	overrideString(&cfg.LLM.Endpoint, "INTERVIEW_LLM_ENDPOINT")
	overrideString(&cfg.LLM.Command, "INTERVIEW_LLM_COMMAND")
	overrideString(&cfg.LLM.TriageModel, "INTERVIEW_LLM_TRIAGE_MODEL")
	overrideString(&cfg.LLM.AnalysisModel, "INTERVIEW_LLM_ANALYSIS_MODEL")
	overrideInt(&cfg.LLM.TriageTimeoutMS, "INTERVIEW_LLM_TRIAGE_TIMEOUT_MS")
	overrideInt(&cfg.LLM.AnalysisTimeoutMS, "INTERVIEW_LLM_ANALYSIS_TIMEOUT_MS")
	overrideInt(&cfg.LLM.MaxTokens, "INTERVIEW_LLM_MAX_TOKENS")
	overrideFloat(&cfg.LLM.Temperature, "INTERVIEW_LLM_TEMPERATURE")
	overrideBool(&cfg.TTS.Enabled, "INTERVIEW_TTS_ENABLED")
	overrideString(&cfg.TTS.Mode, "INTERVIEW_TTS_MODE")
	overrideString(&cfg.TTS.Command, "INTERVIEW_TTS_COMMAND")
	overrideString(&cfg.TTS.Voice, "INTERVIEW_TTS_VOICE")
	overrideInt(&cfg.TTS.SampleRate, "INTERVIEW_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.Channels, "INTERVIEW_TTS_CHANNELS")
	overrideInt(&cfg.TTS.TimeoutMS, "INTERVIEW_TTS_TIMEOUT_MS")
	overrideString(&cfg.Interview.GraphPath, "INTERVIEW_GRAPH_PATH")
	overrideString(&cfg.Interview.RepromptText, "INTERVIEW_REPROMPT_TEXT")
	overrideInt(&cfg.Interview.AnalysisWorkers, "INTERVIEW_ANALYSIS_WORKERS")
	overrideInt(&cfg.Interview.AnalysisQueue, "INTERVIEW_ANALYSIS_QUEUE")
	overrideInt(&cfg.Interview.MaxAudioBytes, "INTERVIEW_MAX_AUDIO_BYTES")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg *Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Telemetry.PrometheusPath == "" || !strings.HasPrefix(cfg.Telemetry.PrometheusPath, "/") {
		return errors.New("telemetry.prometheus_path must be an absolute URL path")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionMode != "ephemeral" && cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.STT.Enabled {
		switch cfg.STT.Mode {
		case "mock", "exec":
		default:
			return errors.New("stt.mode must be one of mock|exec")
		}
		if cfg.STT.SampleRate <= 0 {
			return errors.New("stt.sample_rate must be positive")
		}
		if cfg.STT.Channels <= 0 {
			return errors.New("stt.channels must be positive")
		}
		if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
	}
	if cfg.LLM.Enabled {
		switch cfg.LLM.Mode {
		case "mock", "ollama", "exec":
		default:
			return errors.New("llm.mode must be one of mock|ollama|exec")
		}
		if cfg.LLM.Mode == "ollama" && cfg.LLM.Endpoint == "" {
			return errors.New("llm.endpoint must be set when mode=ollama")
		}
		if cfg.LLM.Mode == "exec" && cfg.LLM.Command == "" {
			return errors.New("llm.command must be set when mode=exec")
		}
		if cfg.LLM.MaxTokens < 0 {
			return errors.New("llm.max_tokens must be >= 0")
		}
		if cfg.LLM.TriageTimeoutMS <= 0 {
			return errors.New("llm.triage_timeout_ms must be positive")
		}
		if cfg.LLM.AnalysisTimeoutMS <= 0 {
			return errors.New("llm.analysis_timeout_ms must be positive")
		}
	}
	if cfg.TTS.Enabled {
		switch cfg.TTS.Mode {
		case "mock", "exec":
		default:
			return errors.New("tts.mode must be one of mock|exec")
		}
		if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
			return errors.New("tts.command must be set when mode=exec")
		}
		if cfg.TTS.SampleRate <= 0 {
			return errors.New("tts.sample_rate must be positive")
		}
		if cfg.TTS.Channels <= 0 {
			return errors.New("tts.channels must be positive")
		}
	}
	if cfg.Interview.AnalysisWorkers <= 0 {
		return errors.New("interview.analysis_workers must be >= 1")
	}
	if cfg.Interview.AnalysisQueue < 0 {
		return errors.New("interview.analysis_queue must be >= 0")
	}
	if cfg.Interview.MaxAudioBytes <= 0 {
		return errors.New("interview.max_audio_bytes must be positive")
	}
	if strings.TrimSpace(cfg.Interview.RepromptText) == "" {
		cfg.Interview.RepromptText = DefaultRepromptText
	}
	return nil
}
