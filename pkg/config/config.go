// Package config loads runtime configuration from environment variables,
// an optional .env file, and an optional YAML file, layered through viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Voice and Language mirror the teacher's orchestrator.Voice/Language enums;
// kept as distinct string types so provider adapters can't accidentally mix
// them up with plain strings.
type Voice string

const (
	VoiceF1 Voice = "F1"
	VoiceF2 Voice = "F2"
	VoiceF3 Voice = "F3"
	VoiceF4 Voice = "F4"
	VoiceF5 Voice = "F5"
	VoiceM1 Voice = "M1"
	VoiceM2 Voice = "M2"
	VoiceM3 Voice = "M3"
	VoiceM4 Voice = "M4"
	VoiceM5 Voice = "M5"
)

type Language string

const (
	LanguageEn Language = "en"
	LanguageEs Language = "es"
	LanguageFr Language = "fr"
	LanguageDe Language = "de"
	LanguageIt Language = "it"
	LanguagePt Language = "pt"
	LanguageJa Language = "ja"
	LanguageZh Language = "zh"
)

// Audio carries spec §6.3's negotiated wire format.
type Audio struct {
	SampleRate   int
	Channels     int
	BytesPerSamp int
}

// Pool carries spec §4.2's sizing knobs.
type Pool struct {
	NumIdleProcesses           int
	MaxConcurrentInitializations int
	InitializeTimeout          time.Duration
	CloseTimeout               time.Duration
}

// Worker carries spec §4.1's knobs.
type Worker struct {
	DispatchURL             string
	AgentName               string
	WorkerType              string // ROOM | PUBLISHER
	PingInterval            time.Duration
	PingTimeout             time.Duration
	HighPingThreshold       time.Duration
	MaxUnrecoverableErrors  int
	ReconnectMaxElapsedTime time.Duration
}

// JobExec carries spec §4.3's knobs.
type JobExec struct {
	MemoryWarnMB  int
	MemoryLimitMB int
	SampleEvery   time.Duration
}

// Session carries spec §4.4-§4.6 tunables.
type Session struct {
	MaxContextMessages          int
	VoiceStyle                  Voice
	Language                    Language
	MinEndpointingDelay         time.Duration
	MaxEndpointingDelay         time.Duration
	MinWordsToInterrupt         int
	DiscardAudioIfUninterruptible bool
	MaxToolSteps                int
	TurnDetectionMode           string // vad | stt | manual | realtime
}

// Config is the fully resolved runtime configuration.
type Config struct {
	STTProvider  string
	LLMProvider  string
	TTSProvider  string
	GroqKey      string
	OpenAIKey    string
	AnthropicKey string
	GoogleKey    string
	DeepgramKey  string
	AssemblyKey  string
	LokutorKey   string

	Audio   Audio
	Pool    Pool
	Worker  Worker
	JobExec JobExec
	Session Session

	LogDebug    bool
	LogFilePath string
}

// Default mirrors the teacher's DefaultConfig, generalized with the
// additional pool/worker/job-executor/session sections this spec adds.
func Default() Config {
	return Config{
		STTProvider: "groq",
		LLMProvider: "groq",
		TTSProvider: "lokutor",
		Audio: Audio{
			SampleRate:   44100,
			Channels:     1,
			BytesPerSamp: 2,
		},
		Pool: Pool{
			NumIdleProcesses:           2,
			MaxConcurrentInitializations: 3,
			InitializeTimeout:          10 * time.Second,
			CloseTimeout:               5 * time.Second,
		},
		Worker: Worker{
			WorkerType:              "ROOM",
			PingInterval:            10 * time.Second,
			PingTimeout:             5 * time.Second,
			HighPingThreshold:       1500 * time.Millisecond,
			MaxUnrecoverableErrors:  3,
			ReconnectMaxElapsedTime: 2 * time.Minute,
		},
		JobExec: JobExec{
			MemoryWarnMB:  350,
			MemoryLimitMB: 500,
			SampleEvery:   500 * time.Millisecond,
		},
		Session: Session{
			MaxContextMessages:          20,
			VoiceStyle:                  VoiceF1,
			Language:                    LanguageEn,
			MinEndpointingDelay:         800 * time.Millisecond,
			MaxEndpointingDelay:         5 * time.Second,
			MinWordsToInterrupt:         0,
			DiscardAudioIfUninterruptible: false,
			MaxToolSteps:                8,
			TurnDetectionMode:           "vad",
		},
	}
}

// Load reads a .env file (if present), then layers environment variables
// and an optional YAML file (path via VOXRUNNER_CONFIG) over the defaults
// with environment variables taking precedence over the config file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		// Absence of a .env file is normal outside local dev; only a
		// parse error of an existing file is worth surfacing loudly,
		// and godotenv.Load does not distinguish the two, so we keep
		// this non-fatal like the teacher's cmd/agent/main.go does.
		_ = err
	}

	v := viper.New()
	v.SetEnvPrefix("VOXRUNNER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	// These keys are read from their plain names (GROQ_API_KEY,
	// DISPATCH_URL, ...) as well as the VOXRUNNER_ form; the prefixed
	// form wins when both are set.
	for _, key := range []string{
		"STT_PROVIDER", "LLM_PROVIDER", "TTS_PROVIDER",
		"GROQ_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GOOGLE_API_KEY",
		"DEEPGRAM_API_KEY", "ASSEMBLYAI_API_KEY", "LOKUTOR_API_KEY",
		"DISPATCH_URL", "AGENT_NAME", "AGENT_LANGUAGE",
	} {
		_ = v.BindEnv(key, "VOXRUNNER_"+key, key)
	}

	if cfgPath := v.GetString("CONFIG"); cfgPath != "" {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", cfgPath, err)
		}
	}

	cfg := Default()

	cfg.STTProvider = firstNonEmpty(v.GetString("STT_PROVIDER"), cfg.STTProvider)
	cfg.LLMProvider = firstNonEmpty(v.GetString("LLM_PROVIDER"), cfg.LLMProvider)
	cfg.TTSProvider = firstNonEmpty(v.GetString("TTS_PROVIDER"), cfg.TTSProvider)

	cfg.GroqKey = v.GetString("GROQ_API_KEY")
	cfg.OpenAIKey = v.GetString("OPENAI_API_KEY")
	cfg.AnthropicKey = v.GetString("ANTHROPIC_API_KEY")
	cfg.GoogleKey = v.GetString("GOOGLE_API_KEY")
	cfg.DeepgramKey = v.GetString("DEEPGRAM_API_KEY")
	cfg.AssemblyKey = v.GetString("ASSEMBLYAI_API_KEY")
	cfg.LokutorKey = v.GetString("LOKUTOR_API_KEY")

	cfg.Worker.DispatchURL = v.GetString("DISPATCH_URL")
	cfg.Worker.AgentName = firstNonEmpty(v.GetString("AGENT_NAME"), "voice-agent")

	if lang := v.GetString("AGENT_LANGUAGE"); lang != "" {
		cfg.Session.Language = Language(lang)
	}

	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
