// Package config holds global settings for the ThreatGate gateway.
// All settings can be configured via environment variables or
// programmatically; decision constants (thresholds, weights, windows) are
// deliberately configuration, not hard-coded values.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ClassifierBackend selects the semantic classifier implementation.
type ClassifierBackend string

const (
	BackendLLM      ClassifierBackend = "llm"      // OpenAI-compatible chat completion endpoint
	BackendSemantic ClassifierBackend = "semantic" // chromem-go exemplar similarity (needs embeddings)
	BackendNone     ClassifierBackend = "none"     // no classifier; every verdict is degraded
)

// AuditBackend selects the durable sink behind the audit ledger.
type AuditBackend string

const (
	AuditJSONL    AuditBackend = "jsonl"
	AuditSQLite   AuditBackend = "sqlite"
	AuditPostgres AuditBackend = "postgres"
	AuditNone     AuditBackend = "none" // in-memory chain only; dev/test use
)

// Config holds all gateway settings.
type Config struct {
	// === Core Settings ===
	Port          string // HTTP listen port (default: 8080)
	MaxMessageLen int    // structural message limit in runes (default: 2000)
	MaxConcurrent int    // concurrent analyses admitted by the server (default: 64)

	// === Risk Fusion (0-100 score scale) ===
	BlockThreshold     int     // score >= this blocks (default: 80)
	FlagThreshold      int     // score >= this flags (default: 50)
	RuleWeight         float64 // multiplier on summed rule severities (default: 0.5)
	RuleWeightDegraded float64 // rule multiplier under a degraded verdict (default: 1.0)
	RuleCap            int     // max rule contribution to the score (default: 45)

	// === Escalation Policy ===
	FlagRepeatLimit     int           // repeated flags before block (default: 3)
	HighRiskRepeatLimit int           // repeated phishing/malware before block (default: 5)
	DecayWindow         time.Duration // violation streak decay window (default: 10m)

	// === Classifier ===
	ClassifierBackend ClassifierBackend // "llm", "semantic", or "none"
	LLMProvider       string            // ollama, openrouter, groq, openai, custom
	LLMAPIKey         string
	LLMModel          string
	LLMBaseURL        string
	ClassifierTimeout time.Duration // per-call budget (default: 4s)
	EmbedModel        string        // embedding model for the semantic backend
	EmbedBaseURL      string        // Ollama base URL for embeddings

	// === Rule Engine ===
	RulesFile string // optional YAML file with extra rules

	// === Identity Memory ===
	RedisAddr     string // empty = in-memory store
	RedisPassword string
	RedisDB       int

	// === Audit Ledger ===
	AuditBackend     AuditBackend
	AuditLogPath     string // jsonl backend (default: audit_events.jsonl)
	AuditSQLitePath  string // sqlite backend (default: audit.db)
	AuditPostgresDSN string // postgres backend
}

// NewDefaultConfig creates a Config with sensible defaults, overridable via
// THREATGATE_* environment variables.
func NewDefaultConfig() *Config {
	return &Config{
		Port:          GetEnv("THREATGATE_PORT", "8080"),
		MaxMessageLen: clampInt(GetEnvInt("THREATGATE_MAX_MESSAGE_LEN", 2000), 1, 65536),
		MaxConcurrent: clampInt(GetEnvInt("THREATGATE_MAX_CONCURRENT", 64), 1, 4096),

		BlockThreshold:     clampInt(GetEnvInt("THREATGATE_BLOCK_THRESHOLD", 80), 1, 100),
		FlagThreshold:      clampInt(GetEnvInt("THREATGATE_FLAG_THRESHOLD", 50), 1, 100),
		RuleWeight:         GetEnvFloat("THREATGATE_RULE_WEIGHT", 0.5),
		RuleWeightDegraded: GetEnvFloat("THREATGATE_RULE_WEIGHT_DEGRADED", 1.0),
		RuleCap:            clampInt(GetEnvInt("THREATGATE_RULE_CAP", 45), 1, 100),

		FlagRepeatLimit:     clampInt(GetEnvInt("THREATGATE_FLAG_REPEAT_LIMIT", 3), 1, 1000),
		HighRiskRepeatLimit: clampInt(GetEnvInt("THREATGATE_HIGHRISK_REPEAT_LIMIT", 5), 1, 1000),
		DecayWindow:         time.Duration(GetEnvInt("THREATGATE_DECAY_WINDOW_SECONDS", 600)) * time.Second,

		ClassifierBackend: detectClassifierBackend(),
		LLMProvider:       GetEnv("THREATGATE_LLM_PROVIDER", detectLLMProvider()),
		LLMAPIKey:         GetEnv("THREATGATE_LLM_API_KEY", GetEnv("GROQ_API_KEY", os.Getenv("OPENROUTER_API_KEY"))),
		LLMModel:          GetEnv("THREATGATE_LLM_MODEL", ""),
		LLMBaseURL:        GetEnv("THREATGATE_LLM_BASE_URL", ""),
		ClassifierTimeout: time.Duration(GetEnvInt("THREATGATE_CLASSIFIER_TIMEOUT_MS", 4000)) * time.Millisecond,
		EmbedModel:        GetEnv("THREATGATE_EMBED_MODEL", "nomic-embed-text"),
		EmbedBaseURL:      GetEnv("THREATGATE_EMBED_BASE_URL", "http://localhost:11434"),

		RulesFile: GetEnv("THREATGATE_RULES_FILE", ""),

		RedisAddr:     GetEnv("THREATGATE_REDIS_ADDR", ""),
		RedisPassword: GetEnv("THREATGATE_REDIS_PASSWORD", ""),
		RedisDB:       GetEnvInt("THREATGATE_REDIS_DB", 0),

		AuditBackend:     AuditBackend(GetEnv("THREATGATE_AUDIT_BACKEND", string(AuditJSONL))),
		AuditLogPath:     GetEnv("THREATGATE_AUDIT_LOG", "audit_events.jsonl"),
		AuditSQLitePath:  GetEnv("THREATGATE_AUDIT_SQLITE", "audit.db"),
		AuditPostgresDSN: GetEnv("THREATGATE_AUDIT_POSTGRES_DSN", ""),
	}
}

// detectClassifierBackend picks the classifier implementation. Explicit
// setting wins; otherwise the LLM backend, with detectLLMProvider choosing
// the concrete provider (local Ollama when no cloud key is set).
func detectClassifierBackend() ClassifierBackend {
	if b := os.Getenv("THREATGATE_CLASSIFIER"); b != "" {
		return ClassifierBackend(b)
	}
	return BackendLLM
}

// detectLLMProvider auto-detects the provider from available keys,
// defaulting to local Ollama when no cloud key is found.
func detectLLMProvider() string {
	if os.Getenv("GROQ_API_KEY") != "" {
		return "groq"
	}
	if os.Getenv("OPENROUTER_API_KEY") != "" || os.Getenv("THREATGATE_LLM_API_KEY") != "" {
		return "openrouter"
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		return "openai"
	}
	return "ollama"
}

// clampInt ensures a value is within bounds.
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// Helper functions for environment variable parsing.

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvFloat returns the float64 value of an environment variable or a default value.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

// GetEnvSlice returns a comma-separated list from an environment variable or a default value.
func GetEnvSlice(key string, defaultValue []string) []string {
	if v := os.Getenv(key); v != "" {
		var parts []string
		for _, p := range strings.Split(v, ",") {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}
