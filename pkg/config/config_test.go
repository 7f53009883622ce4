package config

import (
	"testing"
	"time"
)

func clearDetectionEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"THREATGATE_CLASSIFIER", "THREATGATE_LLM_PROVIDER", "THREATGATE_LLM_API_KEY",
		"GROQ_API_KEY", "OPENROUTER_API_KEY", "OPENAI_API_KEY",
	} {
		t.Setenv(key, "")
	}
}

func TestNewDefaultConfig(t *testing.T) {
	clearDetectionEnv(t)
	cfg := NewDefaultConfig()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.MaxMessageLen != 2000 {
		t.Errorf("MaxMessageLen = %d", cfg.MaxMessageLen)
	}
	if cfg.BlockThreshold != 80 || cfg.FlagThreshold != 50 {
		t.Errorf("thresholds = %d/%d", cfg.BlockThreshold, cfg.FlagThreshold)
	}
	if cfg.FlagRepeatLimit != 3 || cfg.HighRiskRepeatLimit != 5 {
		t.Errorf("repeat limits = %d/%d", cfg.FlagRepeatLimit, cfg.HighRiskRepeatLimit)
	}
	if cfg.DecayWindow != 10*time.Minute {
		t.Errorf("DecayWindow = %v", cfg.DecayWindow)
	}
	if cfg.ClassifierTimeout != 4*time.Second {
		t.Errorf("ClassifierTimeout = %v", cfg.ClassifierTimeout)
	}
	if cfg.AuditBackend != AuditJSONL {
		t.Errorf("AuditBackend = %s", cfg.AuditBackend)
	}
}

func TestConfigEnvOverrides(t *testing.T) {
	clearDetectionEnv(t)
	t.Setenv("THREATGATE_PORT", "9090")
	t.Setenv("THREATGATE_MAX_MESSAGE_LEN", "500")
	t.Setenv("THREATGATE_BLOCK_THRESHOLD", "90")
	t.Setenv("THREATGATE_DECAY_WINDOW_SECONDS", "60")
	t.Setenv("THREATGATE_AUDIT_BACKEND", "sqlite")
	t.Setenv("THREATGATE_REDIS_ADDR", "localhost:6379")

	cfg := NewDefaultConfig()
	if cfg.Port != "9090" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.MaxMessageLen != 500 {
		t.Errorf("MaxMessageLen = %d", cfg.MaxMessageLen)
	}
	if cfg.BlockThreshold != 90 {
		t.Errorf("BlockThreshold = %d", cfg.BlockThreshold)
	}
	if cfg.DecayWindow != time.Minute {
		t.Errorf("DecayWindow = %v", cfg.DecayWindow)
	}
	if cfg.AuditBackend != AuditSQLite {
		t.Errorf("AuditBackend = %s", cfg.AuditBackend)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q", cfg.RedisAddr)
	}
}

func TestConfigClampsOutOfRange(t *testing.T) {
	clearDetectionEnv(t)
	t.Setenv("THREATGATE_BLOCK_THRESHOLD", "500")
	t.Setenv("THREATGATE_MAX_CONCURRENT", "0")

	cfg := NewDefaultConfig()
	if cfg.BlockThreshold != 100 {
		t.Errorf("BlockThreshold = %d, want clamp to 100", cfg.BlockThreshold)
	}
	if cfg.MaxConcurrent != 1 {
		t.Errorf("MaxConcurrent = %d, want clamp to 1", cfg.MaxConcurrent)
	}
}

func TestDetectLLMProvider(t *testing.T) {
	clearDetectionEnv(t)

	if got := detectLLMProvider(); got != "ollama" {
		t.Errorf("no keys: provider = %q, want ollama", got)
	}

	t.Setenv("OPENAI_API_KEY", "sk-test")
	if got := detectLLMProvider(); got != "openai" {
		t.Errorf("openai key: provider = %q", got)
	}

	t.Setenv("OPENROUTER_API_KEY", "or-test")
	if got := detectLLMProvider(); got != "openrouter" {
		t.Errorf("openrouter key: provider = %q", got)
	}

	t.Setenv("GROQ_API_KEY", "gsk-test")
	if got := detectLLMProvider(); got != "groq" {
		t.Errorf("groq key: provider = %q", got)
	}
}

func TestDetectClassifierBackend(t *testing.T) {
	clearDetectionEnv(t)
	if got := detectClassifierBackend(); got != BackendLLM {
		t.Errorf("default backend = %s, want llm", got)
	}
	t.Setenv("THREATGATE_CLASSIFIER", "semantic")
	if got := detectClassifierBackend(); got != BackendSemantic {
		t.Errorf("backend = %s, want semantic", got)
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TG_TEST_STR", "value")
	t.Setenv("TG_TEST_INT", "42")
	t.Setenv("TG_TEST_FLOAT", "0.25")
	t.Setenv("TG_TEST_BOOL", "true")
	t.Setenv("TG_TEST_SLICE", "a, b ,c,")
	t.Setenv("TG_TEST_BAD_INT", "not-a-number")

	if got := GetEnv("TG_TEST_STR", "d"); got != "value" {
		t.Errorf("GetEnv = %q", got)
	}
	if got := GetEnv("TG_TEST_ABSENT", "d"); got != "d" {
		t.Errorf("GetEnv default = %q", got)
	}
	if got := GetEnvInt("TG_TEST_INT", 0); got != 42 {
		t.Errorf("GetEnvInt = %d", got)
	}
	if got := GetEnvInt("TG_TEST_BAD_INT", 7); got != 7 {
		t.Errorf("GetEnvInt bad value = %d, want default", got)
	}
	if got := GetEnvFloat("TG_TEST_FLOAT", 0); got != 0.25 {
		t.Errorf("GetEnvFloat = %v", got)
	}
	if got := GetEnvBool("TG_TEST_BOOL", false); !got {
		t.Error("GetEnvBool = false")
	}
	got := GetEnvSlice("TG_TEST_SLICE", nil)
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("GetEnvSlice = %v", got)
	}
}
