package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"

	"github.com/threatgate/threatgate/pkg/classifier"
	"github.com/threatgate/threatgate/pkg/config"
	"github.com/threatgate/threatgate/pkg/engine"
	"github.com/threatgate/threatgate/pkg/fusion"
	"github.com/threatgate/threatgate/pkg/httputil"
	"github.com/threatgate/threatgate/pkg/ledger"
	"github.com/threatgate/threatgate/pkg/memory"
	"github.com/threatgate/threatgate/pkg/policy"
	"github.com/threatgate/threatgate/pkg/rules"
	"github.com/threatgate/threatgate/pkg/telemetry"
	"github.com/threatgate/threatgate/pkg/threat"
)

const Version = "0.1.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cfg := config.NewDefaultConfig()
		if len(os.Args) > 2 {
			cfg.Port = os.Args[2]
		}
		runHTTPServer(cfg)
	case "scan":
		if len(os.Args) < 3 {
			fmt.Println("Usage: threatgate scan <text>")
			os.Exit(1)
		}
		runCLIScan(strings.Join(os.Args[2:], " "))
	case "version":
		fmt.Printf("ThreatGate v%s\n", Version)
		fmt.Println("Message Threat Decision & Escalation Engine")
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("ThreatGate v%s - Message Threat Decision & Escalation Engine\n\n", Version)
	fmt.Println("Usage:")
	fmt.Println("  threatgate serve [port]   Start HTTP server (default: 8080)")
	fmt.Println("  threatgate scan <text>    Analyze one message and print the decision")
	fmt.Println("  threatgate version        Show version")
	fmt.Println("")
	fmt.Println("Examples:")
	fmt.Println("  threatgate serve 8080")
	fmt.Println("  threatgate scan \"Update your password immediately at http://fake-link.com\"")
	fmt.Println("")
	fmt.Println("Environment Variables:")
	fmt.Println("  THREATGATE_CLASSIFIER       Classifier backend: llm, semantic, none (default: llm)")
	fmt.Println("  THREATGATE_LLM_PROVIDER     Provider: ollama, openrouter, groq, openai, custom")
	fmt.Println("  THREATGATE_LLM_API_KEY      API key for cloud providers")
	fmt.Println("  THREATGATE_REDIS_ADDR       Redis address for shared identity memory")
	fmt.Println("  THREATGATE_AUDIT_BACKEND    Audit sink: jsonl, sqlite, postgres, none")
	fmt.Println("  THREATGATE_RULES_FILE       Extra detection rules (YAML)")
}

// buildClassifier constructs the configured classifier backend.
// Returns nil when no backend is usable; the gateway then degrades every
// verdict rather than failing requests.
func buildClassifier(cfg *config.Config) classifier.Classifier {
	switch cfg.ClassifierBackend {
	case config.BackendNone:
		log.Println("○ classifier disabled (every verdict degraded; rules only)")
		return nil

	case config.BackendSemantic:
		sem, err := classifier.NewSemanticClassifier(
			classifier.NewOllamaEmbeddingFunc(cfg.EmbedModel, cfg.EmbedBaseURL))
		if err != nil {
			log.Printf("○ semantic classifier disabled (init failed: %v)", err)
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		if err := sem.LoadExemplars(ctx); err != nil {
			log.Printf("○ semantic classifier disabled (exemplar load failed: %v)", err)
			return nil
		}
		log.Println("✓ semantic classifier enabled (chromem-go + Ollama embeddings)")
		return sem

	default:
		llm := classifier.NewLLMClassifier(classifier.LLMConfig{
			Provider: classifier.Provider(cfg.LLMProvider),
			APIKey:   cfg.LLMAPIKey,
			Model:    cfg.LLMModel,
			BaseURL:  cfg.LLMBaseURL,
		})
		log.Printf("✓ LLM classifier enabled (provider: %s)", cfg.LLMProvider)
		return llm
	}
}

// buildMemoryStore returns the redis-backed store when configured and
// reachable, otherwise the in-memory store.
func buildMemoryStore(cfg *config.Config) memory.Store {
	if cfg.RedisAddr == "" {
		log.Println("○ identity memory: in-process (set THREATGATE_REDIS_ADDR to share across instances)")
		return memory.NewInMemoryStore(cfg.DecayWindow)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("○ redis unavailable, falling back to in-memory identity memory: %v", err)
		return memory.NewInMemoryStore(cfg.DecayWindow)
	}
	log.Printf("✓ identity memory: redis (%s)", cfg.RedisAddr)
	return memory.NewRedisStore(client, cfg.DecayWindow)
}

// buildLedger constructs the audit ledger over the configured sink.
func buildLedger(cfg *config.Config) (*ledger.Ledger, func()) {
	var (
		sink ledger.Sink
		err  error
	)
	switch cfg.AuditBackend {
	case config.AuditNone:
		log.Println("○ audit ledger: in-memory only (no durable sink)")
	case config.AuditSQLite:
		sink, err = ledger.NewSQLiteSink(cfg.AuditSQLitePath)
		if err == nil {
			log.Printf("✓ audit ledger: sqlite (%s)", cfg.AuditSQLitePath)
		}
	case config.AuditPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		sink, err = ledger.NewPostgresSink(ctx, cfg.AuditPostgresDSN)
		cancel()
		if err == nil {
			log.Println("✓ audit ledger: postgres")
		}
	default:
		sink, err = ledger.NewJSONLSink(cfg.AuditLogPath)
		if err == nil {
			log.Printf("✓ audit ledger: jsonl (%s)", cfg.AuditLogPath)
		}
	}
	if err != nil {
		// Decisions would be silently unauditable; refuse to start instead.
		log.Fatalf("audit sink init failed: %v", err)
	}

	cleanup := func() {
		if sink != nil {
			_ = sink.Close()
		}
	}
	auditLedger, err := ledger.New(sink)
	if err != nil {
		log.Fatalf("audit ledger resume failed: %v", err)
	}
	if n := auditLedger.Len(); n > 0 {
		log.Printf("✓ audit ledger: resumed at seq %d", n)
	}
	return auditLedger, cleanup
}

func buildEngine(cfg *config.Config) (*engine.Engine, *ledger.Ledger, *telemetry.Counters, func()) {
	registry := rules.NewRegistry()
	if cfg.RulesFile != "" {
		n, err := registry.LoadYAML(cfg.RulesFile)
		if err != nil {
			log.Fatalf("rules file %s: %v", cfg.RulesFile, err)
		}
		log.Printf("✓ loaded %d extra rules from %s", n, cfg.RulesFile)
	}

	gateway := classifier.NewGateway(buildClassifier(cfg), cfg.ClassifierTimeout)
	store := buildMemoryStore(cfg)
	auditLedger, cleanup := buildLedger(cfg)
	counters := &telemetry.Counters{}

	eng := engine.New(
		rules.NewEngine(registry, cfg.MaxMessageLen),
		gateway,
		store,
		auditLedger,
		counters,
		engine.Options{
			Weights: fusion.Weights{
				BlockThreshold:     cfg.BlockThreshold,
				FlagThreshold:      cfg.FlagThreshold,
				RuleWeight:         cfg.RuleWeight,
				RuleWeightDegraded: cfg.RuleWeightDegraded,
				RuleCap:            cfg.RuleCap,
			},
			Limits: policy.Limits{
				FlagRepeatLimit:     cfg.FlagRepeatLimit,
				HighRiskRepeatLimit: cfg.HighRiskRepeatLimit,
			},
			MaxMessageLen: cfg.MaxMessageLen,
		},
	)
	return eng, auditLedger, counters, cleanup
}

// ============================================================================
// HTTP Server Mode
// ============================================================================

type analyzeRequest struct {
	Message  string `json:"message"`
	Identity string `json:"identity"`
}

func runHTTPServer(cfg *config.Config) {
	eng, auditLedger, counters, cleanup := buildEngine(cfg)
	defer cleanup()

	sem := httputil.NewSemaphore(cfg.MaxConcurrent)

	app := fiber.New(fiber.Config{
		AppName: "ThreatGate",
	})

	app.Get("/", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "ThreatGate is running. Use POST /analyze to scan messages.",
		})
	})

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"version":   Version,
			"decisions": counters.Snapshot(),
			"admission": sem.Stats(),
		})
	})

	// One decision per message. Identity comes from the body, the
	// X-Identity-Key header, or falls back to the client IP - the session
	// layer in front of this service owns real identity resolution.
	app.Post("/analyze", func(c fiber.Ctx) error {
		var req analyzeRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		identity := req.Identity
		if identity == "" {
			identity = c.Get("X-Identity-Key")
		}
		if identity == "" {
			identity = c.IP()
		}

		if err := sem.Acquire(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "server busy"})
		}
		defer sem.Release()

		result, err := eng.Analyze(c.Context(), threat.AnalysisRequest{
			Message:  req.Message,
			Identity: identity,
		})
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(result)
	})

	// Read-only audit export: a range of chained entries plus the
	// verification verdict over that range.
	app.Get("/audit", func(c fiber.Ctx) error {
		from := parseSeq(c.Query("from"))
		to := parseSeq(c.Query("to"))

		entries := auditLedger.Range(from, to)
		ok, broken := auditLedger.Verify(from, to)
		return c.JSON(fiber.Map{
			"entries":    entries,
			"verified":   ok,
			"broken_seq": broken,
		})
	})

	log.Printf("✓ ThreatGate v%s listening on :%s", Version, cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func parseSeq(s string) uint64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// ============================================================================
// CLI Scan Mode
// ============================================================================

// runCLIScan analyzes one message offline: configured classifier if any,
// in-process memory, no durable audit sink.
func runCLIScan(text string) {
	cfg := config.NewDefaultConfig()
	cfg.AuditBackend = config.AuditNone
	cfg.RedisAddr = ""

	eng, _, _, cleanup := buildEngine(cfg)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ClassifierTimeout+time.Second)
	defer cancel()

	result, err := eng.Analyze(ctx, threat.AnalysisRequest{Message: text, Identity: "cli"})
	if err != nil {
		log.Fatalf("analyze: %v", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("encode result: %v", err)
	}
	fmt.Println(string(out))
}
