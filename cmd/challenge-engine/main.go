package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lumohealth/challenge-engine/internal/analysis"
	"github.com/lumohealth/challenge-engine/internal/api"
	"github.com/lumohealth/challenge-engine/internal/ingest"
	"github.com/lumohealth/challenge-engine/internal/lifecycle"
	"github.com/lumohealth/challenge-engine/internal/milestone"
	"github.com/lumohealth/challenge-engine/internal/notify"
	"github.com/lumohealth/challenge-engine/internal/risk"
	"github.com/lumohealth/challenge-engine/internal/store"
	"github.com/lumohealth/challenge-engine/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for engine state data
	DefaultStateDir = "/var/lib/challenge-engine"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "challenge-engine.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := store.SeedChallenges(st, store.DefaultCatalog()); err != nil {
		slog.Error("Failed to seed challenge catalog", "error", err)
		os.Exit(1)
	}

	orchestrator := buildOrchestrator(config)
	emitter := notify.LogEmitter{}
	criteria := buildCriteria()

	manager := lifecycle.NewManager(st, emitter, criteria, config.SuccessThreshold)
	tracker := milestone.NewTracker(st, emitter, config.MilestoneDays)
	ingestor := ingest.NewIngestor(st, manager, tracker, orchestrator, criteria)

	sweeper := lifecycle.NewSweeper(manager, st, emitter, config.SweepInterval)
	if err := sweeper.Start(); err != nil {
		slog.Error("Failed to start lifecycle sweeper", "error", err)
		os.Exit(1)
	}
	defer sweeper.Stop()

	server := api.NewServer(st, manager, ingestor, buildAPIOptions(flags)...)

	// Shut the server down cleanly on SIGINT/SIGTERM.
	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigs
		slog.Info("Received shutdown signal", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown failed", "error", err)
		}
	}()

	slog.Info("Bootstrapping challenge engine",
		"providers", len(config.ProviderOrder),
		"successThreshold", config.SuccessThreshold,
		"sweepInterval", config.SweepInterval)
	if err := server.Run(); err != nil {
		slog.Error("Challenge engine failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Challenge engine exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL         string
	StateDir            string
	APIAddr             string
	OpenAIKey           string
	AnthropicKey        string
	GoogleKey           string
	ProviderOrder       []string
	StaticFallback      bool
	ConfidenceThreshold float64
	DailyCostLimit      float64
	MonthlyCostLimit    float64
	SuccessThreshold    float64
	SweepInterval       time.Duration
	MilestoneDays       []int
	ProviderTimeout     time.Duration
}

// Flags holds command line flag values
type Flags struct {
	stateDir *string
	dbDSN    *string
	apiAddr  *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		StateDir:            os.Getenv("CHALLENGE_STATE_DIR"),
		APIAddr:             os.Getenv("API_ADDR"),
		OpenAIKey:           os.Getenv("OPENAI_API_KEY"),
		AnthropicKey:        os.Getenv("ANTHROPIC_API_KEY"),
		GoogleKey:           os.Getenv("GOOGLE_API_KEY"),
		ProviderOrder:       util.ParseListEnv("AI_PROVIDER_ORDER", []string{"openai", "claude", "google"}),
		StaticFallback:      util.ParseBoolEnv("AI_STATIC_FALLBACK", false),
		ConfidenceThreshold: util.ParseFloatEnv("AI_CONFIDENCE_THRESHOLD", analysis.DefaultConfidenceThreshold),
		DailyCostLimit:      util.ParseFloatEnv("AI_DAILY_COST_LIMIT", 10),
		MonthlyCostLimit:    util.ParseFloatEnv("AI_MONTHLY_COST_LIMIT", 200),
		SuccessThreshold:    util.ParseFloatEnv("SUCCESS_THRESHOLD", lifecycle.DefaultSuccessThreshold),
		SweepInterval:       util.ParseDurationEnv("SWEEP_INTERVAL", lifecycle.DefaultSweepInterval),
		MilestoneDays:       util.ParseIntListEnv("MILESTONE_DAYS", milestone.DefaultThresholds),
		ProviderTimeout:     util.ParseDurationEnv("AI_PROVIDER_TIMEOUT", 15*time.Second),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No CHALLENGE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"CHALLENGE_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"ANTHROPIC_API_KEY_SET", config.AnthropicKey != "",
		"GOOGLE_API_KEY_SET", config.GoogleKey != "",
		"AI_PROVIDER_ORDER", config.ProviderOrder,
		"AI_STATIC_FALLBACK", config.StaticFallback)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir: flag.String("state-dir", config.StateDir, "state directory for engine data (overrides $CHALLENGE_STATE_DIR)"),
		dbDSN:    flag.String("db-dsn", config.DatabaseURL, "database DSN (overrides $DATABASE_URL)"),
		apiAddr:  flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr)

	// Follow the state directory when the DSN was derived from the default.
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// buildStore selects the storage backend from the DSN.
func buildStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithDSN(*flags.dbDSN))
}

// buildOrchestrator assembles the AI provider fallback chain from the
// configured order, skipping providers without keys. Returns nil when no
// provider is usable; annotation is then disabled.
func buildOrchestrator(config Config) *analysis.Orchestrator {
	var providers []analysis.Provider
	for _, name := range config.ProviderOrder {
		switch name {
		case "openai":
			if config.OpenAIKey == "" {
				slog.Warn("Skipping openai provider, no API key configured")
				continue
			}
			providers = append(providers, analysis.NewOpenAIProvider(config.OpenAIKey, 0, config.ProviderTimeout))
		case "claude":
			if config.AnthropicKey == "" {
				slog.Warn("Skipping claude provider, no API key configured")
				continue
			}
			providers = append(providers, analysis.NewClaudeProvider(config.AnthropicKey, 0, config.ProviderTimeout))
		case "google":
			if config.GoogleKey == "" {
				slog.Warn("Skipping google provider, no API key configured")
				continue
			}
			p, err := analysis.NewGoogleProvider(context.Background(), config.GoogleKey, 0, config.ProviderTimeout)
			if err != nil {
				slog.Error("Failed to initialize google provider", "error", err)
				continue
			}
			providers = append(providers, p)
		case "static":
			providers = append(providers, analysis.NewStaticProvider(0))
		default:
			slog.Warn("Unknown AI provider in order, skipping", "provider", name)
		}
	}
	// The static provider costs nothing, so it makes a safe terminal
	// fallback when every remote provider is down or unconfigured.
	if config.StaticFallback {
		providers = append(providers, analysis.NewStaticProvider(0))
	}
	if len(providers) == 0 {
		slog.Warn("No AI providers configured, annotation disabled")
		return nil
	}

	ledger := analysis.NewCostLedger(config.DailyCostLimit, config.MonthlyCostLimit)
	slog.Info("AI orchestrator configured", "providers", len(providers), "dailyLimit", config.DailyCostLimit, "monthlyLimit", config.MonthlyCostLimit)
	return analysis.NewOrchestrator(providers, ledger, config.ConfidenceThreshold)
}

// buildCriteria returns the risk criteria with any environment overrides
// applied on top of the defaults.
func buildCriteria() risk.Criteria {
	criteria := risk.DefaultCriteria()
	criteria.HighRiskConditions = util.ParseListEnv("RISK_CONDITIONS", criteria.HighRiskConditions)
	criteria.HighRiskMedications = util.ParseListEnv("RISK_MEDICATIONS", criteria.HighRiskMedications)
	criteria.RiskSymptoms = util.ParseListEnv("RISK_SYMPTOMS", criteria.RiskSymptoms)
	criteria.MinAge = util.ParseIntEnv("RISK_MIN_AGE", criteria.MinAge)
	criteria.MaxAge = util.ParseIntEnv("RISK_MAX_AGE", criteria.MaxAge)
	criteria.UnderweightBMI = util.ParseFloatEnv("RISK_UNDERWEIGHT_BMI", criteria.UnderweightBMI)
	criteria.MinConditionScore = util.ParseIntEnv("RISK_MIN_CONDITION_SCORE", criteria.MinConditionScore)
	return criteria
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return apiOpts
}
