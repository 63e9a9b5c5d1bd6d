package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/probelab/visprobe/internal/adapters/analysis/openai"
	"github.com/probelab/visprobe/internal/adapters/driver/cdp"
	"github.com/probelab/visprobe/internal/adapters/store/supabase"
	"github.com/probelab/visprobe/internal/adapters/store/tomlfile"
	"github.com/probelab/visprobe/internal/application"
	"github.com/probelab/visprobe/internal/ports"
)

type appConfig struct {
	Query            string
	Customer         string
	Concurrency      int
	MaxRetries       int
	FailureThreshold int
	CandidateLimit   int
	BackoffMin       time.Duration
	BackoffMax       time.Duration
	Dwell            time.Duration
	CitationPolicy   application.CitationPolicy

	StoreBackend    string
	SupabaseURL     string
	SupabaseKey     string
	OpenAIKey       string
	OpenAIModel     string
	BrowserEndpoint string
}

type app struct {
	store  ports.AccountStore
	config appConfig
	logger *slog.Logger
	clock  ports.Clock
}

func wireApp() (*app, error) {
	config := loadConfig()
	logger := newLogger()

	store, err := wireStore(config)
	if err != nil {
		return nil, err
	}

	return &app{
		store:  store,
		config: config,
		logger: logger,
		clock:  ports.SystemClock{},
	}, nil
}

func loadConfig() appConfig {
	v := viper.New()
	v.SetEnvPrefix("VP")
	v.AutomaticEnv()

	v.SetDefault("concurrency", application.DefaultConcurrency)
	v.SetDefault("max_retries", application.DefaultMaxRetries)
	v.SetDefault("failure_threshold", 0)
	v.SetDefault("candidate_limit", application.DefaultCandidateLimit)
	v.SetDefault("backoff_min", application.DefaultBackoffMin)
	v.SetDefault("backoff_max", application.DefaultBackoffMax)
	v.SetDefault("dwell", application.DefaultDwell)
	v.SetDefault("citation_policy", string(application.CitationPolicyStrict))
	v.SetDefault("openai_model", openai.DefaultModel)

	endpoint := v.GetString("browser_endpoint")
	if endpoint == "" {
		if apiKey := v.GetString("browserbase_api_key"); apiKey != "" {
			endpoint = "wss://connect.browserbase.com?apiKey=" + apiKey
		}
	}

	backend := strings.ToLower(v.GetString("store"))
	if backend == "" {
		backend = "toml"
		if v.GetString("supabase_url") != "" {
			backend = "supabase"
		}
	}

	return appConfig{
		Query:            v.GetString("query"),
		Customer:         v.GetString("customer"),
		Concurrency:      v.GetInt("concurrency"),
		MaxRetries:       v.GetInt("max_retries"),
		FailureThreshold: v.GetInt("failure_threshold"),
		CandidateLimit:   v.GetInt("candidate_limit"),
		BackoffMin:       v.GetDuration("backoff_min"),
		BackoffMax:       v.GetDuration("backoff_max"),
		Dwell:            v.GetDuration("dwell"),
		CitationPolicy:   application.CitationPolicy(v.GetString("citation_policy")),
		StoreBackend:     backend,
		SupabaseURL:      v.GetString("supabase_url"),
		SupabaseKey:      v.GetString("supabase_key"),
		OpenAIKey:        v.GetString("openai_api_key"),
		OpenAIModel:      v.GetString("openai_model"),
		BrowserEndpoint:  endpoint,
	}
}

func wireStore(config appConfig) (ports.AccountStore, error) {
	switch config.StoreBackend {
	case "supabase":
		store, err := supabase.NewClient(config.SupabaseURL, config.SupabaseKey, http.DefaultClient)
		if err != nil {
			return nil, fmt.Errorf("wire supabase store: %w", err)
		}
		return store, nil
	case "toml":
		store, err := tomlfile.NewStore(viper.New(), ports.SystemClock{})
		if err != nil {
			return nil, fmt.Errorf("wire toml store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q", config.StoreBackend)
	}
}

// wireDriver and wireAnalyzer run at command time, not CLI startup, so
// commands that never touch the browser or the analyzer work without
// their credentials.
func wireDriver(config appConfig) (ports.Driver, error) {
	driver, err := cdp.NewDriver(config.BrowserEndpoint)
	if err != nil {
		return nil, fmt.Errorf("wire browser driver (set VP_BROWSER_ENDPOINT or VP_BROWSERBASE_API_KEY): %w", err)
	}

	return driver, nil
}

func wireAnalyzer(config appConfig) (ports.Analyzer, error) {
	analyzer, err := openai.NewClient(config.OpenAIKey, config.OpenAIModel, "", http.DefaultClient)
	if err != nil {
		return nil, fmt.Errorf("wire analyzer (set VP_OPENAI_API_KEY): %w", err)
	}

	return analyzer, nil
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("VP_LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
