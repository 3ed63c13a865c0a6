package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath    string `long:"db-path" env:"DB_PATH" default:"./inboxflow.db" description:"Path to the sqlite database file"`
	LabelsDir string `long:"labels-dir" env:"LABELS_DIR" default:"./labels" description:"Directory containing label definition files"`

	// HTTP server configuration
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// LLM configuration
	LLMBaseURL  string  `long:"llm-base-url" env:"LLM_BASE_URL" default:"https://api.anthropic.com" description:"LLM API base URL"`
	LLMModel    string  `long:"llm-model" env:"LLM_MODEL" default:"claude-3-5-haiku-latest" description:"LLM model identifier"`
	LLMAPIKey   string  `long:"llm-api-key" env:"LLM_API_KEY" description:"LLM API key (required)" required:"true"`
	LLMTimeout  int     `long:"llm-timeout" env:"LLM_TIMEOUT" default:"60" description:"LLM request timeout in seconds"`
	LLMRPS      float64 `long:"llm-rps" env:"LLM_RPS" default:"2" description:"LLM requests per second"`
	LLMRPSBurst int     `long:"llm-rps-burst" env:"LLM_RPS_BURST" default:"1" description:"LLM rate limit burst size"`

	// Mail source configuration
	MailBaseURL  string  `long:"mail-base-url" env:"MAIL_BASE_URL" description:"Mail source API base URL (required)" required:"true"`
	MailToken    string  `long:"mail-token" env:"MAIL_TOKEN" description:"Mail source bearer token"`
	MailRPS      float64 `long:"mail-rps" env:"MAIL_RPS" default:"5" description:"Mail source requests per second"`
	MailRPSBurst int     `long:"mail-rps-burst" env:"MAIL_RPS_BURST" default:"5" description:"Mail source rate limit burst size"`

	// Classification configuration
	CacheMaxEntries int `long:"cache-max-entries" env:"CACHE_MAX_ENTRIES" default:"400" description:"Maximum classification cache entries"`
	CacheTTL        int `long:"cache-ttl" env:"CACHE_TTL" default:"3600" description:"Classification cache TTL in seconds"`
	TruncateChars   int `long:"truncate-chars" env:"TRUNCATE_CHARS" default:"8000" description:"Maximum content characters sent for classification"`
	Concurrency     int `long:"concurrency" env:"CONCURRENCY" default:"4" description:"Batch classification concurrency"`
	InterBatchDelay int `long:"inter-batch-delay" env:"INTER_BATCH_DELAY" default:"1000" description:"Delay between classification chunks in milliseconds"`

	// Background processing
	WorkerCount       int `long:"worker-count" env:"WORKER_COUNT" default:"3" description:"Number of background workers for mailbox processing"`
	SchedulerInterval int `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"300" description:"Scheduler interval in seconds"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:            raw.DBPath,
		LabelsDir:         raw.LabelsDir,
		Port:              raw.Port,
		APIAccessKey:      raw.APIAccessKey,
		LLMBaseURL:        raw.LLMBaseURL,
		LLMModel:          raw.LLMModel,
		LLMAPIKey:         raw.LLMAPIKey,
		LLMTimeout:        raw.LLMTimeout,
		LLMRPS:            raw.LLMRPS,
		LLMRPSBurst:       raw.LLMRPSBurst,
		MailBaseURL:       raw.MailBaseURL,
		MailToken:         raw.MailToken,
		MailRPS:           raw.MailRPS,
		MailRPSBurst:      raw.MailRPSBurst,
		CacheMaxEntries:   raw.CacheMaxEntries,
		CacheTTL:          raw.CacheTTL,
		TruncateChars:     raw.TruncateChars,
		Concurrency:       raw.Concurrency,
		InterBatchDelay:   raw.InterBatchDelay,
		WorkerCount:       raw.WorkerCount,
		SchedulerInterval: raw.SchedulerInterval,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}
