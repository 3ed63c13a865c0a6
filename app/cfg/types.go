package cfg

type Cfg struct {
	// Storage configuration
	DBPath    string
	LabelsDir string

	// HTTP server configuration
	Port         string
	APIAccessKey string

	// LLM configuration
	LLMBaseURL  string
	LLMModel    string
	LLMAPIKey   string
	LLMTimeout  int
	LLMRPS      float64
	LLMRPSBurst int

	// Mail source configuration
	MailBaseURL  string
	MailToken    string
	MailRPS      float64
	MailRPSBurst int

	// Classification configuration
	CacheMaxEntries int
	CacheTTL        int
	TruncateChars   int
	Concurrency     int
	InterBatchDelay int

	// Background processing
	WorkerCount       int
	SchedulerInterval int

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}
