package app

import "time"

// Defaults used by DefaultConfig and the CLI flags.
const (
	DefaultListenAddr      = ":8080"
	DefaultModelPath       = "model/news_model.json"
	DefaultTokenizerPath   = "model/tokenizer.json"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultFetchTimeout    = 15 * time.Second
	DefaultMaxRequestBytes = 1 << 20
)

// Config holds runtime configuration for the application.
type Config struct {
	// Server
	ListenAddr      string
	TemplatesDir    string
	ShutdownTimeout time.Duration
	MaxRequestBytes int64
	GinMode         string

	// Artifacts and sequence shaping
	ModelPath      string
	TokenizerPath  string
	SequenceMaxLen int
	Padding        string
	Truncating     string

	// Fetch
	FetchTimeout       time.Duration
	FetchMaxAttempts   int
	FetchUserAgent     string
	FetchMaxConcurrent int
	DomainAllowlist    []string
	DomainDenylist     []string
	AllowPrivateHosts  bool
	FetchRespectRobots bool

	// Extraction. Non-empty selectors are tried before readability.
	ExtractSelectors []string

	// Cache. An empty CacheDir disables the fetch cache.
	CacheDir         string
	CacheMaxAge      time.Duration
	CacheClear       bool
	CacheStrictPerms bool
	CacheMaxBytes    int64
	CacheMaxEntries  int

	Verbose bool
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		ListenAddr:       DefaultListenAddr,
		ShutdownTimeout:  DefaultShutdownTimeout,
		MaxRequestBytes:  DefaultMaxRequestBytes,
		GinMode:          "release",
		ModelPath:        DefaultModelPath,
		TokenizerPath:    DefaultTokenizerPath,
		SequenceMaxLen:   500,
		Padding:          "pre",
		Truncating:       "pre",
		FetchTimeout:     DefaultFetchTimeout,
		FetchMaxAttempts: 1,
	}
}
