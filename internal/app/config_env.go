package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ApplyEnvOverrides overrides cfg fields with environment variables when the
// corresponding variables are set. It runs after the config file so env wins
// over file values, and before explicit flags are re-applied.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				log.Warn().Str("env", key).Str("value", v).Msg("ignoring non-integer value")
				return
			}
			*dst = n
		}
	}
	setInt64 := func(dst *int64, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				log.Warn().Str("env", key).Str("value", v).Msg("ignoring non-integer value")
				return
			}
			*dst = n
		}
	}
	setDuration := func(dst *time.Duration, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				log.Warn().Str("env", key).Str("value", v).Msg("ignoring invalid duration")
				return
			}
			*dst = d
		}
	}
	// Booleans override when env present and truthy/falsey
	setBool := func(dst *bool, key string) {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		}
	}
	setList := func(dst *[]string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = SplitList(v)
		}
	}

	setString(&cfg.ListenAddr, "LISTEN_ADDR")
	setString(&cfg.TemplatesDir, "TEMPLATES_DIR")
	setDuration(&cfg.ShutdownTimeout, "SHUTDOWN_TIMEOUT")
	setInt64(&cfg.MaxRequestBytes, "MAX_REQUEST_BYTES")
	setString(&cfg.GinMode, "GIN_MODE")

	setString(&cfg.ModelPath, "MODEL_PATH")
	setString(&cfg.TokenizerPath, "TOKENIZER_PATH")
	setInt(&cfg.SequenceMaxLen, "SEQUENCE_MAXLEN")
	setString(&cfg.Padding, "SEQUENCE_PADDING")
	setString(&cfg.Truncating, "SEQUENCE_TRUNCATING")

	setDuration(&cfg.FetchTimeout, "FETCH_TIMEOUT")
	setInt(&cfg.FetchMaxAttempts, "FETCH_MAX_ATTEMPTS")
	setString(&cfg.FetchUserAgent, "FETCH_USER_AGENT")
	setInt(&cfg.FetchMaxConcurrent, "FETCH_MAX_CONCURRENT")
	setList(&cfg.DomainAllowlist, "DOMAINS_ALLOW")
	setList(&cfg.DomainDenylist, "DOMAINS_DENY")
	setBool(&cfg.AllowPrivateHosts, "ALLOW_PRIVATE_HOSTS")
	setBool(&cfg.FetchRespectRobots, "FETCH_RESPECT_ROBOTS")
	setList(&cfg.ExtractSelectors, "EXTRACT_SELECTORS")

	setString(&cfg.CacheDir, "CACHE_DIR")
	setDuration(&cfg.CacheMaxAge, "CACHE_MAX_AGE")
	setBool(&cfg.CacheClear, "CACHE_CLEAR")
	setBool(&cfg.CacheStrictPerms, "CACHE_STRICT_PERMS")
	setInt64(&cfg.CacheMaxBytes, "CACHE_MAX_BYTES")
	setInt(&cfg.CacheMaxEntries, "CACHE_MAX_ENTRIES")

	setBool(&cfg.Verbose, "VERBOSE")
}

// SplitList parses a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	list := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			list = append(list, v)
		}
	}
	return list
}
