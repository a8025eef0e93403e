package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/hyperifyio/newscheck/internal/tokenize"
)

// FileConfig represents the single-file configuration schema.
// Nested sections map naturally to flags and env.
type FileConfig struct {
	Server struct {
		Listen          string        `yaml:"listen" json:"listen"`
		TemplatesDir    string        `yaml:"templatesDir" json:"templatesDir"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`
		MaxRequestBytes int64         `yaml:"maxRequestBytes" json:"maxRequestBytes"`
		GinMode         string        `yaml:"ginMode" json:"ginMode"`
	} `yaml:"server" json:"server"`

	Model struct {
		Path       string `yaml:"path" json:"path"`
		Tokenizer  string `yaml:"tokenizer" json:"tokenizer"`
		MaxLen     int    `yaml:"maxLen" json:"maxLen"`
		Padding    string `yaml:"padding" json:"padding"`
		Truncating string `yaml:"truncating" json:"truncating"`
	} `yaml:"model" json:"model"`

	Fetch struct {
		Timeout           time.Duration `yaml:"timeout" json:"timeout"`
		MaxAttempts       int           `yaml:"maxAttempts" json:"maxAttempts"`
		UserAgent         string        `yaml:"userAgent" json:"userAgent"`
		MaxConcurrent     int           `yaml:"maxConcurrent" json:"maxConcurrent"`
		AllowPrivateHosts bool          `yaml:"allowPrivateHosts" json:"allowPrivateHosts"`
		RespectRobots     bool          `yaml:"respectRobots" json:"respectRobots"`
	} `yaml:"fetch" json:"fetch"`

	Domains struct {
		Allow []string `yaml:"allow" json:"allow"`
		Deny  []string `yaml:"deny" json:"deny"`
	} `yaml:"domains" json:"domains"`

	Extract struct {
		Selectors []string `yaml:"selectors" json:"selectors"`
	} `yaml:"extract" json:"extract"`

	Cache struct {
		Dir         string        `yaml:"dir" json:"dir"`
		MaxAge      time.Duration `yaml:"maxAge" json:"maxAge"`
		Clear       bool          `yaml:"clear" json:"clear"`
		StrictPerms bool          `yaml:"strictPerms" json:"strictPerms"`
		MaxBytes    int64         `yaml:"maxBytes" json:"maxBytes"`
		MaxEntries  int           `yaml:"maxEntries" json:"maxEntries"`
	} `yaml:"cache" json:"cache"`

	Verbose bool `yaml:"verbose" json:"verbose"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		// Try YAML then JSON
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays every value set in fc onto cfg. It runs on top of
// DefaultConfig, before env overrides and explicit flags.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	if fc.Server.Listen != "" {
		cfg.ListenAddr = fc.Server.Listen
	}
	if fc.Server.TemplatesDir != "" {
		cfg.TemplatesDir = fc.Server.TemplatesDir
	}
	if fc.Server.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = fc.Server.ShutdownTimeout
	}
	if fc.Server.MaxRequestBytes > 0 {
		cfg.MaxRequestBytes = fc.Server.MaxRequestBytes
	}
	if fc.Server.GinMode != "" {
		cfg.GinMode = fc.Server.GinMode
	}

	if fc.Model.Path != "" {
		cfg.ModelPath = fc.Model.Path
	}
	if fc.Model.Tokenizer != "" {
		cfg.TokenizerPath = fc.Model.Tokenizer
	}
	if fc.Model.MaxLen > 0 {
		cfg.SequenceMaxLen = fc.Model.MaxLen
	}
	if fc.Model.Padding != "" {
		cfg.Padding = fc.Model.Padding
	}
	if fc.Model.Truncating != "" {
		cfg.Truncating = fc.Model.Truncating
	}

	if fc.Fetch.Timeout > 0 {
		cfg.FetchTimeout = fc.Fetch.Timeout
	}
	if fc.Fetch.MaxAttempts > 0 {
		cfg.FetchMaxAttempts = fc.Fetch.MaxAttempts
	}
	if fc.Fetch.UserAgent != "" {
		cfg.FetchUserAgent = fc.Fetch.UserAgent
	}
	if fc.Fetch.MaxConcurrent > 0 {
		cfg.FetchMaxConcurrent = fc.Fetch.MaxConcurrent
	}
	if fc.Fetch.AllowPrivateHosts {
		cfg.AllowPrivateHosts = true
	}
	if fc.Fetch.RespectRobots {
		cfg.FetchRespectRobots = true
	}
	if len(fc.Domains.Allow) > 0 {
		cfg.DomainAllowlist = append([]string{}, fc.Domains.Allow...)
	}
	if len(fc.Domains.Deny) > 0 {
		cfg.DomainDenylist = append([]string{}, fc.Domains.Deny...)
	}
	if len(fc.Extract.Selectors) > 0 {
		cfg.ExtractSelectors = append([]string{}, fc.Extract.Selectors...)
	}

	if fc.Cache.Dir != "" {
		cfg.CacheDir = fc.Cache.Dir
	}
	if fc.Cache.MaxAge > 0 {
		cfg.CacheMaxAge = fc.Cache.MaxAge
	}
	if fc.Cache.Clear {
		cfg.CacheClear = true
	}
	if fc.Cache.StrictPerms {
		cfg.CacheStrictPerms = true
	}
	if fc.Cache.MaxBytes > 0 {
		cfg.CacheMaxBytes = fc.Cache.MaxBytes
	}
	if fc.Cache.MaxEntries > 0 {
		cfg.CacheMaxEntries = fc.Cache.MaxEntries
	}

	if fc.Verbose {
		cfg.Verbose = true
	}
}

// ValidateConfig performs minimal schema validation for required settings.
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.ModelPath) == "" {
		return errors.New("config: model path is required (or set MODEL_PATH)")
	}
	if strings.TrimSpace(cfg.TokenizerPath) == "" {
		return errors.New("config: tokenizer path is required (or set TOKENIZER_PATH)")
	}
	if cfg.SequenceMaxLen <= 0 {
		return fmt.Errorf("config: sequence maxlen must be positive, got %d", cfg.SequenceMaxLen)
	}
	if _, err := tokenize.ParseSide(cfg.Padding); err != nil {
		return fmt.Errorf("config: padding: %w", err)
	}
	if _, err := tokenize.ParseSide(cfg.Truncating); err != nil {
		return fmt.Errorf("config: truncating: %w", err)
	}
	switch cfg.GinMode {
	case "", "debug", "release", "test":
	default:
		return fmt.Errorf("config: unknown gin mode %q", cfg.GinMode)
	}
	if cfg.FetchMaxAttempts < 0 || cfg.FetchMaxConcurrent < 0 || cfg.CacheMaxBytes < 0 || cfg.CacheMaxEntries < 0 || cfg.MaxRequestBytes < 0 {
		return errors.New("config: negative limits are not allowed")
	}
	if cfg.FetchTimeout < 0 || cfg.ShutdownTimeout < 0 || cfg.CacheMaxAge < 0 {
		return errors.New("config: negative durations are not allowed")
	}
	return nil
}
