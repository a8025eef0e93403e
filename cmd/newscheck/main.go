package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/newscheck/internal/app"
	"github.com/hyperifyio/newscheck/internal/predict"
)

const usage = `Usage:
  newscheck [serve] [flags]             run the web server (default)
  newscheck classify [flags] -text TXT  classify text ("-" reads stdin)
  newscheck classify [flags] -url URL   scrape and classify an article
  newscheck health [-url URL]           probe a running server's /health
  newscheck version                     print build information
`

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	os.Exit(runMain(os.Args[1:], os.Stdin, os.Stdout))
}

// runMain dispatches the subcommand and returns the process exit code.
func runMain(args []string, stdin io.Reader, stdout io.Writer) int {
	cmd := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}
	switch cmd {
	case "serve":
		return runServe(args)
	case "classify":
		return runClassify(args, stdin, stdout)
	case "health":
		return runHealth(args, stdout)
	case "version":
		fmt.Fprintf(stdout, "newscheck %s (commit %s, built %s)\n", app.BuildVersion, app.BuildCommit, app.BuildDate)
		return 0
	case "help":
		fmt.Fprint(stdout, usage)
		return 0
	}
	fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
	return 2
}

type cliOptions struct {
	configPath string
	envFiles   string
}

func newFlagSet(name string, opts *cliOptions, cfg *app.Config) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", os.Getenv("NEWSCHECK_CONFIG"), "Path to YAML or JSON config file")
	fs.StringVar(&opts.envFiles, "env", ".env", "Comma-separated dotenv files to load (missing files are ignored)")
	registerConfigFlags(fs, cfg)
	return fs
}

// registerConfigFlags binds every configurable setting to fs, using the
// current values of cfg as defaults.
func registerConfigFlags(fs *flag.FlagSet, cfg *app.Config) {
	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "HTTP listen address")
	fs.StringVar(&cfg.TemplatesDir, "server.templates", cfg.TemplatesDir, "Directory with page templates overriding the built-in ones")
	fs.DurationVar(&cfg.ShutdownTimeout, "server.shutdownTimeout", cfg.ShutdownTimeout, "How long to drain in-flight requests on shutdown")
	fs.Int64Var(&cfg.MaxRequestBytes, "server.maxRequestBytes", cfg.MaxRequestBytes, "Maximum request body size")
	fs.StringVar(&cfg.GinMode, "server.ginMode", cfg.GinMode, "gin mode: debug, release or test")

	fs.StringVar(&cfg.ModelPath, "model", cfg.ModelPath, "Path to the exported model artifact (JSON)")
	fs.StringVar(&cfg.TokenizerPath, "tokenizer", cfg.TokenizerPath, "Path to the tokenizer artifact (Keras tokenizer JSON)")
	fs.IntVar(&cfg.SequenceMaxLen, "seq.maxlen", cfg.SequenceMaxLen, "Token sequence length fed to the model")
	fs.StringVar(&cfg.Padding, "seq.padding", cfg.Padding, "Padding side: pre or post")
	fs.StringVar(&cfg.Truncating, "seq.truncating", cfg.Truncating, "Truncating side: pre or post")

	fs.DurationVar(&cfg.FetchTimeout, "fetch.timeout", cfg.FetchTimeout, "Timeout for each article download")
	fs.IntVar(&cfg.FetchMaxAttempts, "fetch.maxAttempts", cfg.FetchMaxAttempts, "Attempts per download including the first; transient failures only")
	fs.StringVar(&cfg.FetchUserAgent, "fetch.ua", cfg.FetchUserAgent, "User-Agent for article downloads")
	fs.IntVar(&cfg.FetchMaxConcurrent, "fetch.maxConcurrent", cfg.FetchMaxConcurrent, "Maximum concurrent downloads (0 = unlimited)")
	fs.Var((*listFlag)(&cfg.DomainAllowlist), "domains.allow", "Comma-separated allowlist of hosts/domains; if set, only these are permitted (subdomains included)")
	fs.Var((*listFlag)(&cfg.DomainDenylist), "domains.deny", "Comma-separated denylist of hosts/domains; takes precedence over allow")
	fs.BoolVar(&cfg.AllowPrivateHosts, "fetch.allowPrivateHosts", cfg.AllowPrivateHosts, "Allow downloads from loopback and private network hosts")
	fs.Var((*listFlag)(&cfg.ExtractSelectors), "extract.selectors", "Comma-separated CSS selectors tried for the article body before readability")
	fs.BoolVar(&cfg.FetchRespectRobots, "fetch.respectRobots", cfg.FetchRespectRobots, "Refuse articles disallowed by the site's robots.txt")

	fs.StringVar(&cfg.CacheDir, "cache.dir", cfg.CacheDir, "Fetch cache directory (empty disables the cache)")
	fs.DurationVar(&cfg.CacheMaxAge, "cache.maxAge", cfg.CacheMaxAge, "Purge cache entries older than this at startup; 0 disables")
	fs.BoolVar(&cfg.CacheClear, "cache.clear", cfg.CacheClear, "Clear the cache directory at startup")
	fs.BoolVar(&cfg.CacheStrictPerms, "cache.strictPerms", cfg.CacheStrictPerms, "Restrict cache permissions (0700 dirs, 0600 files)")
	fs.Int64Var(&cfg.CacheMaxBytes, "cache.maxBytes", cfg.CacheMaxBytes, "Evict least recently used cache entries above this size at startup")
	fs.IntVar(&cfg.CacheMaxEntries, "cache.maxEntries", cfg.CacheMaxEntries, "Evict least recently used cache entries above this count at startup")

	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
}

// listFlag is a comma-separated string list flag.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(s string) error {
	*l = app.SplitList(s)
	return nil
}

// resolveConfig layers defaults, config file, environment and explicitly
// set flags, in increasing precedence.
func resolveConfig(fs *flag.FlagSet, opts cliOptions) (app.Config, error) {
	if err := app.LoadEnvFiles(app.SplitList(opts.envFiles)...); err != nil {
		return app.Config{}, fmt.Errorf("load env files: %w", err)
	}
	cfg := app.DefaultConfig()
	if strings.TrimSpace(opts.configPath) != "" {
		fc, err := app.LoadConfigFile(opts.configPath)
		if err != nil {
			return app.Config{}, fmt.Errorf("load config %s: %w", opts.configPath, err)
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	app.ApplyEnvOverrides(&cfg)

	overlay := flag.NewFlagSet(fs.Name(), flag.ContinueOnError)
	registerConfigFlags(overlay, &cfg)
	var err error
	fs.Visit(func(f *flag.Flag) {
		if err != nil || overlay.Lookup(f.Name) == nil {
			return
		}
		err = overlay.Set(f.Name, f.Value.String())
	})
	if err != nil {
		return app.Config{}, err
	}

	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	return cfg, nil
}

func runServe(args []string) int {
	var opts cliOptions
	flagged := app.DefaultConfig()
	fs := newFlagSet("serve", &opts, &flagged)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, err := resolveConfig(fs, opts)
	if err != nil {
		log.Error().Err(err).Msg("configuration failed")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg)
	if err != nil {
		log.Error().Err(err).Msg("init app")
		return 1
	}
	defer a.Close()
	if err := a.Run(ctx); err != nil {
		log.Error().Err(err).Msg("server failed")
		return 1
	}
	return 0
}

func runClassify(args []string, stdin io.Reader, stdout io.Writer) int {
	var (
		opts     cliOptions
		text     string
		rawURL   string
		asJSON   bool
		deadline time.Duration
	)
	flagged := app.DefaultConfig()
	fs := newFlagSet("classify", &opts, &flagged)
	fs.StringVar(&text, "text", "", `News text to classify; "-" reads standard input`)
	fs.StringVar(&rawURL, "url", "", "Article URL to scrape and classify")
	fs.BoolVar(&asJSON, "json", false, "Print the result as JSON")
	fs.DurationVar(&deadline, "timeout", time.Minute, "Overall time limit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if text == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			log.Error().Err(err).Msg("read stdin")
			return 1
		}
		text = string(b)
	}
	cfg, err := resolveConfig(fs, opts)
	if err != nil {
		log.Error().Err(err).Msg("configuration failed")
		return 1
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Error().Err(err).Msg("init app")
		return 1
	}
	defer a.Close()

	req := predict.Request{InputType: predict.InputText, NewsText: text}
	if rawURL != "" {
		req = predict.Request{InputType: predict.InputURL, URL: rawURL}
	}
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()
	out, runErr := a.Classify(ctx, req)

	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(predict.Render(out, runErr)); err != nil {
			log.Error().Err(err).Msg("write result")
			return 1
		}
	} else if runErr == nil {
		fmt.Fprintf(stdout, "%s (p=%.4f)\n", out.Label, out.Probability)
	}
	if runErr != nil {
		log.Error().Err(runErr).Msg("classification failed")
		var ve *predict.ValidationError
		if errors.As(runErr, &ve) {
			return 2
		}
		return 1
	}
	return 0
}

// runHealth probes a running server; container healthchecks use it because
// the runtime image ships no shell tools.
func runHealth(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	target := fs.String("url", "http://127.0.0.1:8080/health", "Health endpoint to probe")
	timeout := fs.Duration("timeout", 3*time.Second, "Probe timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	client := &http.Client{Timeout: *timeout}
	resp, err := client.Get(*target)
	if err != nil {
		log.Error().Err(err).Str("url", *target).Msg("health probe failed")
		return 1
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Error().Int("status", resp.StatusCode).Str("url", *target).Msg("unhealthy")
		return 1
	}
	fmt.Fprintln(stdout, "ok")
	return 0
}
