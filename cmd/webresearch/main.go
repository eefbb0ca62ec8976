package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/webresearch/internal/app"
)

// errConfig marks failures to load or validate configuration.
var errConfig = errors.New("invalid configuration")

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runCLI(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func runCLI(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, cmd, err := parseArgs(args, stderr)
	if err == nil {
		if cfg.Verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		}
		err = run(ctx, cfg, cmd, stdout)
	}
	code := exitCode(err)
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		log.Error().Err(err).Int("exit", code).Msg("run failed")
	}
	return code
}

// parseArgs builds the effective configuration with precedence
// flags > env > config file > defaults, and splits off the command.
func parseArgs(args []string, stderr io.Writer) (app.Config, app.Command, error) {
	fs := flag.NewFlagSet("webresearch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: webresearch [flags] search <query>... | news <topic> | scrape <url>...\n\nFlags:\n")
		fs.PrintDefaults()
	}

	var (
		configPath   string
		envFiles     string
		domainsAllow string
		domainsDeny  string
		cmd          app.Command
	)
	fl := app.DefaultConfig()

	fs.StringVar(&configPath, "config", os.Getenv("WEBRESEARCH_CONFIG"), "Path to a YAML, JSON or TOML config file")
	fs.StringVar(&envFiles, "env", ".env", "Comma-separated dotenv files; later files override earlier ones")
	fs.StringVar(&fl.SearchProvider, "search.provider", "", "Search provider: searxng, duckduckgo, brave or file")
	fs.StringVar(&fl.SearxURL, "searx.url", "", "SearxNG base URL")
	fs.StringVar(&fl.SearxKey, "searx.key", "", "SearxNG API key (optional)")
	fs.StringVar(&fl.BraveAPIKey, "brave.key", "", "Brave Search API key")
	fs.StringVar(&fl.FileSearchPath, "search.file", "", "Path to JSON file for offline file-based search provider")
	fs.StringVar(&fl.FileAnswersPath, "search.answers", "", "Path to JSON object of query -> answer for the file provider")
	fs.StringVar(&fl.SearchRegion, "search.region", "", "DuckDuckGo region code, e.g. us-en")
	fs.DurationVar(&fl.SearchTimeout, "search.timeout", fl.SearchTimeout, "Per-query search timeout")
	fs.IntVar(&fl.SearchConcurrency, "search.concurrency", fl.SearchConcurrency, "Maximum queries in flight")
	fs.StringVar(&domainsAllow, "domains.allow", "", "Comma-separated allowlist of hosts/domains; if set, only these are permitted (subdomains included)")
	fs.StringVar(&domainsDeny, "domains.deny", "", "Comma-separated denylist of hosts/domains; takes precedence over allow")
	fs.StringVar(&fl.UserAgent, "fetch.ua", fl.UserAgent, "User-Agent for page and robots.txt requests")
	fs.DurationVar(&fl.FetchTimeout, "fetch.timeout", fl.FetchTimeout, "Per-page fetch timeout")
	fs.DurationVar(&fl.RobotsTimeout, "robots.timeout", fl.RobotsTimeout, "robots.txt fetch timeout")
	fs.Int64Var(&fl.MaxBodyBytes, "fetch.maxBytes", fl.MaxBodyBytes, "Maximum response body bytes read per page")
	fs.IntVar(&fl.MaxConcurrent, "fetch.maxConcurrent", 0, "Maximum concurrent page fetches (0 = unlimited)")
	fs.IntVar(&fl.Retries, "fetch.retries", 0, "Retries for timeouts and 5xx responses")
	fs.BoolVar(&fl.SSLVerify, "ssl.verify", true, "Verify TLS certificates")
	fs.DurationVar(&fl.PoliteDelay, "delay", fl.PoliteDelay, "Politeness delay between fetches (0 disables)")
	fs.IntVar(&fl.Workers, "workers", fl.Workers, "Parallel fetches per window when collecting news")
	fs.IntVar(&fl.PerDomainCap, "max.perDomain", 0, "Maximum news candidates per domain (0 = unlimited)")
	fs.IntVar(&fl.MinSnippetChars, "min.snippet", 0, "Skip news candidates whose snippet is shorter than this (0 = keep all)")
	fs.BoolVar(&fl.CanonicalURLs, "canonical", false, "Dedupe news candidates on canonical URLs")
	fs.StringVar(&fl.QueryPrefix, "news.prefix", fl.QueryPrefix, "Prefix added to the news topic query")
	fs.StringVar(&fl.ExtractMode, "extract.mode", fl.ExtractMode, "Content extractor: heuristic or readability")
	fs.StringVar(&fl.ExtractFormat, "extract.format", fl.ExtractFormat, "Extracted text format: text or markdown")
	fs.BoolVar(&fl.Verbose, "v", false, "Verbose logging")
	fs.IntVar(&cmd.MaxResults, "n", 5, "Results per query (search)")
	fs.IntVar(&cmd.Articles, "articles", 3, "Number of articles to collect (news)")
	fs.IntVar(&cmd.MaxChars, "max.chars", 4000, "Maximum characters per article (news, 0 = unlimited)")
	fs.BoolVar(&cmd.Merged, "merged", false, "Append a deduplicated list of all sources (search)")
	if err := fs.Parse(args); err != nil {
		return app.Config{}, cmd, fmt.Errorf("%w: %w", app.ErrUsage, err)
	}

	if err := app.LoadEnvFiles(app.SplitList(envFiles)...); err != nil {
		return app.Config{}, cmd, fmt.Errorf("%w: load env: %w", errConfig, err)
	}
	cfg := app.DefaultConfig()
	if configPath != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			return app.Config{}, cmd, fmt.Errorf("%w: %s: %w", errConfig, configPath, err)
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	app.ApplyEnvOverrides(&cfg)
	fs.Visit(func(f *flag.Flag) {
		applyFlag(&cfg, fl, f.Name)
	})
	if isSet(fs, "domains.allow") {
		cfg.DomainAllowlist = app.SplitList(domainsAllow)
	}
	if isSet(fs, "domains.deny") {
		cfg.DomainDenylist = app.SplitList(domainsDeny)
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return cfg, cmd, fmt.Errorf("%w: missing command", app.ErrUsage)
	}
	cmd.Name, cmd.Args = rest[0], rest[1:]
	return cfg, cmd, nil
}

// applyFlag copies one explicitly set flag value from fl into cfg.
func applyFlag(cfg *app.Config, fl app.Config, name string) {
	switch name {
	case "search.provider":
		cfg.SearchProvider = fl.SearchProvider
	case "searx.url":
		cfg.SearxURL = fl.SearxURL
	case "searx.key":
		cfg.SearxKey = fl.SearxKey
	case "brave.key":
		cfg.BraveAPIKey = fl.BraveAPIKey
	case "search.file":
		cfg.FileSearchPath = fl.FileSearchPath
	case "search.answers":
		cfg.FileAnswersPath = fl.FileAnswersPath
	case "search.region":
		cfg.SearchRegion = fl.SearchRegion
	case "search.timeout":
		cfg.SearchTimeout = fl.SearchTimeout
	case "search.concurrency":
		cfg.SearchConcurrency = fl.SearchConcurrency
	case "fetch.ua":
		cfg.UserAgent = fl.UserAgent
	case "fetch.timeout":
		cfg.FetchTimeout = fl.FetchTimeout
	case "robots.timeout":
		cfg.RobotsTimeout = fl.RobotsTimeout
	case "fetch.maxBytes":
		cfg.MaxBodyBytes = fl.MaxBodyBytes
	case "fetch.maxConcurrent":
		cfg.MaxConcurrent = fl.MaxConcurrent
	case "fetch.retries":
		cfg.Retries = fl.Retries
	case "ssl.verify":
		cfg.SSLVerify = fl.SSLVerify
	case "delay":
		cfg.PoliteDelay = fl.PoliteDelay
	case "workers":
		cfg.Workers = fl.Workers
	case "max.perDomain":
		cfg.PerDomainCap = fl.PerDomainCap
	case "min.snippet":
		cfg.MinSnippetChars = fl.MinSnippetChars
	case "canonical":
		cfg.CanonicalURLs = fl.CanonicalURLs
	case "news.prefix":
		cfg.QueryPrefix = fl.QueryPrefix
	case "extract.mode":
		cfg.ExtractMode = fl.ExtractMode
	case "extract.format":
		cfg.ExtractFormat = fl.ExtractFormat
	case "v":
		cfg.Verbose = fl.Verbose
	}
}

func isSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func run(ctx context.Context, cfg app.Config, cmd app.Command, w io.Writer) error {
	s, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("%w: %w", errConfig, err)
	}
	return s.Run(ctx, cmd, w)
}

// exitCode applies the exit code policy: 2 when a command produced no usable
// content, 1 for configuration and usage errors, 0 otherwise (warnings).
func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, app.ErrNoUsableContent):
		return 2
	case errors.Is(err, errConfig), errors.Is(err, app.ErrUsage):
		return 1
	}
	return 0
}
