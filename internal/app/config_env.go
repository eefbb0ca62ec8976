package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ApplyEnvOverrides forcefully overrides cfg fields with environment variables
// when the corresponding env vars are set. This is used to let env take
// precedence over values coming from a config file while still allowing flags
// to remain highest precedence.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if v := env("SEARCH_PROVIDER"); v != "" {
		cfg.SearchProvider = strings.ToLower(v)
	}
	// Support both SEARX_URL and SEARXNG_URL; prefer SEARX_URL if set
	if v := env("SEARXNG_URL"); v != "" {
		cfg.SearxURL = v
	}
	if v := env("SEARX_URL"); v != "" {
		cfg.SearxURL = v
	}
	if v := env("SEARXNG_KEY"); v != "" {
		cfg.SearxKey = v
	}
	if v := env("SEARX_KEY"); v != "" {
		cfg.SearxKey = v
	}
	if v := env("BRAVE_API_KEY"); v != "" {
		cfg.BraveAPIKey = v
	}
	if v := env("SEARCH_FILE"); v != "" {
		cfg.FileSearchPath = v
	}
	if v := env("SEARCH_ANSWERS_FILE"); v != "" {
		cfg.FileAnswersPath = v
	}
	if v := env("SEARCH_REGION"); v != "" {
		cfg.SearchRegion = v
	}
	if v := env("USER_AGENT"); v != "" {
		cfg.UserAgent = v
	}
	if v := env("EXTRACT_MODE"); v != "" {
		cfg.ExtractMode = v
	}
	if v := env("EXTRACT_FORMAT"); v != "" {
		cfg.ExtractFormat = v
	}
	if v := env("DOMAINS_ALLOW"); v != "" {
		cfg.DomainAllowlist = SplitList(v)
	}
	if v := env("DOMAINS_DENY"); v != "" {
		cfg.DomainDenylist = SplitList(v)
	}

	setDuration(&cfg.FetchTimeout, "FETCH_TIMEOUT")
	setDuration(&cfg.SearchTimeout, "SEARCH_TIMEOUT")
	setDuration(&cfg.RobotsTimeout, "ROBOTS_TIMEOUT")
	setDuration(&cfg.PoliteDelay, "POLITE_DELAY")

	setInt(&cfg.Workers, "WORKERS")
	setInt(&cfg.Retries, "RETRIES")
	setInt(&cfg.PerDomainCap, "PER_DOMAIN")
	setInt(&cfg.SearchConcurrency, "SEARCH_CONCURRENCY")
	setInt(&cfg.MaxConcurrent, "MAX_CONCURRENT")
	setInt(&cfg.MinSnippetChars, "MIN_SNIPPET_CHARS")

	setBool(&cfg.SSLVerify, "SSL_VERIFY")
	setBool(&cfg.CanonicalURLs, "CANONICAL_URLS")

	setBool(&cfg.Verbose, "VERBOSE")
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func setDuration(dst *time.Duration, key string) {
	s := env(key)
	if s == "" {
		return
	}
	d, err := ParseDuration(s)
	if err != nil {
		log.Warn().Err(err).Str("env", key).Msg("ignoring invalid duration")
		return
	}
	*dst = d
}

// setBool overrides dst when the env var is present and truthy or falsey.
func setBool(dst *bool, key string) {
	switch strings.ToLower(env(key)) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	}
}

func setInt(dst *int, key string) {
	s := env(key)
	if s == "" {
		return
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Warn().Err(err).Str("env", key).Msg("ignoring invalid integer")
		return
	}
	*dst = n
}

// ParseDuration accepts Go duration strings ("1.5s", "500ms") and plain
// numbers of seconds ("10", "0.5").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// SplitList splits a comma-separated list, dropping blanks.
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
