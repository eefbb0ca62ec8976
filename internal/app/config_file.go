package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	yaml "gopkg.in/yaml.v3"

	"github.com/hyperifyio/webresearch/internal/extract"
)

// Duration decodes from "10s"-style strings or plain seconds in every
// supported config format.
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// FileConfig represents the single-file configuration schema.
// Nested sections improve readability and map naturally to flags/env.
type FileConfig struct {
	Search struct {
		Provider    string   `yaml:"provider" json:"provider" toml:"provider"`
		File        string   `yaml:"file" json:"file" toml:"file"`
		Answers     string   `yaml:"answers" json:"answers" toml:"answers"`
		Region      string   `yaml:"region" json:"region" toml:"region"`
		Timeout     Duration `yaml:"timeout" json:"timeout" toml:"timeout"`
		Concurrency int      `yaml:"concurrency" json:"concurrency" toml:"concurrency"`
	} `yaml:"search" json:"search" toml:"search"`

	Searx struct {
		URL string `yaml:"url" json:"url" toml:"url"`
		Key string `yaml:"key" json:"key" toml:"key"`
	} `yaml:"searx" json:"searx" toml:"searx"`

	Brave struct {
		Key string `yaml:"key" json:"key" toml:"key"`
	} `yaml:"brave" json:"brave" toml:"brave"`

	Fetch struct {
		UserAgent     string   `yaml:"userAgent" json:"userAgent" toml:"userAgent"`
		Timeout       Duration `yaml:"timeout" json:"timeout" toml:"timeout"`
		RobotsTimeout Duration `yaml:"robotsTimeout" json:"robotsTimeout" toml:"robotsTimeout"`
		MaxBodyBytes  int64    `yaml:"maxBodyBytes" json:"maxBodyBytes" toml:"maxBodyBytes"`
		MaxConcurrent int      `yaml:"maxConcurrent" json:"maxConcurrent" toml:"maxConcurrent"`
		Retries       int      `yaml:"retries" json:"retries" toml:"retries"`
		SSLVerify     *bool    `yaml:"sslVerify" json:"sslVerify" toml:"sslVerify"`
	} `yaml:"fetch" json:"fetch" toml:"fetch"`

	Collect struct {
		// Delay is a pointer so an explicit 0 disables the wait.
		Delay           *Duration `yaml:"delay" json:"delay" toml:"delay"`
		Workers         int       `yaml:"workers" json:"workers" toml:"workers"`
		PerDomain       int       `yaml:"perDomain" json:"perDomain" toml:"perDomain"`
		QueryPrefix     string    `yaml:"queryPrefix" json:"queryPrefix" toml:"queryPrefix"`
		MinSnippetChars int       `yaml:"minSnippetChars" json:"minSnippetChars" toml:"minSnippetChars"`
		CanonicalURLs   *bool     `yaml:"canonicalURLs" json:"canonicalURLs" toml:"canonicalURLs"`
	} `yaml:"collect" json:"collect" toml:"collect"`

	Extract struct {
		Mode   string `yaml:"mode" json:"mode" toml:"mode"`
		Format string `yaml:"format" json:"format" toml:"format"`
	} `yaml:"extract" json:"extract" toml:"extract"`

	Domains struct {
		Allow []string `yaml:"allow" json:"allow" toml:"allow"`
		Deny  []string `yaml:"deny" json:"deny" toml:"deny"`
	} `yaml:"domains" json:"domains" toml:"domains"`

	Verbose bool `yaml:"verbose" json:"verbose" toml:"verbose"`
}

// LoadConfigFile reads YAML, JSON or TOML into FileConfig, chosen by
// extension.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse toml: %w", err)
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

// ApplyFileConfig overlays every value set in fc onto cfg. It runs before
// env and flags, so cfg normally holds DefaultConfig here.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	setStr := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	setDur := func(dst *time.Duration, v Duration) {
		if v != 0 {
			*dst = time.Duration(v)
		}
	}
	setPos := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}

	setStr(&cfg.SearchProvider, strings.ToLower(fc.Search.Provider))
	setStr(&cfg.FileSearchPath, fc.Search.File)
	setStr(&cfg.FileAnswersPath, fc.Search.Answers)
	setStr(&cfg.SearchRegion, fc.Search.Region)
	setDur(&cfg.SearchTimeout, fc.Search.Timeout)
	setPos(&cfg.SearchConcurrency, fc.Search.Concurrency)

	setStr(&cfg.SearxURL, fc.Searx.URL)
	setStr(&cfg.SearxKey, fc.Searx.Key)
	setStr(&cfg.BraveAPIKey, fc.Brave.Key)

	setStr(&cfg.UserAgent, fc.Fetch.UserAgent)
	setDur(&cfg.FetchTimeout, fc.Fetch.Timeout)
	setDur(&cfg.RobotsTimeout, fc.Fetch.RobotsTimeout)
	if fc.Fetch.MaxBodyBytes != 0 {
		cfg.MaxBodyBytes = fc.Fetch.MaxBodyBytes
	}
	setPos(&cfg.MaxConcurrent, fc.Fetch.MaxConcurrent)
	setPos(&cfg.Retries, fc.Fetch.Retries)
	if fc.Fetch.SSLVerify != nil {
		cfg.SSLVerify = *fc.Fetch.SSLVerify
	}

	if fc.Collect.Delay != nil {
		cfg.PoliteDelay = time.Duration(*fc.Collect.Delay)
	}
	setPos(&cfg.Workers, fc.Collect.Workers)
	setPos(&cfg.PerDomainCap, fc.Collect.PerDomain)
	setPos(&cfg.MinSnippetChars, fc.Collect.MinSnippetChars)
	if fc.Collect.CanonicalURLs != nil {
		cfg.CanonicalURLs = *fc.Collect.CanonicalURLs
	}
	if fc.Collect.QueryPrefix != "" {
		cfg.QueryPrefix = fc.Collect.QueryPrefix
	}

	setStr(&cfg.ExtractMode, fc.Extract.Mode)
	setStr(&cfg.ExtractFormat, fc.Extract.Format)

	if len(fc.Domains.Allow) > 0 {
		cfg.DomainAllowlist = append([]string{}, fc.Domains.Allow...)
	}
	if len(fc.Domains.Deny) > 0 {
		cfg.DomainDenylist = append([]string{}, fc.Domains.Deny...)
	}
	if fc.Verbose {
		cfg.Verbose = true
	}
}

// ValidateConfig performs minimal schema validation for required settings.
func ValidateConfig(cfg Config) error {
	if cfg.FetchTimeout < 0 || cfg.SearchTimeout < 0 || cfg.RobotsTimeout < 0 || cfg.PoliteDelay < 0 {
		return errors.New("config: negative durations are not allowed")
	}
	if cfg.Workers < 0 || cfg.Retries < 0 || cfg.PerDomainCap < 0 || cfg.MinSnippetChars < 0 || cfg.SearchConcurrency < 0 || cfg.MaxConcurrent < 0 || cfg.MaxBodyBytes < 0 {
		return errors.New("config: negative limits are not allowed")
	}
	switch p := cfg.ResolvedProvider(); p {
	case ProviderSearxNG:
		if strings.TrimSpace(cfg.SearxURL) == "" {
			return errors.New("config: searx.url is required for the searxng provider (or set SEARX_URL)")
		}
	case ProviderBrave:
		if strings.TrimSpace(cfg.BraveAPIKey) == "" {
			return errors.New("config: brave.key is required for the brave provider (or set BRAVE_API_KEY)")
		}
	case ProviderFile:
		if strings.TrimSpace(cfg.FileSearchPath) == "" {
			return errors.New("config: search.file is required for the file provider (or set SEARCH_FILE)")
		}
	case ProviderDuckDuckGo:
	default:
		return fmt.Errorf("config: unknown search provider %q", p)
	}
	if _, err := extract.ParseFormat(cfg.ExtractFormat); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := extract.New(cfg.ExtractMode, extract.FormatText); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
