// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	apperrors "itassist/internal/errors"
	"itassist/internal/paths"
	"itassist/internal/scan"
	"itassist/internal/tools"
)

// Environment variables that override file settings.
const (
	EnvLogLevel         = "ITASSIST_LOG_LEVEL"
	EnvScanConcurrency  = "ITASSIST_SCAN_CONCURRENCY"
	EnvProbeTimeoutMS   = "ITASSIST_PROBE_TIMEOUT_MS"
	maxScanConcurrency  = 1000
	defaultLogLevelName = "info"
)

// Config represents the application configuration
type Config struct {
	LogLevel          string            `json:"log_level,omitempty"`
	Tools             ToolSettings      `json:"tools,omitempty"`
	ToolLimits        ToolLimits        `json:"tool_limits,omitempty"`
	ToolPathWhitelist []string          `json:"tool_path_whitelist,omitempty"`
	ToolRateLimits    ToolRateLimits    `json:"tool_rate_limits,omitempty"`
	ToolTimeouts      ToolTimeouts      `json:"tool_timeouts,omitempty"`
	ToolOutputFilters ToolOutputFilters `json:"tool_output_filters,omitempty"`
	Scan              ScanSettings      `json:"scan,omitempty"`
	HTTP              HTTPSettings      `json:"http,omitempty"`
}

// ToolSettings describes tool allow/deny lists.
type ToolSettings struct {
	Allow []string `json:"allow,omitempty"`
	Deny  []string `json:"deny,omitempty"`
}

// ToolLimits configures resource limits for the file tools.
type ToolLimits struct {
	MaxFileSizeBytes int64 `json:"max_file_size_bytes,omitempty"`
	MaxLogLines      int   `json:"max_log_lines,omitempty"`
	MaxLogMatches    int   `json:"max_log_matches,omitempty"`
}

// ToolRateLimits configures tool rate limits and cooldowns.
type ToolRateLimits struct {
	DefaultPerMinute int            `json:"default_per_minute,omitempty"`
	PerTool          map[string]int `json:"per_tool,omitempty"`
	CooldownSeconds  map[string]int `json:"cooldown_seconds,omitempty"`
}

// ToolTimeouts configures tool execution timeouts.
type ToolTimeouts struct {
	DefaultSeconds int            `json:"default_seconds,omitempty"`
	PerToolSeconds map[string]int `json:"per_tool_seconds,omitempty"`
}

// ToolOutputFilters configures output sanitization for tool results.
type ToolOutputFilters struct {
	MaxChars     int  `json:"max_chars,omitempty"`
	StripANSI    bool `json:"strip_ansi,omitempty"`
	StripControl bool `json:"strip_control,omitempty"`
}

// ScanSettings tunes the port scanner.
type ScanSettings struct {
	Concurrency        int `json:"concurrency,omitempty"`
	MaxPorts           int `json:"max_ports,omitempty"`
	ProbeTimeoutMS     int `json:"probe_timeout_ms,omitempty"`
	DeadlineMS         int `json:"deadline_ms,omitempty"`
	ClosedDisplayLimit int `json:"closed_display_limit,omitempty"`
}

// HTTPSettings configures the http_request tool.
type HTTPSettings struct {
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	MaxBodyChars   int    `json:"max_body_chars,omitempty"`
	UserAgent      string `json:"user_agent,omitempty"`
	SkipTLSVerify  bool   `json:"skip_tls_verify,omitempty"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	limits := tools.DefaultLimits()
	rates := tools.DefaultRateLimitConfig()
	timeouts := tools.DefaultTimeoutConfig()
	filters := tools.DefaultOutputFilterConfig()
	scanCfg := scan.DefaultConfig()
	httpCfg := tools.DefaultHTTPConfig()

	perToolRates := make(map[string]int, len(rates.PerTool))
	for name, rate := range rates.PerTool {
		perToolRates[name] = rate
	}
	perToolTimeouts := make(map[string]int, len(timeouts.PerTool))
	for name, d := range timeouts.PerTool {
		perToolTimeouts[name] = int(d.Seconds())
	}

	return &Config{
		ToolLimits: ToolLimits{
			MaxFileSizeBytes: limits.MaxFileSizeBytes,
			MaxLogLines:      limits.MaxLogLines,
			MaxLogMatches:    limits.MaxLogMatches,
		},
		ToolRateLimits: ToolRateLimits{
			DefaultPerMinute: rates.DefaultPerMinute,
			PerTool:          perToolRates,
		},
		ToolTimeouts: ToolTimeouts{
			DefaultSeconds: int(timeouts.Default.Seconds()),
			PerToolSeconds: perToolTimeouts,
		},
		ToolOutputFilters: ToolOutputFilters{
			MaxChars:     filters.MaxChars,
			StripANSI:    filters.StripANSI,
			StripControl: filters.StripControl,
		},
		Scan: ScanSettings{
			Concurrency:        scanCfg.Concurrency,
			MaxPorts:           scanCfg.MaxPorts,
			ProbeTimeoutMS:     int(scanCfg.ProbeTimeout / time.Millisecond),
			DeadlineMS:         int(scanCfg.Deadline / time.Millisecond),
			ClosedDisplayLimit: scanCfg.ClosedDisplayLimit,
		},
		HTTP: HTTPSettings{
			TimeoutSeconds: int(httpCfg.Timeout.Seconds()),
			MaxBodyChars:   httpCfg.MaxBodyChars,
			UserAgent:      httpCfg.UserAgent,
		},
	}
}

// LoadConfig loads configuration from a JSON or YAML file, applies env
// overrides and returns defaults when the file does not exist.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.CodeConfig, "failed to read config", err)
			}
			if isYAML(path) {
				if data, err = yamlToJSON(data); err != nil {
					return nil, apperrors.Wrap(apperrors.CodeConfig, "invalid YAML config", err)
				}
			}
			normalized, err := normalizeConfigJSON(data)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.CodeConfig, "invalid config "+filepath.Base(path), err)
			}
			if err := json.Unmarshal(normalized, config); err != nil {
				return nil, apperrors.Wrap(apperrors.CodeConfig, "invalid config "+filepath.Base(path), err)
			}
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	return config, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// yamlToJSON re-encodes a YAML document as JSON so both formats share the
// same schema validation.
func yamlToJSON(data []byte) ([]byte, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(raw)
}

func (c *Config) applyEnv() error {
	if val := strings.TrimSpace(os.Getenv(EnvLogLevel)); val != "" {
		c.LogLevel = val
	}
	if val := strings.TrimSpace(os.Getenv(EnvScanConcurrency)); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil || n <= 0 {
			return apperrors.New(apperrors.CodeConfig, fmt.Sprintf("%s must be a positive integer, got %q", EnvScanConcurrency, val))
		}
		c.Scan.Concurrency = n
	}
	if val := strings.TrimSpace(os.Getenv(EnvProbeTimeoutMS)); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil || n <= 0 {
			return apperrors.New(apperrors.CodeConfig, fmt.Sprintf("%s must be a positive integer, got %q", EnvProbeTimeoutMS, val))
		}
		c.Scan.ProbeTimeoutMS = n
	}
	return nil
}

// Level parses the configured log level. An empty level means info; callers
// check LogLevel to tell an explicit setting from the default.
func (c *Config) Level() (zerolog.Level, error) {
	name := strings.TrimSpace(c.LogLevel)
	if name == "" {
		name = defaultLogLevelName
	}
	level, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil {
		return zerolog.InfoLevel, apperrors.Wrap(apperrors.CodeConfig, "invalid log_level", err)
	}
	return level, nil
}

// ToolPolicy converts config settings into a tool policy.
func (c *Config) ToolPolicy() tools.Policy {
	return tools.PolicyFromLists(c.Tools.Allow, c.Tools.Deny)
}

// ToolLimitsConfig returns tool limits for runtime enforcement.
func (c *Config) ToolLimitsConfig() tools.Limits {
	return tools.Limits{
		MaxFileSizeBytes: c.ToolLimits.MaxFileSizeBytes,
		MaxLogLines:      c.ToolLimits.MaxLogLines,
		MaxLogMatches:    c.ToolLimits.MaxLogMatches,
	}
}

// ToolPathPolicy returns the file access policy with the optional whitelist.
func (c *Config) ToolPathPolicy() paths.Policy {
	policy := paths.DefaultPolicy()
	policy.Whitelist = append([]string{}, c.ToolPathWhitelist...)
	return policy
}

// ToolRateLimitsConfig returns rate limiting configuration for tools.
func (c *Config) ToolRateLimitsConfig() tools.RateLimitConfig {
	cooldowns := make(map[string]time.Duration, len(c.ToolRateLimits.CooldownSeconds))
	for name, seconds := range c.ToolRateLimits.CooldownSeconds {
		if seconds <= 0 {
			continue
		}
		cooldowns[name] = time.Duration(seconds) * time.Second
	}
	perTool := make(map[string]int, len(c.ToolRateLimits.PerTool))
	for name, rate := range c.ToolRateLimits.PerTool {
		perTool[name] = rate
	}

	return tools.RateLimitConfig{
		DefaultPerMinute: c.ToolRateLimits.DefaultPerMinute,
		PerTool:          perTool,
		Cooldowns:        cooldowns,
	}
}

// ToolTimeoutsConfig returns timeout configuration for tools.
func (c *Config) ToolTimeoutsConfig() tools.TimeoutConfig {
	perTool := make(map[string]time.Duration, len(c.ToolTimeouts.PerToolSeconds))
	for name, seconds := range c.ToolTimeouts.PerToolSeconds {
		if seconds <= 0 {
			continue
		}
		perTool[name] = time.Duration(seconds) * time.Second
	}

	var defaultTimeout time.Duration
	if c.ToolTimeouts.DefaultSeconds > 0 {
		defaultTimeout = time.Duration(c.ToolTimeouts.DefaultSeconds) * time.Second
	}

	return tools.TimeoutConfig{
		Default: defaultTimeout,
		PerTool: perTool,
	}
}

// ToolOutputFiltersConfig returns output filter configuration for tools.
func (c *Config) ToolOutputFiltersConfig() tools.OutputFilterConfig {
	return tools.OutputFilterConfig{
		MaxChars:     c.ToolOutputFilters.MaxChars,
		StripANSI:    c.ToolOutputFilters.StripANSI,
		StripControl: c.ToolOutputFilters.StripControl,
	}
}

// ScanConfig returns the scanner settings.
func (c *Config) ScanConfig() scan.Config {
	return scan.Config{
		Concurrency:        c.Scan.Concurrency,
		MaxPorts:           c.Scan.MaxPorts,
		ProbeTimeout:       time.Duration(c.Scan.ProbeTimeoutMS) * time.Millisecond,
		Deadline:           time.Duration(c.Scan.DeadlineMS) * time.Millisecond,
		ClosedDisplayLimit: c.Scan.ClosedDisplayLimit,
	}
}

// HTTPConfig returns the http_request settings.
func (c *Config) HTTPConfig() tools.HTTPConfig {
	cfg := tools.DefaultHTTPConfig()
	if c.HTTP.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(c.HTTP.TimeoutSeconds) * time.Second
	}
	if c.HTTP.MaxBodyChars > 0 {
		cfg.MaxBodyChars = c.HTTP.MaxBodyChars
	}
	if strings.TrimSpace(c.HTTP.UserAgent) != "" {
		cfg.UserAgent = c.HTTP.UserAgent
	}
	cfg.SkipTLSVerify = c.HTTP.SkipTLSVerify
	return cfg
}

// ToolsOptions assembles registry options from the whole configuration.
func (c *Config) ToolsOptions(logger zerolog.Logger) tools.Options {
	return tools.Options{
		Logger:        logger,
		Policy:        c.ToolPolicy(),
		Limits:        c.ToolLimitsConfig(),
		Paths:         c.ToolPathPolicy(),
		RateLimits:    c.ToolRateLimitsConfig(),
		Timeouts:      c.ToolTimeoutsConfig(),
		OutputFilters: c.ToolOutputFiltersConfig(),
		Scan:          c.ScanConfig(),
		HTTP:          c.HTTPConfig(),
	}
}

// ValidationWarning represents a non-fatal configuration issue
type ValidationWarning struct {
	Field   string
	Message string
}

// Validate checks the configuration for common issues and returns warnings
func (c *Config) Validate(registry *tools.Registry) []ValidationWarning {
	var warnings []ValidationWarning

	if _, err := c.Level(); err != nil {
		warnings = append(warnings, ValidationWarning{
			Field:   "log_level",
			Message: fmt.Sprintf("unknown log level %q, using info", c.LogLevel),
		})
	}

	if registry != nil {
		check := func(field string, names []string) {
			for _, name := range names {
				if _, ok := registry.Lookup(name); !ok {
					warnings = append(warnings, ValidationWarning{
						Field:   field,
						Message: fmt.Sprintf("tool %q in %s list is not registered", name, strings.TrimPrefix(field, "tools.")),
					})
				}
			}
		}
		check("tools.allow", c.Tools.Allow)
		check("tools.deny", c.Tools.Deny)
	}

	if c.Scan.Concurrency > maxScanConcurrency {
		warnings = append(warnings, ValidationWarning{
			Field:   "scan.concurrency",
			Message: fmt.Sprintf("concurrency %d is very high and may exhaust file descriptors", c.Scan.Concurrency),
		})
	}
	if c.Scan.MaxPorts > scan.MaxPort {
		warnings = append(warnings, ValidationWarning{
			Field:   "scan.max_ports",
			Message: fmt.Sprintf("max_ports %d exceeds the number of TCP ports", c.Scan.MaxPorts),
		})
	}
	if c.Scan.ProbeTimeoutMS > 0 && c.Scan.DeadlineMS > 0 && c.Scan.ProbeTimeoutMS > c.Scan.DeadlineMS {
		warnings = append(warnings, ValidationWarning{
			Field:   "scan.probe_timeout_ms",
			Message: fmt.Sprintf("probe timeout %dms exceeds the scan deadline %dms", c.Scan.ProbeTimeoutMS, c.Scan.DeadlineMS),
		})
	}
	if c.HTTP.SkipTLSVerify {
		warnings = append(warnings, ValidationWarning{
			Field:   "http.skip_tls_verify",
			Message: "TLS certificate verification is disabled for http_request",
		})
	}

	return warnings
}
