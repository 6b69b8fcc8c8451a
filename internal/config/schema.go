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
	"sort"
	"strings"
)

// SchemaJSON returns the JSON schema for the config file.
func SchemaJSON() string {
	return configSchemaJSON
}

// ExampleConfigJSON returns a minimal example config derived from the schema.
func ExampleConfigJSON() string {
	return exampleConfigJSON
}

func normalizeConfigJSON(data []byte) ([]byte, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	migrateLegacyConfig(raw)
	if err := validateConfigMap(raw, ""); err != nil {
		return nil, err
	}
	normalized, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	return normalized, nil
}

// migrateLegacyConfig accepts the older flat scan keys.
func migrateLegacyConfig(raw map[string]interface{}) {
	legacy := map[string]string{
		"scan_concurrency":      "concurrency",
		"scan_probe_timeout_ms": "probe_timeout_ms",
	}
	for old, key := range legacy {
		value, ok := raw[old]
		if !ok {
			continue
		}
		delete(raw, old)
		section, ok := raw["scan"].(map[string]interface{})
		if !ok {
			if _, exists := raw["scan"]; exists {
				continue
			}
			section = map[string]interface{}{}
			raw["scan"] = section
		}
		if _, exists := section[key]; !exists {
			section[key] = value
		}
	}
}

func validateConfigMap(raw map[string]interface{}, prefix string) error {
	allowed := map[string]func(interface{}) error{
		"log_level": func(v interface{}) error { return validateString(v, prefix+"log_level") },
		"tools": func(v interface{}) error {
			return validateToolsConfig(v, prefix+"tools.")
		},
		"tool_limits": func(v interface{}) error {
			return validateToolLimits(v, prefix+"tool_limits.")
		},
		"tool_path_whitelist": func(v interface{}) error {
			return validateStringArray(v, prefix+"tool_path_whitelist")
		},
		"tool_rate_limits": func(v interface{}) error {
			return validateToolRateLimits(v, prefix+"tool_rate_limits.")
		},
		"tool_timeouts": func(v interface{}) error {
			return validateToolTimeouts(v, prefix+"tool_timeouts.")
		},
		"tool_output_filters": func(v interface{}) error {
			return validateToolOutputFilters(v, prefix+"tool_output_filters.")
		},
		"scan": func(v interface{}) error {
			return validateScan(v, prefix+"scan.")
		},
		"http": func(v interface{}) error {
			return validateHTTP(v, prefix+"http.")
		},
	}
	return validateSection(raw, allowed, prefix)
}

func validateToolsConfig(value interface{}, prefix string) error {
	section, ok := value.(map[string]interface{})
	if !ok {
		return fmt.Errorf("%s must be an object", strings.TrimSuffix(prefix, "."))
	}
	allowed := map[string]func(interface{}) error{
		"allow": func(v interface{}) error { return validateStringArray(v, prefix+"allow") },
		"deny":  func(v interface{}) error { return validateStringArray(v, prefix+"deny") },
	}
	return validateSection(section, allowed, prefix)
}

func validateToolLimits(value interface{}, prefix string) error {
	section, ok := value.(map[string]interface{})
	if !ok {
		return fmt.Errorf("%s must be an object", strings.TrimSuffix(prefix, "."))
	}
	allowed := map[string]func(interface{}) error{
		"max_file_size_bytes": func(v interface{}) error { return validateNumber(v, prefix+"max_file_size_bytes") },
		"max_log_lines":       func(v interface{}) error { return validateNumber(v, prefix+"max_log_lines") },
		"max_log_matches":     func(v interface{}) error { return validateNumber(v, prefix+"max_log_matches") },
	}
	return validateSection(section, allowed, prefix)
}

func validateToolRateLimits(value interface{}, prefix string) error {
	section, ok := value.(map[string]interface{})
	if !ok {
		return fmt.Errorf("%s must be an object", strings.TrimSuffix(prefix, "."))
	}
	allowed := map[string]func(interface{}) error{
		"default_per_minute": func(v interface{}) error { return validateNumber(v, prefix+"default_per_minute") },
		"per_tool":           func(v interface{}) error { return validateStringNumberMap(v, prefix+"per_tool") },
		"cooldown_seconds":   func(v interface{}) error { return validateStringNumberMap(v, prefix+"cooldown_seconds") },
	}
	return validateSection(section, allowed, prefix)
}

func validateToolTimeouts(value interface{}, prefix string) error {
	section, ok := value.(map[string]interface{})
	if !ok {
		return fmt.Errorf("%s must be an object", strings.TrimSuffix(prefix, "."))
	}
	allowed := map[string]func(interface{}) error{
		"default_seconds":  func(v interface{}) error { return validateNumber(v, prefix+"default_seconds") },
		"per_tool_seconds": func(v interface{}) error { return validateStringNumberMap(v, prefix+"per_tool_seconds") },
	}
	return validateSection(section, allowed, prefix)
}

func validateToolOutputFilters(value interface{}, prefix string) error {
	section, ok := value.(map[string]interface{})
	if !ok {
		return fmt.Errorf("%s must be an object", strings.TrimSuffix(prefix, "."))
	}
	allowed := map[string]func(interface{}) error{
		"max_chars":     func(v interface{}) error { return validateNumber(v, prefix+"max_chars") },
		"strip_ansi":    func(v interface{}) error { return validateBool(v, prefix+"strip_ansi") },
		"strip_control": func(v interface{}) error { return validateBool(v, prefix+"strip_control") },
	}
	return validateSection(section, allowed, prefix)
}

func validateScan(value interface{}, prefix string) error {
	section, ok := value.(map[string]interface{})
	if !ok {
		return fmt.Errorf("%s must be an object", strings.TrimSuffix(prefix, "."))
	}
	allowed := map[string]func(interface{}) error{
		"concurrency":          func(v interface{}) error { return validatePositiveNumber(v, prefix+"concurrency") },
		"max_ports":            func(v interface{}) error { return validatePositiveNumber(v, prefix+"max_ports") },
		"probe_timeout_ms":     func(v interface{}) error { return validatePositiveNumber(v, prefix+"probe_timeout_ms") },
		"deadline_ms":          func(v interface{}) error { return validatePositiveNumber(v, prefix+"deadline_ms") },
		"closed_display_limit": func(v interface{}) error { return validatePositiveNumber(v, prefix+"closed_display_limit") },
	}
	return validateSection(section, allowed, prefix)
}

func validateHTTP(value interface{}, prefix string) error {
	section, ok := value.(map[string]interface{})
	if !ok {
		return fmt.Errorf("%s must be an object", strings.TrimSuffix(prefix, "."))
	}
	allowed := map[string]func(interface{}) error{
		"timeout_seconds": func(v interface{}) error { return validatePositiveNumber(v, prefix+"timeout_seconds") },
		"max_body_chars":  func(v interface{}) error { return validatePositiveNumber(v, prefix+"max_body_chars") },
		"user_agent":      func(v interface{}) error { return validateString(v, prefix+"user_agent") },
		"skip_tls_verify": func(v interface{}) error { return validateBool(v, prefix+"skip_tls_verify") },
	}
	return validateSection(section, allowed, prefix)
}

func validateSection(section map[string]interface{}, allowed map[string]func(interface{}) error, prefix string) error {
	keys := make([]string, 0, len(section))
	for key := range section {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		validator, ok := allowed[key]
		if !ok {
			return fmt.Errorf("unknown configuration field %q", prefix+key)
		}
		if err := validator(section[key]); err != nil {
			return err
		}
	}
	return nil
}

func validateString(value interface{}, name string) error {
	if _, ok := value.(string); !ok {
		return fmt.Errorf("%s must be a string", name)
	}
	return nil
}

func validateNumber(value interface{}, name string) error {
	if _, ok := value.(float64); !ok {
		return fmt.Errorf("%s must be a number", name)
	}
	return nil
}

func validatePositiveNumber(value interface{}, name string) error {
	n, ok := value.(float64)
	if !ok {
		return fmt.Errorf("%s must be a number", name)
	}
	if n <= 0 || n != float64(int64(n)) {
		return fmt.Errorf("%s must be a positive integer", name)
	}
	return nil
}

func validateBool(value interface{}, name string) error {
	if _, ok := value.(bool); !ok {
		return fmt.Errorf("%s must be a boolean", name)
	}
	return nil
}

func validateStringArray(value interface{}, name string) error {
	list, ok := value.([]interface{})
	if !ok {
		return fmt.Errorf("%s must be an array of strings", name)
	}
	for _, item := range list {
		if _, ok := item.(string); !ok {
			return fmt.Errorf("%s must be an array of strings", name)
		}
	}
	return nil
}

func validateStringNumberMap(value interface{}, name string) error {
	section, ok := value.(map[string]interface{})
	if !ok {
		return fmt.Errorf("%s must be an object of number values", name)
	}
	for key, entry := range section {
		if _, ok := entry.(float64); !ok {
			return fmt.Errorf("%s.%s must be a number", name, key)
		}
	}
	return nil
}

const configSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "title": "IT Assistant Config",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "log_level": { "type": "string", "enum": ["trace", "debug", "info", "warn", "error"] },
    "tools": {
      "type": "object",
      "properties": {
        "allow": { "type": "array", "items": { "type": "string" } },
        "deny": { "type": "array", "items": { "type": "string" } }
      }
    },
    "tool_limits": {
      "type": "object",
      "properties": {
        "max_file_size_bytes": { "type": "number" },
        "max_log_lines": { "type": "number" },
        "max_log_matches": { "type": "number" }
      }
    },
    "tool_path_whitelist": { "type": "array", "items": { "type": "string" } },
    "tool_rate_limits": {
      "type": "object",
      "properties": {
        "default_per_minute": { "type": "number" },
        "per_tool": { "type": "object", "additionalProperties": { "type": "number" } },
        "cooldown_seconds": { "type": "object", "additionalProperties": { "type": "number" } }
      }
    },
    "tool_timeouts": {
      "type": "object",
      "properties": {
        "default_seconds": { "type": "number" },
        "per_tool_seconds": { "type": "object", "additionalProperties": { "type": "number" } }
      }
    },
    "tool_output_filters": {
      "type": "object",
      "properties": {
        "max_chars": { "type": "number" },
        "strip_ansi": { "type": "boolean" },
        "strip_control": { "type": "boolean" }
      }
    },
    "scan": {
      "type": "object",
      "properties": {
        "concurrency": { "type": "integer", "minimum": 1 },
        "max_ports": { "type": "integer", "minimum": 1 },
        "probe_timeout_ms": { "type": "integer", "minimum": 1 },
        "deadline_ms": { "type": "integer", "minimum": 1 },
        "closed_display_limit": { "type": "integer", "minimum": 1 }
      }
    },
    "http": {
      "type": "object",
      "properties": {
        "timeout_seconds": { "type": "integer", "minimum": 1 },
        "max_body_chars": { "type": "integer", "minimum": 1 },
        "user_agent": { "type": "string" },
        "skip_tls_verify": { "type": "boolean" }
      }
    }
  }
}`

const exampleConfigJSON = `{
  "log_level": "info",
  "tools": {
    "deny": ["http_request"]
  },
  "tool_path_whitelist": ["/var/log", "."],
  "tool_rate_limits": {
    "per_tool": { "port_scan": 10 }
  },
  "scan": {
    "concurrency": 50,
    "max_ports": 100,
    "probe_timeout_ms": 1000,
    "deadline_ms": 10000
  },
  "http": {
    "timeout_seconds": 30,
    "max_body_chars": 1000
  }
}`
