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

package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// ParseToolLine splits a console line into a tool name and its arguments.
// Arguments are either one JSON object or key=value pairs:
//
//	port_scan {"host": "example.com", "ports": "22,80"}
//	port_scan host=example.com ports=22,80 detail=true
//
// Bare integers and the literals true and false are typed; everything else
// stays a string. Quote a value to keep it a string: count="4".
func ParseToolLine(line string) (string, map[string]interface{}, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil, fmt.Errorf("empty input")
	}
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	args := map[string]interface{}{}

	if rest == "" {
		return name, args, nil
	}
	if strings.HasPrefix(rest, "{") {
		if err := json.Unmarshal([]byte(rest), &args); err != nil {
			return "", nil, fmt.Errorf("invalid JSON arguments: %v", err)
		}
		return name, args, nil
	}

	fields, err := splitFields(rest)
	if err != nil {
		return "", nil, err
	}
	for _, field := range fields {
		key, value, ok := strings.Cut(field, "=")
		if !ok || key == "" {
			return "", nil, fmt.Errorf("expected key=value, got %q", field)
		}
		args[key] = typedValue(value)
	}
	return name, args, nil
}

func typedValue(raw string) interface{} {
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		return raw[1 : len(raw)-1]
	}
	switch raw {
	case "true", "false":
		return cast.ToBool(raw)
	}
	if isInteger(raw) {
		if n, err := cast.ToIntE(raw); err == nil {
			return n
		}
	}
	return raw
}

func isInteger(s string) bool {
	if strings.HasPrefix(s, "-") {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	// Leading zeros would be read as octal.
	return len(s) == 1 || s[0] != '0'
}

// splitFields splits on spaces outside double quotes. Quotes are kept so
// typedValue can see them.
func splitFields(s string) ([]string, error) {
	var (
		fields  []string
		current strings.Builder
		quoted  bool
	)
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			current.WriteRune(r)
		case r == ' ' && !quoted:
			if current.Len() > 0 {
				fields = append(fields, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if quoted {
		return nil, fmt.Errorf("unterminated quote")
	}
	if current.Len() > 0 {
		fields = append(fields, current.String())
	}
	return fields, nil
}

// CoerceArgs converts key=value arguments to the property types declared in
// a tool's JSON schema, so ports=22 still reaches a string property as "22".
// Values that cannot be converted are left for the tool to reject.
func CoerceArgs(args map[string]interface{}, schema map[string]interface{}) map[string]interface{} {
	props := cast.ToStringMap(schema["properties"])
	for key, value := range args {
		prop := cast.ToStringMap(props[key])
		switch prop["type"] {
		case "string":
			if _, ok := value.(string); !ok {
				args[key] = cast.ToString(value)
			}
		case "integer":
			if n, err := cast.ToIntE(value); err == nil {
				args[key] = n
			}
		case "boolean":
			if b, err := cast.ToBoolE(value); err == nil {
				args[key] = b
			}
		}
	}
	return args
}
