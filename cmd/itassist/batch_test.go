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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"itassist/internal/tools"
)

func newTestRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	opts := tools.DefaultOptions()
	opts.RateLimits = tools.RateLimitConfig{}
	r := tools.NewRegistryWithOptions(opts)
	t.Cleanup(r.Close)
	return r
}

func decodeBatchOutput(t *testing.T, out string) []batchResult {
	t.Helper()
	var results []batchResult
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		var r batchResult
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			t.Fatalf("invalid output line %q: %v", line, err)
		}
		results = append(results, r)
	}
	return results
}

func TestRunBatch(t *testing.T) {
	input := strings.Join([]string{
		`{"id":"call_1","type":"function","function":{"name":"calculator","arguments":"{\"expression\":\"6 * 7\"}"}}`,
		``,
		`not json`,
		`{"id":"call_3","type":"function","function":{"name":"port_scan","arguments":"{}"}}`,
		`{"id":"call_4","type":"function","function":{"name":"nope","arguments":"{}"}}`,
	}, "\n")

	var out bytes.Buffer
	if err := runBatch(context.Background(), newTestRegistry(t), strings.NewReader(input), &out, zerolog.Nop()); err != nil {
		t.Fatalf("runBatch failed: %v", err)
	}

	results := decodeBatchOutput(t, out.String())
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d: %s", len(results), out.String())
	}

	first := results[0]
	if first.Role != "tool" || first.ToolCallID != "call_1" || first.Name != "calculator" {
		t.Fatalf("unexpected envelope: %+v", first)
	}
	if first.IsError || first.Content != "6 * 7 = 42" {
		t.Fatalf("unexpected calculator result: %+v", first)
	}

	if !results[1].IsError || results[1].Code != "invalid_arguments" || results[1].Name != "unknown_tool" {
		t.Fatalf("expected invalid line to become an error result, got %+v", results[1])
	}
	if !strings.Contains(results[1].Content, "line 3") {
		t.Fatalf("expected line number in error, got %q", results[1].Content)
	}

	if !results[2].IsError || !strings.Contains(results[2].Content, "'host' is required") {
		t.Fatalf("expected missing host error, got %+v", results[2])
	}
	if !results[3].IsError || !strings.HasPrefix(results[3].Content, "Error: ") {
		t.Fatalf("expected unknown tool error, got %+v", results[3])
	}
}

func TestRunBatchCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	input := `{"id":"c","type":"function","function":{"name":"get_current_datetime","arguments":"{}"}}`
	var out bytes.Buffer
	err := runBatch(ctx, newTestRegistry(t), strings.NewReader(input), &out, zerolog.Nop())
	if err == nil {
		t.Fatal("expected canceled context to stop the batch")
	}
	if out.Len() != 0 {
		t.Fatalf("expected no output, got %q", out.String())
	}
}
