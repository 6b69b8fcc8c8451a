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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	apperrors "itassist/internal/errors"
	"itassist/internal/tools"
)

const maxBatchLine = 1 << 20

// batchResult is written as one JSON line per input tool call.
type batchResult struct {
	Role       string `json:"role"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
	Code       string `json:"code,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

func newBatchResult(callID string, result *tools.ToolResult) batchResult {
	out := batchResult{
		Role:       openai.ChatMessageRoleTool,
		ToolCallID: callID,
		Name:       result.Function,
		Content:    result.Text(),
		IsError:    result.Error != nil,
		DurationMS: result.Duration.Milliseconds(),
	}
	if result.Error != nil {
		out.Code = string(apperrors.CodeOf(result.Error))
	}
	return out
}

// runBatch reads OpenAI tool calls as JSON lines and writes one result line
// for each, in input order.
func runBatch(ctx context.Context, registry *tools.Registry, in io.Reader, out io.Writer, logger zerolog.Logger) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxBatchLine)
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var call openai.ToolCall
		var result *tools.ToolResult
		if err := json.Unmarshal([]byte(line), &call); err != nil {
			logger.Warn().Err(err).Int("line", lineNo).Msg("invalid tool call")
			result = &tools.ToolResult{
				Function: "unknown_tool",
				Error: apperrors.Wrap(apperrors.CodeInvalidArguments, "",
					fmt.Errorf("%w: line %d is not a tool call: %v", tools.ErrInvalidArguments, lineNo, err)),
			}
		} else {
			result = registry.ExecuteOpenAIToolCall(ctx, call)
		}

		if err := enc.Encode(newBatchResult(call.ID, result)); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}
	return nil
}
