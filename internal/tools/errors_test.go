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

package tools

import (
	"errors"
	"testing"

	apperrors "itassist/internal/errors"
)

func TestToolExecutionError(t *testing.T) {
	baseErr := errors.New("execution failed")

	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "with operation",
			err:      NewToolExecutionError("ping_host", "run", baseErr),
			expected: "tool ping_host failed during run: execution failed",
		},
		{
			name:     "without operation",
			err:      NewToolExecutionError("read_file", "", baseErr),
			expected: "tool read_file failed: execution failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, tt.err.Error())
			}
			if !errors.Is(tt.err, baseErr) {
				t.Error("errors.Is should unwrap to base error")
			}
			if apperrors.CodeOf(tt.err) != apperrors.CodeToolExecution {
				t.Errorf("expected tool_execution code, got %q", apperrors.CodeOf(tt.err))
			}
		})
	}
}

func TestPermissionError(t *testing.T) {
	err := NewPermissionError("port_scan", "disabled by configuration")

	expected := "tool blocked by policy: port_scan (disabled by configuration)"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
	if !errors.Is(err, ErrToolNotAllowed) {
		t.Error("expected ErrToolNotAllowed in chain")
	}
	if !apperrors.HasCode(err, apperrors.CodePermission) {
		t.Error("expected permission code")
	}
}

func TestInvalidArgumentsError(t *testing.T) {
	cause := errors.New("'host' is required")
	err := NewInvalidArgumentsError("port_scan", cause)

	expected := "invalid tool arguments for port_scan: 'host' is required"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
	if !errors.Is(err, ErrInvalidArguments) || !errors.Is(err, cause) {
		t.Error("expected both sentinel and cause in chain")
	}
}

func TestRateLimitError(t *testing.T) {
	err := NewRateLimitError("ping_host", ErrToolRateLimited)
	if err.Error() != "ping_host: tool rate limit exceeded" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !apperrors.HasCode(err, apperrors.CodeRateLimit) {
		t.Error("expected rate_limit code")
	}
}

func TestErrorConstants(t *testing.T) {
	tests := []struct {
		name string
		err  error
		msg  string
	}{
		{name: "ErrToolNotAllowed", err: ErrToolNotAllowed, msg: "tool blocked by policy"},
		{name: "ErrToolNotFound", err: ErrToolNotFound, msg: "tool not found"},
		{name: "ErrInvalidArguments", err: ErrInvalidArguments, msg: "invalid tool arguments"},
		{name: "ErrToolRateLimited", err: ErrToolRateLimited, msg: "tool rate limit exceeded"},
		{name: "ErrToolInCooldown", err: ErrToolInCooldown, msg: "tool is in cooldown"},
		{name: "ErrToolTimeout", err: ErrToolTimeout, msg: "tool timed out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.msg {
				t.Errorf("expected %q, got %q", tt.msg, tt.err.Error())
			}
		})
	}
}
