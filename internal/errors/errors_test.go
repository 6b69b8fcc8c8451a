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

package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	base := stderrors.New("connection refused")
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "message and cause",
			err:      Wrap(CodeNetwork, "probe failed", base),
			expected: "probe failed: connection refused",
		},
		{
			name:     "message only",
			err:      New(CodePermission, "tool blocked"),
			expected: "tool blocked",
		},
		{
			name:     "cause only",
			err:      &Error{Code: CodeConfig, Err: base},
			expected: "connection refused",
		},
		{
			name:     "code only",
			err:      &Error{Code: CodeRateLimit},
			expected: "rate_limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Fatalf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestNilError(t *testing.T) {
	var err *Error
	if err.Error() != "" {
		t.Fatalf("expected empty message for nil error")
	}
	if err.Unwrap() != nil {
		t.Fatalf("expected nil unwrap for nil error")
	}
}

func TestUnwrapAndCodes(t *testing.T) {
	base := stderrors.New("no such host")
	inner := Wrap(CodeNetwork, "resolve failed", base)
	outer := Wrap(CodeToolExecution, "tool port_scan failed", inner)
	wrapped := fmt.Errorf("dispatch: %w", outer)

	if !stderrors.Is(wrapped, base) {
		t.Fatal("expected errors.Is to reach base error")
	}
	if got := CodeOf(wrapped); got != CodeToolExecution {
		t.Fatalf("expected outer code, got %q", got)
	}
	if !HasCode(wrapped, CodeNetwork) {
		t.Fatal("expected nested network code to be found")
	}
	if HasCode(wrapped, CodeConfig) {
		t.Fatal("did not expect config code")
	}
	if CodeOf(base) != "" {
		t.Fatal("expected empty code for plain error")
	}
}
