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

package scan

import (
	"errors"
	"fmt"
)

// ErrInvalidPortSpec matches every port specification parse failure.
var ErrInvalidPortSpec = errors.New("invalid port specification")

// InvalidPortError reports a single-port token that is not a valid port.
type InvalidPortError struct {
	Token  string
	Reason string
}

func (e *InvalidPortError) Error() string {
	return fmt.Sprintf("invalid port %q: %s", e.Token, e.Reason)
}

// Is lets errors.Is(err, ErrInvalidPortSpec) match.
func (e *InvalidPortError) Is(target error) bool {
	return target == ErrInvalidPortSpec
}

// InvalidRangeError reports a malformed or inverted range token.
type InvalidRangeError struct {
	Token  string
	Reason string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid port range %q: %s", e.Token, e.Reason)
}

// Is lets errors.Is(err, ErrInvalidPortSpec) match.
func (e *InvalidRangeError) Is(target error) bool {
	return target == ErrInvalidPortSpec
}

// ResolutionError reports a target host that could not be resolved.
// It aborts the whole scan before any probe is issued.
type ResolutionError struct {
	Host string
	Err  error
}

func (e *ResolutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("cannot resolve host %q", e.Host)
	}
	return fmt.Sprintf("cannot resolve host %q: %v", e.Host, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}
