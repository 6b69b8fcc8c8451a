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

//go:build !linux

package sysinfo

import (
	"context"
	"fmt"
	"os"
	"runtime"
)

func general() (string, error) {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("General system information:\n\nHostname: %s\nSystem: %s\nArchitecture: %s\nLogical CPUs: %d",
		hostname, runtime.GOOS, runtime.GOARCH, runtime.NumCPU()), nil
}

func cpu(ctx context.Context) (string, error) {
	return fmt.Sprintf("CPU information:\n\nLogical CPUs: %d\nUsage: not supported on %s", runtime.NumCPU(), runtime.GOOS), nil
}

func memory() (string, error) {
	return "", fmt.Errorf("memory information is not supported on %s", runtime.GOOS)
}

func disk(path string) (string, error) {
	return "", fmt.Errorf("disk information is not supported on %s", runtime.GOOS)
}

func processes(ctx context.Context) (string, error) {
	return "", fmt.Errorf("process information is not supported on %s", runtime.GOOS)
}
