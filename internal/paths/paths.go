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

package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxPathLength bounds raw path arguments.
const MaxPathLength = 4096

// DefaultDenied lists system trees the file tools never read.
var DefaultDenied = []string{
	"/etc/", "/sys/", "/proc/", "/dev/",
	"/boot/", "/root/", "/var/run/", "/var/lib/",
}

// Policy decides which files the file tools may open.
// Denied prefixes always win; a non-empty Whitelist restricts access to the
// listed base directories.
type Policy struct {
	Denied    []string
	Whitelist []string
}

// DefaultPolicy returns the deny list with no whitelist.
func DefaultPolicy() Policy {
	return Policy{Denied: append([]string{}, DefaultDenied...)}
}

// ResolveFile validates path and returns its absolute, symlink-free form.
// Relative paths are resolved under the working directory and may not
// escape it. The file must exist.
func (p Policy) ResolveFile(path string) (string, error) {
	if err := ValidatePathString(path, MaxPathLength); err != nil {
		return "", err
	}

	workdir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to determine working directory: %v", err)
	}

	var resolved string
	if filepath.IsAbs(path) {
		resolved, err = filepath.EvalSymlinks(filepath.Clean(path))
		if err != nil {
			if os.IsNotExist(err) {
				return "", fmt.Errorf("file not found: %s", path)
			}
			return "", fmt.Errorf("failed to resolve path: %v", err)
		}
	} else {
		resolved, err = ResolveWithinBase(path, workdir)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(resolved); os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", path)
		}
	}

	if err := p.check(resolved, workdir); err != nil {
		return "", err
	}
	return resolved, nil
}

func (p Policy) check(resolved, workdir string) error {
	for _, denied := range p.Denied {
		if denied == "" {
			continue
		}
		if strings.HasPrefix(resolved, denied) || resolved == strings.TrimSuffix(denied, "/") {
			return fmt.Errorf("access to %s is restricted for security", denied)
		}
	}

	if len(p.Whitelist) == 0 {
		return nil
	}
	baseResolved, err := filepath.EvalSymlinks(workdir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %v", err)
	}
	for _, entry := range p.Whitelist {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		allowed, err := ResolveWhitelistEntry(entry, baseResolved)
		if err != nil {
			return err
		}
		if HasPathPrefix(resolved, allowed) {
			return nil
		}
	}
	return fmt.Errorf("path is outside allowed tool base directories")
}

// ValidatePathString validates raw path input before resolution.
func ValidatePathString(path string, maxLen int) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if strings.IndexByte(path, 0) != -1 {
		return fmt.Errorf("path contains null byte")
	}
	if !utf8.ValidString(path) {
		return fmt.Errorf("path is not valid UTF-8")
	}
	for _, r := range path {
		if unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r) || unicode.Is(unicode.Me, r) {
			return fmt.Errorf("path contains unsupported unicode combining mark")
		}
	}
	if maxLen > 0 && len(path) > maxLen {
		return fmt.Errorf("path exceeds maximum length of %d characters", maxLen)
	}
	return nil
}

// ResolveWithinBase resolves a relative path under a base directory.
func ResolveWithinBase(path, baseDir string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute paths are not allowed")
	}

	baseAbs, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("invalid base directory: %v", err)
	}
	baseResolved, err := filepath.EvalSymlinks(baseAbs)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %v", err)
	}

	absPath := filepath.Clean(filepath.Join(baseResolved, filepath.Clean(path)))
	if !HasPathPrefix(absPath, baseResolved) {
		return "", fmt.Errorf("path escapes working directory")
	}

	if _, err := os.Lstat(absPath); err != nil {
		if os.IsNotExist(err) {
			return absPath, nil
		}
		return "", fmt.Errorf("failed to stat path: %v", err)
	}
	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %v", err)
	}
	if !HasPathPrefix(resolved, baseResolved) {
		return "", fmt.Errorf("path escapes working directory")
	}
	return resolved, nil
}

// HasPathPrefix returns true when path is within base.
func HasPathPrefix(path, base string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, ".."+string(os.PathSeparator)) && rel != "..")
}

// ResolveWhitelistEntry resolves a whitelist entry relative to a base.
func ResolveWhitelistEntry(entry, baseResolved string) (string, error) {
	candidate := entry
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(baseResolved, candidate)
	}
	candidate = filepath.Clean(candidate)
	if _, err := os.Lstat(candidate); err == nil {
		resolved, err := filepath.EvalSymlinks(candidate)
		if err != nil {
			return "", fmt.Errorf("failed to resolve allowed path: %v", err)
		}
		return resolved, nil
	} else if os.IsNotExist(err) {
		return candidate, nil
	} else {
		return "", fmt.Errorf("failed to stat allowed path: %v", err)
	}
}
