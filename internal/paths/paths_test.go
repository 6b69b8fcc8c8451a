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
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidatePathStringRejectsNullByte(t *testing.T) {
	if err := ValidatePathString("bad\x00path", 0); err == nil {
		t.Fatal("expected error for null byte path")
	}
}

func TestValidatePathStringLength(t *testing.T) {
	if err := ValidatePathString(strings.Repeat("a", 20), 10); err == nil {
		t.Fatal("expected error for overlong path")
	}
	if err := ValidatePathString("   ", 0); err == nil {
		t.Fatal("expected error for blank path")
	}
}

func TestResolveWithinBase(t *testing.T) {
	base := t.TempDir()
	parent := filepath.Join(base, "subdir")
	if err := os.MkdirAll(parent, 0o755); err != nil {
		t.Fatalf("failed to create parent dir: %v", err)
	}
	resolved, err := ResolveWithinBase("subdir/file.txt", base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	baseResolved, err := filepath.EvalSymlinks(base)
	if err != nil {
		t.Fatalf("failed to resolve base dir: %v", err)
	}
	if !HasPathPrefix(resolved, baseResolved) {
		t.Fatalf("expected resolved path to stay within base, got %s", resolved)
	}

	if _, err := ResolveWithinBase("../outside.txt", base); err == nil {
		t.Fatal("expected error for path escaping base")
	}
}

func TestPolicyResolveFileAbsolute(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "app.log")
	if err := os.WriteFile(file, []byte("ok"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	resolved, err := DefaultPolicy().ResolveFile(file)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, _ := filepath.EvalSymlinks(file)
	if resolved != want {
		t.Fatalf("expected %s, got %s", want, resolved)
	}
}

func TestPolicyResolveFileMissing(t *testing.T) {
	_, err := DefaultPolicy().ResolveFile(filepath.Join(t.TempDir(), "nope.txt"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestPolicyDeniedPrefix(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "secret.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	resolvedDir, _ := filepath.EvalSymlinks(dir)

	policy := Policy{Denied: []string{resolvedDir + "/"}}
	if _, err := policy.ResolveFile(file); err == nil {
		t.Fatal("expected denied prefix to block access")
	}
}

func TestPolicyDeniedThroughSymlink(t *testing.T) {
	denied := t.TempDir()
	target := filepath.Join(denied, "target.txt")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	link := filepath.Join(t.TempDir(), "link.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	resolvedDenied, _ := filepath.EvalSymlinks(denied)

	policy := Policy{Denied: []string{resolvedDenied + "/"}}
	if _, err := policy.ResolveFile(link); err == nil {
		t.Fatal("expected symlink into denied tree to be blocked")
	}
}

func TestPolicyWhitelist(t *testing.T) {
	allowed := t.TempDir()
	other := t.TempDir()
	inside := filepath.Join(allowed, "in.txt")
	outside := filepath.Join(other, "out.txt")
	for _, f := range []string{inside, outside} {
		if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	policy := Policy{Whitelist: []string{allowed}}
	if _, err := policy.ResolveFile(inside); err != nil {
		t.Fatalf("expected whitelisted file to resolve, got %v", err)
	}
	if _, err := policy.ResolveFile(outside); err == nil {
		t.Fatal("expected file outside whitelist to be rejected")
	}
}
