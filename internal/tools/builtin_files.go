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
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/u-root/u-root/pkg/core"
	corecat "github.com/u-root/u-root/pkg/core/cat"
	"golang.org/x/text/encoding/htmlindex"
)

const (
	defaultEncoding = "utf-8"
	defaultLogLines = 100
	maxLogLineBytes = 1024 * 1024
)

type readFileArgs struct {
	FilePath string `json:"file_path" validate:"required" jsonschema:"description=Path to the file to read"`
	Encoding string `json:"encoding,omitempty" jsonschema:"description=Text encoding of the file such as utf-8 or latin1 or shift_jis (default utf-8)"`
}

func (b *builtins) readFile(ctx context.Context, args readFileArgs) (string, error) {
	if err := ensureContext(ctx); err != nil {
		return "", err
	}

	resolved, err := b.paths.ResolveFile(args.FilePath)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %v", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("path '%s' is a directory", args.FilePath)
	}
	if info.Size() > b.limits.MaxFileSizeBytes {
		return "", fmt.Errorf("file too large (%d bytes, max %d bytes)", info.Size(), b.limits.MaxFileSizeBytes)
	}

	raw, err := runCoreCommand(ctx, corecat.New(), []string{resolved})
	if err != nil {
		return "", fmt.Errorf("failed to read file: %v", err)
	}

	content, err := decodeText([]byte(raw), args.Encoding)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Contents of %s:\n\n%s", args.FilePath, content), nil
}

// decodeText converts data from the named encoding to UTF-8. Names follow the
// WHATWG encoding labels.
func decodeText(data []byte, name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = defaultEncoding
	}

	if name == "utf-8" || name == "utf8" {
		if bytes.IndexByte(data, 0) >= 0 {
			return "", fmt.Errorf("file appears to be binary; read_file supports text only")
		}
		if !utf8.Valid(data) {
			return "", fmt.Errorf("file is not valid utf-8; set 'encoding' to the file's encoding")
		}
		return string(data), nil
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return "", fmt.Errorf("unsupported encoding %q", name)
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("failed to decode file as %s: %v", name, err)
	}
	return string(decoded), nil
}

func runCoreCommand(ctx context.Context, cmd core.Command, args []string) (string, error) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.SetIO(strings.NewReader(""), &stdout, &stderr)

	workdir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to determine working directory: %v", err)
	}
	cmd.SetWorkingDir(workdir)

	if err := cmd.RunContext(ctx, args...); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%v: %s", err, msg)
		}
		return "", err
	}
	return stdout.String(), nil
}

type logAnalysisArgs struct {
	LogFile string `json:"log_file" validate:"required" jsonschema:"description=Path to the log file"`
	Pattern string `json:"pattern" validate:"required" jsonschema:"description=Regular expression to search for (case-insensitive)"`
	Lines   int    `json:"lines,omitempty" validate:"omitempty,min=1" jsonschema:"description=Number of trailing lines to analyze (default 100)"`
}

type logMatch struct {
	line int
	text string
}

func (b *builtins) analyzeLog(ctx context.Context, args logAnalysisArgs) (string, error) {
	re, err := regexp.Compile("(?i)" + args.Pattern)
	if err != nil {
		return "", fmt.Errorf("invalid pattern: %v", err)
	}

	window := args.Lines
	if window == 0 {
		window = defaultLogLines
	}
	if window > b.limits.MaxLogLines {
		window = b.limits.MaxLogLines
	}

	resolved, err := b.paths.ResolveFile(args.LogFile)
	if err != nil {
		return "", err
	}

	tail, total, err := tailLines(ctx, resolved, window)
	if err != nil {
		return "", err
	}

	first := total - len(tail) + 1
	var matches []logMatch
	for i, line := range tail {
		if re.MatchString(line) {
			matches = append(matches, logMatch{line: first + i, text: strings.TrimSpace(line)})
		}
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Log analysis of %s (last %d lines, pattern %q):\n\n", args.LogFile, len(tail), args.Pattern)
	if len(matches) == 0 {
		out.WriteString("No matches found.")
		return out.String(), nil
	}

	fmt.Fprintf(&out, "Matches (%d):\n", len(matches))
	shown := matches
	if len(shown) > b.limits.MaxLogMatches {
		shown = shown[:b.limits.MaxLogMatches]
	}
	for _, m := range shown {
		fmt.Fprintf(&out, "Line %d: %s\n", m.line, m.text)
	}
	if extra := len(matches) - len(shown); extra > 0 {
		fmt.Fprintf(&out, "... and %d more\n", extra)
	}
	return strings.TrimRight(out.String(), "\n"), nil
}

// tailLines returns the last n lines of the file and the file's total line count.
func tailLines(ctx context.Context, path string, n int) ([]string, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open log file: %v", err)
	}
	defer f.Close()

	ring := make([]string, n)
	total := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLogLineBytes)
	for scanner.Scan() {
		if total%4096 == 0 {
			if err := ensureContext(ctx); err != nil {
				return nil, 0, err
			}
		}
		ring[total%n] = scanner.Text()
		total++
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read log file: %v", err)
	}

	if total <= n {
		return ring[:total], total, nil
	}
	start := total % n
	tail := append(append([]string{}, ring[start:]...), ring[:start]...)
	return tail, total, nil
}
