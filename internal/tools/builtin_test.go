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
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/text/encoding/charmap"

	"itassist/internal/paths"
	"itassist/internal/scan"
)

func TestCalculator(t *testing.T) {
	tests := []struct {
		expression string
		want       string
		wantErr    string
	}{
		{expression: "2 + 3 * 4", want: "2 + 3 * 4 = 14"},
		{expression: "10 / 4", want: "10 / 4 = 2.5"},
		{expression: "2 ** 10", want: "2 ** 10 = 1024"},
		{expression: "sqrt(16) + abs(-2)", want: "sqrt(16) + abs(-2) = 6"},
		{expression: "round(pi, 2)", want: "round(pi, 2) = 3.14"},
		{expression: "max(3, 9, 4)", want: "max(3, 9, 4) = 9"},
		{expression: "2 > 1", want: "2 > 1 = true"},
		{expression: "1 / 0", wantErr: "division by zero"},
		{expression: "7 % 0", wantErr: "division by zero"},
		{expression: "sqrt(-1)", wantErr: "result is undefined"},
		{expression: "2 +", wantErr: "invalid expression"},
		{expression: "len(\"abc\")", wantErr: "invalid expression"},
	}

	registry := newTestRegistry(t, nil)
	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			result := registry.Execute(context.Background(), "calculator", map[string]interface{}{"expression": tt.expression})
			if tt.wantErr != "" {
				if result.Error == nil || !strings.Contains(result.Error.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v (result %q)", tt.wantErr, result.Error, result.Result)
				}
				return
			}
			if result.Error != nil {
				t.Fatalf("unexpected error: %v", result.Error)
			}
			if result.Result != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, result.Result)
			}
		})
	}
}

func TestCalculatorRejectsLongExpression(t *testing.T) {
	registry := newTestRegistry(t, nil)
	result := registry.Execute(context.Background(), "calculator", map[string]interface{}{
		"expression": strings.Repeat("1+", 600) + "1",
	})
	if !errors.Is(result.Error, ErrInvalidArguments) {
		t.Fatalf("expected invalid arguments, got %v", result.Error)
	}
}

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestReadFile(t *testing.T) {
	path := writeTempFile(t, "notes.txt", []byte("hello\nworld\n"))
	registry := newTestRegistry(t, nil)

	result := registry.Execute(context.Background(), "read_file", map[string]interface{}{"file_path": path})
	if result.Error != nil {
		t.Fatalf("unexpected error: %v", result.Error)
	}
	want := "Contents of " + path + ":\n\nhello\nworld\n"
	if result.Result != want {
		t.Fatalf("expected %q, got %q", want, result.Result)
	}
}

func TestReadFileEncoding(t *testing.T) {
	latin1, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte("café"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	path := writeTempFile(t, "latin1.txt", latin1)
	registry := newTestRegistry(t, nil)

	result := registry.Execute(context.Background(), "read_file", map[string]interface{}{"file_path": path})
	if result.Error == nil || !strings.Contains(result.Error.Error(), "not valid utf-8") {
		t.Fatalf("expected utf-8 error, got %v", result.Error)
	}

	result = registry.Execute(context.Background(), "read_file", map[string]interface{}{
		"file_path": path,
		"encoding":  "latin1",
	})
	if result.Error != nil {
		t.Fatalf("unexpected error: %v", result.Error)
	}
	if !strings.HasSuffix(result.Result, "café") {
		t.Fatalf("expected decoded text, got %q", result.Result)
	}

	result = registry.Execute(context.Background(), "read_file", map[string]interface{}{
		"file_path": path,
		"encoding":  "klingon",
	})
	if result.Error == nil || !strings.Contains(result.Error.Error(), "unsupported encoding") {
		t.Fatalf("expected unsupported encoding error, got %v", result.Error)
	}
}

func TestReadFileRejections(t *testing.T) {
	binary := writeTempFile(t, "blob.bin", []byte{0x7f, 'E', 'L', 'F', 0, 1, 2})
	large := writeTempFile(t, "large.txt", bytes.Repeat([]byte("a"), 2048))

	registry := newTestRegistry(t, func(o *Options) {
		o.Limits.MaxFileSizeBytes = 1024
	})

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{name: "binary", path: binary, wantErr: "appears to be binary"},
		{name: "too large", path: large, wantErr: "file too large (2048 bytes, max 1024 bytes)"},
		{name: "directory", path: filepath.Dir(binary), wantErr: "is a directory"},
		{name: "missing", path: filepath.Join(t.TempDir(), "missing.txt"), wantErr: "file not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := registry.Execute(context.Background(), "read_file", map[string]interface{}{"file_path": tt.path})
			if result.Error == nil || !strings.Contains(result.Error.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, result.Error)
			}
		})
	}
}

func TestReadFileDeniedPath(t *testing.T) {
	path := writeTempFile(t, "secret.txt", []byte("x"))
	resolvedDir, err := filepath.EvalSymlinks(filepath.Dir(path))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	registry := newTestRegistry(t, func(o *Options) {
		o.Paths = paths.Policy{Denied: []string{resolvedDir + "/"}}
	})

	result := registry.Execute(context.Background(), "read_file", map[string]interface{}{"file_path": path})
	if result.Error == nil || !strings.Contains(result.Error.Error(), "restricted") {
		t.Fatalf("expected restricted error, got %v", result.Error)
	}
}

func writeLog(t *testing.T, lines int) string {
	t.Helper()
	var buf bytes.Buffer
	for i := 1; i <= lines; i++ {
		level := "INFO"
		if i%10 == 0 {
			level = "ERROR"
		}
		fmt.Fprintf(&buf, "2025-01-01T00:00:00Z %s request %d\n", level, i)
	}
	return writeTempFile(t, "app.log", buf.Bytes())
}

func TestLogAnalysis(t *testing.T) {
	path := writeLog(t, 200)
	registry := newTestRegistry(t, nil)

	result := registry.Execute(context.Background(), "log_analysis", map[string]interface{}{
		"log_file": path,
		"pattern":  "error",
		"lines":    50,
	})
	if result.Error != nil {
		t.Fatalf("unexpected error: %v", result.Error)
	}
	if !strings.Contains(result.Result, "(last 50 lines, pattern \"error\")") {
		t.Fatalf("unexpected header: %q", result.Result)
	}
	if !strings.Contains(result.Result, "Matches (5):") {
		t.Fatalf("expected five matches, got %q", result.Result)
	}
	if !strings.Contains(result.Result, "Line 160: 2025-01-01T00:00:00Z ERROR request 160") {
		t.Fatalf("expected absolute line numbers, got %q", result.Result)
	}
	if strings.Contains(result.Result, "Line 150:") {
		t.Fatalf("line outside the window reported: %q", result.Result)
	}
}

func TestLogAnalysisCapsMatches(t *testing.T) {
	path := writeLog(t, 200)
	registry := newTestRegistry(t, func(o *Options) {
		o.Limits.MaxLogMatches = 3
	})

	result := registry.Execute(context.Background(), "log_analysis", map[string]interface{}{
		"log_file": path,
		"pattern":  "request",
		"lines":    10,
	})
	if result.Error != nil {
		t.Fatalf("unexpected error: %v", result.Error)
	}
	if !strings.HasSuffix(result.Result, "... and 7 more") {
		t.Fatalf("expected capped match list, got %q", result.Result)
	}
}

func TestLogAnalysisNoMatchesAndBadPattern(t *testing.T) {
	path := writeLog(t, 20)
	registry := newTestRegistry(t, nil)

	result := registry.Execute(context.Background(), "log_analysis", map[string]interface{}{
		"log_file": path,
		"pattern":  "panic",
	})
	if result.Error != nil {
		t.Fatalf("unexpected error: %v", result.Error)
	}
	if !strings.HasSuffix(result.Result, "No matches found.") || !strings.Contains(result.Result, "last 20 lines") {
		t.Fatalf("unexpected result %q", result.Result)
	}

	result = registry.Execute(context.Background(), "log_analysis", map[string]interface{}{
		"log_file": path,
		"pattern":  "(unclosed",
	})
	if result.Error == nil || !strings.Contains(result.Error.Error(), "invalid pattern") {
		t.Fatalf("expected invalid pattern error, got %v", result.Error)
	}
}

func TestTailLines(t *testing.T) {
	path := writeLog(t, 7)
	tail, total, err := tailLines(context.Background(), path, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 7 || len(tail) != 3 {
		t.Fatalf("expected 3 of 7 lines, got %d of %d", len(tail), total)
	}
	if !strings.HasSuffix(tail[0], "request 5") || !strings.HasSuffix(tail[2], "request 7") {
		t.Fatalf("unexpected tail %v", tail)
	}
}

func newHTTPTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("X-Method", r.Method)
		if r.Method != http.MethodHead {
			_, _ = w.Write([]byte("hello from " + r.Method))
		}
	})
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, "%s %s", r.Header.Get("Content-Type"), r.Header.Get("X-Token"))
	})
	mux.HandleFunc("/gzip", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte("compressed with gzip"))
		_ = gz.Close()
	})
	mux.HandleFunc("/brotli", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Content-Encoding", "br")
		bw := brotli.NewWriter(w)
		_, _ = bw.Write([]byte("compressed with brotli"))
		_ = bw.Close()
	})
	mux.HandleFunc("/latin1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		body, _ := charmap.ISO8859_1.NewEncoder().Bytes([]byte("<p>café</p>"))
		_, _ = w.Write(body)
	})
	mux.HandleFunc("/long", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write(bytes.Repeat([]byte("x"), 50))
	})
	mux.HandleFunc("/binary", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte{0, 1, 2, 3})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPRequest(t *testing.T) {
	srv := newHTTPTestServer(t)
	registry := newTestRegistry(t, func(o *Options) {
		o.HTTP.MaxBodyChars = 20
	})

	tests := []struct {
		name string
		args map[string]interface{}
		want []string
	}{
		{
			name: "get",
			args: map[string]interface{}{"url": srv.URL + "/plain"},
			want: []string{"HTTP GET " + srv.URL + "/plain", "Status: 200 OK", "X-Method: GET", "hello from GET"},
		},
		{
			name: "head",
			args: map[string]interface{}{"url": srv.URL + "/plain", "method": "head"},
			want: []string{"HTTP HEAD", "Status: 200 OK", "X-Method: HEAD"},
		},
		{
			name: "post json",
			args: map[string]interface{}{
				"url":     srv.URL + "/echo",
				"method":  "POST",
				"headers": map[string]interface{}{"X-Token": "t1"},
				"data":    `{"a":1}`,
			},
			want: []string{"application/json t1", "Status: 200 OK"},
		},
		{
			name: "gzip",
			args: map[string]interface{}{"url": srv.URL + "/gzip"},
			want: []string{"compressed with gzip"},
		},
		{
			name: "brotli",
			args: map[string]interface{}{"url": srv.URL + "/brotli"},
			want: []string{"compressed with brot", "(22 characters total)"},
		},
		{
			name: "charset",
			args: map[string]interface{}{"url": srv.URL + "/latin1"},
			want: []string{"<p>café</p>"},
		},
		{
			name: "truncated",
			args: map[string]interface{}{"url": srv.URL + "/long"},
			want: []string{"Body (first 20 characters):\n" + strings.Repeat("x", 20) + "\n... (50 characters total)"},
		},
		{
			name: "binary",
			args: map[string]interface{}{"url": srv.URL + "/binary"},
			want: []string{"Body: [binary content, 4 bytes]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := registry.Execute(context.Background(), "http_request", tt.args)
			if result.Error != nil {
				t.Fatalf("unexpected error: %v", result.Error)
			}
			for _, want := range tt.want {
				if !strings.Contains(result.Result, want) {
					t.Fatalf("expected %q in:\n%s", want, result.Result)
				}
			}
		})
	}
}

func TestHTTPRequestRejections(t *testing.T) {
	registry := newTestRegistry(t, nil)

	tests := []struct {
		name    string
		args    map[string]interface{}
		wantErr string
	}{
		{name: "scheme", args: map[string]interface{}{"url": "ftp://example.com/file"}, wantErr: "only http and https"},
		{name: "method", args: map[string]interface{}{"url": "http://example.com", "method": "PATCH"}, wantErr: "'method' must be one of"},
		{name: "not a url", args: map[string]interface{}{"url": "example"}, wantErr: "'url'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := registry.Execute(context.Background(), "http_request", tt.args)
			if result.Error == nil || !strings.Contains(result.Error.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, result.Error)
			}
		})
	}
}

func TestDecodeBodyUnsupported(t *testing.T) {
	if _, err := decodeBody([]byte("x"), "compress", 1024); err == nil {
		t.Fatal("expected unsupported encoding error")
	}
	out, err := decodeBody([]byte("plain"), "identity", 1024)
	if err != nil || string(out) != "plain" {
		t.Fatalf("expected identity passthrough, got %q (%v)", out, err)
	}
}

type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

func (f dialFunc) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return f(ctx, network, address)
}

// rejectedError carries ECONNREFUSED without saying so in its text.
type rejectedError struct{}

func (rejectedError) Error() string { return "peer said no" }
func (rejectedError) Unwrap() error { return syscall.ECONNREFUSED }

func failingDialer(err error) scan.Option {
	return scan.WithDialer(dialFunc(func(ctx context.Context, network, address string) (net.Conn, error) {
		return nil, err
	}))
}

func TestPortScanPortsArgument(t *testing.T) {
	registry := newTestRegistry(t, func(o *Options) {
		o.ScanOptions = []scan.Option{failingDialer(rejectedError{})}
	})

	for _, ports := range []string{"", "   "} {
		result := registry.Execute(context.Background(), "port_scan", map[string]interface{}{
			"host":  "127.0.0.1",
			"ports": ports,
		})
		if result.Error != nil {
			t.Fatalf("ports %q: unexpected error: %v", ports, result.Error)
		}
		want := "Port scan for 127.0.0.1:\n\nOpen ports (0): none\nClosed ports (0): none"
		if result.Result != want {
			t.Fatalf("ports %q: got %q, want %q", ports, result.Result, want)
		}
	}

	result := registry.Execute(context.Background(), "port_scan", map[string]interface{}{"host": "127.0.0.1"})
	if result.Error != nil {
		t.Fatalf("unexpected error: %v", result.Error)
	}
	if !strings.HasSuffix(result.Result, "Closed ports (9): 22, 23, 25, 53, 80, 110, 443, 993, 995") {
		t.Fatalf("expected default ports when omitted, got %q", result.Result)
	}
}

func TestTCPReachability(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"refused", rejectedError{}, "(ping unavailable): reachable\n"},
		{"unreachable", &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.EHOSTUNREACH)}, "(ping unavailable): unreachable\n"},
		{"refused only in text", errors.New("connection refused"), "(ping unavailable): unreachable\n"},
	}
	for _, tc := range cases {
		opts := DefaultOptions()
		opts.ScanOptions = []scan.Option{failingDialer(tc.err)}
		out, err := newBuiltins(opts).tcpReachability(context.Background(), "192.0.2.1")
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if !strings.Contains(out, tc.want) {
			t.Fatalf("%s: expected %q in %q", tc.name, tc.want, out)
		}
	}
}

func TestPingOutput(t *testing.T) {
	out, err := pingOutput("192.0.2.1", nil, "4 packets transmitted, 4 received\n", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Ping results for 192.0.2.1:\n\n4 packets transmitted, 4 received" {
		t.Fatalf("unexpected output %q", out)
	}

	out, err = pingOutput("192.0.2.1", &exec.ExitError{}, "4 packets transmitted, 0 received, 100% packet loss", "")
	if err != nil {
		t.Fatalf("expected non-zero exit to be a result, got %v", err)
	}
	if !strings.Contains(out, "100% packet loss") || !strings.Contains(out, "ping exited with status") {
		t.Fatalf("unexpected output %q", out)
	}

	out, err = pingOutput("nope.invalid", &exec.ExitError{}, "", "ping: nope.invalid: Name or service not known")
	if err != nil || !strings.Contains(out, "Name or service not known") {
		t.Fatalf("expected stderr in result, got %q, %v", out, err)
	}

	if _, err := pingOutput("192.0.2.1", exec.ErrNotFound, "", ""); err == nil {
		t.Fatal("expected error when ping could not be started")
	}
}
