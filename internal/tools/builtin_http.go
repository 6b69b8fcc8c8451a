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
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/valyala/fasthttp"
	"golang.org/x/net/html/charset"

	apperrors "itassist/internal/errors"
)

const (
	defaultHTTPTimeout      = 30 * time.Second
	defaultMaxBodyChars     = 1000
	defaultMaxResponseBytes = 5 * 1024 * 1024
	defaultUserAgent        = "it-assistant/1.0"
	acceptEncodings         = "gzip, deflate, br, zstd"
)

// HTTPConfig configures the http_request tool.
type HTTPConfig struct {
	Timeout          time.Duration
	MaxBodyChars     int
	MaxResponseBytes int
	UserAgent        string
	SkipTLSVerify    bool
}

// DefaultHTTPConfig returns the default http_request settings.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:          defaultHTTPTimeout,
		MaxBodyChars:     defaultMaxBodyChars,
		MaxResponseBytes: defaultMaxResponseBytes,
		UserAgent:        defaultUserAgent,
	}
}

func normalizeHTTPConfig(cfg HTTPConfig) HTTPConfig {
	def := DefaultHTTPConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxBodyChars <= 0 {
		cfg.MaxBodyChars = def.MaxBodyChars
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = def.MaxResponseBytes
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = def.UserAgent
	}
	return cfg
}

type httpTool struct {
	cfg    HTTPConfig
	client *fasthttp.Client
}

func newHTTPTool(cfg HTTPConfig) *httpTool {
	cfg = normalizeHTTPConfig(cfg)
	return &httpTool{
		cfg: cfg,
		client: &fasthttp.Client{
			Name:                cfg.UserAgent,
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxConnDuration:     30 * time.Second,
			MaxIdleConnDuration: 5 * time.Second,
			MaxResponseBodySize: cfg.MaxResponseBytes,
			TLSConfig: &tls.Config{
				InsecureSkipVerify: cfg.SkipTLSVerify,
				MinVersion:         tls.VersionTLS12,
			},
		},
	}
}

type httpRequestArgs struct {
	URL     string            `json:"url" validate:"required,url" jsonschema:"description=URL to request (http or https)"`
	Method  string            `json:"method,omitempty" jsonschema:"enum=GET,enum=POST,enum=PUT,enum=DELETE,enum=HEAD,description=HTTP method (default GET)"`
	Headers map[string]string `json:"headers,omitempty" jsonschema:"description=Request headers"`
	Data    string            `json:"data,omitempty" jsonschema:"description=Request body for POST and PUT"`
}

func (b *builtins) httpRequest(ctx context.Context, args httpRequestArgs) (string, error) {
	return b.http.do(ctx, args)
}

func (h *httpTool) do(ctx context.Context, args httpRequestArgs) (string, error) {
	if err := ensureContext(ctx); err != nil {
		return "", err
	}
	target, err := url.Parse(args.URL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return "", fmt.Errorf("invalid URL %q: only http and https URLs are supported", args.URL)
	}
	method := strings.ToUpper(strings.TrimSpace(args.Method))
	switch method {
	case "":
		method = fasthttp.MethodGet
	case fasthttp.MethodGet, fasthttp.MethodPost, fasthttp.MethodPut, fasthttp.MethodDelete, fasthttp.MethodHead:
	default:
		return "", NewInvalidArgumentsError("http_request", fmt.Errorf("'method' must be one of: GET, POST, PUT, DELETE, HEAD"))
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(target.String())
	req.Header.SetMethod(method)
	for key, value := range args.Headers {
		req.Header.Set(key, value)
	}
	if len(req.Header.Peek(fasthttp.HeaderAcceptEncoding)) == 0 {
		req.Header.Set(fasthttp.HeaderAcceptEncoding, acceptEncodings)
	}
	if args.Data != "" {
		req.SetBodyString(args.Data)
		if len(req.Header.ContentType()) == 0 || string(req.Header.ContentType()) == "application/octet-stream" {
			req.Header.SetContentType(guessContentType(args.Data))
		}
	}
	if method == fasthttp.MethodHead {
		resp.SkipBody = true
	}

	deadline := time.Now().Add(h.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := h.client.DoDeadline(req, resp, deadline); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			err = fmt.Errorf("request timed out")
		}
		return "", apperrors.Wrap(apperrors.CodeNetwork, "", fmt.Errorf("%s %s failed: %w", method, target.Redacted(), err))
	}

	var out strings.Builder
	fmt.Fprintf(&out, "HTTP %s %s\n", method, target.Redacted())
	fmt.Fprintf(&out, "Status: %d %s\n", resp.StatusCode(), fasthttp.StatusMessage(resp.StatusCode()))
	out.WriteString("Headers:\n")
	for _, line := range responseHeaders(resp) {
		fmt.Fprintf(&out, "  %s\n", line)
	}

	if method == fasthttp.MethodHead {
		return strings.TrimRight(out.String(), "\n"), nil
	}

	body, err := decodeBody(resp.Body(), string(resp.Header.Peek(fasthttp.HeaderContentEncoding)), h.cfg.MaxResponseBytes)
	if err != nil {
		fmt.Fprintf(&out, "\nBody could not be decoded: %v", err)
		return out.String(), nil
	}
	text, isText := bodyText(body, string(resp.Header.ContentType()))
	if !isText {
		fmt.Fprintf(&out, "\nBody: [binary content, %d bytes]", len(body))
		return out.String(), nil
	}

	shown, cut := truncateString(text, h.cfg.MaxBodyChars)
	fmt.Fprintf(&out, "\nBody (first %d characters):\n%s", h.cfg.MaxBodyChars, shown)
	if cut {
		fmt.Fprintf(&out, "\n... (%d characters total)", utf8.RuneCountInString(text))
	}
	return out.String(), nil
}

func responseHeaders(resp *fasthttp.Response) []string {
	var lines []string
	resp.Header.VisitAll(func(key, value []byte) {
		lines = append(lines, fmt.Sprintf("%s: %s", key, value))
	})
	sort.Strings(lines)
	return lines
}

func guessContentType(data string) string {
	trimmed := strings.TrimSpace(data)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return "application/json"
	}
	return "application/x-www-form-urlencoded"
}

// decodeBody undoes the Content-Encoding chain, last applied first.
func decodeBody(body []byte, contentEncoding string, limit int) ([]byte, error) {
	codings := strings.Split(contentEncoding, ",")
	data := body
	for i := len(codings) - 1; i >= 0; i-- {
		coding := strings.ToLower(strings.TrimSpace(codings[i]))
		var r io.Reader
		switch coding {
		case "", "identity":
			continue
		case "gzip", "x-gzip":
			gz, err := gzip.NewReader(bytes.NewReader(data))
			if err != nil {
				return nil, fmt.Errorf("gzip: %w", err)
			}
			defer gz.Close()
			r = gz
		case "deflate":
			// Servers send both zlib-wrapped and raw deflate streams.
			if zr, err := zlib.NewReader(bytes.NewReader(data)); err == nil {
				defer zr.Close()
				r = zr
			} else {
				fr := flate.NewReader(bytes.NewReader(data))
				defer fr.Close()
				r = fr
			}
		case "br":
			r = brotli.NewReader(bytes.NewReader(data))
		case "zstd":
			dec, err := zstd.NewReader(bytes.NewReader(data), zstd.WithDecoderConcurrency(1))
			if err != nil {
				return nil, fmt.Errorf("zstd: %w", err)
			}
			defer dec.Close()
			r = dec
		default:
			return nil, fmt.Errorf("unsupported content encoding %q", coding)
		}
		decoded, err := io.ReadAll(io.LimitReader(r, int64(limit)))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", coding, err)
		}
		data = decoded
	}
	return data, nil
}

// bodyText converts a textual body to UTF-8 using the declared or sniffed
// charset. Binary bodies report false.
func bodyText(body []byte, contentType string) (string, bool) {
	ct := strings.ToLower(contentType)
	textual := strings.HasPrefix(ct, "text/") ||
		strings.Contains(ct, "json") ||
		strings.Contains(ct, "xml") ||
		strings.Contains(ct, "javascript") ||
		strings.Contains(ct, "x-www-form-urlencoded")
	if !textual {
		if ct != "" || !utf8.Valid(body) {
			return "", false
		}
		return string(body), true
	}

	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return string(body), true
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return string(body), true
	}
	return string(decoded), true
}
