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

package theme

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Theme names the console colors. Values are color names such as "cyan".
type Theme struct {
	HeaderColor  string `json:"header_color"`
	PromptColor  string `json:"prompt_color"`
	ResultColor  string `json:"result_color"`
	ErrorColor   string `json:"error_color"`
	SuccessColor string `json:"success_color"`
}

// ColorScheme holds the printers used by the console.
type ColorScheme struct {
	Header  *color.Color
	Prompt  *color.Color
	Result  *color.Color
	Error   *color.Color
	Success *color.Color
}

// DefaultTheme returns a theme with default values
func DefaultTheme() *Theme {
	return &Theme{
		HeaderColor:  "magenta",
		PromptColor:  "cyan",
		ResultColor:  "white",
		ErrorColor:   "red",
		SuccessColor: "green",
	}
}

// LoadTheme loads a theme from a JSON file. A missing file yields the
// default theme.
func LoadTheme(path string) (*Theme, error) {
	theme := DefaultTheme()
	if path == "" {
		return theme, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return theme, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, theme); err != nil {
		return nil, fmt.Errorf("failed to parse theme: %w", err)
	}
	if err := ValidateTheme(theme); err != nil {
		return nil, fmt.Errorf("invalid theme: %w", err)
	}
	return theme, nil
}

// ToColorScheme converts the theme into printers. Invalid names fall back to
// the terminal default.
func (t *Theme) ToColorScheme() *ColorScheme {
	return &ColorScheme{
		Header:  color.New(colorAttribute(t.HeaderColor), color.Bold),
		Prompt:  color.New(colorAttribute(t.PromptColor)),
		Result:  color.New(colorAttribute(t.ResultColor)),
		Error:   color.New(colorAttribute(t.ErrorColor), color.Bold),
		Success: color.New(colorAttribute(t.SuccessColor)),
	}
}

// DisabledColorScheme returns printers that never emit escape codes.
func DisabledColorScheme() *ColorScheme {
	plain := func() *color.Color {
		c := color.New()
		c.DisableColor()
		return c
	}
	return &ColorScheme{
		Header:  plain(),
		Prompt:  plain(),
		Result:  plain(),
		Error:   plain(),
		Success: plain(),
	}
}

// NewColorScheme loads the theme at path and honors NO_COLOR.
func NewColorScheme(path string) (*ColorScheme, error) {
	if os.Getenv("NO_COLOR") != "" {
		return DisabledColorScheme(), nil
	}
	theme, err := LoadTheme(path)
	if err != nil {
		return nil, err
	}
	return theme.ToColorScheme(), nil
}

// Println writes a colored line.
func Println(w io.Writer, c *color.Color, format string, args ...interface{}) {
	_, _ = c.Fprintf(w, format, args...)
	_, _ = fmt.Fprintln(w)
}
