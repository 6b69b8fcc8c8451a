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
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
)

var (
	ErrEmptyColor   = errors.New("color value is empty")
	ErrInvalidColor = errors.New("unknown color")
)

var colorNames = map[string]color.Attribute{
	"black":     color.FgBlack,
	"red":       color.FgRed,
	"green":     color.FgGreen,
	"yellow":    color.FgYellow,
	"blue":      color.FgBlue,
	"magenta":   color.FgMagenta,
	"cyan":      color.FgCyan,
	"white":     color.FgWhite,
	"hired":     color.FgHiRed,
	"higreen":   color.FgHiGreen,
	"hiyellow":  color.FgHiYellow,
	"hiblue":    color.FgHiBlue,
	"himagenta": color.FgHiMagenta,
	"hicyan":    color.FgHiCyan,
	"hiwhite":   color.FgHiWhite,
}

func colorAttribute(name string) color.Attribute {
	if attr, ok := colorNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return attr
	}
	return color.Reset
}

// ValidateTheme validates all theme color values.
func ValidateTheme(t *Theme) error {
	if t == nil {
		return fmt.Errorf("theme is nil")
	}
	fields := []struct{ name, value string }{
		{"header_color", t.HeaderColor},
		{"prompt_color", t.PromptColor},
		{"result_color", t.ResultColor},
		{"error_color", t.ErrorColor},
		{"success_color", t.SuccessColor},
	}
	for _, f := range fields {
		if err := ValidateColor(f.value); err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
	}
	return nil
}

// ValidateColor validates a single color name.
func ValidateColor(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyColor
	}
	if _, ok := colorNames[strings.ToLower(strings.TrimSpace(name))]; !ok {
		names := make([]string, 0, len(colorNames))
		for n := range colorNames {
			names = append(names, n)
		}
		sort.Strings(names)
		return fmt.Errorf("%w: %q (expected one of %s)", ErrInvalidColor, name, strings.Join(names, ", "))
	}
	return nil
}
