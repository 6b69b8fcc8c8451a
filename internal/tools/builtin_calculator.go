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
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
)

const maxExpressionLength = 1000

type calculatorArgs struct {
	Expression string `json:"expression" validate:"required,max=1000" jsonschema:"description=Expression to evaluate such as 2 + 3 * 4 or sqrt(16) or 2 ** 10"`
}

var calculatorEnv = map[string]interface{}{
	"pi": math.Pi,
	"e":  math.E,
}

func unaryMath(name string, fn func(float64) float64) expr.Option {
	return expr.Function(name, func(params ...any) (any, error) {
		if len(params) != 1 {
			return nil, fmt.Errorf("%s expects 1 argument, got %d", name, len(params))
		}
		x, err := toFloat(params[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return fn(x), nil
	})
}

func reduceMath(name string, pick func(a, b float64) float64) expr.Option {
	return expr.Function(name, func(params ...any) (any, error) {
		if len(params) == 0 {
			return nil, fmt.Errorf("%s expects at least 1 argument", name)
		}
		acc, err := toFloat(params[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		for _, p := range params[1:] {
			x, err := toFloat(p)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			acc = pick(acc, x)
		}
		return acc, nil
	})
}

func calculatorOptions() []expr.Option {
	return []expr.Option{
		expr.Env(calculatorEnv),
		expr.DisableAllBuiltins(),
		unaryMath("abs", math.Abs),
		unaryMath("sqrt", math.Sqrt),
		unaryMath("sin", math.Sin),
		unaryMath("cos", math.Cos),
		unaryMath("tan", math.Tan),
		unaryMath("asin", math.Asin),
		unaryMath("acos", math.Acos),
		unaryMath("atan", math.Atan),
		unaryMath("log", math.Log),
		unaryMath("log10", math.Log10),
		unaryMath("exp", math.Exp),
		unaryMath("floor", math.Floor),
		unaryMath("ceil", math.Ceil),
		expr.Function("round", func(params ...any) (any, error) {
			if len(params) < 1 || len(params) > 2 {
				return nil, fmt.Errorf("round expects 1 or 2 arguments, got %d", len(params))
			}
			x, err := toFloat(params[0])
			if err != nil {
				return nil, fmt.Errorf("round: %w", err)
			}
			digits := 0.0
			if len(params) == 2 {
				if digits, err = toFloat(params[1]); err != nil {
					return nil, fmt.Errorf("round: %w", err)
				}
			}
			scale := math.Pow(10, math.Trunc(digits))
			return math.Round(x*scale) / scale, nil
		}),
		expr.Function("pow", func(params ...any) (any, error) {
			if len(params) != 2 {
				return nil, fmt.Errorf("pow expects 2 arguments, got %d", len(params))
			}
			x, err := toFloat(params[0])
			if err != nil {
				return nil, fmt.Errorf("pow: %w", err)
			}
			y, err := toFloat(params[1])
			if err != nil {
				return nil, fmt.Errorf("pow: %w", err)
			}
			return math.Pow(x, y), nil
		}),
		reduceMath("min", math.Min),
		reduceMath("max", math.Max),
	}
}

func (b *builtins) calculate(ctx context.Context, args calculatorArgs) (string, error) {
	if err := ensureContext(ctx); err != nil {
		return "", err
	}
	value, err := evaluateExpression(args.Expression)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s = %s", strings.TrimSpace(args.Expression), value), nil
}

// evaluateExpression evaluates a side-effect free arithmetic expression.
// Only numbers, the math functions above, pi and e are available.
func evaluateExpression(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("expression cannot be empty")
	}
	if len(input) > maxExpressionLength {
		return "", fmt.Errorf("expression exceeds maximum length of %d characters", maxExpressionLength)
	}

	program, err := expr.Compile(input, calculatorOptions()...)
	if err != nil {
		return "", expressionError("invalid expression", err)
	}
	out, err := expr.Run(program, calculatorEnv)
	if err != nil {
		return "", expressionError("evaluation failed", err)
	}

	switch v := out.(type) {
	case bool:
		return strconv.FormatBool(v), nil
	default:
		f, err := toFloat(v)
		if err != nil {
			return "", fmt.Errorf("expression did not produce a number")
		}
		if math.IsInf(f, 0) {
			return "", fmt.Errorf("division by zero or result out of range")
		}
		if math.IsNaN(f) {
			return "", fmt.Errorf("result is undefined")
		}
		return formatNumber(f), nil
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', 12, 64)
}

func expressionError(prefix string, err error) error {
	msg := firstLine(err.Error())
	if strings.Contains(msg, "divide by zero") || strings.Contains(msg, "division by zero") {
		return fmt.Errorf("division by zero")
	}
	return fmt.Errorf("%s: %s", prefix, msg)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
