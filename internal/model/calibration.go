package model

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/Knetic/govaluate"
)

// Calibration post-processes the classifier probability with an
// equation discovered offline by symbolic regression. The equation file
// holds a single expression over the variable "p"; its output is
// clamped to [0, 1].
type Calibration struct {
	expression *govaluate.EvaluableExpression
}

// LoadCalibration parses the equation at path. A missing file is not an
// error: calibration is optional and (nil, nil) means "serve the raw
// probability".
func LoadCalibration(path string) (*Calibration, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read calibration equation: %w", err)
	}

	expr := strings.TrimSpace(string(payload))
	if expr == "" {
		return nil, fmt.Errorf("calibration equation file %s is empty", path)
	}

	functions := map[string]govaluate.ExpressionFunction{
		"sqrt": func(args ...interface{}) (interface{}, error) {
			v, err := argFloat(args)
			if err != nil {
				return nil, err
			}
			if v < 0 {
				v = 0
			}
			return math.Sqrt(v), nil
		},
		"square": func(args ...interface{}) (interface{}, error) {
			v, err := argFloat(args)
			if err != nil {
				return nil, err
			}
			return v * v, nil
		},
		"exp": func(args ...interface{}) (interface{}, error) {
			v, err := argFloat(args)
			if err != nil {
				return nil, err
			}
			return math.Exp(v), nil
		},
		"log": func(args ...interface{}) (interface{}, error) {
			v, err := argFloat(args)
			if err != nil {
				return nil, err
			}
			if v <= 0 {
				v = 1e-6
			}
			return math.Log(v), nil
		},
	}

	evaluable, err := govaluate.NewEvaluableExpressionWithFunctions(expr, functions)
	if err != nil {
		return nil, fmt.Errorf("parse calibration equation: %w", err)
	}
	for _, name := range evaluable.Vars() {
		if name != "p" {
			return nil, fmt.Errorf("calibration equation references unknown variable %q", name)
		}
	}

	return &Calibration{expression: evaluable}, nil
}

// Apply evaluates the equation at probability p. The second return is
// false when evaluation fails; callers fall back to the raw value.
func (c *Calibration) Apply(p float64) (float64, bool) {
	if c == nil {
		return 0, false
	}

	result, err := c.expression.Evaluate(map[string]interface{}{"p": p})
	if err != nil {
		return 0, false
	}
	value, err := anyFloat(result)
	if err != nil {
		return 0, false
	}

	if value < 0 {
		value = 0
	} else if value > 1 {
		value = 1
	}
	return value, true
}

func argFloat(args []interface{}) (float64, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("missing argument")
	}
	return anyFloat(args[0])
}

func anyFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", value)
	}
}
