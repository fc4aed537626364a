// Package numeric is the built-in "numeric" native package: small vector
// helpers over lists of numbers.
package numeric

import (
	"context"
	"errors"
	"fmt"
	"math"

	"costa/internal/costa"
	"costa/internal/native"
)

const Name = "numeric"

func init() {
	native.Register(Name, func() (costa.FuncSet, error) { return New(), nil })
}

func New() native.Funcs {
	return native.Funcs{
		"sum":       sum,
		"mean":      mean,
		"scale":     scale,
		"dot":       dot,
		"normalize": normalize,
		"minmax":    minmax,
	}
}

var errEmpty = errors.New("numeric: empty vector")

func sum(_ context.Context, args []any) (any, error) {
	xs, err := vector(args, 0)
	if err != nil {
		return nil, err
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s, nil
}

func mean(ctx context.Context, args []any) (any, error) {
	xs, err := vector(args, 0)
	if err != nil {
		return nil, err
	}
	if len(xs) == 0 {
		return nil, errEmpty
	}
	s, _ := sum(ctx, args)
	return s.(float64) / float64(len(xs)), nil
}

func scale(_ context.Context, args []any) (any, error) {
	xs, err := vector(args, 0)
	if err != nil {
		return nil, err
	}
	k, err := scalar(args, 1)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = x * k
	}
	return out, nil
}

func dot(_ context.Context, args []any) (any, error) {
	a, err := vector(args, 0)
	if err != nil {
		return nil, err
	}
	b, err := vector(args, 1)
	if err != nil {
		return nil, err
	}
	if len(a) != len(b) {
		return nil, fmt.Errorf("numeric: dot of vectors with lengths %d and %d", len(a), len(b))
	}
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s, nil
}

// normalize rescales xs into [0, 1]. A constant vector maps to zeros.
func normalize(_ context.Context, args []any) (any, error) {
	xs, err := vector(args, 0)
	if err != nil {
		return nil, err
	}
	lo, hi := bounds(xs)
	out := make([]any, len(xs))
	for i, x := range xs {
		if hi == lo {
			out[i] = 0.0
			continue
		}
		out[i] = (x - lo) / (hi - lo)
	}
	return out, nil
}

func minmax(_ context.Context, args []any) (any, error) {
	xs, err := vector(args, 0)
	if err != nil {
		return nil, err
	}
	if len(xs) == 0 {
		return nil, errEmpty
	}
	lo, hi := bounds(xs)
	return map[string]any{"min": lo, "max": hi}, nil
}

func bounds(xs []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, x := range xs {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return lo, hi
}

func vector(args []any, i int) ([]float64, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("numeric: missing argument %d", i)
	}
	list, ok := args[i].([]any)
	if !ok {
		return nil, fmt.Errorf("numeric: argument %d: want a list of numbers, got %T", i, args[i])
	}
	out := make([]float64, len(list))
	for j, v := range list {
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("numeric: argument %d[%d]: not a number (%T)", i, j, v)
		}
		out[j] = f
	}
	return out, nil
}

func scalar(args []any, i int) (float64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("numeric: missing argument %d", i)
	}
	f, ok := toFloat(args[i])
	if !ok {
		return 0, fmt.Errorf("numeric: argument %d: not a number (%T)", i, args[i])
	}
	return f, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
