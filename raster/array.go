// Package raster holds the array abstraction the pixel-wise transforms are
// written against, and the backends that evaluate them.
package raster

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrShapeMismatch is returned when two arrays combined pixel-wise differ in shape
var ErrShapeMismatch = errors.New("raster shapes do not match")

// ErrEmpty is returned when an array with no cells is materialized
var ErrEmpty = errors.New("raster has no cells")

// UnaryFunc transforms one sample
type UnaryFunc func(v float64) float64

// BinaryFunc combines two co-located samples
type BinaryFunc func(a, b float64) float64

// Array is a 2-D grid of float64 samples, readable a band of rows at a time.
type Array interface {
	// Dims returns the number of rows and columns.
	Dims() (rows, cols int)
	// ReadRows fills dst, which holds (r1-r0)*cols values, with rows [r0, r1).
	ReadRows(ctx context.Context, r0, r1 int, dst []float64) error
}

// Evaluator applies pixel-wise functions to arrays. Implementations decide
// whether work happens immediately or is deferred until Compute.
type Evaluator interface {
	Map(ctx context.Context, a Array, f UnaryFunc) (Array, error)
	Zip(ctx context.Context, a, b Array, f BinaryFunc) (Array, error)
	Compute(ctx context.Context, a Array) (*mat.Dense, error)
}

// SameShape returns ErrShapeMismatch unless a and b have identical dimensions
func SameShape(a, b Array) error {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		return fmt.Errorf("%w: %dx%d vs %dx%d", ErrShapeMismatch, ar, ac, br, bc)
	}
	return nil
}

func checkWindow(a Array, r0, r1 int, dst []float64) error {
	rows, cols := a.Dims()
	if r0 < 0 || r1 > rows || r0 > r1 {
		return fmt.Errorf("row window [%d, %d) outside 0..%d", r0, r1, rows)
	}
	if len(dst) != (r1-r0)*cols {
		return fmt.Errorf("destination holds %d values, window needs %d", len(dst), (r1-r0)*cols)
	}
	return nil
}
