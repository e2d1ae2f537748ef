package raster

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// Dense is an in-memory Array backed by a gonum matrix
type Dense struct {
	m *mat.Dense
}

// NewDense creates a Dense from row-major data. data is used directly.
func NewDense(rows, cols int, data []float64) *Dense {
	return &Dense{m: mat.NewDense(rows, cols, data)}
}

// FromMatrix wraps an existing matrix
func FromMatrix(m *mat.Dense) *Dense {
	return &Dense{m: m}
}

// Matrix returns the underlying matrix
func (d *Dense) Matrix() *mat.Dense {
	return d.m
}

// Dims implements Array
func (d *Dense) Dims() (int, int) {
	return d.m.Dims()
}

// At returns the sample at row r, column c
func (d *Dense) At(r, c int) float64 {
	return d.m.At(r, c)
}

// ReadRows implements Array
func (d *Dense) ReadRows(_ context.Context, r0, r1 int, dst []float64) error {
	if err := checkWindow(d, r0, r1, dst); err != nil {
		return err
	}
	_, cols := d.m.Dims()
	raw := d.m.RawMatrix()
	for r := r0; r < r1; r++ {
		copy(dst[(r-r0)*cols:(r-r0+1)*cols], raw.Data[r*raw.Stride:r*raw.Stride+cols])
	}
	return nil
}

// Eager evaluates every Map and Zip immediately into a new matrix
type Eager struct{}

// Map implements Evaluator
func (Eager) Map(ctx context.Context, a Array, f UnaryFunc) (Array, error) {
	src, err := Eager{}.Compute(ctx, a)
	if err != nil {
		return nil, err
	}
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 { return f(v) }, src)
	return FromMatrix(&out), nil
}

// Zip implements Evaluator
func (Eager) Zip(ctx context.Context, a, b Array, f BinaryFunc) (Array, error) {
	if err := SameShape(a, b); err != nil {
		return nil, err
	}
	left, err := Eager{}.Compute(ctx, a)
	if err != nil {
		return nil, err
	}
	right, err := Eager{}.Compute(ctx, b)
	if err != nil {
		return nil, err
	}
	var out mat.Dense
	out.Apply(func(i, j int, v float64) float64 { return f(v, right.At(i, j)) }, left)
	return FromMatrix(&out), nil
}

// Compute implements Evaluator. Dense inputs are returned without copying.
func (Eager) Compute(ctx context.Context, a Array) (*mat.Dense, error) {
	if d, ok := a.(*Dense); ok {
		return d.m, nil
	}
	rows, cols := a.Dims()
	if rows == 0 || cols == 0 {
		return nil, ErrEmpty
	}
	data := make([]float64, rows*cols)
	if err := a.ReadRows(ctx, 0, rows, data); err != nil {
		return nil, err
	}
	return mat.NewDense(rows, cols, data), nil
}
