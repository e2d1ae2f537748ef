package raster

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Chunked records Map and Zip without evaluating them. Compute splits the
// expression into bands of ChunkRows rows and evaluates up to Workers bands
// at a time.
type Chunked struct {
	ChunkRows int
	Workers   int
}

type mapNode struct {
	src Array
	f   UnaryFunc
}

func (n *mapNode) Dims() (int, int) { return n.src.Dims() }

func (n *mapNode) ReadRows(ctx context.Context, r0, r1 int, dst []float64) error {
	if err := n.src.ReadRows(ctx, r0, r1, dst); err != nil {
		return err
	}
	for i, v := range dst {
		dst[i] = n.f(v)
	}
	return nil
}

type zipNode struct {
	a, b Array
	f    BinaryFunc
}

func (n *zipNode) Dims() (int, int) { return n.a.Dims() }

func (n *zipNode) ReadRows(ctx context.Context, r0, r1 int, dst []float64) error {
	if err := n.a.ReadRows(ctx, r0, r1, dst); err != nil {
		return err
	}
	other := make([]float64, len(dst))
	if err := n.b.ReadRows(ctx, r0, r1, other); err != nil {
		return err
	}
	for i := range dst {
		dst[i] = n.f(dst[i], other[i])
	}
	return nil
}

// Map implements Evaluator
func (Chunked) Map(_ context.Context, a Array, f UnaryFunc) (Array, error) {
	return &mapNode{src: a, f: f}, nil
}

// Zip implements Evaluator
func (Chunked) Zip(_ context.Context, a, b Array, f BinaryFunc) (Array, error) {
	if err := SameShape(a, b); err != nil {
		return nil, err
	}
	return &zipNode{a: a, b: b, f: f}, nil
}

// Compute implements Evaluator. The first chunk error cancels the rest.
func (c Chunked) Compute(ctx context.Context, a Array) (*mat.Dense, error) {
	rows, cols := a.Dims()
	if rows == 0 || cols == 0 {
		return nil, ErrEmpty
	}
	chunkRows := c.ChunkRows
	if chunkRows <= 0 {
		chunkRows = rows
	}
	workers := c.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	data := make([]float64, rows*cols)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for r0 := 0; r0 < rows; r0 += chunkRows {
		r0 := r0
		r1 := min(r0+chunkRows, rows)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return a.ReadRows(gctx, r0, r1, data[r0*cols:r1*cols])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mat.NewDense(rows, cols, data), nil
}
