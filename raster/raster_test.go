package raster

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/mat"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func sequence(rows, cols int) *Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = float64(i)
	}
	return NewDense(rows, cols, data)
}

// failingArray errors when asked for a window containing failRow
type failingArray struct {
	rows, cols int
	failRow    int
	reads      int32
}

func (f *failingArray) Dims() (int, int) { return f.rows, f.cols }

func (f *failingArray) ReadRows(_ context.Context, r0, r1 int, dst []float64) error {
	atomic.AddInt32(&f.reads, 1)
	if f.failRow >= r0 && f.failRow < r1 {
		return errors.New("read failed")
	}
	for i := range dst {
		dst[i] = 1
	}
	return nil
}

func evaluators() map[string]Evaluator {
	return map[string]Evaluator{
		"eager":         Eager{},
		"chunked-1":     Chunked{ChunkRows: 1, Workers: 4},
		"chunked-3":     Chunked{ChunkRows: 3, Workers: 2},
		"chunked-whole": Chunked{},
	}
}

func TestEvaluators_MapZip(t *testing.T) {
	ctx := context.Background()
	a := sequence(7, 5)
	b := sequence(7, 5)

	for name, ev := range evaluators() {
		doubled, err := ev.Map(ctx, a, func(v float64) float64 { return 2 * v })
		require.NoError(t, err, name)
		sum, err := ev.Zip(ctx, doubled, b, func(x, y float64) float64 { return x + y })
		require.NoError(t, err, name)

		out, err := ev.Compute(ctx, sum)
		require.NoError(t, err, name)
		rows, cols := out.Dims()
		assert.Equal(t, 7, rows, name)
		assert.Equal(t, 5, cols, name)
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				assert.Equal(t, 3*float64(r*cols+c), out.At(r, c), name)
			}
		}
	}
}

func TestEvaluators_Agree(t *testing.T) {
	ctx := context.Background()
	src := sequence(33, 17)
	f := func(v float64) float64 { return math.Sqrt(v) / 3 }

	eager, err := Eager{}.Map(ctx, src, f)
	require.NoError(t, err)
	want, err := Eager{}.Compute(ctx, eager)
	require.NoError(t, err)

	for _, chunk := range []int{1, 2, 5, 16, 33, 100} {
		lazy, err := Chunked{ChunkRows: chunk, Workers: 3}.Map(ctx, src, f)
		require.NoError(t, err)
		got, err := Chunked{ChunkRows: chunk, Workers: 3}.Compute(ctx, lazy)
		require.NoError(t, err)
		assert.True(t, mat.Equal(want, got), "chunk size %d", chunk)
	}
}

func TestChunked_IsLazy(t *testing.T) {
	src := &failingArray{rows: 4, cols: 2, failRow: -1}
	var calls int32
	lazy, err := Chunked{ChunkRows: 1}.Map(context.Background(), src, func(v float64) float64 {
		atomic.AddInt32(&calls, 1)
		return v
	})
	require.NoError(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&src.reads))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))

	_, err = Chunked{ChunkRows: 1}.Compute(context.Background(), lazy)
	require.NoError(t, err)
	assert.Equal(t, int32(4), atomic.LoadInt32(&src.reads))
	assert.Equal(t, int32(8), atomic.LoadInt32(&calls))
}

func TestEvaluators_ShapeMismatch(t *testing.T) {
	for name, ev := range evaluators() {
		_, err := ev.Zip(context.Background(), sequence(2, 3), sequence(3, 2), func(a, b float64) float64 { return a })
		assert.ErrorIs(t, err, ErrShapeMismatch, name)
	}
}

func TestEvaluators_ReadError(t *testing.T) {
	for name, ev := range evaluators() {
		src := &failingArray{rows: 10, cols: 3, failRow: 6}
		mapped, err := ev.Map(context.Background(), src, func(v float64) float64 { return v })
		if err == nil {
			_, err = ev.Compute(context.Background(), mapped)
		}
		assert.Error(t, err, name)
	}
}

func TestChunked_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Chunked{ChunkRows: 1, Workers: 1}.Compute(ctx, sequence(5, 5))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompute_Empty(t *testing.T) {
	empty := &failingArray{rows: 0, cols: 4, failRow: -1}
	_, err := Chunked{}.Compute(context.Background(), empty)
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = Eager{}.Compute(context.Background(), empty)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestDense_ReadRowsWindow(t *testing.T) {
	d := sequence(4, 3)
	dst := make([]float64, 6)
	require.NoError(t, d.ReadRows(context.Background(), 1, 3, dst))
	assert.Equal(t, []float64{3, 4, 5, 6, 7, 8}, dst)

	assert.Error(t, d.ReadRows(context.Background(), 3, 5, make([]float64, 6)))
	assert.Error(t, d.ReadRows(context.Background(), 0, 1, make([]float64, 2)))
}

func TestBand_WithArrayKeepsGeoreferencing(t *testing.T) {
	band := &Band{Array: sequence(2, 2), GeoTransform: [6]float64{600000, 30, 0, 2500000, 0, -30}, Projection: "EPSG:32646"}
	derived := band.WithArray(sequence(2, 2))
	assert.Equal(t, band.GeoTransform, derived.GeoTransform)
	assert.Equal(t, band.Projection, derived.Projection)
}

func TestSummarize(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{0.5, -0.25, math.NaN(), 1, math.Inf(1), 0})
	s := Summarize(m)

	assert.Equal(t, 2, s.Rows)
	assert.Equal(t, 3, s.Cols)
	assert.Equal(t, 4, s.Finite)
	assert.Equal(t, 2, s.NonFinite)
	assert.Equal(t, -0.25, s.Min)
	assert.Equal(t, 1.0, s.Max)
	assert.InDelta(t, 0.3125, s.Mean, 1e-12)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"rows":2,"cols":3,"finite":4,"nonFinite":2,"min":-0.25,"max":1,"mean":0.3125}`, string(data))
}

func TestSummarize_AllNonFinite(t *testing.T) {
	s := Summarize(mat.NewDense(1, 2, []float64{math.NaN(), math.Inf(-1)}))
	assert.Equal(t, 0, s.Finite)
	assert.True(t, math.IsNaN(s.Mean))

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"rows":1,"cols":2,"finite":0,"nonFinite":2,"min":null,"max":null,"mean":null}`, string(data))
}
