package raster

import (
	"encoding/json"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Summary reduces a materialized grid to scalars. Min, Max and Mean cover
// finite samples only and are NaN when there are none.
type Summary struct {
	Rows      int     `json:"rows"`
	Cols      int     `json:"cols"`
	Finite    int     `json:"finite"`
	NonFinite int     `json:"nonFinite"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Mean      float64 `json:"mean"`
}

// Summarize computes a Summary of m
func Summarize(m *mat.Dense) Summary {
	rows, cols := m.Dims()
	summary := Summary{Rows: rows, Cols: cols, Min: math.NaN(), Max: math.NaN(), Mean: math.NaN()}

	finite := make([]float64, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for _, v := range m.RawRowView(r) {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				summary.NonFinite++
				continue
			}
			finite = append(finite, v)
		}
	}
	summary.Finite = len(finite)
	if len(finite) > 0 {
		summary.Min = floats.Min(finite)
		summary.Max = floats.Max(finite)
		summary.Mean = stat.Mean(finite, nil)
	}
	return summary
}

// MarshalJSON writes non-finite statistics as null
func (s Summary) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Rows      int      `json:"rows"`
		Cols      int      `json:"cols"`
		Finite    int      `json:"finite"`
		NonFinite int      `json:"nonFinite"`
		Min       *float64 `json:"min"`
		Max       *float64 `json:"max"`
		Mean      *float64 `json:"mean"`
	}{s.Rows, s.Cols, s.Finite, s.NonFinite, finiteOrNil(s.Min), finiteOrNil(s.Max), finiteOrNil(s.Mean)})
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
