package sequence

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/seqcomp/model"
)

func shapeOf[T model.Float](t *testing.T, dims ...int) model.Shape {
	t.Helper()
	s, err := model.NewShape(model.DTypeOf[T](), dims...)
	require.NoError(t, err)
	return s
}

// wave returns a deterministic, smooth array that differs per seed.
func wave[T model.Float](seed int, dims ...int) *model.Array[T] {
	a := model.NewArray[T](dims...)
	for i := range a.Data {
		a.Data[i] = T(math.Sin(float64(i)*0.1+float64(seed)) * float64(seed+1))
	}
	return a
}

var testDims = [][]int{{16}, {4, 4}, {3, 4, 5}, {2, 3, 2, 3}}
