package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisposableFunc_RunsOnce(t *testing.T) {
	calls := 0
	d := DisposableFunc(func() { calls++ })

	d.Dispose()
	d.Dispose()

	assert.Equal(t, 1, calls)
}

func TestGroup_DisposesInReverseOrder(t *testing.T) {
	var order []int
	var g Group
	for i := 1; i <= 3; i++ {
		i := i
		g.Add(DisposableFunc(func() { order = append(order, i) }))
	}

	g.Dispose()
	g.Dispose()

	assert.Equal(t, []int{3, 2, 1}, order)
}
