package material

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSortKeyOrdersByZorderFirst(t *testing.T) {
	low := SortKey(0, 255, 0xFFFFFFFF, 0xFFFF)
	high := SortKey(1, 0, 0, 0)
	require.Less(t, low, high)
}

func TestSortKeyOrdersByShaderWithinZorder(t *testing.T) {
	a := SortKey(0, 1, 0xFFFFFFFF, 0xFFFF)
	b := SortKey(0, 2, 0, 0)
	require.Less(t, a, b)
}

func TestSortKeyTruncatesMaterialIDTo16Bits(t *testing.T) {
	a := SortKey(0, 0, 0, MaterialID(0x10000))
	b := SortKey(0, 0, 0, MaterialID(0x00000))
	require.Equal(t, a, b)
}

func TestSortKeyIsStableForEqualInputs(t *testing.T) {
	require.Equal(t, SortKey(1, 2, 3, 4), SortKey(1, 2, 3, 4))
}
