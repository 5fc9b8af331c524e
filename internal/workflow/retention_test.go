package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlanEviction(t *testing.T) {
	require.Nil(t, PlanEviction(nil, 3))
	require.Nil(t, PlanEviction([]int{1, 2}, 3))
	require.Equal(t, []int{1}, PlanEviction([]int{3, 1, 2}, 3))
	require.Equal(t, []int{4}, PlanEviction([]int{6, 5, 4}, 3))
}

func TestPlanEvictionAfterCapShrinks(t *testing.T) {
	require.Equal(t, []int{2, 3}, PlanEviction([]int{2, 3, 4, 5}, 3))
	require.Equal(t, []int{7, 8, 9}, PlanEviction([]int{9, 8, 7}, 1))
}

func TestPlanEvictionDoesNotReorderInput(t *testing.T) {
	in := []int{3, 1, 2}
	PlanEviction(in, 3)
	require.Equal(t, []int{3, 1, 2}, in)
}
