package batch_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yusufsyaifudin/bulkmail/pkg/batch"
	"github.com/yusufsyaifudin/bulkmail/pkg/csvrecord"
)

func people(prefix string, n int) []csvrecord.Record {
	out := make([]csvrecord.Record, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, csvrecord.New(map[string]string{
			"name":  fmt.Sprintf("%s%d", prefix, i),
			"email": fmt.Sprintf("%s%d@x.io", prefix, i),
		}))
	}

	return out
}

func TestAssign(t *testing.T) {
	testCases := []struct {
		Name       string
		Senders    int
		Recipients int
		Quota      int
		Sizes      []int
		Unassigned int
	}{
		{Name: "exact", Senders: 2, Recipients: 40, Quota: 20, Sizes: []int{20, 20}},
		{Name: "last batch partial", Senders: 3, Recipients: 45, Quota: 20, Sizes: []int{20, 20, 5}},
		{Name: "too many senders", Senders: 5, Recipients: 25, Quota: 20, Sizes: []int{20, 5}},
		{Name: "too few senders", Senders: 1, Recipients: 25, Quota: 20, Sizes: []int{20}, Unassigned: 5},
		{Name: "no recipients", Senders: 2, Recipients: 0, Quota: 20, Sizes: []int{}},
		{Name: "no senders", Senders: 0, Recipients: 3, Quota: 1, Sizes: []int{}, Unassigned: 3},
		{Name: "max quota", Senders: 2, Recipients: 2, Quota: math.MaxInt, Sizes: []int{2}},
		{Name: "max quota many senders", Senders: 5, Recipients: 3, Quota: math.MaxInt - 1, Sizes: []int{3}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.Name, func(t *testing.T) {
			recipients := people("r", testCase.Recipients)
			out, err := batch.Assign(people("s", testCase.Senders), recipients, testCase.Quota)
			require.NoError(t, err)

			sizes := make([]int, 0)
			for _, b := range out.Batches {
				sizes = append(sizes, len(b.Recipients))
			}

			if diff := cmp.Diff(testCase.Sizes, sizes); diff != "" {
				t.Errorf("batch sizes mismatch (-want +got):\n%s", diff)
			}

			assert.Equal(t, testCase.Unassigned, out.UnassignedCount)
			assert.Equal(t, testCase.Recipients-testCase.Unassigned, out.AssignedCount())
			assert.Equal(t, len(testCase.Sizes), out.SenderCount())
		})
	}
}

func TestAssign_Order(t *testing.T) {
	recipients := people("r", 5)
	out, err := batch.Assign(people("s", 3), recipients, 2)
	require.NoError(t, err)
	require.Len(t, out.Batches, 3)

	assert.Equal(t, "s1@x.io", out.Batches[1].Sender.Email())
	assert.Equal(t, []csvrecord.Record{recipients[2], recipients[3]}, out.Batches[1].Recipients)
	assert.Equal(t, []csvrecord.Record{recipients[4]}, out.Batches[2].Recipients)
}

func TestAssign_InvalidQuota(t *testing.T) {
	for _, quota := range []int{0, -1} {
		_, err := batch.Assign(people("s", 1), people("r", 1), quota)
		assert.ErrorIs(t, err, batch.ErrInvalidQuota)
	}
}

func TestRequiredSenderCount(t *testing.T) {
	testCases := []struct {
		Recipients, Quota, Expect int
	}{
		{Recipients: 0, Quota: 20, Expect: 0},
		{Recipients: 1, Quota: 20, Expect: 1},
		{Recipients: 20, Quota: 20, Expect: 1},
		{Recipients: 21, Quota: 20, Expect: 2},
		{Recipients: 100, Quota: 1, Expect: 100},
		{Recipients: 5, Quota: math.MaxInt, Expect: 1},
		{Recipients: math.MaxInt, Quota: 2, Expect: math.MaxInt/2 + 1},
		{Recipients: math.MaxInt, Quota: math.MaxInt, Expect: 1},
		{Recipients: math.MaxInt, Quota: 1, Expect: math.MaxInt},
	}

	for _, testCase := range testCases {
		t.Run(fmt.Sprintf("%d/%d", testCase.Recipients, testCase.Quota), func(t *testing.T) {
			n, err := batch.RequiredSenderCount(testCase.Recipients, testCase.Quota)
			assert.NoError(t, err)
			assert.Equal(t, testCase.Expect, n)
		})
	}

	_, err := batch.RequiredSenderCount(10, 0)
	assert.ErrorIs(t, err, batch.ErrInvalidQuota)
}
