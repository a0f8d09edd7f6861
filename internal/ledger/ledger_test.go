package ledger

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendProducesContiguousIndices(t *testing.T) {
	var versions []Version
	var expected []string

	for n := 1; n <= 6; n++ {
		outputs := make([]string, 0, n%3+1)
		for i := 0; i < n%3+1; i++ {
			outputs = append(outputs, fmt.Sprintf("outputs/sku/1/%d_%d.png", n, i))
		}
		plan, err := Append(versions, nil, outputs)
		require.NoError(t, err)
		require.Len(t, plan.Added, 1)
		assert.Equal(t, n, plan.Added[0].Index)

		versions = plan.Versions
		expected = append(expected, outputs...)
		assert.Equal(t, expected, plan.Flattened)
	}

	require.Len(t, versions, 6)
	for i, v := range versions {
		assert.Equal(t, i+1, v.Index)
	}
	assert.NoError(t, Validate(versions))
}

func TestAppendSeedsLegacyOutputs(t *testing.T) {
	plan, err := Append(nil, []string{"a.png", "b.png"}, []string{"c.png"})
	require.NoError(t, err)

	require.Len(t, plan.Added, 2)
	assert.Equal(t, Version{Index: 1, Keys: []string{"a.png", "b.png"}}, plan.Added[0])
	assert.Equal(t, Version{Index: 2, Keys: []string{"c.png"}}, plan.Added[1])
	assert.Equal(t, []string{"a.png", "b.png", "c.png"}, plan.Flattened)
}

func TestAppendIgnoresLegacyOnceVersioned(t *testing.T) {
	existing := []Version{{Index: 1, Keys: []string{"a.png"}}}
	plan, err := Append(existing, []string{"a.png"}, []string{"b.png"})
	require.NoError(t, err)

	require.Len(t, plan.Added, 1)
	assert.Equal(t, 2, plan.Added[0].Index)
	assert.Equal(t, []string{"a.png", "b.png"}, plan.Flattened)
}

func TestFlattenKeepsDuplicatesAndOrder(t *testing.T) {
	versions := []Version{
		{Index: 1, Keys: []string{"x.png", "y.png"}},
		{Index: 2, Keys: []string{"x.png"}},
	}
	assert.Equal(t, []string{"x.png", "y.png", "x.png"}, Flatten(versions))
}

func TestValidateRejectsGaps(t *testing.T) {
	err := Validate([]Version{{Index: 1}, {Index: 3}})
	assert.Error(t, err)

	_, err = Append([]Version{{Index: 2}}, nil, []string{"a"})
	assert.Error(t, err)
}

func TestAppendDoesNotAliasInput(t *testing.T) {
	outputs := []string{"a.png"}
	plan, err := Append(nil, nil, outputs)
	require.NoError(t, err)

	outputs[0] = "mutated"
	assert.Equal(t, []string{"a.png"}, plan.Flattened)
}

func TestVersionOf(t *testing.T) {
	versions := []Version{
		{Index: 1, Keys: []string{"a", "b"}},
		{Index: 2, Keys: []string{"c"}},
	}
	idx, ok := VersionOf(versions, 2)
	require.True(t, ok)
	assert.Equal(t, 2, idx)

	_, ok = VersionOf(versions, 3)
	assert.False(t, ok)
}
