package utils

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStableHashIgnoresKeyOrder(t *testing.T) {
	var a, b map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"title":"도로 보수","budget":100,"region":"서울"}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"region":"서울","title":"도로 보수","budget":100}`), &b))

	hashA, err := StableHash(a)
	require.NoError(t, err)
	hashB, err := StableHash(b)
	require.NoError(t, err)

	assert.Equal(t, hashA, hashB)
	assert.Len(t, hashA, 64)
}

func TestStableHashDetectsContentChange(t *testing.T) {
	base := map[string]any{"title": "도로 보수", "budget": 100}
	changed := map[string]any{"title": "도로 보수", "budget": 200}

	hashBase, err := StableHash(base)
	require.NoError(t, err)
	hashChanged, err := StableHash(changed)
	require.NoError(t, err)

	assert.NotEqual(t, hashBase, hashChanged)
}

func TestStableHashNestedStructures(t *testing.T) {
	var a, b map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"t":"x","att":[{"name":"a.pdf","url":"u"}]}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"att":[{"url":"u","name":"a.pdf"}],"t":"x"}`), &b))

	hashA, err := StableHash(a)
	require.NoError(t, err)
	hashB, err := StableHash(b)
	require.NoError(t, err)

	assert.Equal(t, hashA, hashB)
}

func TestKeyHash(t *testing.T) {
	assert.Equal(t, KeyHash("normalize", "g2b", "T-1"), KeyHash("normalize", "g2b", "T-1"))
	assert.NotEqual(t, KeyHash("normalize", "g2b", "T-1"), KeyHash("normalize", "g2b", "T-2"))
	assert.Len(t, KeyHash("a"), 64)

	// The parts are joined with a separator, so boundaries matter.
	assert.NotEqual(t, KeyHash("ab", "c"), KeyHash("a", "bc"))
}
