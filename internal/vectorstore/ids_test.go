package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentID(t *testing.T) {
	assert.Equal(t, ContentID("hello"), ContentID("hello"))
	assert.NotEqual(t, ContentID("hello"), ContentID("hello "))
	// sha256("hello")
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", ContentID("hello"))
}

func TestNewBatch(t *testing.T) {
	b := newBatch(
		[]string{"one", "two", "three"},
		[]map[string]interface{}{{"tags": []string{"x", "y"}}, nil},
		[]string{"id-1", ""},
	)

	require.Equal(t, 3, b.len())
	assert.Equal(t, []string{"id-1", ContentID("two"), ContentID("three")}, b.ids)
	assert.Equal(t, map[string]interface{}{"tags": "x, y"}, b.metadatas[0])
	assert.NotNil(t, b.metadatas[1])
	assert.Empty(t, b.metadatas[1])
	assert.NotNil(t, b.metadatas[2])
}

func TestNewBatch_IgnoresSurplus(t *testing.T) {
	b := newBatch(
		[]string{"only"},
		[]map[string]interface{}{{"a": 1}, {"b": 2}},
		[]string{"x", "y", "z"},
	)

	require.Equal(t, 1, b.len())
	assert.Equal(t, []string{"x"}, b.ids)
	assert.Equal(t, map[string]interface{}{"a": 1}, b.metadatas[0])
}

func TestBatchDedupe(t *testing.T) {
	b := newBatch(
		[]string{"first", "other", "second"},
		[]map[string]interface{}{{"n": 1}, {"n": 2}, {"n": 3}},
		[]string{"dup", "solo", "dup"},
	).dedupe()

	require.Equal(t, 2, b.len())
	assert.Equal(t, []string{"solo", "dup"}, b.ids)
	assert.Equal(t, []string{"other", "second"}, b.documents)
	assert.Equal(t, 3, b.metadatas[1]["n"])
}

func TestBatchDedupe_NoDuplicates(t *testing.T) {
	b := newBatch([]string{"a", "b"}, nil, nil)
	assert.Equal(t, b, b.dedupe())
}
