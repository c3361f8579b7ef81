package record

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	attrs := map[string]interface{}{"id": 7, "name": "Fyodor"}
	r := New("Author", attrs)

	assert.Equal(t, "Author", r.Model())
	assert.Equal(t, 7, r.ID())

	// The attribute map is copied
	attrs["name"] = "Lev"
	name, ok := r.Get("name")
	require.True(t, ok)
	assert.Equal(t, "Fyodor", name)
}

func TestRIDUnique(t *testing.T) {
	seen := make(map[RID]bool)
	for i := 0; i < 1000; i++ {
		r := New("Sample", nil)
		require.False(t, seen[r.RID()], "duplicate rid")
		seen[r.RID()] = true
	}
}

func TestIDNilWhenUnset(t *testing.T) {
	r := New("Sample", nil)
	assert.Nil(t, r.ID())

	r.SetID(12)
	assert.Equal(t, 12, r.ID())

	r.SetID(nil)
	assert.Nil(t, r.ID())
}

func TestRelationshipCache(t *testing.T) {
	r := New("Sample", nil)

	_, ok := r.Cached("sample_type")
	assert.False(t, ok, "fresh relationship should be unresolved")

	r.Resolve("sample_type", nil)
	v, ok := r.Cached("sample_type")
	assert.True(t, ok, "resolved nil must be distinguishable from unresolved")
	assert.Nil(t, v)

	other := New("SampleType", nil)
	r.Resolve("sample_type", other)
	v, ok = r.Cached("sample_type")
	require.True(t, ok)
	assert.Same(t, other, v)

	r.Invalidate("sample_type")
	assert.False(t, r.IsResolved("sample_type"))
}

func TestInvalidateAll(t *testing.T) {
	r := New("Operation", nil)
	r.Resolve("field_values", []*Record{})
	r.Resolve("operation_type", nil)
	assert.Equal(t, []string{"field_values", "operation_type"}, r.ResolvedNames())

	r.InvalidateAll()
	assert.Empty(t, r.ResolvedNames())
}

func TestAttributesCopy(t *testing.T) {
	r := New("User", map[string]interface{}{"login": "ada"})
	attrs := r.Attributes()
	attrs["login"] = "grace"

	login, _ := r.Get("login")
	assert.Equal(t, "ada", login)
	assert.Equal(t, []string{"login"}, r.AttributeNames())

	r.Delete("login")
	_, ok := r.Get("login")
	assert.False(t, ok)
}

func TestWithPath(t *testing.T) {
	base := errors.New("boom")

	assert.Nil(t, WithPath("books", nil))

	err := WithPath("meta", base)
	err = WithPath("0", err)
	err = WithPath("books", err)

	var pe *PathError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, []string{"books", "0", "meta"}, pe.Path)
	assert.Equal(t, "books.0.meta: boom", err.Error())
	assert.True(t, errors.Is(err, base))
}
