package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)

	id, err := s.Put(ctx, "Item", map[string]interface{}{"location": "B1", "sample_id": 4})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	id, err = s.Put(ctx, "Item", map[string]interface{}{"id": 10, "location": "B2", "sample_id": 4})
	require.NoError(t, err)
	assert.Equal(t, 10, id)

	id, err = s.Put(ctx, "Item", map[string]interface{}{"location": "M20", "sample_id": 5})
	require.NoError(t, err)
	assert.Equal(t, int64(11), id, "ids continue after the largest stored id")

	t.Run("find", func(t *testing.T) {
		got, err := s.Find(ctx, "Item", int64(10))
		require.NoError(t, err)
		assert.Equal(t, map[string]interface{}{"id": 10, "location": "B2", "sample_id": 4}, got)

		got, err = s.Find(ctx, "Item", 99)
		require.NoError(t, err)
		assert.Nil(t, got)

		got, err = s.Find(ctx, "Plan", 1)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("where keeps insertion order", func(t *testing.T) {
		got, err := s.Where(ctx, "Item", map[string]interface{}{"sample_id": 4})
		require.NoError(t, err)
		items := got.([]interface{})
		require.Len(t, items, 2)
		assert.Equal(t, "B1", items[0].(map[string]interface{})["location"])
		assert.Equal(t, "B2", items[1].(map[string]interface{})["location"])

		got, err = s.Where(ctx, "Item", map[string]interface{}{"id": []interface{}{1, 11}})
		require.NoError(t, err)
		assert.Len(t, got, 2)

		got, err = s.Where(ctx, "Plan", nil)
		require.NoError(t, err)
		assert.Equal(t, []interface{}{}, got)
	})

	t.Run("results are copies", func(t *testing.T) {
		got, err := s.Find(ctx, "Item", 1)
		require.NoError(t, err)
		got.(map[string]interface{})["location"] = "changed"

		again, err := s.Find(ctx, "Item", 1)
		require.NoError(t, err)
		assert.Equal(t, "B1", again.(map[string]interface{})["location"])
	})

	t.Run("replace keeps position", func(t *testing.T) {
		_, err := s.Put(ctx, "Item", map[string]interface{}{"id": 1, "location": "B9", "sample_id": 4})
		require.NoError(t, err)

		got, err := s.Where(ctx, "Item", map[string]interface{}{"sample_id": 4})
		require.NoError(t, err)
		assert.Equal(t, "B9", got.([]interface{})[0].(map[string]interface{})["location"])
		assert.Equal(t, 3, s.Count("Item"))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, "Item", 10))
		require.NoError(t, s.Delete(ctx, "Item", 10))
		require.NoError(t, s.Delete(ctx, "Plan", 1))
		assert.Equal(t, 2, s.Count("Item"))
		assert.Equal(t, []string{"Item"}, s.Models())
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := s.Find(cctx, "Item", 1)
		assert.ErrorIs(t, err, context.Canceled)
		_, err = s.Put(cctx, "Item", nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
