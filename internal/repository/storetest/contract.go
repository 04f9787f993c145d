// Package storetest holds the behaviour every domain.RelationStore must share.
// Backend test files call Run with a factory returning a started, empty store.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagindex/internal/domain"
)

// Factory returns a started store with no memberships. Cleanup is registered on t.
type Factory func(t *testing.T) domain.RelationStore

// Run executes the relation contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("tag then query both views", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.TagItem(ctx, "doc1", "red"))

		exists, err := s.TagExists(ctx, "red")
		require.NoError(t, err)
		assert.True(t, exists)

		items, err := s.RetrieveItemsWithTag(ctx, "red")
		require.NoError(t, err)
		assert.Contains(t, items, "doc1")

		tags, err := s.RetrieveTagsForItem(ctx, "doc1")
		require.NoError(t, err)
		assert.Contains(t, tags, "red")
	})

	t.Run("untag never tagged pair is a no-op", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.UntagItem(ctx, "doc9", "blue"))

		items, err := s.RetrieveItemsWithTag(ctx, "blue")
		require.NoError(t, err)
		assert.Empty(t, items)

		tags, err := s.RetrieveTagsForItem(ctx, "doc9")
		require.NoError(t, err)
		assert.Empty(t, tags)

		exists, err := s.TagExists(ctx, "blue")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("untag one of two items", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.TagItem(ctx, "doc1", "red"))
		require.NoError(t, s.TagItem(ctx, "doc2", "red"))
		require.NoError(t, s.UntagItem(ctx, "doc1", "red"))

		items, err := s.RetrieveItemsWithTag(ctx, "red")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"doc2"}, items)

		tags, err := s.RetrieveTagsForItem(ctx, "doc1")
		require.NoError(t, err)
		assert.Empty(t, tags)
	})

	t.Run("tag item is idempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.TagItem(ctx, "doc1", "red"))
		require.NoError(t, s.TagItem(ctx, "doc1", "red"))

		items, err := s.RetrieveItemsWithTag(ctx, "red")
		require.NoError(t, err)
		assert.Equal(t, []string{"doc1"}, items)

		tags, err := s.RetrieveTagsForItem(ctx, "doc1")
		require.NoError(t, err)
		assert.Equal(t, []string{"red"}, tags)
	})

	t.Run("unknown keys return empty", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.TagItem(ctx, "doc1", "red"))

		items, err := s.RetrieveItemsWithTag(ctx, "green")
		require.NoError(t, err)
		assert.NotNil(t, items)
		assert.Empty(t, items)

		tags, err := s.RetrieveTagsForItem(ctx, "doc2")
		require.NoError(t, err)
		assert.NotNil(t, tags)
		assert.Empty(t, tags)
	})

	t.Run("retention policy", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.TagItem(ctx, "k", "t"))
		require.NoError(t, s.UntagItem(ctx, "k", "t"))

		exists, err := s.TagExists(ctx, "t")
		require.NoError(t, err)
		switch s.Retention() {
		case domain.RetainEmpty:
			assert.True(t, exists, "retain-empty keeps an emptied tag")
		case domain.DeleteOnEmpty:
			assert.False(t, exists, "delete-on-empty drops an emptied tag")
		default:
			t.Fatalf("unexpected retention policy %v", s.Retention())
		}

		items, err := s.RetrieveItemsWithTag(ctx, "t")
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("symmetry after mixed mutations", func(t *testing.T) {
		s := newStore(t)
		items := []string{"a", "b", "c"}
		tags := []string{"x", "y", "z"}
		for i, item := range items {
			for j, tag := range tags {
				if (i+j)%2 == 0 {
					require.NoError(t, s.TagItem(ctx, item, tag))
				}
			}
		}
		require.NoError(t, s.UntagItem(ctx, "a", "x"))
		require.NoError(t, s.UntagItem(ctx, "b", "z"))
		require.NoError(t, s.TagItem(ctx, "c", "y"))

		AssertSymmetric(t, s, items, tags)
	})

	t.Run("shutdown is idempotent and restartable", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Shutdown(ctx))
		require.NoError(t, s.Shutdown(ctx))
		require.NoError(t, s.Start(ctx))
		require.NoError(t, s.TagItem(ctx, "doc1", "red"))

		exists, err := s.TagExists(ctx, "red")
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

// AssertSymmetric checks T ∈ tags(I) ⇔ I ∈ items(T) for every given pair.
func AssertSymmetric(t *testing.T, s domain.RelationStore, items, tags []string) {
	t.Helper()
	ctx := context.Background()
	for _, item := range items {
		itemTags, err := s.RetrieveTagsForItem(ctx, item)
		require.NoError(t, err)
		for _, tag := range tags {
			tagItems, err := s.RetrieveItemsWithTag(ctx, tag)
			require.NoError(t, err)
			assert.Equal(t, contains(itemTags, tag), contains(tagItems, item),
				fmt.Sprintf("asymmetric membership for (%s, %s)", item, tag))
		}
	}
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
