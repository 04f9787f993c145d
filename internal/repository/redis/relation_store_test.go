package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagindex/internal/domain"
	"tagindex/internal/repository/storetest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startStore(t *testing.T, mr *miniredis.Miniredis, mutate func(*Config)) *RelationStore {
	t.Helper()
	cfg := DefaultConfig(mr.Addr())
	cfg.DialTimeout = time.Second
	if mutate != nil {
		mutate(&cfg)
	}
	s := NewRelationStore(cfg, discardLogger())
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func TestRelationStore_Contract(t *testing.T) {
	policies := []domain.RetentionPolicy{domain.DeleteOnEmpty, domain.RetainEmpty}
	for _, p := range policies {
		t.Run(p.String(), func(t *testing.T) {
			storetest.Run(t, func(t *testing.T) domain.RelationStore {
				mr := miniredis.RunT(t)
				return startStore(t, mr, func(c *Config) { c.Retention = p })
			})
		})
	}
}

func TestRelationStore_EmptiedTagCeasesToExist(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	s := startStore(t, mr, nil)
	require.Equal(t, domain.DeleteOnEmpty, s.Retention())

	require.NoError(t, s.TagItem(ctx, "my_key2", "my_tag2"))
	assert.True(t, mr.Exists("tag:my_tag2"))
	assert.True(t, mr.Exists("item:my_key2"))

	require.NoError(t, s.UntagItem(ctx, "my_key2", "my_tag2"))
	exists, err := s.TagExists(ctx, "my_tag2")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.False(t, mr.Exists("tag:my_tag2"))
	assert.False(t, mr.Exists("item:my_key2"))
}

func TestRelationStore_RetainEmptyUsesRegistry(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	s := startStore(t, mr, func(c *Config) { c.Retention = domain.RetainEmpty })

	require.NoError(t, s.TagItem(ctx, "doc1", "red"))
	require.NoError(t, s.UntagItem(ctx, "doc1", "red"))

	members, err := mr.Members(DefaultKnownTagsKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"red"}, members)
	assert.False(t, mr.Exists("tag:red"))
}

func TestRelationStore_SharedKeyNamespace(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	s := startStore(t, mr, func(c *Config) {
		c.ItemPrefix = ""
		c.TagPrefix = ""
	})

	require.NoError(t, s.TagItem(ctx, "doc1", "red"))

	tags, err := mr.Members("doc1")
	require.NoError(t, err)
	assert.Equal(t, []string{"red"}, tags)
	items, err := mr.Members("red")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc1"}, items)
}

func TestRelationStore_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("no nodes", func(t *testing.T) {
		s := NewRelationStore(Config{}, discardLogger())
		err := s.Start(ctx)
		require.ErrorIs(t, err, domain.ErrInvalidConfig)
	})

	t.Run("malformed url", func(t *testing.T) {
		s := NewRelationStore(DefaultConfig("redis://%zz"), discardLogger())
		err := s.Start(ctx)
		require.ErrorIs(t, err, domain.ErrInvalidConfig)
	})

	t.Run("equal prefixes", func(t *testing.T) {
		cfg := DefaultConfig("127.0.0.1:6379")
		cfg.TagPrefix = cfg.ItemPrefix
		err := NewRelationStore(cfg, discardLogger()).Start(ctx)
		require.ErrorIs(t, err, domain.ErrInvalidConfig)
	})

	t.Run("fails over to first reachable node", func(t *testing.T) {
		mr := miniredis.RunT(t)
		down := miniredis.RunT(t)
		downAddr := down.Addr()
		down.Close()

		cfg := DefaultConfig(downAddr, mr.Addr())
		cfg.DialTimeout = 200 * time.Millisecond
		s := NewRelationStore(cfg, discardLogger())
		require.NoError(t, s.Start(ctx))
		defer s.Shutdown(ctx)

		assert.Equal(t, mr.Addr(), s.Node())
	})

	t.Run("prefers configuration order", func(t *testing.T) {
		first := miniredis.RunT(t)
		second := miniredis.RunT(t)
		s := NewRelationStore(DefaultConfig(first.Addr(), second.Addr()), discardLogger())
		require.NoError(t, s.Start(ctx))
		defer s.Shutdown(ctx)

		assert.Equal(t, first.Addr(), s.Node())
	})

	t.Run("url node", func(t *testing.T) {
		mr := miniredis.RunT(t)
		s := NewRelationStore(DefaultConfig("redis://"+mr.Addr()), discardLogger())
		require.NoError(t, s.Start(ctx))
		defer s.Shutdown(ctx)
		require.NoError(t, s.TagItem(ctx, "doc1", "red"))
		assert.True(t, mr.Exists("tag:red"))
	})

	t.Run("no reachable node", func(t *testing.T) {
		down := miniredis.RunT(t)
		addr := down.Addr()
		down.Close()

		cfg := DefaultConfig(addr)
		cfg.DialTimeout = 200 * time.Millisecond
		err := NewRelationStore(cfg, discardLogger()).Start(ctx)
		require.ErrorIs(t, err, domain.ErrBackend)
	})
}

func TestRelationStore_NotStarted(t *testing.T) {
	ctx := context.Background()
	s := NewRelationStore(DefaultConfig("127.0.0.1:6379"), discardLogger())

	require.ErrorIs(t, s.TagItem(ctx, "doc1", "red"), domain.ErrNotStarted)
	require.ErrorIs(t, s.UntagItem(ctx, "doc1", "red"), domain.ErrNotStarted)
	_, err := s.RetrieveTagsForItem(ctx, "doc1")
	require.ErrorIs(t, err, domain.ErrNotStarted)
	_, err = s.RetrieveItemsWithTag(ctx, "red")
	require.ErrorIs(t, err, domain.ErrNotStarted)
	_, err = s.TagExists(ctx, "red")
	require.ErrorIs(t, err, domain.ErrNotStarted)
	require.NoError(t, s.Shutdown(ctx))
}

func TestRelationStore_BackendErrors(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	s := startStore(t, mr, nil)
	mr.SetError("ERR forged failure")

	require.ErrorIs(t, s.TagItem(ctx, "doc1", "red"), domain.ErrBackend)
	require.ErrorIs(t, s.UntagItem(ctx, "doc1", "red"), domain.ErrBackend)

	tags, err := s.RetrieveTagsForItem(ctx, "doc1")
	require.ErrorIs(t, err, domain.ErrBackend)
	assert.Nil(t, tags)

	_, err = s.RetrieveItemsWithTag(ctx, "red")
	require.ErrorIs(t, err, domain.ErrBackend)

	_, err = s.TagExists(ctx, "red")
	require.ErrorIs(t, err, domain.ErrBackend)
	require.NotErrorIs(t, err, domain.ErrNotStarted)
}
