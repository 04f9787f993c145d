package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"tagindex/internal/domain"
)

const (
	DefaultItemPrefix   = "item:"
	DefaultTagPrefix    = "tag:"
	DefaultKnownTagsKey = "tagindex:known-tags"
	defaultDialTimeout  = 5 * time.Second
)

// Config holds the settings of the Redis relation store.
type Config struct {
	// Nodes are tried in order at Start; the first one answering PING is used.
	// Entries are either host:port or redis:// URLs.
	Nodes []string
	// ItemPrefix and TagPrefix namespace the two kinds of set keys. Leaving both
	// empty makes items and tags share one key space.
	ItemPrefix string
	TagPrefix  string
	// KnownTagsKey names the registry set used by the RetainEmpty policy.
	KnownTagsKey string
	// Retention defaults to DeleteOnEmpty, which is what Redis does with empty sets.
	Retention   domain.RetentionPolicy
	DialTimeout time.Duration
}

// DefaultConfig returns a Config with the given nodes and the default key layout.
func DefaultConfig(nodes ...string) Config {
	return Config{
		Nodes:        nodes,
		ItemPrefix:   DefaultItemPrefix,
		TagPrefix:    DefaultTagPrefix,
		KnownTagsKey: DefaultKnownTagsKey,
		Retention:    domain.DeleteOnEmpty,
		DialTimeout:  defaultDialTimeout,
	}
}

// RelationStore keeps the relation in Redis sets: one per item holding its
// tags and one per tag holding its items.
type RelationStore struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	client *goredis.Client
	node   string
}

// NewRelationStore returns a store for cfg. The configuration is validated by Start.
func NewRelationStore(cfg Config, logger *slog.Logger) *RelationStore {
	if cfg.Retention == 0 {
		cfg.Retention = domain.DeleteOnEmpty
	}
	if cfg.KnownTagsKey == "" {
		cfg.KnownTagsKey = DefaultKnownTagsKey
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RelationStore{cfg: cfg, logger: logger}
}

func (s *RelationStore) Retention() domain.RetentionPolicy { return s.cfg.Retention }

// Node returns the address of the node selected by Start, or "" when not started.
func (s *RelationStore) Node() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.node
}

func clientOptions(node string, dialTimeout time.Duration) (*goredis.Options, error) {
	var opts *goredis.Options
	if strings.Contains(node, "://") {
		parsed, err := goredis.ParseURL(node)
		if err != nil {
			return nil, fmt.Errorf("%w: node %q: %v", domain.ErrInvalidConfig, node, err)
		}
		opts = parsed
	} else {
		opts = &goredis.Options{Addr: node}
	}
	opts.DialTimeout = dialTimeout
	return opts, nil
}

// Start probes every configured node and keeps a client to the first
// reachable one in configuration order.
func (s *RelationStore) Start(ctx context.Context) error {
	if len(s.cfg.Nodes) == 0 {
		return fmt.Errorf("%w: no redis nodes configured", domain.ErrInvalidConfig)
	}
	if s.cfg.ItemPrefix == s.cfg.TagPrefix && s.cfg.ItemPrefix != "" {
		return fmt.Errorf("%w: item and tag prefixes must differ", domain.ErrInvalidConfig)
	}

	opts := make([]*goredis.Options, len(s.cfg.Nodes))
	for i, node := range s.cfg.Nodes {
		o, err := clientOptions(node, s.cfg.DialTimeout)
		if err != nil {
			return err
		}
		opts[i] = o
	}

	clients := make([]*goredis.Client, len(opts))
	probeErrs := make([]error, len(opts))
	var g errgroup.Group
	for i := range opts {
		i := i
		g.Go(func() error {
			c := goredis.NewClient(opts[i])
			clients[i] = c
			probeErrs[i] = c.Ping(ctx).Err()
			return nil
		})
	}
	_ = g.Wait()

	chosen := -1
	for i := range clients {
		if probeErrs[i] == nil && chosen < 0 {
			chosen = i
			continue
		}
		if probeErrs[i] != nil {
			s.logger.Warn("redis node unreachable", "node", s.cfg.Nodes[i], "error", probeErrs[i])
		}
		_ = clients[i].Close()
	}
	if chosen < 0 {
		return fmt.Errorf("%w: no reachable redis node: %w", domain.ErrBackend, errors.Join(probeErrs...))
	}

	s.mu.Lock()
	old := s.client
	s.client = clients[chosen]
	s.node = s.cfg.Nodes[chosen]
	s.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	s.logger.Info("redis relation store started", "node", s.cfg.Nodes[chosen], "retention", s.cfg.Retention.String())
	return nil
}

// Shutdown closes the client. Calling it when not started is a no-op.
func (s *RelationStore) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	c := s.client
	s.client = nil
	s.node = ""
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	if err := c.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", domain.ErrBackend, err)
	}
	return nil
}

func (s *RelationStore) conn() (*goredis.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return nil, domain.ErrNotStarted
	}
	return s.client, nil
}

func (s *RelationStore) itemKey(item string) string { return s.cfg.ItemPrefix + item }
func (s *RelationStore) tagKey(tag string) string   { return s.cfg.TagPrefix + tag }

// TagItem adds tag to the item's set and item to the tag's set in one MULTI/EXEC.
func (s *RelationStore) TagItem(ctx context.Context, item, tag string) error {
	c, err := s.conn()
	if err != nil {
		return err
	}
	_, err = c.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.SAdd(ctx, s.itemKey(item), tag)
		pipe.SAdd(ctx, s.tagKey(tag), item)
		if s.cfg.Retention == domain.RetainEmpty {
			pipe.SAdd(ctx, s.cfg.KnownTagsKey, tag)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: tag item: %w", domain.ErrBackend, err)
	}
	return nil
}

// UntagItem removes both sides of the pair in one MULTI/EXEC. Redis deletes
// sets that become empty.
func (s *RelationStore) UntagItem(ctx context.Context, item, tag string) error {
	c, err := s.conn()
	if err != nil {
		return err
	}
	_, err = c.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.SRem(ctx, s.tagKey(tag), item)
		pipe.SRem(ctx, s.itemKey(item), tag)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: untag item: %w", domain.ErrBackend, err)
	}
	return nil
}

func (s *RelationStore) members(ctx context.Context, key string) ([]string, error) {
	c, err := s.conn()
	if err != nil {
		return nil, err
	}
	out, err := c.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: smembers %s: %w", domain.ErrBackend, key, err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func (s *RelationStore) RetrieveTagsForItem(ctx context.Context, item string) ([]string, error) {
	return s.members(ctx, s.itemKey(item))
}

func (s *RelationStore) RetrieveItemsWithTag(ctx context.Context, tag string) ([]string, error) {
	return s.members(ctx, s.tagKey(tag))
}

// TagExists checks the tag's set key under DeleteOnEmpty, and the registry
// set under RetainEmpty.
func (s *RelationStore) TagExists(ctx context.Context, tag string) (bool, error) {
	c, err := s.conn()
	if err != nil {
		return false, err
	}
	if s.cfg.Retention == domain.RetainEmpty {
		ok, err := c.SIsMember(ctx, s.cfg.KnownTagsKey, tag).Result()
		if err != nil {
			return false, fmt.Errorf("%w: sismember: %w", domain.ErrBackend, err)
		}
		return ok, nil
	}
	n, err := c.Exists(ctx, s.tagKey(tag)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: exists: %w", domain.ErrBackend, err)
	}
	return n > 0, nil
}
