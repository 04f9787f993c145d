package memory

import (
	"context"
	"sync"

	"tagindex/internal/domain"
)

type set map[string]struct{}

func (s set) members() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}

// RelationStore keeps the relation in two maps owned by the process.
// A single lock guards both, so a reader never sees one side updated without the other.
type RelationStore struct {
	mu        sync.RWMutex
	byItem    map[string]set
	byTag     map[string]set
	retention domain.RetentionPolicy
}

// Option configures a RelationStore.
type Option func(*RelationStore)

// WithRetention overrides the default RetainEmpty policy.
func WithRetention(p domain.RetentionPolicy) Option {
	return func(s *RelationStore) {
		if p != 0 {
			s.retention = p
		}
	}
}

// NewRelationStore returns an empty in-memory domain.RelationStore.
func NewRelationStore(opts ...Option) *RelationStore {
	s := &RelationStore{
		byItem:    make(map[string]set),
		byTag:     make(map[string]set),
		retention: domain.RetainEmpty,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start is a no-op; the maps live for the lifetime of the store.
func (s *RelationStore) Start(ctx context.Context) error { return nil }

// Shutdown is a no-op and keeps the relation intact.
func (s *RelationStore) Shutdown(ctx context.Context) error { return nil }

func (s *RelationStore) Retention() domain.RetentionPolicy { return s.retention }

func (s *RelationStore) TagItem(ctx context.Context, item, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.add(item, tag)
	return nil
}

func (s *RelationStore) add(item, tag string) {
	tags, ok := s.byItem[item]
	if !ok {
		tags = make(set)
		s.byItem[item] = tags
	}
	items, ok := s.byTag[tag]
	if !ok {
		items = make(set)
		s.byTag[tag] = items
	}
	tags[tag] = struct{}{}
	items[item] = struct{}{}
}

func (s *RelationStore) UntagItem(ctx context.Context, item, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tags, ok := s.byItem[item]; ok {
		delete(tags, tag)
		if len(tags) == 0 && s.retention == domain.DeleteOnEmpty {
			delete(s.byItem, item)
		}
	}
	if items, ok := s.byTag[tag]; ok {
		delete(items, item)
		if len(items) == 0 && s.retention == domain.DeleteOnEmpty {
			delete(s.byTag, tag)
		}
	}
	return nil
}

func (s *RelationStore) RetrieveTagsForItem(ctx context.Context, item string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byItem[item].members(), nil
}

func (s *RelationStore) RetrieveItemsWithTag(ctx context.Context, tag string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byTag[tag].members(), nil
}

// TagExists answers from key presence only. Under RetainEmpty a tag whose
// items were all removed still exists.
func (s *RelationStore) TagExists(ctx context.Context, tag string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byTag[tag]
	return ok, nil
}

// Snapshot is an export of the relation. Items and Tags list every key the
// store holds, including keys whose sets are empty under RetainEmpty.
type Snapshot struct {
	Memberships []domain.Membership `json:"memberships"`
	Items       []string            `json:"items"`
	Tags        []string            `json:"tags"`
}

// Snapshot returns every membership and every known item and tag key.
func (s *RelationStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var snap Snapshot
	for item, tags := range s.byItem {
		snap.Items = append(snap.Items, item)
		for tag := range tags {
			snap.Memberships = append(snap.Memberships, domain.NewMembership(item, tag))
		}
	}
	for tag := range s.byTag {
		snap.Tags = append(snap.Tags, tag)
	}
	return snap
}

// Restore replaces the relation with snap. Empty keys are recreated only
// under RetainEmpty.
func (s *RelationStore) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byItem = make(map[string]set)
	s.byTag = make(map[string]set)
	if s.retention == domain.RetainEmpty {
		for _, item := range snap.Items {
			s.byItem[item] = make(set)
		}
		for _, tag := range snap.Tags {
			s.byTag[tag] = make(set)
		}
	}
	for _, m := range snap.Memberships {
		s.add(m.Item, m.Tag)
	}
}
