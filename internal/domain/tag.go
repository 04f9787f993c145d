package domain

import (
	"context"
	"fmt"
	"strings"
)

// Membership is the fact that Item carries Tag.
type Membership struct {
	Item string `json:"item"`
	Tag  string `json:"tag"`
}

// NewMembership returns a Membership for the given item and tag.
func NewMembership(item, tag string) Membership {
	return Membership{Item: item, Tag: tag}
}

// RetentionPolicy decides whether a tag with no items still exists.
type RetentionPolicy int

const (
	// RetainEmpty keeps a tag known once it has been used, even after its last item is untagged.
	RetainEmpty RetentionPolicy = iota + 1
	// DeleteOnEmpty treats a tag without items as non-existent.
	DeleteOnEmpty
)

func (p RetentionPolicy) String() string {
	switch p {
	case RetainEmpty:
		return "retain-empty"
	case DeleteOnEmpty:
		return "delete-on-empty"
	default:
		return fmt.Sprintf("retention(%d)", int(p))
	}
}

// ParseRetentionPolicy parses the names produced by RetentionPolicy.String.
// The empty string returns 0, meaning "backend default".
func ParseRetentionPolicy(s string) (RetentionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return 0, nil
	case "retain-empty":
		return RetainEmpty, nil
	case "delete-on-empty":
		return DeleteOnEmpty, nil
	default:
		return 0, fmt.Errorf("%w: unknown retention policy %q", ErrInvalidConfig, s)
	}
}

// RelationStore maintains the item <-> tag relation. Every backend keeps
// RetrieveTagsForItem and RetrieveItemsWithTag mirror images of each other.
//
// Returned slices never contain duplicates and have no defined order. Unknown
// items and tags produce an empty slice, not an error.
type RelationStore interface {
	// Start acquires the resources the backend needs. It must be called before any other operation.
	Start(ctx context.Context) error
	// Shutdown releases what Start acquired. It is safe to call more than once, and the store may be started again.
	Shutdown(ctx context.Context) error
	// TagItem records that item carries tag. Tagging an existing pair is a no-op.
	TagItem(ctx context.Context, item, tag string) error
	// UntagItem removes the pair if present. Absent pairs are not an error.
	UntagItem(ctx context.Context, item, tag string) error
	// RetrieveTagsForItem returns the tags item currently carries.
	RetrieveTagsForItem(ctx context.Context, item string) ([]string, error)
	// RetrieveItemsWithTag returns the items currently carrying tag.
	RetrieveItemsWithTag(ctx context.Context, tag string) ([]string, error)
	// TagExists reports whether tag exists under the store's RetentionPolicy.
	TagExists(ctx context.Context, tag string) (bool, error)
	// Retention reports the policy the store was built with.
	Retention() RetentionPolicy
}

// TagService is the validated entry point for callers of the relation.
type TagService interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
	TagItem(ctx context.Context, item, tag string) error
	UntagItem(ctx context.Context, item, tag string) error
	TagsForItem(ctx context.Context, item string) ([]string, error)
	ItemsWithTag(ctx context.Context, tag string) ([]string, error)
	TagExists(ctx context.Context, tag string) (bool, error)
}
