package services

import (
	"context"
	"fmt"
	"log/slog"

	"tagindex/internal/domain"
)

type tagService struct {
	store  domain.RelationStore
	logger *slog.Logger
}

// NewTagService creates a TagService over the given relation store.
func NewTagService(store domain.RelationStore, logger *slog.Logger) domain.TagService {
	if logger == nil {
		logger = slog.Default()
	}
	return &tagService{
		store:  store,
		logger: logger.With("retention", store.Retention().String()),
	}
}

func validate(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: empty %s", domain.ErrInvalidInput, name)
	}
	return nil
}

func (s *tagService) Start(ctx context.Context) error {
	if err := s.store.Start(ctx); err != nil {
		s.logger.ErrorContext(ctx, "start relation store", "error", err)
		return fmt.Errorf("start relation store: %w", err)
	}
	s.logger.InfoContext(ctx, "relation store started")
	return nil
}

func (s *tagService) Shutdown(ctx context.Context) error {
	if err := s.store.Shutdown(ctx); err != nil {
		s.logger.ErrorContext(ctx, "shutdown relation store", "error", err)
		return fmt.Errorf("shutdown relation store: %w", err)
	}
	s.logger.InfoContext(ctx, "relation store stopped")
	return nil
}

func (s *tagService) TagItem(ctx context.Context, item, tag string) error {
	if err := validate("item", item); err != nil {
		return err
	}
	if err := validate("tag", tag); err != nil {
		return err
	}
	if err := s.store.TagItem(ctx, item, tag); err != nil {
		s.logger.ErrorContext(ctx, "tag item failed", "item", item, "tag", tag, "error", err)
		return fmt.Errorf("tag item: %w", err)
	}
	s.logger.DebugContext(ctx, "item tagged", "item", item, "tag", tag)
	return nil
}

func (s *tagService) UntagItem(ctx context.Context, item, tag string) error {
	if err := validate("item", item); err != nil {
		return err
	}
	if err := validate("tag", tag); err != nil {
		return err
	}
	if err := s.store.UntagItem(ctx, item, tag); err != nil {
		s.logger.ErrorContext(ctx, "untag item failed", "item", item, "tag", tag, "error", err)
		return fmt.Errorf("untag item: %w", err)
	}
	s.logger.DebugContext(ctx, "item untagged", "item", item, "tag", tag)
	return nil
}

func (s *tagService) TagsForItem(ctx context.Context, item string) ([]string, error) {
	if err := validate("item", item); err != nil {
		return nil, err
	}
	tags, err := s.store.RetrieveTagsForItem(ctx, item)
	if err != nil {
		s.logger.ErrorContext(ctx, "retrieve tags failed", "item", item, "error", err)
		return nil, fmt.Errorf("retrieve tags for item: %w", err)
	}
	return tags, nil
}

func (s *tagService) ItemsWithTag(ctx context.Context, tag string) ([]string, error) {
	if err := validate("tag", tag); err != nil {
		return nil, err
	}
	items, err := s.store.RetrieveItemsWithTag(ctx, tag)
	if err != nil {
		s.logger.ErrorContext(ctx, "retrieve items failed", "tag", tag, "error", err)
		return nil, fmt.Errorf("retrieve items with tag: %w", err)
	}
	return items, nil
}

func (s *tagService) TagExists(ctx context.Context, tag string) (bool, error) {
	if err := validate("tag", tag); err != nil {
		return false, err
	}
	ok, err := s.store.TagExists(ctx, tag)
	if err != nil {
		s.logger.ErrorContext(ctx, "tag exists failed", "tag", tag, "error", err)
		return false, fmt.Errorf("tag exists: %w", err)
	}
	return ok, nil
}
